package report

import (
	"fmt"
	"strings"

	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/source"
)

// Focus selects what the narrative report concentrates on.
type Focus string

const (
	FocusOverview   Focus = "overview"
	FocusDrivers    Focus = "drivers"
	FocusCompare    Focus = "comparison"
	FocusPainPoints Focus = "pain_points"
	FocusPraise     Focus = "praise"
)

// Tone selects the writing register.
type Tone string

const (
	ToneAnalytical Tone = "analytical"
	ToneExecutive  Tone = "executive"
	ToneResearch   Tone = "research"
)

var focusText = map[Focus]string{
	FocusOverview: `Provide a comprehensive analysis covering:
1. Overall sentiment and what it signals about audience satisfaction
2. Rankings and comparisons across all {{buckets}} with concrete reasoning
3. The 3-5 most important themes in positive content: what people love and why
4. The 3-5 most important themes in negative content: recurring pain points and what they signal
5. Engagement patterns and what they reveal
6. Differentiating keywords (terms that only appear on one side) and what they reveal
7. Specific actionable takeaways
Be specific. Name {{buckets}}. Quote or closely paraphrase actual language. Avoid vague statements.`,

	FocusDrivers: `Analyse the specific drivers of positive and negative sentiment:
1. The top 4-5 factors behind positive content, inferring underlying causes beyond keywords
2. The top 4-5 factors behind negative content, specific about what people are reacting to
3. Compare the emotional language on each side: tone, intensity, specificity
4. Does engagement predict sentiment?
5. Keywords appearing on BOTH sides and what that ambivalence signals
6. Which {{buckets}} best exemplify each driver, with quotes
Explain WHY, not just what.`,

	FocusCompare: `Compare all {{buckets}} head-to-head:
1. A ranked leaderboard with specific reasoning for each position
2. For the top 2: what are they doing right that others aren't?
3. For the bottom 2: what specific issues drag their scores down?
4. Surprising patterns, such as high engagement with low sentiment
5. Compare keyword profiles: what does each one's unique vocabulary reveal?
6. What does the {{spread}} point spread between best and worst suggest about consistency?
Quote content. Name names. Be direct about problems.`,

	FocusPainPoints: `Deep-dive into negative sentiment:
1. Group the major pain points into 4-6 distinct themes
2. For each: approximate prevalence, which {{buckets}} are most affected, quoted language
3. Separate fixable issues (bugs, balance, pricing) from fundamental design problems
4. Are complaints coming from casual or invested participants?
5. Which pain points are specific to one bucket and which are shared?
6. What do the negative differentiator keywords reveal?
7. Prioritise the top 3 things to fix first.`,

	FocusPraise: `Deep-dive into positive sentiment:
1. Group the major praise themes into 4-6 distinct categories
2. For each: prevalence, which {{buckets}} exemplify it best, quoted language
3. Genuine enthusiasm versus mild satisfaction
4. Do highly engaged voices praise different things?
5. What do the positive differentiator keywords reveal about what this audience values?
6. Which specific decisions (pricing, updates, community, content) are praised?
7. What unmet needs does this suggest others could capitalise on?`,
}

var toneText = map[Tone]string{
	ToneAnalytical: "Write in a precise, analytical tone. Support every claim with data. If the data shows it, state it confidently without hedging.",
	ToneExecutive:  "Write as a tight executive briefing with headers and bullets. Lead with the single most important finding. 350-500 words.",
	ToneResearch:   "Write in a formal consumer research style with numbered sections and a findings plus implications structure for each major point.",
}

// ParseFocus maps a name to a Focus; empty means overview.
func ParseFocus(s string) (Focus, error) {
	if s == "" {
		return FocusOverview, nil
	}
	f := Focus(strings.ToLower(s))
	if _, ok := focusText[f]; !ok {
		return "", fmt.Errorf("unknown report focus %q", s)
	}
	return f, nil
}

// ParseTone maps a name to a Tone; empty means analytical.
func ParseTone(s string) (Tone, error) {
	if s == "" {
		return ToneAnalytical, nil
	}
	t := Tone(strings.ToLower(s))
	if _, ok := toneText[t]; !ok {
		return "", fmt.Errorf("unknown report tone %q", s)
	}
	return t, nil
}

const rule = "═══════════════════════════════════════"

func section(sb *strings.Builder, title string) {
	fmt.Fprintf(sb, "\n%s\n%s\n%s\n", rule, title, rule)
}

// describe returns the noun for records and for buckets of a source.
func describe(st source.SourceType) (records, buckets string) {
	switch st {
	case source.SourceReddit:
		return "Reddit posts", "subreddits"
	case source.SourceSteam:
		return "Steam reviews", "games"
	case source.SourceX, source.SourceNitter:
		return "X posts", "search topics"
	}
	return "posts", "groups"
}

// BuildPrompt renders the analyst prompt for a brief. It performs no I/O.
func BuildPrompt(b Brief, focus Focus, tone Tone) (string, error) {
	task, ok := focusText[focus]
	if !ok {
		return "", fmt.Errorf("unknown report focus %q", focus)
	}
	voice, ok := toneText[tone]
	if !ok {
		return "", fmt.Errorf("unknown report tone %q", tone)
	}
	recNoun, bucketNoun := describe(b.Source)
	task = strings.NewReplacer("{{buckets}}", bucketNoun, "{{spread}}", fmt.Sprintf("%.0f", b.Spread)).Replace(task)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a senior market analyst with deep expertise in audience sentiment. "+
		"You have been given %s collected from public endpoints.\n\n", recNoun)
	sb.WriteString("Produce a genuinely insightful analysis, not a surface-level summary. " +
		"Find patterns, make arguments and quote the content.\n")

	section(&sb, "DATASET OVERVIEW")
	fmt.Fprintf(&sb, "Topic: %s\n", defaultTopic(b.Topic))
	fmt.Fprintf(&sb, "Total: %d %s across %d %s\n", b.Total, recNoun, len(b.Buckets), bucketNoun)
	fmt.Fprintf(&sb, "Overall: %.1f%% positive, %.1f%% negative, average score %+.3f\n",
		b.Overall.PositivePct, b.Overall.NegativePct(), b.Overall.AvgScore)
	fmt.Fprintf(&sb, "Average positive share per bucket: %.1f%%\n", b.AvgPositivePct)
	if len(b.Buckets) > 0 {
		fmt.Fprintf(&sb, "Sentiment spread: %.0fpp (best: %s, worst: %s)\n", b.Spread, b.Best, b.Worst)
	}

	section(&sb, fmt.Sprintf("PER-%s DATA (best to worst)", strings.ToUpper(strings.TrimSuffix(bucketNoun, "s"))))
	for _, bb := range b.Buckets {
		fmt.Fprintf(&sb, "\n### %s\n", bb.Bucket)
		fmt.Fprintf(&sb, "- Sentiment: %.1f%% positive (%d pos / %d neu / %d neg, %.0f%% of dataset), average score %+.3f\n",
			bb.PositivePct, bb.PositiveCount, bb.NeutralCount, bb.NegativeCount, bb.Share, bb.AvgScore)
		for _, key := range source.MetricKeys(b.Source) {
			if mean, ok := bb.Means[key]; ok {
				fmt.Fprintf(&sb, "- %s: mean %.2f, median %.2f\n", key, mean, bb.Medians[key])
			}
		}
		fmt.Fprintf(&sb, "- Top positive keywords: %s\n", formatTerms(bb.PositiveKeywords, true))
		fmt.Fprintf(&sb, "- Top negative keywords: %s\n", formatTerms(bb.NegativeKeywords, true))
	}

	section(&sb, "KEYWORD FREQUENCIES")
	fmt.Fprintf(&sb, "Positive, top %d terms (with counts):\n%s\n\n", topKeywords, formatTerms(b.PositiveKeywords, true))
	fmt.Fprintf(&sb, "Negative, top %d terms (with counts):\n%s\n\n", topKeywords, formatTerms(b.NegativeKeywords, true))
	fmt.Fprintf(&sb, "Differentiators (positive only): %s\n", formatTerms(b.OnlyPositive, false))
	fmt.Fprintf(&sb, "Differentiators (negative only): %s\n", formatTerms(b.OnlyNegative, false))

	section(&sb, "SAMPLES: POSITIVE (most engaged and most detailed)")
	writeSamples(&sb, b.PositiveSamples, b.EngagementMetric)
	section(&sb, "SAMPLES: NEGATIVE (most engaged and most detailed)")
	writeSamples(&sb, b.NegativeSamples, b.EngagementMetric)

	section(&sb, "YOUR TASK")
	sb.WriteString(task)
	fmt.Fprintf(&sb, "\n\nOUTPUT TONE: %s\n\n", voice)
	sb.WriteString(`HARD RULES:
- Every claim must reference specific data from this brief (names, keywords, quotes, numbers)
- Do not write generic observations that could apply to any topic
- Every paragraph must contain new analysis
- Use markdown formatting with clear section headers`)
	return sb.String(), nil
}

func defaultTopic(t string) string {
	if strings.TrimSpace(t) == "" {
		return "(unspecified)"
	}
	return t
}

func formatTerms(terms []keywords.Term, counts bool) string {
	if len(terms) == 0 {
		return "(none)"
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		if counts {
			parts[i] = fmt.Sprintf("%s(%d)", t.Term, t.Count)
		} else {
			parts[i] = t.Term
		}
	}
	return strings.Join(parts, ", ")
}

func writeSamples(sb *strings.Builder, samples []Sample, metric string) {
	if len(samples) == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for i, s := range samples {
		if i > 0 {
			sb.WriteString("\n")
		}
		meta := ""
		if metric != "" && s.Engagement > 0 {
			meta = fmt.Sprintf(" (%s %.0f)", metric, s.Engagement)
		}
		fmt.Fprintf(sb, "  [%s]%s\n  %q\n", s.Bucket, meta, s.Text)
	}
}
