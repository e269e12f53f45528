package report

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

const (
	topKeywords     = 30
	bucketKeywords  = 8
	samplesPerSide  = 10
	minSampleRunes  = 80
	maxSnippetRunes = 500
)

// Sample is a representative record quoted in the report.
type Sample struct {
	Bucket     string  `json:"bucket"`
	Text       string  `json:"text"`
	Engagement float64 `json:"engagement"`
}

// BucketBrief is the per-bucket slice of a Brief.
type BucketBrief struct {
	aggregate.Summary
	Share            float64         `json:"share_pct"`
	PositiveKeywords []keywords.Term `json:"positive_keywords"`
	NegativeKeywords []keywords.Term `json:"negative_keywords"`
}

// Brief is everything the narrative report is written from.
type Brief struct {
	Topic            string            `json:"topic"`
	Source           source.SourceType `json:"source"`
	Total            int               `json:"total"`
	Overall          aggregate.Summary `json:"overall"`
	Buckets          []BucketBrief     `json:"buckets"`
	AvgPositivePct   float64           `json:"avg_positive_pct"`
	Spread           float64           `json:"spread"`
	Best             string            `json:"best"`
	Worst            string            `json:"worst"`
	PositiveKeywords []keywords.Term   `json:"positive_keywords"`
	NegativeKeywords []keywords.Term   `json:"negative_keywords"`
	OnlyPositive     []keywords.Term   `json:"only_positive"`
	OnlyNegative     []keywords.Term   `json:"only_negative"`
	PositiveSamples  []Sample          `json:"positive_samples"`
	NegativeSamples  []Sample          `json:"negative_samples"`
	EngagementMetric string            `json:"engagement_metric,omitempty"`
}

// EngagementMetric names the metric used to rank samples for a source.
func EngagementMetric(st source.SourceType) string {
	switch st {
	case source.SourceReddit:
		return source.MetricScore
	case source.SourceSteam:
		return source.MetricVotesHelpful
	case source.SourceX, source.SourceNitter:
		return source.MetricLikes
	}
	return ""
}

// BuildBrief condenses a scored record set. The dominant source (first record's)
// picks the engagement metric and the default metric keys.
func BuildBrief(topic string, recs []sentiment.ScoredRecord, ext *keywords.Extractor) Brief {
	b := Brief{Topic: topic, Total: len(recs)}
	if len(recs) == 0 {
		b.Overall = aggregate.Overall(nil)
		return b
	}
	b.Source = recs[0].Source
	b.EngagementMetric = EngagementMetric(b.Source)
	metrics := source.MetricKeys(b.Source)
	if ext == nil {
		ext = keywords.ForSource(string(b.Source))
	}

	b.Overall = aggregate.Overall(recs, metrics...)
	sums := aggregate.Aggregate(recs, metrics...)

	byBucket := make(map[string][]sentiment.ScoredRecord)
	for _, r := range recs {
		byBucket[r.Bucket] = append(byBucket[r.Bucket], r)
	}

	var pctSum float64
	for _, s := range sums {
		group := byBucket[s.Bucket]
		pos, neg := splitTexts(group)
		b.Buckets = append(b.Buckets, BucketBrief{
			Summary:          s,
			Share:            round1(100 * float64(s.Count) / float64(len(recs))),
			PositiveKeywords: ext.Extract(pos, bucketKeywords),
			NegativeKeywords: ext.Extract(neg, bucketKeywords),
		})
		pctSum += s.PositivePct
	}
	b.AvgPositivePct = round1(pctSum / float64(len(sums)))
	b.Best = sums[0].Bucket
	b.Worst = sums[len(sums)-1].Bucket
	b.Spread = round1(sums[0].PositivePct - sums[len(sums)-1].PositivePct)

	pos, neg := splitTexts(recs)
	b.PositiveKeywords = ext.Extract(pos, topKeywords)
	b.NegativeKeywords = ext.Extract(neg, topKeywords)
	b.OnlyPositive = keywords.Differentiators(b.PositiveKeywords, b.NegativeKeywords)
	b.OnlyNegative = keywords.Differentiators(b.NegativeKeywords, b.PositiveKeywords)

	b.PositiveSamples = pickSamples(recs, sentiment.Positive, b.EngagementMetric, samplesPerSide)
	b.NegativeSamples = pickSamples(recs, sentiment.Negative, b.EngagementMetric, samplesPerSide)
	return b
}

func splitTexts(recs []sentiment.ScoredRecord) (pos, neg []string) {
	for _, r := range recs {
		switch r.Label {
		case sentiment.Positive:
			pos = append(pos, r.Text)
		case sentiment.Negative:
			neg = append(neg, r.Text)
		}
	}
	return pos, neg
}

// pickSamples mixes the most engaged and the longest substantive records of a
// label, n in total, without repeats.
func pickSamples(recs []sentiment.ScoredRecord, label sentiment.Label, metric string, n int) []Sample {
	var pool []sentiment.ScoredRecord
	for _, r := range recs {
		if r.Label == label && utf8.RuneCountInString(r.Text) > minSampleRunes {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 || n <= 0 {
		return nil
	}

	byEngagement := append([]sentiment.ScoredRecord(nil), pool...)
	sort.SliceStable(byEngagement, func(i, j int) bool {
		return byEngagement[i].Metrics[metric] > byEngagement[j].Metrics[metric]
	})
	byLength := append([]sentiment.ScoredRecord(nil), pool...)
	sort.SliceStable(byLength, func(i, j int) bool {
		return utf8.RuneCountInString(byLength[i].Text) > utf8.RuneCountInString(byLength[j].Text)
	})

	half := n / 2
	if half == 0 {
		half = 1
	}
	seen := make(map[string]struct{})
	var out []Sample
	add := func(list []sentiment.ScoredRecord) {
		taken := 0
		for _, r := range list {
			if taken == half {
				return
			}
			key := string(r.Source) + ":" + r.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Sample{Bucket: r.Bucket, Text: snippet(r.Text), Engagement: r.Metrics[metric]})
			taken++
		}
	}
	add(byEngagement)
	add(byLength)
	return out
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}
	return string([]rune(text)[:maxSnippetRunes])
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
