package sentiment

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"

	"github.com/elonfeng/sentradar/pkg/source"
)

// Label is the three-way polarity of a text.
type Label string

const (
	Positive Label = "Positive"
	Neutral  Label = "Neutral"
	Negative Label = "Negative"
)

// Labels lists every label in display order.
func Labels() []Label { return []Label{Positive, Neutral, Negative} }

// ParseLabel accepts a label name in any case.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos":
		return Positive, nil
	case "neutral", "neu":
		return Neutral, nil
	case "negative", "neg":
		return Negative, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// Strategy scores a single text. Implementations must be pure and safe for
// concurrent use.
type Strategy interface {
	Name() string
	Classify(text string) (Label, float64)
}

// Strategy names accepted by New.
const (
	StrategyLexicon = "lexicon"
	StrategyKeyword = "keyword"
)

// New returns the strategy registered under name. An empty name picks the lexicon.
func New(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyLexicon, "vader":
		return NewLexicon(), nil
	case StrategyKeyword, "fallback":
		return NewKeyword(), nil
	}
	return nil, fmt.Errorf("unknown sentiment strategy %q", name)
}

// Result is one classified text.
type Result struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// ClassifyBatch scores texts in order; len(out) == len(texts).
func ClassifyBatch(s Strategy, texts []string) []Result {
	out := make([]Result, len(texts))
	for i, t := range texts {
		label, score := s.Classify(t)
		out[i] = Result{Label: label, Score: score}
	}
	return out
}

// ScoredRecord is a record with its sentiment. Scored is false when the label came
// from the source's own thumbs up/down and no score was computed.
type ScoredRecord struct {
	source.Record
	Label  Label   `json:"label"`
	Score  float64 `json:"score"`
	Scored bool    `json:"scored"`
}

// Score classifies records, trusting KnownPolarity over the strategy when present.
func Score(s Strategy, records []source.Record) []ScoredRecord {
	out := make([]ScoredRecord, len(records))
	for i, r := range records {
		if r.KnownPolarity != nil {
			label := Negative
			if *r.KnownPolarity {
				label = Positive
			}
			out[i] = ScoredRecord{Record: r, Label: label}
			continue
		}
		label, score := s.Classify(r.Text)
		out[i] = ScoredRecord{Record: r, Label: label, Score: score, Scored: true}
	}
	return out
}

// LexiconStrategy labels text by the VADER compound score.
type LexiconStrategy struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// Compound thresholds used by VADER's authors.
const (
	lexiconPositive = 0.05
	lexiconNegative = -0.05
)

func NewLexicon() *LexiconStrategy {
	return &LexiconStrategy{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (l *LexiconStrategy) Name() string { return StrategyLexicon }

func (l *LexiconStrategy) Classify(text string) (Label, float64) {
	if strings.TrimSpace(text) == "" {
		return Neutral, 0
	}
	c := round4(l.analyzer.PolarityScores(text).Compound)
	switch {
	case c >= lexiconPositive:
		return Positive, c
	case c <= lexiconNegative:
		return Negative, c
	}
	return Neutral, c
}

// wordRE matches runs of Unicode letters, digits and underscore.
var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var positiveWords = wordSet(
	"good", "great", "love", "amazing", "best", "excellent", "fun", "enjoy",
	"awesome", "fantastic", "perfect", "brilliant", "recommend", "happy",
	"pleased", "impressive", "solid", "well", "nice",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "hate", "worst", "broken", "buggy", "crash",
	"disappointed", "poor", "boring", "trash", "horrible", "waste", "refund",
	"toxic", "frustrating", "annoying", "lag", "glitch", "fix", "problem",
)

// KeywordStrategy counts hits against fixed positive and negative word sets.
// Text with no hits and text with as many positive as negative hits both score 0
// and land on Neutral.
type KeywordStrategy struct{}

func NewKeyword() KeywordStrategy { return KeywordStrategy{} }

func (KeywordStrategy) Name() string { return StrategyKeyword }

func (KeywordStrategy) Classify(text string) (Label, float64) {
	var pos, neg int
	for _, w := range wordRE.FindAllString(strings.ToLower(text), -1) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		total = 1
	}
	score := round4(float64(pos-neg) / float64(total))
	switch {
	case score > 0:
		return Positive, score
	case score < 0:
		return Negative, score
	}
	return Neutral, score
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
