package keywords

import (
	"regexp"
	"sort"
	"strings"
)

// Term is a unigram or bigram with its frequency.
type Term struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

var (
	tokenRE    = regexp.MustCompile(`[a-z]{3,}`)
	urlNoiseRE = regexp.MustCompile(`https?://\S+|@\w+|#`)
)

// Extractor counts frequent terms over a text corpus. It holds no mutable state
// and is safe for concurrent use.
type Extractor struct {
	stop      map[string]struct{}
	stripURLs bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStopWords adds extra stop-word sets on top of Base.
func WithStopWords(sets ...map[string]struct{}) Option {
	return func(e *Extractor) {
		for _, s := range sets {
			for w := range s {
				e.stop[w] = struct{}{}
			}
		}
	}
}

// WithURLStripping removes URLs, @mentions and hash signs before tokenizing.
func WithURLStripping() Option {
	return func(e *Extractor) { e.stripURLs = true }
}

// New builds an Extractor over the Base stop words.
func New(opts ...Option) *Extractor {
	e := &Extractor{stop: make(map[string]struct{}, len(Base))}
	for w := range Base {
		e.stop[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForSource returns the Extractor configured for a source's noise vocabulary.
func ForSource(source string) *Extractor {
	opts := []Option{WithStopWords(NoiseFor(source))}
	if source == "x" || source == "nitter" {
		opts = append(opts, WithURLStripping())
	}
	return New(opts...)
}

// Extract returns the topN most frequent unigrams and bigrams. Bigrams are
// formed from adjacent tokens after stop-word removal, within a single text.
// Equal counts keep first-seen order, all unigrams before all bigrams.
func (e *Extractor) Extract(texts []string, topN int) []Term {
	if topN <= 0 {
		return nil
	}

	var uniOrder, biOrder []string
	counts := make(map[string]int)
	for _, text := range texts {
		if e.stripURLs {
			text = urlNoiseRE.ReplaceAllString(text, " ")
		}
		var tokens []string
		for _, tok := range tokenRE.FindAllString(strings.ToLower(text), -1) {
			if _, stop := e.stop[tok]; !stop {
				tokens = append(tokens, tok)
			}
		}
		for _, tok := range tokens {
			if counts[tok] == 0 {
				uniOrder = append(uniOrder, tok)
			}
			counts[tok]++
		}
		for i := 0; i+1 < len(tokens); i++ {
			bg := tokens[i] + " " + tokens[i+1]
			if counts[bg] == 0 {
				biOrder = append(biOrder, bg)
			}
			counts[bg]++
		}
	}

	terms := make([]Term, 0, len(uniOrder)+len(biOrder))
	for _, t := range uniOrder {
		terms = append(terms, Term{Term: t, Count: counts[t]})
	}
	for _, t := range biOrder {
		terms = append(terms, Term{Term: t, Count: counts[t]})
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Count > terms[j].Count })

	if len(terms) > topN {
		terms = terms[:topN]
	}
	return terms
}

// Differentiators returns the terms of a that do not appear in b, in a's order.
func Differentiators(a, b []Term) []Term {
	other := make(map[string]struct{}, len(b))
	for _, t := range b {
		other[t.Term] = struct{}{}
	}
	var out []Term
	for _, t := range a {
		if _, ok := other[t.Term]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Strings flattens terms to their text.
func Strings(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Term
	}
	return out
}
