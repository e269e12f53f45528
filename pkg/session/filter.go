package session

import (
	"strings"

	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

// Filter narrows which records a session's views see. Zero value matches everything.
type Filter struct {
	Include []string          `json:"include,omitempty"`
	Exclude []string          `json:"exclude,omitempty"`
	Labels  []sentiment.Label `json:"labels,omitempty"`
	Buckets []string          `json:"buckets,omitempty"`
}

// IsZero reports whether the filter has no conditions.
func (f Filter) IsZero() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0 && len(f.Labels) == 0 && len(f.Buckets) == 0
}

// Match reports whether r passes every condition.
func (f Filter) Match(r sentiment.ScoredRecord) bool {
	return f.matcher().match(r)
}

type matcher struct {
	text    *source.KeywordFilter
	labels  map[sentiment.Label]struct{}
	buckets map[string]struct{}
}

func (f Filter) matcher() matcher {
	m := matcher{}
	if len(f.Include) > 0 || len(f.Exclude) > 0 {
		m.text = source.NewKeywordFilter(f.Include, f.Exclude)
	}
	if len(f.Labels) > 0 {
		m.labels = make(map[sentiment.Label]struct{}, len(f.Labels))
		for _, l := range f.Labels {
			m.labels[l] = struct{}{}
		}
	}
	if len(f.Buckets) > 0 {
		m.buckets = make(map[string]struct{}, len(f.Buckets))
		for _, b := range f.Buckets {
			m.buckets[strings.ToLower(b)] = struct{}{}
		}
	}
	return m
}

func (m matcher) match(r sentiment.ScoredRecord) bool {
	if m.labels != nil {
		if _, ok := m.labels[r.Label]; !ok {
			return false
		}
	}
	if m.buckets != nil {
		if _, ok := m.buckets[strings.ToLower(r.Bucket)]; !ok {
			return false
		}
	}
	return m.text.MatchesRecord(r.Record)
}
