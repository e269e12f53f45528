// Package session holds the records gathered by one analysis and everything
// derived from them. Nothing derived is cached: summaries and keyword lists are
// recomputed from the current records and filter on every call.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

// Warning is a non-fatal problem with one bucket.
type Warning struct {
	Source  source.SourceType `json:"source,omitempty"`
	Bucket  string            `json:"bucket"`
	Message string            `json:"message"`
}

// Context is one analysis session. It is safe for concurrent use.
type Context struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	records  []sentiment.ScoredRecord
	seen     map[string]struct{}
	warnings []Warning
	filter   Filter
	lastUsed time.Time
}

// New creates an empty session with a random id.
func New() *Context {
	now := time.Now().UTC()
	return &Context{
		ID:        uuid.NewString(),
		CreatedAt: now,
		seen:      make(map[string]struct{}),
		lastUsed:  now,
	}
}

func dedupKey(r source.Record) string {
	return string(r.Source) + "\x00" + r.ID
}

// Merge appends records not already present, keyed by source and id; the first
// instance wins. It returns how many were added.
func (c *Context) Merge(records []sentiment.ScoredRecord) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now().UTC()

	added := 0
	for _, r := range records {
		key := dedupKey(r.Record)
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		c.records = append(c.records, r)
		added++
	}
	return added
}

// AddWarnings records bucket-level problems.
func (c *Context) AddWarnings(ws ...Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, ws...)
}

// Warnings returns a copy of the recorded warnings.
func (c *Context) Warnings() []Warning {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Warning(nil), c.warnings...)
}

// SetFilter replaces the view filter.
func (c *Context) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
	c.lastUsed = time.Now().UTC()
}

// Filter returns the current view filter.
func (c *Context) Filter() Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// Clear drops all records and warnings but keeps the id and filter.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.warnings = nil
	c.seen = make(map[string]struct{})
}

// Empty reports whether the session holds no records at all, regardless of filter.
func (c *Context) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records) == 0
}

// Len is the unfiltered record count.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// AllRecords returns every record, ignoring the filter.
func (c *Context) AllRecords() []sentiment.ScoredRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]sentiment.ScoredRecord(nil), c.records...)
}

// Records returns the records that pass the current filter, in merge order.
func (c *Context) Records() []sentiment.ScoredRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.filter.matcher()
	var out []sentiment.ScoredRecord
	for _, r := range c.records {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summaries aggregates the filtered records per bucket.
func (c *Context) Summaries(metrics ...string) []aggregate.Summary {
	return aggregate.Aggregate(c.Records(), metrics...)
}

// Overall aggregates the filtered records into one summary.
func (c *Context) Overall(metrics ...string) aggregate.Summary {
	return aggregate.Overall(c.Records(), metrics...)
}

// Timeline summarises the filtered records per bucket and period.
func (c *Context) Timeline(iv aggregate.Interval) []aggregate.Point {
	return aggregate.Timeline(c.Records(), iv)
}

// SplitAt compares the filtered records before and after the Unix time at.
func (c *Context) SplitAt(at int64, metrics ...string) aggregate.Split {
	return aggregate.SplitAt(c.Records(), at, metrics...)
}

// Keywords extracts the top terms of filtered records carrying label. An empty
// label means every record.
func (c *Context) Keywords(ext *keywords.Extractor, label sentiment.Label, topN int) []keywords.Term {
	var texts []string
	for _, r := range c.Records() {
		if label == "" || r.Label == label {
			texts = append(texts, r.Text)
		}
	}
	return ext.Extract(texts, topN)
}

// Sources lists the distinct sources present, in first-seen order.
func (c *Context) Sources() []source.SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[source.SourceType]struct{})
	var out []source.SourceType
	for _, r := range c.records {
		if _, ok := seen[r.Source]; !ok {
			seen[r.Source] = struct{}{}
			out = append(out, r.Source)
		}
	}
	return out
}

// LastUsed is the time of the last mutation.
func (c *Context) LastUsed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUsed
}

func (c *Context) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}
