package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elonfeng/sentradar/pkg/sentiment"
)

// Interval is the width of a timeline period.
type Interval string

const (
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
)

// ParseInterval accepts day, week or month. Empty means week.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	switch iv {
	case "":
		return Week, nil
	case Day, Week, Month:
		return iv, nil
	}
	return "", fmt.Errorf("unknown interval %q (want day, week or month)", s)
}

// Start truncates t to the first instant of its period in UTC. Weeks start on
// Monday.
func (iv Interval) Start(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch iv {
	case Month:
		return day.AddDate(0, 0, 1-day.Day())
	case Week:
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	}
	return day
}

// Point is one bucket's summary over one period.
type Point struct {
	Start time.Time `json:"start"`
	Summary
}

// Timeline summarises records per bucket and period. Records without a
// timestamp are skipped. Points are ordered by the bucket's first appearance,
// then by period.
func Timeline(records []sentiment.ScoredRecord, iv Interval) []Point {
	type key struct {
		bucket string
		start  int64
	}
	rank := make(map[string]int)
	groups := make(map[key][]sentiment.ScoredRecord)
	for _, r := range records {
		if r.CreatedAt <= 0 {
			continue
		}
		if _, ok := rank[r.Bucket]; !ok {
			rank[r.Bucket] = len(rank)
		}
		k := key{bucket: r.Bucket, start: iv.Start(time.Unix(r.CreatedAt, 0)).Unix()}
		groups[k] = append(groups[k], r)
	}

	out := make([]Point, 0, len(groups))
	for k, recs := range groups {
		out = append(out, Point{
			Start:   time.Unix(k.start, 0).UTC(),
			Summary: summarize(k.bucket, recs, nil),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return rank[out[i].Bucket] < rank[out[j].Bucket]
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Split compares sentiment on either side of a moment.
type Split struct {
	At     int64   `json:"at"`
	Before Summary `json:"before"`
	After  Summary `json:"after"`
	// Delta is the change in PositivePct; nil when either side is empty.
	Delta *float64 `json:"delta"`
}

// SplitAt summarises records created before at against those created at or
// after it. Records without a timestamp belong to neither side.
func SplitAt(records []sentiment.ScoredRecord, at int64, metrics ...string) Split {
	var before, after []sentiment.ScoredRecord
	for _, r := range records {
		switch {
		case r.CreatedAt <= 0:
		case r.CreatedAt < at:
			before = append(before, r)
		default:
			after = append(after, r)
		}
	}
	s := Split{
		At:     at,
		Before: summarize("before", before, metrics),
		After:  summarize("after", after, metrics),
	}
	if s.Before.Count > 0 && s.After.Count > 0 {
		d := round(s.After.PositivePct-s.Before.PositivePct, 1)
		s.Delta = &d
	}
	return s
}
