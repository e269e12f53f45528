package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/session"
)

// digestSize is how many buckets are listed at each end of a digest.
const digestSize = 3

// Notification is the digest sent to alert destinations after a run.
type Notification struct {
	Title    string              `json:"title"`
	Body     string              `json:"body"`
	RunID    string              `json:"run_id,omitempty"`
	Topic    string              `json:"topic"`
	Source   string              `json:"source"`
	Overall  aggregate.Summary   `json:"overall"`
	Top      []aggregate.Summary `json:"top"`
	Bottom   []aggregate.Summary `json:"bottom"`
	Warnings []session.Warning   `json:"warnings,omitempty"`
	Shifts   []Shift             `json:"shifts,omitempty"`
}

// Shift is a bucket whose positive share moved since the previous run.
type Shift struct {
	Bucket   string  `json:"bucket"`
	Previous float64 `json:"previous_pct"`
	Current  float64 `json:"current_pct"`
}

// Delta is the change in percentage points.
func (s Shift) Delta() float64 { return s.Current - s.Previous }

// NewDigest builds a notification from the summaries of one run. sums is
// expected in ranking order (best first).
func NewDigest(topic, src, runID string, overall aggregate.Summary, sums []aggregate.Summary, warnings []session.Warning) *Notification {
	top, bottom := aggregate.Extremes(sums, digestSize)
	n := &Notification{
		Title:    fmt.Sprintf("Sentiment digest: %s", topic),
		RunID:    runID,
		Topic:    topic,
		Source:   src,
		Overall:  overall,
		Top:      top,
		Bottom:   bottom,
		Warnings: warnings,
	}
	n.Body = fmt.Sprintf("%d records across %d buckets, %.1f%% positive, %.1f%% negative",
		overall.Count, len(sums), overall.PositivePct, overall.NegativePct())
	if len(warnings) > 0 {
		n.Body += fmt.Sprintf(" (%d warnings)", len(warnings))
	}
	return n
}

// lines renders a bucket list as one line per bucket.
func lines(sums []aggregate.Summary, format string) string {
	out := make([]string, 0, len(sums))
	for _, s := range sums {
		out = append(out, fmt.Sprintf(format, s.Bucket, s.PositivePct, s.Count))
	}
	return strings.Join(out, "\n")
}

func shiftLines(shifts []Shift) string {
	out := make([]string, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, fmt.Sprintf("%s: %.1f%% -> %.1f%% (%+.1fpp)", s.Bucket, s.Previous, s.Current, s.Delta()))
	}
	return strings.Join(out, "\n")
}

func warningLines(ws []session.Warning, limit int) string {
	if len(ws) > limit {
		ws = ws[:limit]
	}
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, fmt.Sprintf("%s/%s: %s", w.Source, w.Bucket, w.Message))
	}
	return strings.Join(out, "\n")
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
