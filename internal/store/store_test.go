package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []sentiment.ScoredRecord {
	return []sentiment.ScoredRecord{
		{
			Record: source.Record{
				ID: "a", Source: source.SourceReddit, Bucket: "golang", Text: "love it",
				Author: "gopher", CreatedAt: 1700000000,
				Metrics: map[string]float64{source.MetricScore: 42},
			},
			Label: sentiment.Positive, Score: 0.6369, Scored: true,
		},
		{
			Record: source.Record{ID: "b", Source: source.SourceReddit, Bucket: "rust", Text: "meh"},
			Label:  sentiment.Neutral, Scored: true,
		},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	recs := sampleRecords()
	sums := aggregate.Aggregate(recs, source.MetricScore)

	run := &Run{
		ID:         "run-1",
		Topic:      "languages",
		Source:     source.SourceReddit,
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
		Warnings:   []session.Warning{{Source: source.SourceReddit, Bucket: "zig", Message: "no records found"}},
	}
	require.NoError(t, s.SaveRun(ctx, run, recs, sums))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, got.RecordCount)
	require.Equal(t, 1, got.WarningCount)
	require.Equal(t, "zig", got.Warnings[0].Bucket)
	require.True(t, got.StartedAt.Equal(run.StartedAt))

	loaded, err := s.RunSummaries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "golang", loaded[0].Bucket)
	require.Equal(t, 100.0, loaded[0].PositivePct)
	require.Equal(t, 42.0, loaded[0].Means[source.MetricScore])

	back, err := s.RunRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, back, 2)
	require.Equal(t, sentiment.Positive, back[0].Label)
	require.Equal(t, 42.0, back[0].Metrics[source.MetricScore])
	require.Equal(t, int64(1700000000), back[0].CreatedAt)
	require.True(t, back[1].Scored)

	require.Error(t, s.SaveRun(ctx, run, recs, sums), "duplicate run id")
	require.Error(t, s.SaveRun(ctx, &Run{}, nil, nil))
}

func TestListRunsAndHistory(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, pct := range []float64{40, 55, 70} {
		sums := []aggregate.Summary{{Bucket: "golang", Count: 10, PositivePct: pct}}
		run := &Run{
			ID:         string(rune('a' + i)),
			Topic:      "languages",
			Source:     source.SourceReddit,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		require.NoError(t, s.SaveRun(ctx, run, nil, sums))
	}
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "other", Topic: "games", Source: source.SourceSteam, StartedAt: base, FinishedAt: base}, nil, nil))

	runs, err := s.ListRuns(ctx, ListOpts{Topic: "languages"})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "c", runs[0].ID)
	require.Empty(t, runs[0].Warnings)

	steam, err := s.ListRuns(ctx, ListOpts{Source: source.SourceSteam, Limit: 5})
	require.NoError(t, err)
	require.Len(t, steam, 1)

	hist, err := s.BucketHistory(ctx, "languages", "golang", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, 55.0, hist[0].PositivePct)
	require.Equal(t, 70.0, hist[1].PositivePct)
}
