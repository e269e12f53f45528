package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elonfeng/sentradar/internal/store"
	"github.com/elonfeng/sentradar/pkg/alert"
	"github.com/elonfeng/sentradar/pkg/pipeline"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

type stubSource struct {
	pages map[string][]source.Record
	fail  map[string]error
}

func (s *stubSource) Name() source.SourceType { return source.SourceSteam }
func (s *stubSource) PageSize() int           { return 100 }
func (s *stubSource) StartCursor() string     { return "*" }

func (s *stubSource) FetchPage(_ context.Context, q source.Query, _ string, _ int) (source.Page, error) {
	if err := s.fail[q.Bucket]; err != nil {
		return source.Page{}, err
	}
	return source.Page{Items: s.pages[q.Bucket]}, nil
}

func review(id, bucket, text string) source.Record {
	return source.Record{ID: id, Source: source.SourceSteam, Bucket: bucket, Text: text,
		Metrics: map[string]float64{source.MetricPlaytime: 3}}
}

func newRunner() *pipeline.Runner {
	return &pipeline.Runner{
		Strategy: sentiment.NewKeyword(),
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}
}

func TestRunOnceArchivesAndNotifies(t *testing.T) {
	archive, err := store.New(filepath.Join(t.TempDir(), "watch.db"))
	require.NoError(t, err)
	defer archive.Close()

	var got alert.Notification
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer hook.Close()

	src := &stubSource{
		pages: map[string][]source.Record{
			"Hades": {review("1", "Hades", "great fun"), review("2", "Hades", "love it")},
			"Rogue": {review("3", "Rogue", "buggy and terrible")},
		},
		fail: map[string]error{"Broken": errors.New("boom")},
	}
	job := Job{
		Topic:   "roguelikes",
		Source:  src,
		Queries: []source.Query{{Bucket: "Hades", Term: "1"}, {Bucket: "Rogue", Term: "2"}, {Bucket: "Broken", Term: "3"}},
		Target:  10,
	}
	s := New(newRunner(), archive, alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")}), []Job{job}, time.Minute, nil)

	outcomes, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Empty)
	require.True(t, outcomes[0].Notified)

	require.Equal(t, "roguelikes", got.Topic)
	require.Equal(t, "Hades", got.Top[0].Bucket)
	require.Len(t, got.Warnings, 1)
	require.Equal(t, "Broken", got.Warnings[0].Bucket)

	runs, err := archive.ListRuns(context.Background(), store.ListOpts{Topic: "roguelikes"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 3, runs[0].RecordCount)
	require.Equal(t, 1, runs[0].WarningCount)

	sums, err := archive.RunSummaries(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	require.Equal(t, 100.0, sums[0].PositivePct)
}

func TestEmptyRunSkipsAlerts(t *testing.T) {
	calls := 0
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer hook.Close()

	job := Job{Topic: "nothing", Source: &stubSource{}, Queries: []source.Query{{Bucket: "a", Term: "1"}}, Target: 5}
	s := New(newRunner(), nil, alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")}), []Job{job}, 0, nil)

	outcomes, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, outcomes[0].Empty)
	require.False(t, outcomes[0].Notified)
	require.Zero(t, calls)
	require.Equal(t, time.Hour, s.interval)
}

func TestAlertFailureIsReported(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer hook.Close()

	src := &stubSource{pages: map[string][]source.Record{"a": {review("1", "a", "great")}}}
	job := Job{Topic: "t", Source: src, Queries: []source.Query{{Bucket: "a", Term: "1"}}, Target: 5}
	s := New(newRunner(), nil, alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")}), []Job{job, job}, time.Minute, nil)

	outcomes, err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "t: alert: webhook: status 500")
	require.Len(t, outcomes, 2, "a failing job does not stop the next one")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(newRunner(), nil, nil, nil, time.Minute, nil)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestSecondRunReportsShift(t *testing.T) {
	archive, err := store.New(filepath.Join(t.TempDir(), "shift.db"))
	require.NoError(t, err)
	defer archive.Close()

	var got alert.Notification
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = alert.Notification{}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer hook.Close()

	src := &stubSource{pages: map[string][]source.Record{
		"Hades": {review("1", "Hades", "great fun"), review("2", "Hades", "buggy")},
		"Rogue": {review("3", "Rogue", "great")},
	}}
	job := Job{Topic: "roguelikes", Source: src, Queries: []source.Query{{Bucket: "Hades", Term: "1"}, {Bucket: "Rogue", Term: "2"}}, Target: 10}
	s := New(newRunner(), archive, alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")}), []Job{job}, time.Minute, nil)
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, got.Shifts)

	src.pages["Hades"] = []source.Record{review("4", "Hades", "great fun"), review("5", "Hades", "love it")}
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Shifts, 1, "Rogue did not move")
	require.Equal(t, "Hades", got.Shifts[0].Bucket)
	require.Equal(t, 50.0, got.Shifts[0].Previous)
	require.Equal(t, 100.0, got.Shifts[0].Current)
}
