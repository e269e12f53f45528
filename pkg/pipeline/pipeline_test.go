package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/elonfeng/sentradar/internal/metrics"
	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

// fakeSource serves pages keyed by bucket and cursor.
type fakeSource struct {
	mu    sync.Mutex
	pages map[string]map[string]source.Page
	fail  map[string]error
	delay map[string]time.Duration
}

func (f *fakeSource) Name() source.SourceType { return source.SourceReddit }
func (f *fakeSource) PageSize() int           { return 100 }
func (f *fakeSource) StartCursor() string     { return "" }

func (f *fakeSource) FetchPage(_ context.Context, q source.Query, cursor string, _ int) (source.Page, error) {
	if d := f.delay[q.Bucket]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[q.Bucket]; ok {
		return source.Page{}, err
	}
	return f.pages[q.Bucket][cursor], nil
}

func item(id, bucket, text string) source.Record {
	return source.Record{ID: id, Source: source.SourceReddit, Bucket: bucket, Text: text}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunEndToEndWithKeywordStrategy(t *testing.T) {
	src := &fakeSource{pages: map[string]map[string]source.Page{
		"games": {
			"":   {Items: []source.Record{item("a", "games", "I love this, great fun"), item("b", "games", "terrible, buggy mess")}, Next: "p2"},
			"p2": {Items: []source.Record{item("c", "games", "")}, Next: ""},
		},
	}}

	sess := session.New()
	r := &Runner{Strategy: sentiment.NewKeyword(), Sleep: noSleep}
	res := r.Run(context.Background(), sess, src, []source.Query{{Bucket: "games"}}, 10)

	if res.Added != 3 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	recs := sess.Records()
	want := []sentiment.Label{sentiment.Positive, sentiment.Negative, sentiment.Neutral}
	for i, l := range want {
		if recs[i].Label != l {
			t.Fatalf("record %d: expected %s, got %s", i, l, recs[i].Label)
		}
	}
	sums := sess.Summaries()
	if len(sums) != 1 || sums[0].Count != 3 || sums[0].PositivePct != 33.3 {
		t.Fatalf("unexpected summary %+v", sums)
	}
}

func TestRunFailingBucketBecomesWarning(t *testing.T) {
	src := &fakeSource{
		pages: map[string]map[string]source.Page{
			"ok": {"": {Items: []source.Record{item("1", "ok", "great")}}},
		},
		fail: map[string]error{"bad": errors.New("status 403")},
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger, hook := logtest.NewNullLogger()

	sess := session.New()
	r := &Runner{Strategy: sentiment.NewKeyword(), Sleep: noSleep, Metrics: m, Log: logger}
	res := r.Run(context.Background(), sess, src, []source.Query{{Bucket: "bad"}, {Bucket: "ok"}, {Bucket: "empty"}}, 10)

	if len(res.Buckets) != 3 || res.Added != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Warnings) != 2 || res.Warnings[0].Bucket != "bad" || res.Warnings[1].Message != "no records found" {
		t.Fatalf("unexpected warnings %+v", res.Warnings)
	}
	if len(sess.Warnings()) != 2 {
		t.Fatalf("warnings should be stored on the session")
	}
	if got := testutil.ToFloat64(m.BucketFailures.WithLabelValues("reddit")); got != 1 {
		t.Fatalf("expected one bucket failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.Records.WithLabelValues("reddit", "Positive")); got != 1 {
		t.Fatalf("expected one positive record, got %v", got)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["bucket"] == "bad" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warn log for the failing bucket")
	}
}

func TestRunSequentialSleepsBetweenBuckets(t *testing.T) {
	src := &fakeSource{pages: map[string]map[string]source.Page{}}
	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	r := &Runner{Strategy: sentiment.NewKeyword(), Sleep: sleep, BucketDelay: time.Second}
	r.Run(context.Background(), session.New(), src, []source.Query{{Bucket: "a"}, {Bucket: "b"}, {Bucket: "c"}}, 5)
	if len(waits) != 2 || waits[0] != time.Second {
		t.Fatalf("expected two bucket delays, got %v", waits)
	}
}

func TestRunConcurrentKeepsBucketOrder(t *testing.T) {
	pages := map[string]map[string]source.Page{}
	delay := map[string]time.Duration{}
	var queries []source.Query
	for i := 0; i < 6; i++ {
		b := fmt.Sprintf("b%d", i)
		pages[b] = map[string]source.Page{"": {Items: []source.Record{item(b, b, "fun")}}}
		delay[b] = time.Duration(6-i) * 5 * time.Millisecond
		queries = append(queries, source.Query{Bucket: b})
	}
	src := &fakeSource{pages: pages, delay: delay}

	sess := session.New()
	r := &Runner{Strategy: sentiment.NewKeyword(), Sleep: noSleep, Concurrency: 3}
	res := r.Run(context.Background(), sess, src, queries, 5)

	for i, br := range res.Buckets {
		if br.Query.Bucket != queries[i].Bucket {
			t.Fatalf("bucket %d out of order: %s", i, br.Query.Bucket)
		}
	}
	recs := sess.Records()
	for i, rec := range recs {
		if rec.ID != queries[i].Bucket {
			t.Fatalf("records merged out of order: %v", recs)
		}
	}
}

func TestRunCanceledStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{pages: map[string]map[string]source.Page{}}
	sess := session.New()
	res := (&Runner{Sleep: noSleep, Strategy: sentiment.NewKeyword()}).Run(ctx, sess, src, []source.Query{{Bucket: "a"}}, 5)
	if len(res.Buckets) != 0 || !sess.Empty() {
		t.Fatalf("expected nothing to run, got %+v", res)
	}
}

func TestSummariesMatchAggregate(t *testing.T) {
	src := &fakeSource{pages: map[string]map[string]source.Page{
		"x": {"": {Items: []source.Record{item("1", "x", "awful"), item("2", "x", "great")}}},
	}}
	sess := session.New()
	(&Runner{Strategy: sentiment.NewKeyword(), Sleep: noSleep}).Run(context.Background(), sess, src, []source.Query{{Bucket: "x"}}, 5)

	direct := aggregate.Aggregate(sess.Records())
	if fmt.Sprint(direct) != fmt.Sprint(sess.Summaries()) {
		t.Fatalf("session summaries should be a pure projection")
	}
}

func TestSharedRunnerServesConcurrentRuns(t *testing.T) {
	src := &fakeSource{pages: map[string]map[string]source.Page{
		"games": {"": {Items: []source.Record{item("a", "games", "great fun"), item("b", "games", "buggy")}}},
	}}
	r := &Runner{Strategy: sentiment.NewKeyword()}

	var wg sync.WaitGroup
	added := make([]int, 8)
	for i := range added {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added[i] = r.Run(context.Background(), session.New(), src, []source.Query{{Bucket: "games"}}, 10).Added
		}()
	}
	wg.Wait()

	for i, n := range added {
		if n != 2 {
			t.Fatalf("run %d added %d records, want 2", i, n)
		}
	}
	if r.Sleep != nil || r.Log != nil {
		t.Fatalf("Run must not fill in the shared runner's fields")
	}
}
