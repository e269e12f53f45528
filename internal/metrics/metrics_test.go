package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("reddit", "ok")
	m.ObserveRequest("reddit", "ok")
	m.ObserveRetry("rate_limited")
	m.ObserveRecord("steam", "Positive")
	m.ObserveBucketFailure("x")

	if got := testutil.ToFloat64(m.FetchRequests.WithLabelValues("reddit", "ok")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchRetries.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.Records.WithLabelValues("steam", "Positive")); got != 1 {
		t.Fatalf("expected 1 record, got %v", got)
	}
	if got := testutil.ToFloat64(m.BucketFailures.WithLabelValues("x")); got != 1 {
		t.Fatalf("expected 1 bucket failure, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("reddit", "ok")
	m.ObserveRetry("network")
	m.ObserveDuration("reddit", 1)
	m.ObserveRecord("reddit", "Neutral")
	m.ObserveBucketFailure("reddit")
}
