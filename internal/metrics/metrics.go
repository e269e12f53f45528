package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the fetch client and pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchRequests  *prometheus.CounterVec
	FetchRetries   *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	Records        *prometheus.CounterVec
	BucketFailures *prometheus.CounterVec
}

// New registers all collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentradar_fetch_requests_total",
			Help: "HTTP fetch attempts by source and outcome",
		}, []string{"source", "outcome"}),
		FetchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentradar_fetch_retries_total",
			Help: "Fetch retries by reason",
		}, []string{"reason"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentradar_fetch_duration_seconds",
			Help:    "Duration of a fetch including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentradar_records_total",
			Help: "Scored records by source and label",
		}, []string{"source", "label"}),
		BucketFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentradar_bucket_failures_total",
			Help: "Buckets whose pagination ended with an error",
		}, []string{"source"}),
	}
}

func (m *Metrics) ObserveRequest(source, outcome string) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDuration(source string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) ObserveRecord(source, label string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(source, label).Inc()
}

func (m *Metrics) ObserveBucketFailure(source string) {
	if m == nil {
		return
	}
	m.BucketFailures.WithLabelValues(source).Inc()
}
