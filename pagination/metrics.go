package pagination

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of every sweep that shares it. A nil *Metrics
// records nothing.
type Metrics struct {
	pages         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics creates the pagination collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sugar",
			Subsystem: "pagination",
			Name:      "pages_total",
			Help:      "Pages fetched successfully.",
		}, []string{"endpoint"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sugar",
			Subsystem: "pagination",
			Name:      "failures_total",
			Help:      "Page fetches that failed and were retried, skipped or aborted.",
		}, []string{"endpoint"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sugar",
			Subsystem: "pagination",
			Name:      "skipped_total",
			Help:      "Records stepped over because they failed to fetch on their own.",
		}, []string{"endpoint"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sugar",
			Subsystem: "pagination",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a single page fetch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.pages, m.failures, m.skipped, m.fetchDuration)
	return m
}

type noopTimer struct{}

func (noopTimer) ObserveDuration() time.Duration { return 0 }

type durationObserver interface {
	ObserveDuration() time.Duration
}

func (m *Metrics) fetchTimer(endpoint string) durationObserver {
	if m == nil {
		return noopTimer{}
	}
	return prometheus.NewTimer(m.fetchDuration.WithLabelValues(endpoint))
}

func (m *Metrics) incPages(endpoint string) {
	if m != nil {
		m.pages.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) incFailures(endpoint string) {
	if m != nil {
		m.failures.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) incSkipped(endpoint string) {
	if m != nil {
		m.skipped.WithLabelValues(endpoint).Inc()
	}
}
