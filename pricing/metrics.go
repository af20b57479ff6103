package pricing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the resolver and source collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	resolutions    *prometheus.CounterVec
	cacheHits      prometheus.Counter
	sourceDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sugar",
			Subsystem: "price",
			Name:      "resolutions_total",
			Help:      "Prices resolved by source; source=none counts tokens no source could price.",
		}, []string{"source"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sugar",
			Subsystem: "price",
			Name:      "cache_hits_total",
			Help:      "Resolutions served from the resolver store.",
		}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sugar",
			Subsystem: "price",
			Name:      "source_duration_seconds",
			Help:      "Time spent in a single source lookup or prefetch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	reg.MustRegister(m.resolutions, m.cacheHits, m.sourceDuration)
	return m
}

func (m *Metrics) resolved(source string) {
	if m != nil {
		m.resolutions.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) observe(source SourceName, start time.Time) {
	if m != nil {
		m.sourceDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}
}
