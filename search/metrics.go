package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// Metrics bundles Prometheus collectors for the search path.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Latency     prometheus.Histogram
	Refreshes   prometheus.Counter
	CacheErrors prometheus.Counter
}

// NewMetrics constructs the search metrics and registers them on reg. A nil
// reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentals_search_requests_total",
			Help: "Search requests by answering source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	latency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rentals_search_duration_seconds",
			Help:    "Latency of search requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	refreshes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentals_search_refreshes_total",
			Help: "Refresh jobs submitted by the search path.",
		},
	)
	cacheErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentals_search_cache_errors_total",
			Help: "Cache failures treated as misses.",
		},
	)

	reg.MustRegister(requests, latency, refreshes, cacheErrors)

	return &Metrics{
		Requests:    requests,
		Latency:     latency,
		Refreshes:   refreshes,
		CacheErrors: cacheErrors,
	}
}

func (m *Metrics) observe(source models.DataSource, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	if source == "" {
		source = "none"
	}
	m.Requests.WithLabelValues(string(source), outcome).Inc()
	m.Latency.Observe(d.Seconds())
}

func (m *Metrics) incRefresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

func (m *Metrics) incCacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}
