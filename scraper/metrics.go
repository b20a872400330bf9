package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scrape fetches.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs the fetch metrics and registers them on reg. A nil
// reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentals_fetch_requests_total",
			Help: "Total HTTP requests issued by scrape adapters.",
		},
		[]string{"adapter"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rentals_fetch_duration_seconds",
			Help:    "Latency of successful scrape requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentals_fetch_retries_total",
			Help: "Total number of fetch retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentals_fetch_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"adapter", "error_type"},
	)

	reg.MustRegister(requests, requestDuration, retries, errorsTotal)

	return &Metrics{
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(adapter string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(adapter).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(adapter string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(adapter, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(adapter, errorType).Inc()
}
