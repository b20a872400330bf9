package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// Metrics bundles Prometheus collectors for the job queue.
type Metrics struct {
	JobsSubmitted *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec
	Depth         *prometheus.GaugeVec
	Running       *prometheus.GaugeVec
	Stalls        prometheus.Counter
}

// NewMetrics constructs the queue metrics and registers them on reg. A nil
// reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	submitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentals_jobs_submitted_total",
			Help: "Scrape jobs accepted by the queue.",
		},
		[]string{"kind", "priority"},
	)
	finished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentals_jobs_finished_total",
			Help: "Scrape jobs that reached a terminal status.",
		},
		[]string{"kind", "status"},
	)
	depth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rentals_queue_depth",
			Help: "Pending jobs per kind.",
		},
		[]string{"kind"},
	)
	running := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rentals_jobs_running",
			Help: "Running jobs per kind.",
		},
		[]string{"kind"},
	)
	stalls := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentals_job_stalls_total",
			Help: "Runs flagged as stalled by the sweeper.",
		},
	)

	reg.MustRegister(submitted, finished, depth, running, stalls)

	return &Metrics{
		JobsSubmitted: submitted,
		JobsFinished:  finished,
		Depth:         depth,
		Running:       running,
		Stalls:        stalls,
	}
}

func (m *Metrics) incSubmitted(job *models.ScrapeJob) {
	if m == nil {
		return
	}
	m.JobsSubmitted.WithLabelValues(string(job.Kind), job.Priority.String()).Inc()
}

func (m *Metrics) incFinished(job *models.ScrapeJob) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
}

func (m *Metrics) setDepth(kind models.JobKind, pending, running int) {
	if m == nil {
		return
	}
	m.Depth.WithLabelValues(string(kind)).Set(float64(pending))
	m.Running.WithLabelValues(string(kind)).Set(float64(running))
}

func (m *Metrics) incStalls() {
	if m == nil {
		return
	}
	m.Stalls.Inc()
}
