package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Cascade stage latencies by stage
	StageDuration *prometheus.HistogramVec

	// Stage outcomes by stage and status
	StageOutcome *prometheus.CounterVec

	// Outbound calls to external verification services
	BackendRequests *prometheus.CounterVec

	// Final report outcomes by backend
	Reports *prometheus.CounterVec

	BatchesRun    prometheus.Counter
	BatchInFlight prometheus.Gauge
	BatchDuration prometheus.Histogram
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailscout_stage_duration_seconds",
			Help:    "Duration of verification stages",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}), // stage: "syntax", "mx", "smtp"

		StageOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailscout_stage_outcomes_total",
			Help: "Verification stage outcomes by stage and status",
		}, []string{"stage", "status"}),

		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailscout_backend_requests_total",
			Help: "Requests issued to external verification services",
		}, []string{"backend", "status"}),

		Reports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailscout_reports_total",
			Help: "Verification reports produced by backend and outcome",
		}, []string{"backend", "status"}),

		BatchesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailscout_batches_total",
			Help: "Batch runs started",
		}),

		BatchInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mailscout_batch_tasks_in_flight",
			Help: "Verification tasks currently executing",
		}),

		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailscout_batch_duration_seconds",
			Help:    "Wall-clock duration of batch runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		m.StageOutcome.WithLabelValues(stage, status).Inc()
	}
}

func (m *Metrics) IncrementBackendRequest(backend, status string) {
	if m != nil {
		m.BackendRequests.WithLabelValues(backend, status).Inc()
	}
}

func (m *Metrics) IncrementReport(backend, status string) {
	if m != nil {
		m.Reports.WithLabelValues(backend, status).Inc()
	}
}

// BatchStarted records a new run and returns a func to call when it ends.
func (m *Metrics) BatchStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.BatchesRun.Inc()
	return func() {
		m.BatchDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) TaskStarted() {
	if m != nil {
		m.BatchInFlight.Inc()
	}
}

func (m *Metrics) TaskFinished() {
	if m != nil {
		m.BatchInFlight.Dec()
	}
}
