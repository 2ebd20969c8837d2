package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for credential ingestion and verification.
type Metrics struct {
	Imports        *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	ImportDuration prometheus.Histogram
}

// New creates a new Metrics instance with all credential metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Imports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certwallet_credential_imports_total",
			Help: "Credential imports by ingestion channel and outcome",
		}, []string{"source", "outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certwallet_credential_verifications_total",
			Help: "Completed verification runs by verdict",
		}, []string{"verdict"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certwallet_verification_step_duration_seconds",
			Help:    "Duration of individual verification checks",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"step", "status"}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certwallet_credential_import_duration_seconds",
			Help:    "End-to-end duration of credential imports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementImport records an import attempt. outcome is imported,
// unresolved, duplicate or rejected.
func (m *Metrics) IncrementImport(source, outcome string) {
	m.Imports.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncrementVerification(verdict string) {
	m.Verifications.WithLabelValues(verdict).Inc()
}

// ObserveStep implements verification.StepObserver.
func (m *Metrics) ObserveStep(code, status string, d time.Duration) {
	m.StepDuration.WithLabelValues(code, status).Observe(d.Seconds())
}

// ObserveImport records the duration of an import.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveImport(start time.Time) {
	m.ImportDuration.Observe(time.Since(start).Seconds())
}
