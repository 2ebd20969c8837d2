package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the issuer introduction handshake and trust store size.
type Metrics struct {
	Handshakes *prometheus.CounterVec
	Trusted    prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certwallet_issuer_handshakes_total",
			Help: "Issuer introduction handshakes by outcome",
		}, []string{"outcome"}),
		Trusted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certwallet_trusted_issuers",
			Help: "Number of issuers in the trust store at the last listing",
		}),
	}
}

// IncrementHandshake records a handshake; outcome is accepted or rejected.
func (m *Metrics) IncrementHandshake(outcome string) {
	m.Handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetTrusted(n int) {
	m.Trusted.Set(float64(n))
}
