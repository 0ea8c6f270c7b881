package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks credentials handshakes in both directions.
type Metrics struct {
	Handshakes       *prometheus.CounterVec
	HandshakeLatency *prometheus.HistogramVec
	Restarts         prometheus.Counter
	Outbound         *prometheus.CounterVec
	BreakerOpened    prometheus.Counter
	Inbound          *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Handshakes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_registration_handshakes_total",
			Help: "Total number of outbound handshakes, by direction (register, renew) and state reached",
		}, []string{"direction", "state"}),
		HandshakeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocpi_registration_handshake_duration_seconds",
			Help:    "Duration of outbound handshakes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"direction"}),
		Restarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_registration_restarts_total",
			Help: "Total number of handshakes restarted from discovery after a failed exchange",
		}),
		Outbound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_registration_outbound_requests_total",
			Help: "Total number of calls to counterpart versions and credentials endpoints, by operation and outcome",
		}, []string{"operation", "outcome"}),
		BreakerOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_registration_breaker_opened_total",
			Help: "Total number of times a per-counterpart circuit breaker opened",
		}),
		Inbound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_registration_inbound_total",
			Help: "Total number of credentials requests from counterparts, by method and result",
		}, []string{"method", "result"}),
	}
}

func (m *Metrics) ObserveHandshake(direction, state string, start time.Time) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(direction, state).Inc()
	m.HandshakeLatency.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRestarts() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

func (m *Metrics) IncrementOutbound(operation, outcome string) {
	if m == nil {
		return
	}
	m.Outbound.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncrementBreakerOpened() {
	if m == nil {
		return
	}
	m.BreakerOpened.Inc()
}

func (m *Metrics) IncrementInbound(method, result string) {
	if m == nil {
		return
	}
	m.Inbound.WithLabelValues(method, result).Inc()
}
