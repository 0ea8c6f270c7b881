package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authentication and routing outcomes.
type Metrics struct {
	Resolutions     *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	RoutingFailures prometheus.Counter
	ResolveDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_auth_resolutions_total",
			Help: "Token resolutions by outcome (authenticated, anonymous, rejected) and matched encoding",
		}, []string{"outcome", "encoding"}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_auth_rejection_reasons_total",
			Help: "Rejection reasons recorded while resolving tokens",
		}, []string{"reason"}),
		RoutingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_auth_routing_failures_total",
			Help: "Requests whose sender or recipient headers did not match a known identity",
		}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocpi_auth_resolve_duration_seconds",
			Help:    "Duration of token resolution including registry lookups",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
	}
}

func (m *Metrics) IncrementResolution(outcome, encoding string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome, encoding).Inc()
}

func (m *Metrics) IncrementRejection(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRoutingFailure() {
	if m == nil {
		return
	}
	m.RoutingFailures.Inc()
}

// ObserveResolve records resolution latency.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
