package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics shared by every router.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	Panics          prometheus.Counter
}

// New creates and registers the HTTP metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocpi_http_request_duration_seconds",
			Help:    "Duration of inbound HTTP requests by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		Panics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_http_panics_total",
			Help: "Total number of handler panics recovered at the request boundary",
		}),
	}
}

// ObserveRequest records one request.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// IncrementPanics counts a recovered panic.
func (m *Metrics) IncrementPanics() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}
