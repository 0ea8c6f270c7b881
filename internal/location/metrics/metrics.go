package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks connector updates pushed by CPOs.
type Metrics struct {
	Puts    *prometheus.CounterVec
	Patches *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Puts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_connector_puts_total",
			Help: "Total number of connector PUT requests, by result (created, replaced)",
		}, []string{"result"}),
		Patches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_connector_patches_total",
			Help: "Total number of connector PATCH requests, by outcome (applied, unchanged, rejected, stale)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementPut(created bool) {
	if m == nil {
		return
	}
	result := "replaced"
	if created {
		result = "created"
	}
	m.Puts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementPatch(outcome string) {
	if m == nil {
		return
	}
	m.Patches.WithLabelValues(outcome).Inc()
}
