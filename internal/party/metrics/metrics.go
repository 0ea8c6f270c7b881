package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the party registry.
type Metrics struct {
	PartiesCreated prometheus.Counter
	TokensIssued   *prometheus.CounterVec
	EntriesPruned  prometheus.Counter
	LookupDuration prometheus.Histogram
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		PartiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_parties_created_total",
			Help: "Total number of remote parties created",
		}),
		TokensIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpi_tokens_issued_total",
			Help: "Total number of local access tokens issued, by initial status",
		}, []string{"status"}),
		EntriesPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpi_access_entries_pruned_total",
			Help: "Total number of stale access entries removed after their grace period",
		}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocpi_token_lookup_duration_seconds",
			Help:    "Duration of registry token lookups (authentication critical path)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) IncrementPartiesCreated() {
	if m == nil {
		return
	}
	m.PartiesCreated.Inc()
}

func (m *Metrics) IncrementTokensIssued(status string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(status).Inc()
}

func (m *Metrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntriesPruned.Add(float64(n))
}

// ObserveLookup records the duration of a token lookup.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
