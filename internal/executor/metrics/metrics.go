package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger operations.
type Metrics struct {
	// Operation outcomes by operation name and result code.
	Operations *prometheus.CounterVec

	// End-to-end operation latency, validation included.
	OperationLatency *prometheus.HistogramVec

	// Current total supply, updated after every successful mutation.
	TotalSupply prometheus.Gauge
}

// New creates and registers all executor metrics.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranchebook_operations_total",
			Help: "Total ledger operations by name and outcome code",
		}, []string{"operation", "outcome"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tranchebook_operation_duration_seconds",
			Help:    "Duration of ledger operations including validation",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"operation"}),

		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tranchebook_total_supply",
			Help: "Current total supply across all accounts and tranches",
		}),
	}
}

// ObserveOperation records one operation's outcome and duration.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// SetTotalSupply updates the supply gauge.
func (m *Metrics) SetTotalSupply(supply uint64) {
	if m != nil {
		m.TotalSupply.Set(float64(supply))
	}
}
