package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger operation outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeNotFound          = "not_found"
	OutcomeInvalid           = "invalid"
	OutcomeConflict          = "conflict"
	OutcomeUnavailable       = "unavailable"
	OutcomeCanceled          = "canceled"
	OutcomeError             = "error"
)

// InventoryMetrics tracks ledger throughput and stock health.
type InventoryMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	units        *prometheus.CounterVec
	lowStock     prometheus.Gauge
	outOfStock   prometheus.Gauge
	invalidation *prometheus.CounterVec
}

func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_operations_total",
			Help:      "Inventory ledger operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inventory_operation_duration_seconds",
			Help:      "Inventory ledger operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_units_moved_total",
			Help:      "Units moved by committed stock movements.",
		}, []string{"type"}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_low_stock_records",
			Help:      "Records at or below their low stock threshold.",
		}),
		outOfStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_out_of_stock_records",
			Help:      "Records with no available units.",
		}),
		invalidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_cache_invalidations_total",
			Help:      "Post-commit cache invalidations by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.operations, m.duration, m.units, m.lowStock, m.outOfStock, m.invalidation)
	return m
}

// ObserveOperation records one ledger call.
func (m *InventoryMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.operations.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *InventoryMetrics) AddUnits(movement string, units int) {
	if m == nil || m.units == nil || units <= 0 {
		return
	}
	m.units.WithLabelValues(normalizeLabel(movement)).Add(float64(units))
}

// SetStockLevels publishes the latest low and out-of-stock counts.
func (m *InventoryMetrics) SetStockLevels(low, out int64) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(low))
	m.outOfStock.Set(float64(out))
}

func (m *InventoryMetrics) ObserveInvalidation(err error) {
	if m == nil || m.invalidation == nil {
		return
	}
	if err != nil {
		m.invalidation.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.invalidation.WithLabelValues(OutcomeSuccess).Inc()
}
