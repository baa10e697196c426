package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reference engine.
// Tracks hand-offs, token conflicts, bulk outcomes and critical path durations.
type Metrics struct {
	MovementsTotal     *prometheus.CounterVec
	ConflictsTotal     *prometheus.CounterVec
	BulkItemsTotal     *prometheus.CounterVec
	SyncRefreshedTotal prometheus.Counter
	OperationDuration  *prometheus.HistogramVec
}

// New creates the engine metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the engine metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MovementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refroute_movements_total",
			Help: "Ledger entries appended, by scope and action",
		}, []string{"scope", "action"}),
		ConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refroute_concurrent_modifications_total",
			Help: "Writes rejected because the reference token moved on",
		}, []string{"scope", "operation"}),
		BulkItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refroute_bulk_items_total",
			Help: "Bulk batch items by action and outcome",
		}, []string{"action", "outcome"}),
		SyncRefreshedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "refroute_identity_sync_refreshed_total",
			Help: "References whose holder snapshots were refreshed by identity sync",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refroute_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementMovement records an appended ledger entry.
func (m *Metrics) IncrementMovement(scope, action string) {
	if m == nil {
		return
	}
	m.MovementsTotal.WithLabelValues(scope, action).Inc()
}

// IncrementConflict records a lost optimistic-concurrency race.
func (m *Metrics) IncrementConflict(scope, operation string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(scope, operation).Inc()
}

// IncrementBulkItem records one item's outcome in a bulk batch.
func (m *Metrics) IncrementBulkItem(action, outcome string) {
	if m == nil {
		return
	}
	m.BulkItemsTotal.WithLabelValues(action, outcome).Inc()
}

// AddSyncRefreshed records references refreshed by one sync run.
func (m *Metrics) AddSyncRefreshed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncRefreshedTotal.Add(float64(n))
}

// ObserveOperation records the duration of operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
