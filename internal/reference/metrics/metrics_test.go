package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.IncrementMovement("local", "forwarded")
	m.IncrementMovement("local", "forwarded")
	m.IncrementConflict("global", "apply_movement")
	m.IncrementBulkItem("reassign", "failed")
	m.AddSyncRefreshed(3)
	m.AddSyncRefreshed(0)
	m.ObserveOperation("create", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MovementsTotal.WithLabelValues("local", "forwarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("global", "apply_movement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkItemsTotal.WithLabelValues("reassign", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SyncRefreshedTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementMovement("local", "closed")
		m.IncrementConflict("local", "bulk")
		m.IncrementBulkItem("close", "succeeded")
		m.AddSyncRefreshed(1)
		m.ObserveOperation("list", time.Now())
	})
}
