package metrics

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateStorePoolStats(t *testing.T) {
	stats := sql.DBStats{
		InUse:              3,
		Idle:               7,
		MaxOpenConnections: 10,
	}

	UpdateStorePoolStats(stats)

	if got := testutil.ToFloat64(StorePoolConnections.WithLabelValues("active")); got != 3 {
		t.Errorf("active = %v, want 3", got)
	}
	if got := testutil.ToFloat64(StorePoolConnections.WithLabelValues("idle")); got != 7 {
		t.Errorf("idle = %v, want 7", got)
	}
	if got := testutil.ToFloat64(StorePoolConnections.WithLabelValues("max")); got != 10 {
		t.Errorf("max = %v, want 10", got)
	}
}
