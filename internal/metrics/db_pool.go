package metrics

import "database/sql"

// UpdateStorePoolStats publishes connection pool gauges from sql.DBStats.
func UpdateStorePoolStats(stats sql.DBStats) {
	StorePoolConnections.WithLabelValues("active").Set(float64(stats.InUse))
	StorePoolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	StorePoolConnections.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
}
