package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics copies the current pool statistics into DBPoolConnections.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stat := pool.Stat()
	for state, n := range map[string]int32{
		"in_use":       stat.AcquiredConns(),
		"idle":         stat.IdleConns(),
		"constructing": stat.ConstructingConns(),
		"max":          stat.MaxConns(),
	} {
		DBPoolConnections.WithLabelValues(state).Set(float64(n))
	}
}
