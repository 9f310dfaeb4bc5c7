package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings the store behind memorial reads. A pool with every connection busy and
// callers waiting is reported degraded: slug lookups still succeed, only slower.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		stats := sqlDB.Stats()
		result := monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("open=%d in_use=%d idle=%d", stats.OpenConnections, stats.InUse, stats.Idle),
			Duration: time.Since(start),
		}
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections && stats.WaitCount > 0 {
			result.Status = monitoring.StatusDegraded
			result.Details += " pool saturated"
		}
		return result
	})
}
