// Package checks provides readiness probes for the service dependencies.
package checks

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/monitoring"
)

// Database returns a readiness probe that pings the gorm handle.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		return monitoring.ResultFromError("database", sqlDB.PingContext(ctx), time.Since(start))
	})
}

// Pool returns a readiness probe for the native pgx session store pool.
func Pool(pool *pgxpool.Pool) monitoring.Check {
	return monitoring.NewCheck("session_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if pool == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "pool not configured"}
		}
		return monitoring.ResultFromError("session_store", pool.Ping(ctx), time.Since(start))
	})
}
