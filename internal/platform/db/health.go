package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/ehr/riskadvisor/internal/platform/telemetry"
)

const healthTimeout = 5 * time.Second

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body of the database health endpoint.
type HealthReport struct {
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	LatencyMS int64      `json:"latency_ms"`
	Pool      *PoolStats `json:"pool,omitempty"`
}

// GetPoolStats snapshots pool counters and publishes them as gauges.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	telemetry.DBPoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
	telemetry.DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	telemetry.DBPoolConnections.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthHandler pings the database and reports pool statistics; 503 when
// the ping fails.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(pool.Ping, func() *PoolStats { return GetPoolStats(pool) }, healthTimeout)
}

func healthHandler(ping func(context.Context) error, stats func() *PoolStats, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		report := HealthReport{
			Status:    "healthy",
			LatencyMS: time.Since(start).Milliseconds(),
			Pool:      stats(),
		}
		if err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
