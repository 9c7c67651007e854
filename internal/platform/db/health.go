package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// DependencyCheck probes one external dependency (queue, object store).
type DependencyCheck func(ctx context.Context) error

// HealthReport is the body returned by the health endpoint.
type HealthReport struct {
	Status       string            `json:"status"`
	Pool         *PoolStats        `json:"pool,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Evaluate runs the database ping and every dependency check.
func Evaluate(ctx context.Context, ping func(ctx context.Context) error, checks map[string]DependencyCheck) HealthReport {
	report := HealthReport{Status: "healthy", Dependencies: map[string]string{}}

	if err := ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Dependencies["database"] = err.Error()
	} else {
		report.Dependencies["database"] = "ok"
	}

	for name, check := range checks {
		if err := check(ctx); err != nil {
			report.Status = "unhealthy"
			report.Dependencies[name] = err.Error()
			continue
		}
		report.Dependencies[name] = "ok"
	}
	return report
}

// HealthHandler returns a handler for the health check endpoint.
func HealthHandler(pool *pgxpool.Pool, checks map[string]DependencyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := Evaluate(ctx, pool.Ping, checks)
		report.Pool = GetPoolStats(pool)

		if report.Status != "healthy" {
			report.Pool.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
