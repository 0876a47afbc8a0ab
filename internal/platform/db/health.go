package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 3 * time.Second

// Report is the body of GET /health/db.
type Report struct {
	Status  string     `json:"status"`
	Driver  string     `json:"driver"`
	Latency string     `json:"latency,omitempty"`
	Error   string     `json:"error,omitempty"`
	Pool    *PoolStats `json:"pool,omitempty"`
}

// PoolStats summarises the pgx pool. EmptyAcquires counts acquisitions that
// had to wait for a connection to be opened, a sign DB_MAX_CONNS is too low.
type PoolStats struct {
	Total         int32  `json:"total_conns"`
	Idle          int32  `json:"idle_conns"`
	Acquired      int32  `json:"acquired_conns"`
	Max           int32  `json:"max_conns"`
	EmptyAcquires int64  `json:"empty_acquires"`
	AcquireWait   string `json:"acquire_wait"`
}

func poolStats(s *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		Total:         s.TotalConns(),
		Idle:          s.IdleConns(),
		Acquired:      s.AcquiredConns(),
		Max:           s.MaxConns(),
		EmptyAcquires: s.EmptyAcquireCount(),
		AcquireWait:   s.AcquireDuration().String(),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// checkHealth pings p under the health deadline and builds the response.
func checkHealth(ctx context.Context, p pinger) (int, Report) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return http.StatusServiceUnavailable, Report{Status: "unhealthy", Driver: "postgres", Error: err.Error()}
	}
	return http.StatusOK, Report{Status: "healthy", Driver: "postgres", Latency: time.Since(start).String()}
}

// HealthHandler pings Postgres and reports pool statistics.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		code, r := checkHealth(c.Request().Context(), pool)
		r.Pool = poolStats(pool.Stat())
		return c.JSON(code, r)
	}
}
