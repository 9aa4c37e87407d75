package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption configures NewPool.
type PoolOption func(*queryTracer)

// WithObserver reports every query duration to fn.
func WithObserver(fn Observer) PoolOption {
	return func(t *queryTracer) { t.observe = fn }
}

// WithSlowThreshold logs successful queries slower than d. Failed queries
// are always logged.
func WithSlowThreshold(d time.Duration) PoolOption {
	return func(t *queryTracer) { t.slow = d }
}

// NewPool connects to url and verifies the connection.
func NewPool(ctx context.Context, url string, opts ...PoolOption) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	t := &queryTracer{
		inner: otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()),
		slow:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	pcfg.ConnConfig.Tracer = t

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
