// Package database connects the durable travel-time store to PostgreSQL.
// The pool exists for exactly one workload: concurrent travel-pair lookups
// issued while matrices are built, so its sizing follows the planner's
// parallelism rather than generic web-service defaults.
package database

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldroute/fieldroute/internal/planner"
	"github.com/fieldroute/fieldroute/internal/travel"
)

// Config holds the travel-store connection settings.
type Config struct {
	// URL is the Postgres connection string (DATABASE_URL).
	URL string

	// ParallelLookups is the number of simultaneous travel-pair lookups
	// the pool must serve. Calendar-mode planning solves independent
	// clusters concurrently and each solve streams matrix misses to the
	// store, so this defaults to the machine's parallelism.
	ParallelLookups int
}

// ConfigFromEnv reads DATABASE_URL and TRAVEL_STORE_LOOKUPS.
func ConfigFromEnv() Config {
	cfg := Config{URL: os.Getenv("DATABASE_URL")}
	if n, err := strconv.Atoi(os.Getenv("TRAVEL_STORE_LOOKUPS")); err == nil && n > 0 {
		cfg.ParallelLookups = n
	}
	return cfg
}

// Connect opens the pool, verifies the connection, and applies the
// travel_cache schema. Failures are reported as retryable solver errors:
// the store is part of the time oracle, and the planner treats oracle
// trouble as transient.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, storeError("DATABASE_URL is not set", nil)
	}
	lookups := cfg.ParallelLookups
	if lookups <= 0 {
		lookups = runtime.GOMAXPROCS(0)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, storeError("parse travel store url", err)
	}
	// One connection per concurrent lookup; a single warm connection is
	// enough between plans.
	poolConfig.MaxConns = int32(lookups) //nolint:gosec // small bounded count
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, storeError("create travel store pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeError("ping travel store", err)
	}
	if _, err := pool.Exec(ctx, travel.PostgresSchema); err != nil {
		pool.Close()
		return nil, storeError("apply travel_cache schema", err)
	}
	return pool, nil
}

func storeError(msg string, err error) *planner.Error {
	return &planner.Error{
		Kind:    planner.KindSolverError,
		Message: msg,
		Err:     err,
		Recommendations: []string{
			"verify DATABASE_URL",
			"run without a durable travel store (in-memory cache only)",
		},
	}
}
