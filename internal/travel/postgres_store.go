package travel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the table backing PostgresStore. Applied by
// database.Connect on startup; idempotent.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS travel_cache (
    pair_key   TEXT PRIMARY KEY,
    minutes    INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore is a Postgres-backed travel-time store for durable reuse of
// matrix-provider results across runs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed travel-time store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (int, bool, error) {
	var minutes int
	err := s.pool.QueryRow(ctx,
		`SELECT minutes FROM travel_cache WHERE pair_key = $1`, key,
	).Scan(&minutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query travel_cache: %w", err)
	}
	return minutes, true, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, minutes int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO travel_cache (pair_key, minutes, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pair_key)
		DO UPDATE SET minutes = EXCLUDED.minutes, updated_at = now()
	`, key, minutes)
	if err != nil {
		return fmt.Errorf("upsert travel_cache: %w", err)
	}
	return nil
}
