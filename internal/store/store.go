// Package store persists notification records, message templates, and the
// user directory read model in PostgreSQL.
package store

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool with typed queries.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}
