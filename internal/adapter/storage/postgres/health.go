package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schemaVersionQuery = `SELECT version, dirty FROM schema_migrations LIMIT 1`

// HealthCheck reports the registry database as healthy once it answers
// and its schema has been migrated cleanly.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping fails when the database is unreachable, when no migration has been
// applied, or when the last migration was left dirty.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var (
		version int64
		dirty   bool
	)
	err := h.pool.QueryRow(ctx, schemaVersionQuery).Scan(&version, &dirty)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.New("registry schema not migrated")
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("registry schema version %d is dirty", version)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
