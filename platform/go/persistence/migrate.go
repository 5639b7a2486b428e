package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	sqlassets "github.com/zenGate-Global/rentflow/database"
)

// Migrate applies every pending embedded migration. It is idempotent and is used by the CLI,
// the API (when RUN_MIGRATIONS is set) and the integration tests.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("migrate: pool is required")
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close() // nolint:errcheck

	goose.SetBaseFS(sqlassets.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, sqlassets.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus logs the applied state of every embedded migration through goose's logger.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("migration status: pool is required")
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close() // nolint:errcheck

	goose.SetBaseFS(sqlassets.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.StatusContext(ctx, db, sqlassets.MigrationsDir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}
