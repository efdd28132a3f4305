package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"options-spread-lab/internal/storage/migrations"
)

// migrationLockID serialises concurrent migrators on one database.
const migrationLockID = 0x0057_4c41_42

const createSchemaMigrations = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migrate applies the embedded trade record migrations missing from
// schema_migrations, each in its own transaction, and returns those applied.
func Migrate(ctx context.Context, pool *Pool) ([]migrations.Migration, error) {
	all, err := migrations.Postgres()
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := AppliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}

	var done []migrations.Migration
	for _, m := range migrations.Pending(all, applied) {
		ran := false
		err := pool.InTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLockID)); err != nil {
				return err
			}
			// Another process may have applied it while we waited for the lock.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
			).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
			); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return done, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		if ran {
			done = append(done, m)
		}
	}
	return done, nil
}

// AppliedVersions returns the versions recorded in schema_migrations.
func AppliedVersions(ctx context.Context, pool *Pool) (map[int]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int32
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[int(v)] = true
	}
	return applied, rows.Err()
}
