package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"options-spread-lab/internal/storage/migrations"
)

const createSchemaMigrations = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    UInt32,
		name       String,
		applied_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree()
	ORDER BY version`

// OpenMigrated creates the database named in dsn if needed, applies pending
// tick schema migrations and returns a connection to that database.
func OpenMigrated(ctx context.Context, dsn string) (*Conn, []migrations.Migration, error) {
	opts, err := parseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	database := opts.Auth.Database
	if database == "" {
		return nil, nil, errors.New("clickhouse dsn missing database")
	}

	admin, err := NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(database))
	admin.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("create database %s: %w", database, err)
	}

	conn, err := NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, nil, err
	}
	applied, err := Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, applied, nil
}

// Migrate applies the embedded tick migrations missing from
// schema_migrations and returns those applied. ClickHouse has no DDL
// transactions, so the migrations must be idempotent.
func Migrate(ctx context.Context, conn *Conn) ([]migrations.Migration, error) {
	all, err := migrations.Clickhouse()
	if err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := AppliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var done []migrations.Migration
	for _, m := range migrations.Pending(all, applied) {
		stmts, err := m.Statements()
		if err != nil {
			return done, err
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return done, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		if err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", uint32(m.Version), m.Name,
		); err != nil {
			return done, fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		done = append(done, m)
	}
	return done, nil
}

// AppliedVersions returns the versions recorded in schema_migrations.
func AppliedVersions(ctx context.Context, conn *Conn) (map[int]bool, error) {
	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations FINAL")
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[int(v)] = true
	}
	return applied, rows.Err()
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
