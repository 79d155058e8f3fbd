// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package database provides PostgreSQL data access for Shelfwatch.
//
// All queries go through the DB wrapper around a pgx connection pool.
// Repository methods are grouped by aggregate in crud_*.go files. Schema
// migrations are embedded and applied on startup via golang-migrate.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("database: not found")

// DB wraps the PostgreSQL pool and provides data access methods.
type DB struct {
	pool *pgxpool.Pool
	cfg  *config.DatabaseConfig
}

// New connects to PostgreSQL, verifies the connection and, when enabled,
// applies pending migrations.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("database: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	db := &DB{pool: pool, cfg: cfg}

	if cfg.RunMigrations {
		if err := db.Migrate(); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logging.Info().Msg("Database connection established")
	return db, nil
}

// Migrate applies all pending embedded migrations.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("database: open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(db.cfg.URL))
	if err != nil {
		return fmt.Errorf("database: init migrator: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logging.Warn().
				AnErr("source_error", srcErr).
				AnErr("db_error", dbErr).
				Msg("Migrator close reported errors")
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("database: read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database: dirty migration state at version %d", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Debug().Msg("Migrations already up to date")
			return nil
		}
		return fmt.Errorf("database: apply migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logging.Info().
		Uint("from_version", uint(version)).
		Uint("to_version", uint(newVersion)).
		Msg("Migrations applied")
	return nil
}

// pgx5URL rewrites a postgres:// URL to the pgx5:// scheme golang-migrate
// expects for its pgx/v5 driver.
func pgx5URL(url string) string {
	switch {
	case strings.HasPrefix(url, "pgx5://"):
		return url
	case strings.HasPrefix(url, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	case strings.HasPrefix(url, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgres://")
	}
	return url
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping verifies database connectivity, used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Pool exposes the underlying pool for packages that need transactions.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// WithTx runs fn inside a transaction, committing on nil error.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.Warn().Err(rbErr).Msg("Transaction rollback failed")
		}
		return err
	}
	return tx.Commit(ctx)
}

// WithAdvisoryLock serializes fn on a transaction advisory lock derived
// from the given scope strings. The lock lives in its own transaction
// and is held until fn returns, so fn may run its queries on the pool.
// Progress updates take it per (user, metadata) pair and monitoring
// fan-out per entity.
func (db *DB) WithAdvisoryLock(ctx context.Context, fn func(ctx context.Context) error, scope ...string) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(scope...)); err != nil {
			return fmt.Errorf("database: acquire advisory lock: %w", err)
		}
		return fn(ctx)
	})
}

func advisoryLockKey(scope ...string) int64 {
	h := fnv.New64a()
	for _, s := range scope {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

// now returns the timestamp used for row bookkeeping columns.
func now() time.Time {
	return time.Now().UTC()
}
