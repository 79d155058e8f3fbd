// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// Durable cache rows back the in-process cache for values that must
// survive restarts (provider OAuth tokens, genre tables).

// SetCacheEntry upserts a durable cache row.
func (db *DB) SetCacheEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO application_cache (id, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`,
		models.NewID("ach"), key, value, now().Add(ttl))
	if err != nil {
		return fmt.Errorf("database: set cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry reads a durable cache row; expired rows are ErrNotFound.
func (db *DB) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.pool.QueryRow(ctx,
		"SELECT value FROM application_cache WHERE key = $1 AND expires_at > NOW()",
		key).Scan(&value)
	if err != nil {
		return nil, notFound(err)
	}
	return value, nil
}

// DeleteExpiredCacheEntries removes rows past their TTL; run by the
// scheduler tick.
func (db *DB) DeleteExpiredCacheEntries(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM application_cache WHERE expires_at <= NOW()")
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
