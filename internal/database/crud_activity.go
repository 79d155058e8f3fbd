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

// UpsertDailyActivity replaces the counter row for one (user, day).
func (db *DB) UpsertDailyActivity(ctx context.Context, a *models.DailyUserActivity) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO daily_user_activity (user_id, date, counters)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, date) DO UPDATE SET counters = EXCLUDED.counters`,
		a.UserID, a.Date, mustJSONB(a))
	if err != nil {
		return fmt.Errorf("database: upsert daily activity: %w", err)
	}
	return nil
}

// ListDailyActivities returns the counter rows of a user in a date range,
// oldest first. Zero times mean an unbounded side.
func (db *DB) ListDailyActivities(ctx context.Context, userID string, from, to time.Time) ([]*models.DailyUserActivity, error) {
	query := "SELECT counters FROM daily_user_activity WHERE user_id = $1"
	args := []any{userID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date ASC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DailyUserActivity
	for rows.Next() {
		var counters []byte
		if err := rows.Scan(&counters); err != nil {
			return nil, err
		}
		var a models.DailyUserActivity
		if err := fromJSONB(counters, &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LatestActivityDate returns the newest rolled-up day for a user, the
// resume point for incremental recomputation. ErrNotFound when the user
// has no rows yet.
func (db *DB) LatestActivityDate(ctx context.Context, userID string) (time.Time, error) {
	var date time.Time
	err := db.pool.QueryRow(ctx,
		"SELECT MAX(date) FROM daily_user_activity WHERE user_id = $1 HAVING MAX(date) IS NOT NULL",
		userID).Scan(&date)
	if err != nil {
		return time.Time{}, notFound(err)
	}
	return date, nil
}

// DeleteActivitiesFrom removes rolled-up days at or after the date, which
// incremental recomputation then rebuilds.
func (db *DB) DeleteActivitiesFrom(ctx context.Context, userID string, from time.Time) error {
	_, err := db.pool.Exec(ctx,
		"DELETE FROM daily_user_activity WHERE user_id = $1 AND date >= $2",
		userID, from)
	return err
}

// DeleteAllActivities wipes a user's rollup for from-scratch recomputation.
func (db *DB) DeleteAllActivities(ctx context.Context, userID string) error {
	_, err := db.pool.Exec(ctx,
		"DELETE FROM daily_user_activity WHERE user_id = $1", userID)
	return err
}
