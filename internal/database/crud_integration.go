// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const integrationColumns = `id, user_id, lot, provider, slug, is_disabled,
	minimum_progress, maximum_progress, sync_to_owned_collection,
	provider_specifics, trigger_results, last_finished_at, created_on`

func scanIntegration(row pgx.Row) (*models.Integration, error) {
	var i models.Integration
	var specifics, triggers []byte
	var syncOwned *bool
	err := row.Scan(&i.ID, &i.UserID, &i.Lot, &i.Provider, &i.Slug,
		&i.IsDisabled, &i.MinimumProgress, &i.MaximumProgress, &syncOwned,
		&specifics, &triggers, &i.LastFinishedAt, &i.CreatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	if syncOwned != nil {
		i.SyncToOwnedCollection = *syncOwned
	}
	if err := fromJSONB(specifics, &i.Specifics); err != nil {
		return nil, err
	}
	if err := fromJSONB(triggers, &i.TriggerResult); err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateIntegration stores a new integration with its webhook slug.
func (db *DB) CreateIntegration(ctx context.Context, i *models.Integration) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO integration (id, user_id, lot, provider, slug, is_disabled,
			minimum_progress, maximum_progress, sync_to_owned_collection,
			provider_specifics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		i.ID, i.UserID, i.Lot, i.Provider, i.Slug, i.IsDisabled,
		i.MinimumProgress, i.MaximumProgress, i.SyncToOwnedCollection,
		mustJSONB(i.Specifics))
	if err != nil {
		return fmt.Errorf("database: create integration: %w", err)
	}
	return nil
}

// UpdateIntegration rewrites the mutable settings.
func (db *DB) UpdateIntegration(ctx context.Context, i *models.Integration) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE integration SET is_disabled = $3, minimum_progress = $4,
			maximum_progress = $5, sync_to_owned_collection = $6,
			provider_specifics = $7
		WHERE id = $1 AND user_id = $2`,
		i.ID, i.UserID, i.IsDisabled, i.MinimumProgress, i.MaximumProgress,
		i.SyncToOwnedCollection, mustJSONB(i.Specifics))
	return err
}

// GetIntegration fetches one integration by id.
func (db *DB) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	return scanIntegration(db.pool.QueryRow(ctx,
		"SELECT "+integrationColumns+" FROM integration WHERE id = $1", id))
}

// GetIntegrationBySlug routes an inbound webhook to its integration.
func (db *DB) GetIntegrationBySlug(ctx context.Context, slug string) (*models.Integration, error) {
	return scanIntegration(db.pool.QueryRow(ctx,
		"SELECT "+integrationColumns+" FROM integration WHERE slug = $1", slug))
}

// ListUserIntegrations returns every integration of a user.
func (db *DB) ListUserIntegrations(ctx context.Context, userID string) ([]*models.Integration, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT "+integrationColumns+" FROM integration WHERE user_id = $1 ORDER BY created_on", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntegrations(rows)
}

// ListEnabledIntegrationsByLot returns every enabled integration of one
// direction across users, for the yank/push sweeps.
func (db *DB) ListEnabledIntegrationsByLot(ctx context.Context, lot models.IntegrationLot) ([]*models.Integration, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT "+integrationColumns+" FROM integration WHERE lot = $1 AND NOT is_disabled ORDER BY created_on",
		lot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntegrations(rows)
}

func collectIntegrations(rows pgx.Rows) ([]*models.Integration, error) {
	var out []*models.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// triggerResultHistory caps the per-integration trail.
const triggerResultHistory = 20

// RecordIntegrationTrigger prepends the outcome of a trigger and advances
// last_finished_at on success.
func (db *DB) RecordIntegrationTrigger(ctx context.Context, id string, result models.IntegrationTriggerResult) error {
	i, err := db.GetIntegration(ctx, id)
	if err != nil {
		return err
	}
	trail := append([]models.IntegrationTriggerResult{result}, i.TriggerResult...)
	if len(trail) > triggerResultHistory {
		trail = trail[:triggerResultHistory]
	}
	var finishedAt *time.Time
	if result.Error == nil {
		finishedAt = &result.FinishedAt
	} else {
		finishedAt = i.LastFinishedAt
	}
	_, err = db.pool.Exec(ctx, `
		UPDATE integration SET trigger_results = $2, last_finished_at = $3
		WHERE id = $1`,
		id, mustJSONB(trail), finishedAt)
	return err
}

// DeleteIntegration removes an integration owned by the user.
func (db *DB) DeleteIntegration(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM integration WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const platformColumns = `id, user_id, lot, configured_events, is_disabled,
	settings, created_on`

func scanPlatform(row pgx.Row) (*models.NotificationPlatform, error) {
	var p models.NotificationPlatform
	var events []string
	var settings []byte
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &events, &p.IsDisabled,
		&settings, &p.CreatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	for _, e := range events {
		p.ConfiguredEvents = append(p.ConfiguredEvents, models.MediaStateChanged(e))
	}
	if err := fromJSONB(settings, &p.Settings); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateNotificationPlatform stores a delivery target.
func (db *DB) CreateNotificationPlatform(ctx context.Context, p *models.NotificationPlatform) error {
	events := make([]string, 0, len(p.ConfiguredEvents))
	for _, e := range p.ConfiguredEvents {
		events = append(events, string(e))
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO notification_platform (id, user_id, lot, configured_events,
			is_disabled, settings)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, p.Kind, events, p.IsDisabled, mustJSONB(p.Settings))
	if err != nil {
		return fmt.Errorf("database: create notification platform: %w", err)
	}
	return nil
}

// UpdateNotificationPlatform rewrites the mutable settings.
func (db *DB) UpdateNotificationPlatform(ctx context.Context, p *models.NotificationPlatform) error {
	events := make([]string, 0, len(p.ConfiguredEvents))
	for _, e := range p.ConfiguredEvents {
		events = append(events, string(e))
	}
	_, err := db.pool.Exec(ctx, `
		UPDATE notification_platform SET configured_events = $3,
			is_disabled = $4, settings = $5
		WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, events, p.IsDisabled, mustJSONB(p.Settings))
	return err
}

// ListUserNotificationPlatforms returns a user's delivery targets.
func (db *DB) ListUserNotificationPlatforms(ctx context.Context, userID string) ([]*models.NotificationPlatform, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT "+platformColumns+" FROM notification_platform WHERE user_id = $1 ORDER BY created_on",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.NotificationPlatform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteNotificationPlatform removes a delivery target owned by the user.
func (db *DB) DeleteNotificationPlatform(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM notification_platform WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
