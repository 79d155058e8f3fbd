// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const seenColumns = `id, user_id, metadata_id, state, progress, started_on,
	finished_on, provider_watched_on, show_extra_information,
	podcast_extra_information, anime_extra_information,
	manga_extra_information, updated_at, last_updated_on`

func scanSeen(row pgx.Row) (*models.Seen, error) {
	var s models.Seen
	var show, podcast, anime, manga, updatedAt []byte
	err := row.Scan(&s.ID, &s.UserID, &s.MetadataID, &s.State, &s.Progress,
		&s.StartedOn, &s.FinishedOn, &s.ProviderWatchedOn,
		&show, &podcast, &anime, &manga, &updatedAt, &s.LastUpdatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	for raw, dst := range map[*[]byte]any{
		&show: &s.ShowExtraInformation, &podcast: &s.PodcastExtraInformation,
		&anime: &s.AnimeExtraInformation, &manga: &s.MangaExtraInformation,
		&updatedAt: &s.UpdatedAt,
	} {
		if err := fromJSONB(*raw, dst); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func seenParams(s *models.Seen) []any {
	return []any{
		s.ID, s.UserID, s.MetadataID, s.State, s.Progress, s.StartedOn,
		s.FinishedOn, s.ProviderWatchedOn,
		mustJSONB(s.ShowExtraInformation), mustJSONB(s.PodcastExtraInformation),
		mustJSONB(s.AnimeExtraInformation), mustJSONB(s.MangaExtraInformation),
		mustJSONB(s.UpdatedAt), s.LastUpdatedOn,
	}
}

// InsertSeen stores a new consumption record.
func (db *DB) InsertSeen(ctx context.Context, s *models.Seen) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO seen (`+seenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		seenParams(s)...)
	if err != nil {
		return fmt.Errorf("database: insert seen: %w", err)
	}
	return nil
}

// UpdateSeen rewrites the mutable fields of a record.
func (db *DB) UpdateSeen(ctx context.Context, s *models.Seen) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE seen SET state = $4, progress = $5, started_on = $6,
			finished_on = $7, provider_watched_on = $8,
			show_extra_information = $9, podcast_extra_information = $10,
			anime_extra_information = $11, manga_extra_information = $12,
			updated_at = $13, last_updated_on = $14
		WHERE id = $1 AND user_id = $2 AND metadata_id = $3`,
		seenParams(s)...)
	if err != nil {
		return fmt.Errorf("database: update seen: %w", err)
	}
	return nil
}

// GetSeen fetches one record by id.
func (db *DB) GetSeen(ctx context.Context, id string) (*models.Seen, error) {
	return scanSeen(db.pool.QueryRow(ctx,
		"SELECT "+seenColumns+" FROM seen WHERE id = $1", id))
}

// DeleteSeen removes a record.
func (db *DB) DeleteSeen(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM seen WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOpenSeen returns the user's single open record for a metadata row,
// or ErrNotFound. Open means progress < 100 and state is not dropped.
func (db *DB) GetOpenSeen(ctx context.Context, userID, metadataID string) (*models.Seen, error) {
	return scanSeen(db.pool.QueryRow(ctx, `
		SELECT `+seenColumns+` FROM seen
		WHERE user_id = $1 AND metadata_id = $2
		  AND progress < 100 AND state <> 'dropped'
		ORDER BY last_updated_on DESC LIMIT 1`,
		userID, metadataID))
}

// ListSeenForUserMetadata returns every record of a (user, metadata) pair,
// newest first.
func (db *DB) ListSeenForUserMetadata(ctx context.Context, userID, metadataID string) ([]*models.Seen, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+seenColumns+` FROM seen
		WHERE user_id = $1 AND metadata_id = $2
		ORDER BY last_updated_on DESC`, userID, metadataID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeen(rows)
}

// ListSeenForUser pages every record of a user, oldest first, for the
// exporter and the analytics rollup.
func (db *DB) ListSeenForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Seen, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+seenColumns+` FROM seen
		WHERE user_id = $1 ORDER BY last_updated_on ASC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeen(rows)
}

// ListFinishedSeen returns the completed records of a (user, metadata)
// pair, which finished detection inspects per episode bucket.
func (db *DB) ListFinishedSeen(ctx context.Context, userID, metadataID string) ([]*models.Seen, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+seenColumns+` FROM seen
		WHERE user_id = $1 AND metadata_id = $2 AND state = 'completed'
		ORDER BY finished_on ASC NULLS LAST`, userID, metadataID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeen(rows)
}

func collectSeen(rows pgx.Rows) ([]*models.Seen, error) {
	var out []*models.Seen
	for rows.Next() {
		s, err := scanSeen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
