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

func reviewEntityColumn(entityID string) (string, error) {
	lot, ok := models.EntityLotForID(entityID)
	if !ok {
		return "", fmt.Errorf("database: unknown entity id %q", entityID)
	}
	switch lot {
	case models.EntityLotMetadata:
		return "metadata_id", nil
	case models.EntityLotPerson:
		return "person_id", nil
	case models.EntityLotMetadataGroup:
		return "metadata_group_id", nil
	case models.EntityLotCollection:
		return "collection_id", nil
	default:
		return "", fmt.Errorf("database: entity lot %q is not reviewable", lot)
	}
}

const reviewSelect = `SELECT id, user_id, posted_on, rating, text,
	visibility, is_spoiler, metadata_id, person_id, metadata_group_id,
	collection_id, show_extra_information, podcast_extra_information,
	anime_extra_information, manga_extra_information, comments FROM review`

func scanReview(row pgx.Row) (*models.Review, error) {
	var r models.Review
	var metadataID, personID, groupID, collectionID *string
	var show, podcast, anime, manga, comments []byte
	err := row.Scan(&r.ID, &r.UserID, &r.PostedOn, &r.Rating, &r.Text,
		&r.Visibility, &r.IsSpoiler, &metadataID, &personID, &groupID,
		&collectionID, &show, &podcast, &anime, &manga, &comments)
	if err != nil {
		return nil, notFound(err)
	}
	switch {
	case metadataID != nil:
		r.EntityID, r.EntityLot = *metadataID, models.EntityLotMetadata
	case personID != nil:
		r.EntityID, r.EntityLot = *personID, models.EntityLotPerson
	case groupID != nil:
		r.EntityID, r.EntityLot = *groupID, models.EntityLotMetadataGroup
	case collectionID != nil:
		r.EntityID, r.EntityLot = *collectionID, models.EntityLotCollection
	}
	for raw, dst := range map[*[]byte]any{
		&show: &r.ShowExtraInformation, &podcast: &r.PodcastExtraInformation,
		&anime: &r.AnimeExtraInformation, &manga: &r.MangaExtraInformation,
		&comments: &r.Comments,
	} {
		if err := fromJSONB(*raw, dst); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// InsertReview stores a review against the entity its id names.
func (db *DB) InsertReview(ctx context.Context, r *models.Review) error {
	column, err := reviewEntityColumn(r.EntityID)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO review (id, user_id, posted_on, rating, text, visibility,
			is_spoiler, %s, show_extra_information, podcast_extra_information,
			anime_extra_information, manga_extra_information, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, column),
		r.ID, r.UserID, r.PostedOn, r.Rating, r.Text, r.Visibility,
		r.IsSpoiler, r.EntityID,
		mustJSONB(r.ShowExtraInformation), mustJSONB(r.PodcastExtraInformation),
		mustJSONB(r.AnimeExtraInformation), mustJSONB(r.MangaExtraInformation),
		mustJSONB(r.Comments))
	if err != nil {
		return fmt.Errorf("database: insert review: %w", err)
	}
	return nil
}

// UpdateReview rewrites the mutable fields of an existing review.
func (db *DB) UpdateReview(ctx context.Context, r *models.Review) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE review SET rating = $3, text = $4, visibility = $5,
			is_spoiler = $6, comments = $7
		WHERE id = $1 AND user_id = $2`,
		r.ID, r.UserID, r.Rating, r.Text, r.Visibility, r.IsSpoiler,
		mustJSONB(r.Comments))
	return err
}

// GetReview fetches one review by id.
func (db *DB) GetReview(ctx context.Context, id string) (*models.Review, error) {
	return scanReview(db.pool.QueryRow(ctx, reviewSelect+" WHERE id = $1", id))
}

// DeleteReview removes a review owned by the user.
func (db *DB) DeleteReview(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM review WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReviewsForEntity returns the reviews of one entity, newest first.
// Private reviews of other users are filtered by the caller.
func (db *DB) ListReviewsForEntity(ctx context.Context, entityID string) ([]*models.Review, error) {
	column, err := reviewEntityColumn(entityID)
	if err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		reviewSelect+fmt.Sprintf(" WHERE %s = $1 ORDER BY posted_on DESC", column), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

// ListReviewsByUser pages a user's reviews, oldest first, for the exporter.
func (db *DB) ListReviewsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Review, error) {
	rows, err := db.pool.Query(ctx,
		reviewSelect+" WHERE user_id = $1 ORDER BY posted_on ASC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

func collectReviews(rows pgx.Rows) ([]*models.Review, error) {
	var out []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
