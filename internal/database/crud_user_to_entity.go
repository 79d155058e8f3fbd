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

// userToEntity rows are addressed by (user, entity id); the entity column
// is inferred from the id prefix the way collection edges are.

func entityColumnForID(entityID string) (string, error) {
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
	case models.EntityLotExercise:
		return "exercise_id", nil
	default:
		return "", fmt.Errorf("database: entity lot %q has no user_to_entity column", lot)
	}
}

func scanUserToEntity(row pgx.Row) (*models.UserToEntity, error) {
	var u models.UserToEntity
	var metadataID, personID, groupID, exerciseID *string
	var reasons []string
	var numTimes *int
	var extra []byte
	err := row.Scan(&u.ID, &u.UserID, &metadataID, &personID, &groupID,
		&exerciseID, &reasons, &numTimes, &extra, &u.CreatedOn, &u.LastUpdatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	switch {
	case metadataID != nil:
		u.EntityID, u.EntityLot = *metadataID, models.EntityLotMetadata
	case personID != nil:
		u.EntityID, u.EntityLot = *personID, models.EntityLotPerson
	case groupID != nil:
		u.EntityID, u.EntityLot = *groupID, models.EntityLotMetadataGroup
	case exerciseID != nil:
		u.EntityID, u.EntityLot = *exerciseID, models.EntityLotExercise
	}
	for _, r := range reasons {
		u.MediaReason = append(u.MediaReason, models.EntityReason(r))
	}
	if numTimes != nil {
		u.ExerciseNumTimesInteracted = *numTimes
	}
	if err := fromJSONB(extra, &u.ExerciseExtraInformation); err != nil {
		return nil, err
	}
	return &u, nil
}

const userToEntitySelect = `SELECT id, user_id, metadata_id, person_id,
	metadata_group_id, exercise_id, media_reason,
	exercise_num_times_interacted, exercise_extra_information,
	created_at, last_updated_on FROM user_to_entity`

// GetUserToEntity fetches the row for a (user, entity) pair.
func (db *DB) GetUserToEntity(ctx context.Context, userID, entityID string) (*models.UserToEntity, error) {
	column, err := entityColumnForID(entityID)
	if err != nil {
		return nil, err
	}
	return scanUserToEntity(db.pool.QueryRow(ctx,
		userToEntitySelect+fmt.Sprintf(" WHERE user_id = $1 AND %s = $2", column),
		userID, entityID))
}

// EnsureUserToEntity returns the row for a pair, creating it when absent.
func (db *DB) EnsureUserToEntity(ctx context.Context, userID, entityID string) (*models.UserToEntity, error) {
	existing, err := db.GetUserToEntity(ctx, userID, entityID)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	column, err := entityColumnForID(entityID)
	if err != nil {
		return nil, err
	}
	_, err = db.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO user_to_entity (id, user_id, %s)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, column),
		models.NewID("ute"), userID, entityID)
	if err != nil {
		return nil, fmt.Errorf("database: ensure user_to_entity: %w", err)
	}
	return db.GetUserToEntity(ctx, userID, entityID)
}

// SaveUserToEntity rewrites the mutable fields of a row.
func (db *DB) SaveUserToEntity(ctx context.Context, u *models.UserToEntity) error {
	reasons := make([]string, 0, len(u.MediaReason))
	for _, r := range u.MediaReason {
		reasons = append(reasons, string(r))
	}
	var numTimes *int
	if u.ExerciseNumTimesInteracted > 0 {
		numTimes = &u.ExerciseNumTimesInteracted
	}
	var extra any
	if u.ExerciseExtraInformation != nil {
		extra = mustJSONB(u.ExerciseExtraInformation)
	}
	_, err := db.pool.Exec(ctx, `
		UPDATE user_to_entity SET media_reason = $2,
			exercise_num_times_interacted = $3,
			exercise_extra_information = $4, last_updated_on = $5
		WHERE id = $1`,
		u.ID, reasons, numTimes, extra, now())
	if err != nil {
		return fmt.Errorf("database: save user_to_entity: %w", err)
	}
	return nil
}

// DeleteUserToEntityIfEmpty removes the row when it carries no reasons and
// no exercise state; empty rows are noise for the reason engine.
func (db *DB) DeleteUserToEntityIfEmpty(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `
		DELETE FROM user_to_entity
		WHERE id = $1 AND media_reason = '{}'
		  AND exercise_extra_information IS NULL`, id)
	return err
}

// ListUserEntitiesWithReason returns the entity ids a user tracks with the
// given reason.
func (db *DB) ListUserEntitiesWithReason(ctx context.Context, userID string, reason models.EntityReason) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT COALESCE(metadata_id, person_id, metadata_group_id, exercise_id)
		FROM user_to_entity
		WHERE user_id = $1 AND $2 = ANY(media_reason)`,
		userID, string(reason))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
