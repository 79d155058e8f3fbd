// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const collectionColumns = `id, user_id, name, description,
	information_template, created_on, last_updated_on`

func scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	var template []byte
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description,
		&template, &c.CreatedOn, &c.LastUpdatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(template, &c.InformationTemplate); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCollection inserts a collection; (user, name) is unique.
func (db *DB) CreateCollection(ctx context.Context, c *models.Collection) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO collection (id, user_id, name, description, information_template)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Name, c.Description, mustJSONB(c.InformationTemplate))
	if err != nil {
		return fmt.Errorf("database: create collection: %w", err)
	}
	return nil
}

// EnsureDefaultCollections bootstraps the engine-maintained buckets for a
// user, skipping any that already exist.
func (db *DB) EnsureDefaultCollections(ctx context.Context, userID string) error {
	for _, name := range models.DefaultCollections {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO collection (id, user_id, name)
			VALUES ($1, $2, $3) ON CONFLICT (user_id, name) DO NOTHING`,
			models.NewID(models.PrefixCollection), userID, string(name))
		if err != nil {
			return fmt.Errorf("database: ensure default collections: %w", err)
		}
	}
	return nil
}

// GetCollection fetches one collection by id.
func (db *DB) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	return scanCollection(db.pool.QueryRow(ctx,
		"SELECT "+collectionColumns+" FROM collection WHERE id = $1", id))
}

// GetCollectionByName fetches a user's collection by name.
func (db *DB) GetCollectionByName(ctx context.Context, userID, name string) (*models.Collection, error) {
	return scanCollection(db.pool.QueryRow(ctx,
		"SELECT "+collectionColumns+" FROM collection WHERE user_id = $1 AND name = $2",
		userID, name))
}

// ListUserCollections returns every collection of a user.
func (db *DB) ListUserCollections(ctx context.Context, userID string) ([]*models.Collection, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT "+collectionColumns+" FROM collection WHERE user_id = $1 ORDER BY created_on", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCollection changes name, description and template. Default
// collection renames are rejected at the service layer.
func (db *DB) UpdateCollection(ctx context.Context, c *models.Collection) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE collection SET name = $2, description = $3,
			information_template = $4, last_updated_on = $5
		WHERE id = $1`,
		c.ID, c.Name, c.Description, mustJSONB(c.InformationTemplate), now())
	return err
}

// DeleteCollection removes the collection and its membership edges.
func (db *DB) DeleteCollection(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM collection WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const collectionToEntityColumns = `id, collection_id, metadata_id, person_id,
	metadata_group_id, exercise_id, workout_id, workout_template_id,
	information, rank, created_on, last_updated_on`

func scanCollectionToEntity(row pgx.Row) (*models.CollectionToEntity, error) {
	var e models.CollectionToEntity
	var information []byte
	err := row.Scan(&e.ID, &e.CollectionID, &e.MetadataID, &e.PersonID,
		&e.MetadataGroupID, &e.ExerciseID, &e.WorkoutID, &e.WorkoutTemplateID,
		&information, &e.Rank, &e.CreatedOn, &e.LastUpdatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(information, &e.Information); err != nil {
		return nil, err
	}
	return &e, nil
}

// NextCollectionRank returns a rank one above the current maximum, so new
// entries append at the end.
func (db *DB) NextCollectionRank(ctx context.Context, collectionID string) (decimal.Decimal, error) {
	var max decimal.Decimal
	err := db.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(rank), 0) FROM collection_to_entity WHERE collection_id = $1",
		collectionID).Scan(&max)
	if err != nil {
		return decimal.Zero, err
	}
	return max.Add(decimal.NewFromInt(1)), nil
}

// AddEntityToCollection inserts the membership edge, or touches
// last_updated_on when the entity is already present (idempotent adds
// refresh recency ordering).
func (db *DB) AddEntityToCollection(ctx context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	information, err := jsonb(e.Information)
	if err != nil {
		return nil, err
	}
	if e.Information == nil {
		information = nil
	}
	row := db.pool.QueryRow(ctx, `
		INSERT INTO collection_to_entity (id, collection_id, metadata_id, person_id,
			metadata_group_id, exercise_id, workout_id, workout_template_id,
			information, rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (collection_id,
			COALESCE(metadata_id, ''), COALESCE(person_id, ''),
			COALESCE(metadata_group_id, ''), COALESCE(exercise_id, ''),
			COALESCE(workout_id, ''), COALESCE(workout_template_id, ''))
		DO UPDATE SET last_updated_on = NOW(),
			information = COALESCE(EXCLUDED.information, collection_to_entity.information)
		RETURNING `+collectionToEntityColumns,
		e.ID, e.CollectionID, e.MetadataID, e.PersonID,
		e.MetadataGroupID, e.ExerciseID, e.WorkoutID, e.WorkoutTemplateID,
		information, e.Rank)
	return scanCollectionToEntity(row)
}

// RemoveEntityFromCollection deletes the membership edge for an entity id.
func (db *DB) RemoveEntityFromCollection(ctx context.Context, collectionID, entityID string) error {
	tag, err := db.pool.Exec(ctx, `
		DELETE FROM collection_to_entity
		WHERE collection_id = $1 AND $2 IN (
			COALESCE(metadata_id, ''), COALESCE(person_id, ''),
			COALESCE(metadata_group_id, ''), COALESCE(exercise_id, ''),
			COALESCE(workout_id, ''), COALESCE(workout_template_id, ''))`,
		collectionID, entityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCollectionEntity fetches the edge for one entity in one collection.
func (db *DB) GetCollectionEntity(ctx context.Context, collectionID, entityID string) (*models.CollectionToEntity, error) {
	return scanCollectionToEntity(db.pool.QueryRow(ctx, `
		SELECT `+collectionToEntityColumns+` FROM collection_to_entity
		WHERE collection_id = $1 AND $2 IN (
			COALESCE(metadata_id, ''), COALESCE(person_id, ''),
			COALESCE(metadata_group_id, ''), COALESCE(exercise_id, ''),
			COALESCE(workout_id, ''), COALESCE(workout_template_id, ''))`,
		collectionID, entityID))
}

// ListCollectionEntities pages the membership edges by rank.
func (db *DB) ListCollectionEntities(ctx context.Context, collectionID string, limit, offset int) ([]*models.CollectionToEntity, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+collectionToEntityColumns+` FROM collection_to_entity
		WHERE collection_id = $1 ORDER BY rank LIMIT $2 OFFSET $3`,
		collectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.CollectionToEntity
	for rows.Next() {
		e, err := scanCollectionToEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateCollectionEntityRank moves an entry to a new fractional rank.
func (db *DB) UpdateCollectionEntityRank(ctx context.Context, edgeID string, rank decimal.Decimal) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE collection_to_entity SET rank = $2, last_updated_on = $3 WHERE id = $1",
		edgeID, rank, now())
	return err
}

// TouchCollectionEntity bumps last_updated_on on the edge, which the
// monitoring sweep uses as the "state may have changed" marker.
func (db *DB) TouchCollectionEntity(ctx context.Context, edgeID string) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE collection_to_entity SET last_updated_on = $2 WHERE id = $1", edgeID, now())
	return err
}

// EntityInUserCollection reports whether the entity is in the named
// collection of the user.
func (db *DB) EntityInUserCollection(ctx context.Context, userID string, name models.DefaultCollection, entityID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM collection_to_entity cte
			JOIN collection c ON c.id = cte.collection_id
			WHERE c.user_id = $1 AND c.name = $2 AND $3 IN (
				COALESCE(cte.metadata_id, ''), COALESCE(cte.person_id, ''),
				COALESCE(cte.metadata_group_id, ''), COALESCE(cte.exercise_id, ''),
				COALESCE(cte.workout_id, ''), COALESCE(cte.workout_template_id, '')))`,
		userID, string(name), entityID).Scan(&exists)
	return exists, err
}

// ListMonitoringUsers returns the users monitoring an entity, with the
// Monitoring-collection edge that anchors each subscription.
func (db *DB) ListMonitoringUsers(ctx context.Context, entityID string) ([]models.MonitoredEntity, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT cte.id, c.user_id, cte.created_on
		FROM collection_to_entity cte
		JOIN collection c ON c.id = cte.collection_id
		WHERE c.name = $1 AND $2 IN (
			COALESCE(cte.metadata_id, ''), COALESCE(cte.person_id, ''),
			COALESCE(cte.metadata_group_id, ''), COALESCE(cte.exercise_id, ''),
			COALESCE(cte.workout_id, ''), COALESCE(cte.workout_template_id, ''))`,
		string(models.CollectionMonitoring), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lot, _ := models.EntityLotForID(entityID)
	var out []models.MonitoredEntity
	for rows.Next() {
		m := models.MonitoredEntity{EntityID: entityID, EntityLot: lot}
		if err := rows.Scan(&m.CollectionToEntityID, &m.UserID, &m.CreatedOn); err != nil {
			return nil, err
		}
		m.ID = m.CollectionToEntityID
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMonitoredMetadataIDs returns every metadata id present in any user's
// Monitoring collection, for the refresh sweep.
func (db *DB) ListMonitoredMetadataIDs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT DISTINCT cte.metadata_id
		FROM collection_to_entity cte
		JOIN collection c ON c.id = cte.collection_id
		WHERE c.name = $1 AND cte.metadata_id IS NOT NULL`,
		string(models.CollectionMonitoring))
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
