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

const metadataGroupColumns = `id, identifier, source, lot, title, parts,
	description, assets, is_partial, created_at, last_updated_on`

func scanMetadataGroup(row pgx.Row) (*models.MetadataGroup, error) {
	var g models.MetadataGroup
	var assets []byte
	err := row.Scan(
		&g.ID, &g.Identifier, &g.Source, &g.Lot, &g.Title, &g.Parts,
		&g.Description, &assets, &g.IsPartial, &g.CreatedOn, &g.LastUpdatedOn,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(assets, &g.Assets); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetMetadataGroup fetches one group by id.
func (db *DB) GetMetadataGroup(ctx context.Context, id string) (*models.MetadataGroup, error) {
	return scanMetadataGroup(db.pool.QueryRow(ctx,
		"SELECT "+metadataGroupColumns+" FROM metadata_group WHERE id = $1", id))
}

// CommitMetadataGroup resolves a group identity to an id, inserting a
// partial stub when new.
func (db *DB) CommitMetadataGroup(ctx context.Context, lot models.MediaLot, source models.MediaSource, identifier, title string) (string, error) {
	var id string
	err := db.pool.QueryRow(ctx,
		"SELECT id FROM metadata_group WHERE identifier = $1 AND source = $2 AND lot = $3",
		identifier, source, lot).Scan(&id)
	if err == nil {
		return id, nil
	}
	if notFound(err) != ErrNotFound {
		return "", err
	}

	if title == "" {
		title = identifier
	}
	id = models.NewID(models.PrefixMetadataGroup)
	err = db.pool.QueryRow(ctx, `
		INSERT INTO metadata_group (id, identifier, source, lot, title, is_partial)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (identifier, source, lot) DO UPDATE SET identifier = EXCLUDED.identifier
		RETURNING id`,
		id, identifier, source, lot, title).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("database: commit metadata group: %w", err)
	}
	return id, nil
}

// UpdateMetadataGroupDetails replaces the provider-sourced fields and
// clears is_partial.
func (db *DB) UpdateMetadataGroupDetails(ctx context.Context, g *models.MetadataGroup) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE metadata_group SET
			title = $2, parts = $3, description = $4, assets = $5,
			is_partial = FALSE, last_updated_on = $6
		WHERE id = $1`,
		g.ID, g.Title, g.Parts, g.Description, mustJSONB(g.Assets), now())
	if err != nil {
		return fmt.Errorf("database: update metadata group details: %w", err)
	}
	return nil
}

// ReplaceMetadataGroupPeople resets the credited people edges of a group.
func (db *DB) ReplaceMetadataGroupPeople(ctx context.Context, groupID string, edges []models.MetadataGroupToPerson) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM metadata_group_to_person WHERE metadata_group_id = $1", groupID); err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO metadata_group_to_person (metadata_group_id, person_id, role, index)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				groupID, e.PersonID, e.Role, e.Index); err != nil {
				return err
			}
		}
		return nil
	})
}
