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

const personColumns = `id, identifier, source, name, description, gender,
	birth_date, death_date, place, website, assets, is_partial,
	source_specifics, created_at, last_updated_on`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var p models.Person
	var assets, specifics []byte
	err := row.Scan(
		&p.ID, &p.Identifier, &p.Source, &p.Name, &p.Description, &p.Gender,
		&p.BirthDate, &p.DeathDate, &p.Place, &p.Website, &assets, &p.IsPartial,
		&specifics, &p.CreatedOn, &p.LastUpdatedOn,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(assets, &p.Assets); err != nil {
		return nil, err
	}
	if err := fromJSONB(specifics, &p.SourceSpecifics); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPerson fetches one person by id.
func (db *DB) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	return scanPerson(db.pool.QueryRow(ctx,
		"SELECT "+personColumns+" FROM person WHERE id = $1", id))
}

// sourceSpecificsParam maps zero specifics to NULL so identity uniqueness
// treats "no flags" consistently.
func sourceSpecificsParam(s *models.PersonSourceSpecifics) any {
	if s.IsZero() {
		return nil
	}
	return mustJSONB(s)
}

// CommitPerson resolves a provider person identity to an id, inserting a
// partial stub when new. Identity is (identifier, source, specifics).
func (db *DB) CommitPerson(ctx context.Context, identifier string, source models.MediaSource, name string, specifics *models.PersonSourceSpecifics) (string, error) {
	param := sourceSpecificsParam(specifics)
	var id string
	err := db.pool.QueryRow(ctx, `
		SELECT id FROM person
		WHERE identifier = $1 AND source = $2
		  AND COALESCE(source_specifics, '{}'::jsonb) = COALESCE($3::jsonb, '{}'::jsonb)`,
		identifier, source, param).Scan(&id)
	if err == nil {
		return id, nil
	}
	if notFound(err) != ErrNotFound {
		return "", err
	}

	id = models.NewID(models.PrefixPerson)
	if name == "" {
		name = identifier
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO person (id, identifier, source, name, is_partial, source_specifics)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT DO NOTHING`,
		id, identifier, source, name, param)
	if err != nil {
		return "", fmt.Errorf("database: commit person: %w", err)
	}
	// Re-read to handle the lost-race case.
	err = db.pool.QueryRow(ctx, `
		SELECT id FROM person
		WHERE identifier = $1 AND source = $2
		  AND COALESCE(source_specifics, '{}'::jsonb) = COALESCE($3::jsonb, '{}'::jsonb)`,
		identifier, source, param).Scan(&id)
	return id, notFound(err)
}

// UpdatePersonDetails replaces the provider-sourced fields and clears
// is_partial.
func (db *DB) UpdatePersonDetails(ctx context.Context, p *models.Person) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE person SET
			name = $2, description = $3, gender = $4, birth_date = $5,
			death_date = $6, place = $7, website = $8, assets = $9,
			is_partial = FALSE, last_updated_on = $10
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Gender, p.BirthDate,
		p.DeathDate, p.Place, p.Website, mustJSONB(p.Assets), now())
	if err != nil {
		return fmt.Errorf("database: update person details: %w", err)
	}
	return nil
}

// ListPersonMetadata returns the metadata credited to a person, grouped by
// role.
func (db *DB) ListPersonMetadata(ctx context.Context, personID string) ([]models.MetadataToPerson, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT metadata_id, person_id, role, character, index
		FROM metadata_to_person WHERE person_id = $1 ORDER BY role, index`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []models.MetadataToPerson
	for rows.Next() {
		var e models.MetadataToPerson
		if err := rows.Scan(&e.MetadataID, &e.PersonID, &e.Role, &e.Character, &e.Index); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CountPersonAssociations counts credited metadata plus groups, the number
// the monitoring diff watches for person_media_associated.
func (db *DB) CountPersonAssociations(ctx context.Context, personID string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM metadata_to_person WHERE person_id = $1)
		     + (SELECT COUNT(*) FROM metadata_group_to_person WHERE person_id = $1)`,
		personID).Scan(&count)
	return count, err
}
