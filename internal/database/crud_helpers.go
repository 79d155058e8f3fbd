// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// jsonb marshals a value for a JSONB parameter. Nil pointers become SQL
// NULL so COALESCE-based unique indexes behave.
func jsonb(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("database: marshal jsonb: %w", err)
	}
	return b, nil
}

// mustJSONB is jsonb for values that cannot fail to marshal (plain struct
// trees with no custom marshalers).
func mustJSONB(v any) any {
	b, err := jsonb(v)
	if err != nil {
		panic(err)
	}
	return b
}

// fromJSONB unmarshals a nullable JSONB column into dst, leaving dst
// untouched for NULL.
func fromJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("database: unmarshal jsonb: %w", err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows onto the package sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetEntityTitleForLot resolves the display title of an entity for
// notification payloads.
func (db *DB) GetEntityTitleForLot(ctx context.Context, entityID string, lot models.EntityLot) (string, error) {
	var table, column string
	switch lot {
	case models.EntityLotMetadata:
		table, column = "metadata", "title"
	case models.EntityLotMetadataGroup:
		table, column = "metadata_group", "title"
	case models.EntityLotPerson:
		table, column = "person", "name"
	case models.EntityLotExercise:
		table, column = "exercise", "name"
	case models.EntityLotWorkout:
		table, column = "workout", "name"
	case models.EntityLotWorkoutTemplate:
		table, column = "workout_template", "name"
	case models.EntityLotCollection:
		table, column = "collection", "name"
	default:
		return "", fmt.Errorf("database: no title source for entity lot %q", lot)
	}
	var title string
	err := db.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", column, table), entityID,
	).Scan(&title)
	if err != nil {
		return "", notFound(err)
	}
	return title, nil
}
