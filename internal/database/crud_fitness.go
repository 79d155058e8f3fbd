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

const exerciseColumns = `id, name, lot, level, force, mechanic, equipment,
	muscles, instructions, assets, source, created_by_user_id, created_at`

func scanExercise(row pgx.Row) (*models.Exercise, error) {
	var e models.Exercise
	var assets []byte
	err := row.Scan(&e.ID, &e.Name, &e.Lot, &e.Level, &e.Force, &e.Mechanic,
		&e.Equipment, &e.Muscles, &e.Instructions, &assets, &e.Source,
		&e.CreatedBy, &e.CreatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(assets, &e.Assets); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertExercise inserts or refreshes a catalog or custom exercise.
func (db *DB) UpsertExercise(ctx context.Context, e *models.Exercise) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO exercise (id, name, lot, level, force, mechanic, equipment,
			muscles, instructions, assets, source, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, lot = EXCLUDED.lot, level = EXCLUDED.level,
			force = EXCLUDED.force, mechanic = EXCLUDED.mechanic,
			equipment = EXCLUDED.equipment, muscles = EXCLUDED.muscles,
			instructions = EXCLUDED.instructions, assets = EXCLUDED.assets`,
		e.ID, e.Name, e.Lot, e.Level, e.Force, e.Mechanic, e.Equipment,
		e.Muscles, e.Instructions, mustJSONB(e.Assets), e.Source, e.CreatedBy)
	if err != nil {
		return fmt.Errorf("database: upsert exercise: %w", err)
	}
	return nil
}

// GetExercise fetches one exercise by id.
func (db *DB) GetExercise(ctx context.Context, id string) (*models.Exercise, error) {
	return scanExercise(db.pool.QueryRow(ctx,
		"SELECT "+exerciseColumns+" FROM exercise WHERE id = $1", id))
}

// SearchExercises matches names fuzzily via trigram similarity, catalog
// exercises plus the user's own custom ones.
func (db *DB) SearchExercises(ctx context.Context, userID, query string, limit, offset int) ([]*models.Exercise, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+exerciseColumns+` FROM exercise
		WHERE (created_by_user_id IS NULL OR created_by_user_id = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR similarity(name, $2) > 0.3)
		ORDER BY similarity(name, $2) DESC, name
		LIMIT $3 OFFSET $4`, userID, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Exercise
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExercise removes a custom exercise owned by the user.
func (db *DB) DeleteExercise(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM exercise WHERE id = $1 AND created_by_user_id = $2 AND source = 'custom'",
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const workoutColumns = `id, user_id, name, start_time, end_time, duration,
	template_id, repeated_from, summary, information`

func scanWorkout(row pgx.Row) (*models.Workout, error) {
	var w models.Workout
	var summary, information []byte
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.StartTime, &w.EndTime,
		&w.Duration, &w.TemplateID, &w.RepeatedFrom, &summary, &information)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(summary, &w.Summary); err != nil {
		return nil, err
	}
	if err := fromJSONB(information, &w.Information); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertWorkout inserts or rewrites a workout (edits replay through the
// same path as creation).
func (db *DB) UpsertWorkout(ctx context.Context, w *models.Workout) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO workout (`+workoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time, duration = EXCLUDED.duration,
			template_id = EXCLUDED.template_id,
			repeated_from = EXCLUDED.repeated_from,
			summary = EXCLUDED.summary, information = EXCLUDED.information`,
		w.ID, w.UserID, w.Name, w.StartTime, w.EndTime, w.Duration,
		w.TemplateID, w.RepeatedFrom, mustJSONB(w.Summary), mustJSONB(w.Information))
	if err != nil {
		return fmt.Errorf("database: upsert workout: %w", err)
	}
	return nil
}

// GetWorkout fetches one workout by id.
func (db *DB) GetWorkout(ctx context.Context, id string) (*models.Workout, error) {
	return scanWorkout(db.pool.QueryRow(ctx,
		"SELECT "+workoutColumns+" FROM workout WHERE id = $1", id))
}

// DeleteWorkout removes a workout owned by the user.
func (db *DB) DeleteWorkout(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM workout WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkoutsForUser pages a user's workouts, oldest first, for the
// exporter and for personal-best recomputation.
func (db *DB) ListWorkoutsForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Workout, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+workoutColumns+` FROM workout
		WHERE user_id = $1 ORDER BY end_time ASC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const templateColumns = `id, user_id, name, created_on, summary, information`

func scanTemplate(row pgx.Row) (*models.WorkoutTemplate, error) {
	var t models.WorkoutTemplate
	var summary, information []byte
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedOn, &summary, &information)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(summary, &t.Summary); err != nil {
		return nil, err
	}
	if err := fromJSONB(information, &t.Information); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertWorkoutTemplate inserts or rewrites a template.
func (db *DB) UpsertWorkoutTemplate(ctx context.Context, t *models.WorkoutTemplate) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO workout_template (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
			summary = EXCLUDED.summary, information = EXCLUDED.information`,
		t.ID, t.UserID, t.Name, t.CreatedOn, mustJSONB(t.Summary), mustJSONB(t.Information))
	if err != nil {
		return fmt.Errorf("database: upsert workout template: %w", err)
	}
	return nil
}

// GetWorkoutTemplate fetches one template by id.
func (db *DB) GetWorkoutTemplate(ctx context.Context, id string) (*models.WorkoutTemplate, error) {
	return scanTemplate(db.pool.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM workout_template WHERE id = $1", id))
}

// DeleteWorkoutTemplate removes a template owned by the user.
func (db *DB) DeleteWorkoutTemplate(ctx context.Context, userID, id string) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM workout_template WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertUserMeasurement stores a measurement; (user, timestamp) conflicts
// replace the stats.
func (db *DB) InsertUserMeasurement(ctx context.Context, m *models.UserMeasurement) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO user_measurement (user_id, timestamp, name, comment, stats)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, timestamp) DO UPDATE SET
			name = EXCLUDED.name, comment = EXCLUDED.comment, stats = EXCLUDED.stats`,
		m.UserID, m.Timestamp, m.Name, m.Comment, mustJSONB(m.Stats))
	if err != nil {
		return fmt.Errorf("database: insert measurement: %w", err)
	}
	return nil
}

// ListUserMeasurements returns measurements in a time window, oldest
// first.
func (db *DB) ListUserMeasurements(ctx context.Context, userID string, from, to time.Time) ([]*models.UserMeasurement, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT user_id, timestamp, name, comment, stats FROM user_measurement
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.UserMeasurement
	for rows.Next() {
		var m models.UserMeasurement
		var stats []byte
		if err := rows.Scan(&m.UserID, &m.Timestamp, &m.Name, &m.Comment, &stats); err != nil {
			return nil, err
		}
		if err := fromJSONB(stats, &m.Stats); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteUserMeasurement removes the measurement at a timestamp.
func (db *DB) DeleteUserMeasurement(ctx context.Context, userID string, timestamp time.Time) error {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM user_measurement WHERE user_id = $1 AND timestamp = $2",
		userID, timestamp)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
