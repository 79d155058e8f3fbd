// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// ExerciseLookup resolves an exercise name against the catalog. It
// returns database.ErrNotFound (wrapped or not) when the name is unknown.
type ExerciseLookup func(ctx context.Context, userID, name string) (*models.Exercise, error)

// StrongApp imports the Strong app workout CSV, optionally with the
// measurements CSV from the full-export ZIP. Unknown exercises with an
// inferable lot become user-owned custom exercises with deterministic
// ids, so re-imports resolve to the same rows.
type StrongApp struct {
	workouts     io.Reader
	measurements io.Reader
	lookup       ExerciseLookup
}

// NewStrongApp builds the source. measurements may be nil.
func NewStrongApp(workouts, measurements io.Reader, lookup ExerciseLookup) *StrongApp {
	return &StrongApp{workouts: workouts, measurements: measurements, lookup: lookup}
}

// OpenStrongMeasurements finds the measurements CSV inside a Strong
// full-export ZIP.
func OpenStrongMeasurements(ra io.ReaderAt, size int64) (io.ReadCloser, error) {
	archive, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open strong export zip: %w", err)
	}
	for _, file := range archive.File {
		if strings.HasSuffix(file.Name, "measurements.csv") {
			return file.Open()
		}
	}
	return nil, fmt.Errorf("strong export zip has no measurements.csv")
}

func (s *StrongApp) Source() models.ImportSource { return models.ImportSourceStrongApp }

type strongSet struct {
	row map[string]string
}

func (s *StrongApp) Import(ctx context.Context, userID string) (*models.ImportResult, error) {
	rows, err := csvRecords(s.workouts)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{}

	// Group rows into workouts by start time; the export interleaves every
	// set of every exercise as one row.
	type workoutKey struct{ date, name string }
	var order []workoutKey
	grouped := map[workoutKey][]map[string]string{}
	for _, row := range rows {
		key := workoutKey{date: row["Date"], name: row["Workout Name"]}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}

	newExercises := map[string]bool{}
	for _, key := range order {
		workout, exercises, fails := s.buildWorkout(ctx, userID, key.date, key.name, grouped[key])
		result.Failed = append(result.Failed, fails...)
		for _, ex := range exercises {
			if !newExercises[ex.Name] {
				newExercises[ex.Name] = true
				result.Completed = append(result.Completed, models.ImportCompletedItem{Exercise: ex})
			}
		}
		if workout != nil {
			result.Completed = append(result.Completed, models.ImportCompletedItem{Workout: workout})
		}
	}

	if s.measurements != nil {
		measurements, err := s.importMeasurements(userID)
		if err != nil {
			return nil, err
		}
		result.Completed = append(result.Completed, measurements...)
	}
	return result, nil
}

func (s *StrongApp) buildWorkout(ctx context.Context, userID, date, name string, rows []map[string]string) (*models.Workout, []*models.ImportOrExportExerciseItem, []models.ImportFailedItem) {
	start := parseDateIn(date, "2006-01-02 15:04:05", "2006-01-02 15:04")
	if start == nil {
		now := time.Now().UTC()
		start = &now
	}
	duration := parseStrongDuration(rows[0]["Duration"])

	var (
		exercises    []models.ProcessedExercise
		newExercises []*models.ImportOrExportExerciseItem
		fails        []models.ImportFailedItem
		byName       = map[string]int{}
	)
	for _, row := range rows {
		exName := row["Exercise Name"]
		if exName == "" {
			continue
		}
		stat := models.SetStatistic{
			Weight:   parseDecimal(row["Weight"]),
			Reps:     parseDecimal(row["Reps"]),
			Distance: kmFromMeters(parseDecimal(row["Distance"])),
			Duration: minutesFromSeconds(parseDecimal(row["Seconds"])),
		}
		lot := inferExerciseLot(stat)

		idx, ok := byName[exName]
		if !ok {
			exerciseID, created, err := s.resolveExercise(ctx, userID, exName, lot)
			if err != nil {
				fails = append(fails, models.ImportFailedItem{
					Identifier: exName,
					Step:       models.ImportFailInputTransformation,
					Error:      ptr(err.Error()),
				})
				continue
			}
			if created != nil {
				newExercises = append(newExercises, created)
			}
			exercises = append(exercises, models.ProcessedExercise{ID: exerciseID, Lot: lot})
			idx = len(exercises) - 1
			byName[exName] = idx
		}

		set := models.WorkoutSetRecord{Lot: models.SetLotNormal, Statistic: stat}
		if rpe := parseDecimal(row["RPE"]); rpe != nil {
			v := int(rpe.IntPart())
			set.Rpe = &v
		}
		if note := row["Notes"]; note != "" {
			set.Note = &note
		}
		exercises[idx].Sets = append(exercises[idx].Sets, set)
	}
	if len(exercises) == 0 {
		return nil, newExercises, fails
	}

	end := start.Add(duration)
	workout := &models.Workout{
		ID:        models.NewID(models.PrefixWorkout),
		UserID:    userID,
		Name:      name,
		StartTime: *start,
		EndTime:   end,
		Duration:  int(duration.Seconds()),
		Information: models.WorkoutInformation{
			Exercises: exercises,
		},
	}
	if comment := rows[0]["Workout Notes"]; comment != "" {
		workout.Information.Comment = &comment
	}
	return workout, newExercises, fails
}

// resolveExercise returns the catalog exercise id for the name, creating
// a deterministic custom exercise when the catalog misses.
func (s *StrongApp) resolveExercise(ctx context.Context, userID, name string, lot models.ExerciseLot) (string, *models.ImportOrExportExerciseItem, error) {
	if s.lookup != nil {
		if exercise, err := s.lookup(ctx, userID, name); err == nil {
			return exercise.ID, nil, nil
		}
	}
	id := models.DeterministicID(models.PrefixExercise, name, string(lot), userID)
	return id, &models.ImportOrExportExerciseItem{Name: name, Lot: lot}, nil
}

// inferExerciseLot derives the lot from which quantities the set carries.
func inferExerciseLot(stat models.SetStatistic) models.ExerciseLot {
	hasReps := stat.Reps != nil && !stat.Reps.IsZero()
	hasWeight := stat.Weight != nil && !stat.Weight.IsZero()
	hasDistance := stat.Distance != nil && !stat.Distance.IsZero()
	hasDuration := stat.Duration != nil && !stat.Duration.IsZero()
	switch {
	case hasReps && hasWeight:
		return models.ExerciseLotRepsAndWeight
	case hasReps && hasDuration:
		return models.ExerciseLotRepsAndDuration
	case hasDistance && hasDuration:
		return models.ExerciseLotDistanceAndDuration
	case hasDuration:
		return models.ExerciseLotDuration
	default:
		return models.ExerciseLotReps
	}
}

// parseStrongDuration parses "1h 5m", "35m", "45s".
func parseStrongDuration(s string) time.Duration {
	d, err := time.ParseDuration(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return 0
	}
	return d
}

func kmFromMeters(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.IsZero() {
		return d
	}
	v := d.Div(decimal.NewFromInt(1000))
	return &v
}

func minutesFromSeconds(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.IsZero() {
		return d
	}
	v := d.Div(decimal.NewFromInt(60))
	return &v
}

func (s *StrongApp) importMeasurements(userID string) ([]models.ImportCompletedItem, error) {
	rows, err := csvRecords(s.measurements)
	if err != nil {
		return nil, err
	}
	var items []models.ImportCompletedItem
	for _, row := range rows {
		when := parseDateIn(row["Date"], "2006-01-02 15:04:05", "2006-01-02")
		weight := parseDecimal(row["Value"])
		if when == nil || weight == nil || row["Measurement"] != "Weight" {
			continue
		}
		items = append(items, models.ImportCompletedItem{
			Measurement: &models.UserMeasurement{
				UserID:    userID,
				Timestamp: *when,
				Stats:     models.UserMeasurementStats{Weight: weight},
			},
		})
	}
	return items, nil
}
