// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// hevySetLots maps Hevy's set types onto the stored classification.
var hevySetLots = map[string]models.SetLot{
	"normal":  models.SetLotNormal,
	"warmup":  models.SetLotWarmup,
	"dropset": models.SetLotDrop,
	"failure": models.SetLotFailure,
}

// Hevy imports the Hevy workout CSV export. The shape matches Strong's
// closely enough that exercise resolution is shared.
type Hevy struct {
	reader io.Reader
	lookup ExerciseLookup
}

// NewHevy builds the source over an export file.
func NewHevy(r io.Reader, lookup ExerciseLookup) *Hevy {
	return &Hevy{reader: r, lookup: lookup}
}

func (h *Hevy) Source() models.ImportSource { return models.ImportSourceHevy }

func (h *Hevy) Import(ctx context.Context, userID string) (*models.ImportResult, error) {
	rows, err := csvRecords(h.reader)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{}

	type workoutKey struct{ start, title string }
	var order []workoutKey
	grouped := map[workoutKey][]map[string]string{}
	for _, row := range rows {
		key := workoutKey{start: row["start_time"], title: row["title"]}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}

	newExercises := map[string]bool{}
	for _, key := range order {
		workout, exercises, fails := h.buildWorkout(ctx, userID, key.start, key.title, grouped[key])
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
	return result, nil
}

// hevyTime is the export's timestamp layout ("14 Mar 2021, 10:30").
const hevyTime = "2 Jan 2006, 15:04"

func (h *Hevy) buildWorkout(ctx context.Context, userID, startRaw, title string, rows []map[string]string) (*models.Workout, []*models.ImportOrExportExerciseItem, []models.ImportFailedItem) {
	start := parseDateIn(startRaw, hevyTime, time.RFC3339)
	end := parseDateIn(rows[0]["end_time"], hevyTime, time.RFC3339)
	if start == nil {
		now := time.Now().UTC()
		start = &now
	}
	if end == nil {
		end = start
	}

	var (
		exercises    []models.ProcessedExercise
		newExercises []*models.ImportOrExportExerciseItem
		fails        []models.ImportFailedItem
		byName       = map[string]int{}
	)
	for _, row := range rows {
		exName := row["exercise_title"]
		if exName == "" {
			continue
		}
		stat := models.SetStatistic{
			Weight:   parseDecimal(row["weight_kg"]),
			Reps:     parseDecimal(row["reps"]),
			Distance: parseDecimal(row["distance_km"]),
			Duration: minutesFromSeconds(parseDecimal(row["duration_seconds"])),
		}
		lot := inferExerciseLot(stat)

		idx, ok := byName[exName]
		if !ok {
			exerciseID := ""
			if h.lookup != nil {
				if exercise, err := h.lookup(ctx, userID, exName); err == nil {
					exerciseID = exercise.ID
				}
			}
			if exerciseID == "" {
				exerciseID = models.DeterministicID(models.PrefixExercise, exName, string(lot), userID)
				newExercises = append(newExercises, &models.ImportOrExportExerciseItem{Name: exName, Lot: lot})
			}
			processed := models.ProcessedExercise{ID: exerciseID, Lot: lot}
			if note := row["exercise_notes"]; note != "" {
				processed.Notes = append(processed.Notes, note)
			}
			exercises = append(exercises, processed)
			idx = len(exercises) - 1
			byName[exName] = idx
		}

		set := models.WorkoutSetRecord{Lot: models.SetLotNormal, Statistic: stat}
		if lot, ok := hevySetLots[row["set_type"]]; ok {
			set.Lot = lot
		}
		if rpe := parseDecimal(row["rpe"]); rpe != nil {
			v := int(rpe.IntPart())
			set.Rpe = &v
		}
		exercises[idx].Sets = append(exercises[idx].Sets, set)
	}
	if len(exercises) == 0 {
		return nil, newExercises, fails
	}

	workout := &models.Workout{
		ID:        models.NewID(models.PrefixWorkout),
		UserID:    userID,
		Name:      title,
		StartTime: *start,
		EndTime:   *end,
		Duration:  int(end.Sub(*start).Seconds()),
		Information: models.WorkoutInformation{
			Exercises: exercises,
		},
	}
	if description := rows[0]["description"]; description != "" {
		workout.Information.Comment = &description
	}
	return workout, newExercises, fails
}
