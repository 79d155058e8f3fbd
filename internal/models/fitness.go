// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exercise is a catalog row shared across users (source=github) or owned
// by one user (source=custom). The lot determines which set-statistic
// fields are meaningful.
type Exercise struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Lot         ExerciseLot    `json:"lot"`
	Source      ExerciseSource `json:"source"`
	CreatedBy   *string        `json:"created_by,omitempty"` // user id for custom
	Level       *string        `json:"level,omitempty"`
	Force       *string        `json:"force,omitempty"`
	Mechanic    *string        `json:"mechanic,omitempty"`
	Equipment   *string        `json:"equipment,omitempty"`
	Muscles     []string       `json:"muscles,omitempty"`
	Instructions []string      `json:"instructions,omitempty"`
	Assets      EntityAssets   `json:"assets"`
	CreatedOn   time.Time      `json:"created_on"`
}

// SetStatistic carries the measured quantities of one set. Which fields
// are populated depends on the exercise lot; derived fields (one_rm,
// volume, pace) are computed by the fitness engine.
type SetStatistic struct {
	Reps     *decimal.Decimal `json:"reps,omitempty"`
	Weight   *decimal.Decimal `json:"weight,omitempty"`   // kg
	Duration *decimal.Decimal `json:"duration,omitempty"` // minutes
	Distance *decimal.Decimal `json:"distance,omitempty"` // km
	OneRm    *decimal.Decimal `json:"one_rm,omitempty"`
	Pace     *decimal.Decimal `json:"pace,omitempty"`   // min/km
	Volume   *decimal.Decimal `json:"volume,omitempty"` // reps*weight
}

// WorkoutSetRecord is one performed set.
type WorkoutSetRecord struct {
	Lot           SetLot             `json:"lot"`
	Statistic     SetStatistic       `json:"statistic"`
	RestTime      *int               `json:"rest_time,omitempty"` // seconds
	Rpe           *int               `json:"rpe,omitempty"`
	Note          *string            `json:"note,omitempty"`
	ConfirmedAt   *time.Time         `json:"confirmed_at,omitempty"`
	PersonalBests []PersonalBestKind `json:"personal_bests,omitempty"`
}

// WorkoutOrExerciseTotals aggregates a workout or one exercise within it.
type WorkoutOrExerciseTotals struct {
	Weight   decimal.Decimal `json:"weight"`
	Reps     decimal.Decimal `json:"reps"`
	Distance decimal.Decimal `json:"distance"`
	Duration decimal.Decimal `json:"duration"` // minutes
	RestTime int             `json:"rest_time"` // seconds
	PersonalBestsAchieved int `json:"personal_bests_achieved"`
}

// Add folds another totals value in.
func (t *WorkoutOrExerciseTotals) Add(o WorkoutOrExerciseTotals) {
	t.Weight = t.Weight.Add(o.Weight)
	t.Reps = t.Reps.Add(o.Reps)
	t.Distance = t.Distance.Add(o.Distance)
	t.Duration = t.Duration.Add(o.Duration)
	t.RestTime += o.RestTime
	t.PersonalBestsAchieved += o.PersonalBestsAchieved
}

// ProcessedExercise is one exercise within a stored workout.
type ProcessedExercise struct {
	ID       string                  `json:"id"` // exercise id
	Lot      ExerciseLot             `json:"lot"`
	Sets     []WorkoutSetRecord      `json:"sets"`
	Notes    []string                `json:"notes,omitempty"`
	RestTime *int                    `json:"rest_time,omitempty"`
	Total    WorkoutOrExerciseTotals `json:"total"`
}

// WorkoutInformation is the full exercise/set payload of a workout.
type WorkoutInformation struct {
	Exercises []ProcessedExercise `json:"exercises"`
	Comment   *string             `json:"comment,omitempty"`
	SupersetsOf [][]int           `json:"supersets_of,omitempty"`
}

// WorkoutSummaryExercise is the abbreviated per-exercise entry of a
// workout summary.
type WorkoutSummaryExercise struct {
	ID       string                 `json:"id"`
	Lot      ExerciseLot            `json:"lot"`
	NumSets  int                    `json:"num_sets"`
	BestSet  *WorkoutSetRecord      `json:"best_set,omitempty"`
}

// WorkoutSummary is the denormalized header of a workout.
type WorkoutSummary struct {
	Total     WorkoutOrExerciseTotals  `json:"total"`
	Exercises []WorkoutSummaryExercise `json:"exercises"`
}

// Workout is one training session.
type Workout struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Name        string             `json:"name"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Duration    int                `json:"duration"` // seconds
	Summary     WorkoutSummary     `json:"summary"`
	Information WorkoutInformation `json:"information"`
	TemplateID  *string            `json:"template_id,omitempty"`
	RepeatedFrom *string           `json:"repeated_from,omitempty"`
}

// WorkoutTemplate is a reusable workout blueprint.
type WorkoutTemplate struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Name        string             `json:"name"`
	Summary     WorkoutSummary     `json:"summary"`
	Information WorkoutInformation `json:"information"`
	CreatedOn   time.Time          `json:"created_on"`
}

// UserMeasurementStats is the measured body statistics at one timestamp:
// the inbuilt fields plus named custom metrics.
type UserMeasurementStats struct {
	Weight       *decimal.Decimal `json:"weight,omitempty"`
	BodyFat      *decimal.Decimal `json:"body_fat,omitempty"`
	BodyMassIndex *decimal.Decimal `json:"body_mass_index,omitempty"`
	Chest        *decimal.Decimal `json:"chest,omitempty"`
	Waist        *decimal.Decimal `json:"waist,omitempty"`
	Hips         *decimal.Decimal `json:"hips,omitempty"`
	Neck         *decimal.Decimal `json:"neck,omitempty"`
	LeftBicep    *decimal.Decimal `json:"left_bicep,omitempty"`
	RightBicep   *decimal.Decimal `json:"right_bicep,omitempty"`
	LeftThigh    *decimal.Decimal `json:"left_thigh,omitempty"`
	RightThigh   *decimal.Decimal `json:"right_thigh,omitempty"`
	Custom       map[string]decimal.Decimal `json:"custom,omitempty"`
}

// UserMeasurement is one body-measurement event; (user_id, timestamp)
// unique.
type UserMeasurement struct {
	UserID    string               `json:"user_id"`
	Timestamp time.Time            `json:"timestamp"`
	Name      *string              `json:"name,omitempty"`
	Comment   *string              `json:"comment,omitempty"`
	Stats     UserMeasurementStats `json:"stats"`
}
