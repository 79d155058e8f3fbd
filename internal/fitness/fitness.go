// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package fitness turns raw workout input into stored workouts with
// derived set statistics, per-exercise totals and personal-best tags,
// and maintains the per-(user, exercise) training record.
package fitness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const pageSize = 500

// ErrInvalidStatistic rejects set statistics whose fields do not match
// the exercise's lot.
var ErrInvalidStatistic = errors.New("fitness: set statistic does not match exercise lot")

// Store is the persistence surface the engine needs. *database.DB
// satisfies it.
type Store interface {
	GetExercise(ctx context.Context, id string) (*models.Exercise, error)
	UpsertExercise(ctx context.Context, e *models.Exercise) error
	UpsertWorkout(ctx context.Context, w *models.Workout) error
	ListWorkoutsForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Workout, error)
	GetUserToEntity(ctx context.Context, userID, entityID string) (*models.UserToEntity, error)
	EnsureUserToEntity(ctx context.Context, userID, entityID string) (*models.UserToEntity, error)
	SaveUserToEntity(ctx context.Context, u *models.UserToEntity) error
	DeleteUserToEntityIfEmpty(ctx context.Context, id string) error
}

// Engine computes and persists workouts.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// SetInput is one set of raw workout input.
type SetInput struct {
	Lot         models.SetLot       `json:"lot"`
	Statistic   models.SetStatistic `json:"statistic"`
	RestTime    *int                `json:"rest_time,omitempty"`
	Rpe         *int                `json:"rpe,omitempty"`
	Note        *string             `json:"note,omitempty"`
	ConfirmedAt *time.Time          `json:"confirmed_at,omitempty"`
}

// ExerciseInput names an exercise by catalog id or, for ad-hoc custom
// exercises, by name and lot.
type ExerciseInput struct {
	ExerciseID *string            `json:"exercise_id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Lot        models.ExerciseLot `json:"lot,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	RestTime   *int               `json:"rest_time,omitempty"`
	Sets       []SetInput         `json:"sets"`
}

// WorkoutInput is the full create-or-update payload. A set ID updates the
// stored workout in place.
type WorkoutInput struct {
	ID           *string         `json:"id,omitempty"`
	Name         string          `json:"name"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Comment      *string         `json:"comment,omitempty"`
	SupersetsOf  [][]int         `json:"supersets_of,omitempty"`
	TemplateID   *string         `json:"template_id,omitempty"`
	RepeatedFrom *string         `json:"repeated_from,omitempty"`
	Exercises    []ExerciseInput `json:"exercises"`
}

// CreateOrUpdateUserWorkout processes one workout end to end: exercise
// resolution, statistic validation and derivation, totals, personal-best
// tagging, and the per-exercise training record update.
func (e *Engine) CreateOrUpdateUserWorkout(ctx context.Context, userID string, input WorkoutInput) (*models.Workout, error) {
	workoutID := models.NewID("wor")
	if input.ID != nil {
		workoutID = *input.ID
	}

	workout := &models.Workout{
		ID:           workoutID,
		UserID:       userID,
		Name:         input.Name,
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
		Duration:     int(input.EndTime.Sub(input.StartTime).Seconds()),
		TemplateID:   input.TemplateID,
		RepeatedFrom: input.RepeatedFrom,
		Information: models.WorkoutInformation{
			Comment:     input.Comment,
			SupersetsOf: input.SupersetsOf,
		},
	}

	type exerciseState struct {
		exercise *models.Exercise
		extra    *models.UserToExerciseExtraInformation
		edge     *models.UserToEntity
	}
	states := make([]exerciseState, 0, len(input.Exercises))

	for idx, exerciseInput := range input.Exercises {
		exercise, err := e.resolveExercise(ctx, userID, exerciseInput)
		if err != nil {
			return nil, err
		}

		processed := models.ProcessedExercise{
			ID:       exercise.ID,
			Lot:      exercise.Lot,
			Notes:    exerciseInput.Notes,
			RestTime: exerciseInput.RestTime,
		}
		for _, setInput := range exerciseInput.Sets {
			statistic := setInput.Statistic
			if err := validateStatistic(exercise.Lot, statistic); err != nil {
				return nil, fmt.Errorf("exercise %q set %d: %w", exercise.Name, len(processed.Sets)+1, err)
			}
			deriveStatistic(&statistic)
			record := models.WorkoutSetRecord{
				Lot:         setInput.Lot,
				Statistic:   statistic,
				RestTime:    setInput.RestTime,
				Rpe:         setInput.Rpe,
				Note:        setInput.Note,
				ConfirmedAt: setInput.ConfirmedAt,
			}
			foldSet(&processed.Total, record)
			processed.Sets = append(processed.Sets, record)
		}

		edge, err := e.store.EnsureUserToEntity(ctx, userID, exercise.ID)
		if err != nil {
			return nil, fmt.Errorf("fitness: user_to_entity for %s: %w", exercise.ID, err)
		}
		extra := edge.ExerciseExtraInformation
		if extra == nil {
			extra = &models.UserToExerciseExtraInformation{}
		}
		tagPersonalBests(workoutID, idx, &processed, extra)

		workout.Information.Exercises = append(workout.Information.Exercises, processed)
		states = append(states, exerciseState{exercise: exercise, extra: extra, edge: edge})
	}

	for idx := range workout.Information.Exercises {
		processed := &workout.Information.Exercises[idx]
		workout.Summary.Total.Add(processed.Total)
		workout.Summary.Exercises = append(workout.Summary.Exercises, models.WorkoutSummaryExercise{
			ID:      processed.ID,
			Lot:     processed.Lot,
			NumSets: len(processed.Sets),
			BestSet: bestSetOf(processed),
		})
	}

	if err := e.store.UpsertWorkout(ctx, workout); err != nil {
		return nil, fmt.Errorf("fitness: persist workout: %w", err)
	}

	for idx, state := range states {
		processed := workout.Information.Exercises[idx]
		state.extra.History = append([]models.UserToExerciseHistoryRecord{{
			WorkoutID:    workoutID,
			WorkoutEndOn: workout.EndTime,
			Idx:          idx,
		}}, state.extra.History...)
		state.extra.LifetimeStats.Add(processed.Total)
		state.edge.ExerciseExtraInformation = state.extra
		state.edge.ExerciseNumTimesInteracted++
		if err := e.store.SaveUserToEntity(ctx, state.edge); err != nil {
			return nil, fmt.Errorf("fitness: save training record for %s: %w", processed.ID, err)
		}
	}
	return workout, nil
}

// resolveExercise finds the referenced catalog exercise, or creates a
// user-owned custom one with a deterministic id so repeated imports of
// the same name converge.
func (e *Engine) resolveExercise(ctx context.Context, userID string, input ExerciseInput) (*models.Exercise, error) {
	if input.ExerciseID != nil {
		exercise, err := e.store.GetExercise(ctx, *input.ExerciseID)
		if err != nil {
			return nil, fmt.Errorf("fitness: exercise %s: %w", *input.ExerciseID, err)
		}
		return exercise, nil
	}
	if input.Name == "" {
		return nil, errors.New("fitness: exercise needs an id or a name")
	}

	exercise := &models.Exercise{
		ID:        models.DeterministicID("ex", input.Name, string(input.Lot), userID),
		Name:      input.Name,
		Lot:       input.Lot,
		Source:    models.ExerciseSourceCustom,
		CreatedBy: &userID,
	}
	if existing, err := e.store.GetExercise(ctx, exercise.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if err := e.store.UpsertExercise(ctx, exercise); err != nil {
		return nil, fmt.Errorf("fitness: create custom exercise %q: %w", input.Name, err)
	}
	return exercise, nil
}

// validateStatistic checks that exactly the fields meaningful for the
// lot are present.
func validateStatistic(lot models.ExerciseLot, s models.SetStatistic) error {
	var wantReps, wantWeight, wantDuration, wantDistance bool
	switch lot {
	case models.ExerciseLotReps:
		wantReps = true
	case models.ExerciseLotRepsAndWeight:
		wantReps, wantWeight = true, true
	case models.ExerciseLotDuration:
		wantDuration = true
	case models.ExerciseLotDistanceAndDuration:
		wantDistance, wantDuration = true, true
	case models.ExerciseLotRepsAndDuration:
		wantReps, wantDuration = true, true
	default:
		return fmt.Errorf("%w: unknown lot %q", ErrInvalidStatistic, lot)
	}

	checks := []struct {
		want  bool
		have  bool
		field string
	}{
		{wantReps, s.Reps != nil, "reps"},
		{wantWeight, s.Weight != nil, "weight"},
		{wantDuration, s.Duration != nil, "duration"},
		{wantDistance, s.Distance != nil, "distance"},
	}
	for _, check := range checks {
		if check.want && !check.have {
			return fmt.Errorf("%w: %s lot needs %s", ErrInvalidStatistic, lot, check.field)
		}
		if !check.want && check.have {
			return fmt.Errorf("%w: %s lot does not take %s", ErrInvalidStatistic, lot, check.field)
		}
	}
	return nil
}

// deriveStatistic fills the computed fields where their inputs are
// present: Epley one-rep max, volume, and pace in minutes per unit
// distance.
func deriveStatistic(s *models.SetStatistic) {
	if s.Reps != nil && s.Weight != nil {
		volume := s.Weight.Mul(*s.Reps)
		s.Volume = &volume
		oneRm := s.Weight.Mul(decimal.NewFromInt(1).Add(s.Reps.Div(decimal.NewFromInt(30)))).Round(4)
		s.OneRm = &oneRm
	}
	if s.Distance != nil && s.Duration != nil && !s.Distance.IsZero() {
		pace := s.Duration.Div(*s.Distance).Round(4)
		s.Pace = &pace
	}
}

// foldSet adds one set into an exercise total. Weight counts as moved
// weight (weight × reps).
func foldSet(total *models.WorkoutOrExerciseTotals, set models.WorkoutSetRecord) {
	s := set.Statistic
	if s.Reps != nil {
		total.Reps = total.Reps.Add(*s.Reps)
	}
	if s.Volume != nil {
		total.Weight = total.Weight.Add(*s.Volume)
	}
	if s.Duration != nil {
		total.Duration = total.Duration.Add(*s.Duration)
	}
	if s.Distance != nil {
		total.Distance = total.Distance.Add(*s.Distance)
	}
	if set.RestTime != nil {
		total.RestTime += *set.RestTime
	}
}

// statisticScore extracts the comparable value for a PR kind.
func statisticScore(kind models.PersonalBestKind, s models.SetStatistic) *decimal.Decimal {
	switch kind {
	case models.PBWeight:
		return s.Weight
	case models.PBReps:
		return s.Reps
	case models.PBOneRm:
		return s.OneRm
	case models.PBVolume:
		return s.Volume
	case models.PBTime:
		return s.Duration
	case models.PBPace:
		return s.Pace
	case models.PBDistance:
		return s.Distance
	default:
		return nil
	}
}

// betterScore reports whether a beats b for the kind. Pace is the only
// metric where smaller wins.
func betterScore(kind models.PersonalBestKind, a, b decimal.Decimal) bool {
	if kind == models.PBPace {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// tagPersonalBests marks, for each PR kind valid for the exercise's lot,
// the single best-scoring set of this workout, and replaces the stored
// best when beaten.
func tagPersonalBests(workoutID string, exerciseIdx int, processed *models.ProcessedExercise, extra *models.UserToExerciseExtraInformation) {
	for _, kind := range processed.Lot.ValidPersonalBests() {
		bestIdx := -1
		var bestScore decimal.Decimal
		for setIdx, set := range processed.Sets {
			score := statisticScore(kind, set.Statistic)
			if score == nil {
				continue
			}
			if bestIdx < 0 || betterScore(kind, *score, bestScore) {
				bestIdx, bestScore = setIdx, *score
			}
		}
		if bestIdx < 0 {
			continue
		}

		current := currentBest(extra, kind)
		if current != nil {
			currentScore := statisticScore(kind, current.Statistic)
			if currentScore != nil && !betterScore(kind, bestScore, *currentScore) {
				continue
			}
		}

		processed.Sets[bestIdx].PersonalBests = append(processed.Sets[bestIdx].PersonalBests, kind)
		processed.Total.PersonalBestsAchieved++
		record := models.ExerciseBestSetRecord{
			Lot:         kind,
			WorkoutID:   workoutID,
			ExerciseIdx: exerciseIdx,
			SetIdx:      bestIdx,
			Statistic:   processed.Sets[bestIdx].Statistic,
		}
		replaceBest(extra, record)
	}
}

func currentBest(extra *models.UserToExerciseExtraInformation, kind models.PersonalBestKind) *models.ExerciseBestSetRecord {
	for i := range extra.PersonalBests {
		if extra.PersonalBests[i].Lot == kind {
			return &extra.PersonalBests[i]
		}
	}
	return nil
}

func replaceBest(extra *models.UserToExerciseExtraInformation, record models.ExerciseBestSetRecord) {
	for i := range extra.PersonalBests {
		if extra.PersonalBests[i].Lot == record.Lot {
			extra.PersonalBests[i] = record
			return
		}
	}
	extra.PersonalBests = append(extra.PersonalBests, record)
}

// bestSetOf picks the summary's representative set: the one scoring
// highest on the lot's primary metric.
func bestSetOf(processed *models.ProcessedExercise) *models.WorkoutSetRecord {
	kinds := processed.Lot.ValidPersonalBests()
	if len(kinds) == 0 || len(processed.Sets) == 0 {
		return nil
	}
	primary := kinds[0]
	bestIdx := -1
	var bestScore decimal.Decimal
	for idx, set := range processed.Sets {
		score := statisticScore(primary, set.Statistic)
		if score == nil {
			continue
		}
		if bestIdx < 0 || betterScore(primary, *score, bestScore) {
			bestIdx, bestScore = idx, *score
		}
	}
	if bestIdx < 0 {
		return nil
	}
	best := processed.Sets[bestIdx]
	return &best
}

// ReEvaluateUserWorkouts rebuilds every workout's derived statistics,
// totals and personal bests from the raw sets, chronologically, after
// wiping the affected training records. Imports and merges call this to
// converge the denormalizations.
func (e *Engine) ReEvaluateUserWorkouts(ctx context.Context, userID string) error {
	workouts, err := e.listAllWorkouts(ctx, userID)
	if err != nil {
		return err
	}
	sort.Slice(workouts, func(i, j int) bool {
		return workouts[i].StartTime.Before(workouts[j].StartTime)
	})

	// Wipe the training record of every involved exercise; the replay
	// rebuilds history, lifetime stats and bests from zero.
	wiped := map[string]bool{}
	for _, workout := range workouts {
		for _, exercise := range workout.Information.Exercises {
			if wiped[exercise.ID] {
				continue
			}
			wiped[exercise.ID] = true
			edge, err := e.store.EnsureUserToEntity(ctx, userID, exercise.ID)
			if err != nil {
				return fmt.Errorf("fitness: user_to_entity for %s: %w", exercise.ID, err)
			}
			edge.ExerciseExtraInformation = nil
			edge.ExerciseNumTimesInteracted = 0
			if err := e.store.SaveUserToEntity(ctx, edge); err != nil {
				return err
			}
		}
	}

	for _, workout := range workouts {
		if _, err := e.CreateOrUpdateUserWorkout(ctx, userID, workoutToInput(workout)); err != nil {
			return fmt.Errorf("fitness: re-evaluate workout %s: %w", workout.ID, err)
		}
	}
	return nil
}

// workoutToInput strips a stored workout back to raw input: derived
// fields and PR tags are dropped so the replay recomputes them.
func workoutToInput(workout *models.Workout) WorkoutInput {
	input := WorkoutInput{
		ID:           &workout.ID,
		Name:         workout.Name,
		StartTime:    workout.StartTime,
		EndTime:      workout.EndTime,
		Comment:      workout.Information.Comment,
		SupersetsOf:  workout.Information.SupersetsOf,
		TemplateID:   workout.TemplateID,
		RepeatedFrom: workout.RepeatedFrom,
	}
	for _, exercise := range workout.Information.Exercises {
		exerciseInput := ExerciseInput{
			ExerciseID: ptr(exercise.ID),
			Notes:      exercise.Notes,
			RestTime:   exercise.RestTime,
		}
		for _, set := range exercise.Sets {
			exerciseInput.Sets = append(exerciseInput.Sets, SetInput{
				Lot: set.Lot,
				Statistic: models.SetStatistic{
					Reps:     set.Statistic.Reps,
					Weight:   set.Statistic.Weight,
					Duration: set.Statistic.Duration,
					Distance: set.Statistic.Distance,
				},
				RestTime:    set.RestTime,
				Rpe:         set.Rpe,
				Note:        set.Note,
				ConfirmedAt: set.ConfirmedAt,
			})
		}
		input.Exercises = append(input.Exercises, exerciseInput)
	}
	return input
}

// MergeExercise rewrites every workout of the user that references from
// onto into, removes the stale training record, and replays the user's
// workouts so lifetime stats and personal bests are recomputed over the
// merged history.
func (e *Engine) MergeExercise(ctx context.Context, userID, fromID, intoID string) error {
	if fromID == intoID {
		return errors.New("fitness: cannot merge an exercise into itself")
	}
	if _, err := e.store.GetExercise(ctx, intoID); err != nil {
		return fmt.Errorf("fitness: target exercise %s: %w", intoID, err)
	}

	workouts, err := e.listAllWorkouts(ctx, userID)
	if err != nil {
		return err
	}
	for _, workout := range workouts {
		changed := false
		for idx := range workout.Information.Exercises {
			if workout.Information.Exercises[idx].ID == fromID {
				workout.Information.Exercises[idx].ID = intoID
				changed = true
			}
		}
		for idx := range workout.Summary.Exercises {
			if workout.Summary.Exercises[idx].ID == fromID {
				workout.Summary.Exercises[idx].ID = intoID
			}
		}
		if changed {
			if err := e.store.UpsertWorkout(ctx, workout); err != nil {
				return fmt.Errorf("fitness: rewrite workout %s: %w", workout.ID, err)
			}
		}
	}

	if edge, err := e.store.GetUserToEntity(ctx, userID, fromID); err == nil {
		edge.ExerciseExtraInformation = nil
		edge.ExerciseNumTimesInteracted = 0
		edge.MediaReason = nil
		if err := e.store.SaveUserToEntity(ctx, edge); err != nil {
			return err
		}
		if err := e.store.DeleteUserToEntityIfEmpty(ctx, edge.ID); err != nil {
			return err
		}
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	return e.ReEvaluateUserWorkouts(ctx, userID)
}

func (e *Engine) listAllWorkouts(ctx context.Context, userID string) ([]*models.Workout, error) {
	var all []*models.Workout
	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListWorkoutsForUser(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fitness: list workouts: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func ptr[T any](v T) *T { return &v }
