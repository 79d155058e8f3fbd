// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package fitness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

type fakeStore struct {
	exercises map[string]*models.Exercise
	workouts  map[string]*models.Workout
	order     []string
	edges     map[string]*models.UserToEntity
	deleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		exercises: map[string]*models.Exercise{},
		workouts:  map[string]*models.Workout{},
		edges:     map[string]*models.UserToEntity{},
	}
}

func (s *fakeStore) GetExercise(_ context.Context, id string) (*models.Exercise, error) {
	if e, ok := s.exercises[id]; ok {
		return e, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpsertExercise(_ context.Context, e *models.Exercise) error {
	s.exercises[e.ID] = e
	return nil
}

func (s *fakeStore) UpsertWorkout(_ context.Context, w *models.Workout) error {
	if _, ok := s.workouts[w.ID]; !ok {
		s.order = append(s.order, w.ID)
	}
	s.workouts[w.ID] = w
	return nil
}

func (s *fakeStore) ListWorkoutsForUser(_ context.Context, _ string, limit, offset int) ([]*models.Workout, error) {
	if offset >= len(s.order) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.order) {
		end = len(s.order)
	}
	var out []*models.Workout
	for _, id := range s.order[offset:end] {
		out = append(out, s.workouts[id])
	}
	return out, nil
}

func edgeKey(userID, entityID string) string { return userID + "|" + entityID }

func (s *fakeStore) GetUserToEntity(_ context.Context, userID, entityID string) (*models.UserToEntity, error) {
	if e, ok := s.edges[edgeKey(userID, entityID)]; ok {
		return e, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) EnsureUserToEntity(_ context.Context, userID, entityID string) (*models.UserToEntity, error) {
	key := edgeKey(userID, entityID)
	if e, ok := s.edges[key]; ok {
		return e, nil
	}
	edge := &models.UserToEntity{
		ID: "ute_" + entityID, UserID: userID,
		EntityID: entityID, EntityLot: models.EntityLotExercise,
	}
	s.edges[key] = edge
	return edge, nil
}

func (s *fakeStore) SaveUserToEntity(_ context.Context, u *models.UserToEntity) error {
	s.edges[edgeKey(u.UserID, u.EntityID)] = u
	return nil
}

func (s *fakeStore) DeleteUserToEntityIfEmpty(_ context.Context, id string) error {
	for key, edge := range s.edges {
		if edge.ID != id {
			continue
		}
		if edge.ExerciseExtraInformation == nil && len(edge.MediaReason) == 0 {
			s.deleted = append(s.deleted, id)
			delete(s.edges, key)
		}
	}
	return nil
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func liftSet(reps, weight int64) SetInput {
	return SetInput{
		Lot:       models.SetLotNormal,
		Statistic: models.SetStatistic{Reps: dec(reps), Weight: dec(weight)},
	}
}

func benchWorkout(id string, start time.Time, exerciseID string, sets ...SetInput) WorkoutInput {
	return WorkoutInput{
		ID:        &id,
		Name:      "Push day",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Exercises: []ExerciseInput{{ExerciseID: &exerciseID, Sets: sets}},
	}
}

func TestDerivesEpleyAndVolume(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_bench"] = &models.Exercise{ID: "ex_bench", Name: "Bench Press", Lot: models.ExerciseLotRepsAndWeight}

	workout, err := New(store).CreateOrUpdateUserWorkout(context.Background(), "usr_1",
		benchWorkout("wor_1", time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), "ex_bench", liftSet(8, 60)))
	if err != nil {
		t.Fatal(err)
	}

	stat := workout.Information.Exercises[0].Sets[0].Statistic
	if stat.Volume == nil || !stat.Volume.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("volume = %v", stat.Volume)
	}
	// Epley: 60 * (1 + 8/30) = 76.
	if stat.OneRm == nil || !stat.OneRm.Equal(decimal.NewFromInt(76)) {
		t.Fatalf("one_rm = %v", stat.OneRm)
	}
}

func TestDerivesPace(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_run"] = &models.Exercise{ID: "ex_run", Name: "Running", Lot: models.ExerciseLotDistanceAndDuration}

	input := benchWorkout("wor_1", time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC), "ex_run", SetInput{
		Lot:       models.SetLotNormal,
		Statistic: models.SetStatistic{Distance: dec(5), Duration: dec(30)},
	})
	workout, err := New(store).CreateOrUpdateUserWorkout(context.Background(), "usr_1", input)
	if err != nil {
		t.Fatal(err)
	}

	stat := workout.Information.Exercises[0].Sets[0].Statistic
	if stat.Pace == nil || !stat.Pace.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("pace = %v", stat.Pace)
	}
}

func TestValidateStatisticPerLot(t *testing.T) {
	cases := []struct {
		name string
		lot  models.ExerciseLot
		stat models.SetStatistic
		ok   bool
	}{
		{"reps ok", models.ExerciseLotReps, models.SetStatistic{Reps: dec(10)}, true},
		{"reps missing", models.ExerciseLotReps, models.SetStatistic{}, false},
		{"reps with weight", models.ExerciseLotReps, models.SetStatistic{Reps: dec(10), Weight: dec(20)}, false},
		{"weighted ok", models.ExerciseLotRepsAndWeight, models.SetStatistic{Reps: dec(5), Weight: dec(100)}, true},
		{"weighted missing weight", models.ExerciseLotRepsAndWeight, models.SetStatistic{Reps: dec(5)}, false},
		{"duration ok", models.ExerciseLotDuration, models.SetStatistic{Duration: dec(10)}, true},
		{"duration with distance", models.ExerciseLotDuration, models.SetStatistic{Duration: dec(10), Distance: dec(2)}, false},
		{"cardio ok", models.ExerciseLotDistanceAndDuration, models.SetStatistic{Distance: dec(5), Duration: dec(30)}, true},
		{"reps and duration ok", models.ExerciseLotRepsAndDuration, models.SetStatistic{Reps: dec(20), Duration: dec(2)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateStatistic(tc.lot, tc.stat)
			if tc.ok && err != nil {
				t.Fatal(err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidStatistic) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestCustomExerciseGetsDeterministicID(t *testing.T) {
	store := newFakeStore()
	engine := New(store)
	input := WorkoutInput{
		Name:      "Home session",
		StartTime: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC),
		Exercises: []ExerciseInput{{
			Name: "Towel Rows", Lot: models.ExerciseLotReps,
			Sets: []SetInput{{Lot: models.SetLotNormal, Statistic: models.SetStatistic{Reps: dec(12)}}},
		}},
	}

	first, err := engine.CreateOrUpdateUserWorkout(context.Background(), "usr_1", input)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.CreateOrUpdateUserWorkout(context.Background(), "usr_1", input)
	if err != nil {
		t.Fatal(err)
	}

	want := models.DeterministicID("ex", "Towel Rows", "reps", "usr_1")
	if got := first.Information.Exercises[0].ID; got != want {
		t.Fatalf("id = %s, want %s", got, want)
	}
	if second.Information.Exercises[0].ID != want {
		t.Fatal("second workout did not reuse the custom exercise")
	}
	if len(store.exercises) != 1 {
		t.Fatalf("exercises: %d", len(store.exercises))
	}
	if store.exercises[want].Source != models.ExerciseSourceCustom {
		t.Fatalf("source: %s", store.exercises[want].Source)
	}
}

func TestTotalsSumOverSets(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_bench"] = &models.Exercise{ID: "ex_bench", Name: "Bench Press", Lot: models.ExerciseLotRepsAndWeight}
	rest := 90
	input := benchWorkout("wor_1", time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), "ex_bench",
		liftSet(10, 50), liftSet(8, 60), liftSet(6, 70))
	for i := range input.Exercises[0].Sets {
		input.Exercises[0].Sets[i].RestTime = &rest
	}

	workout, err := New(store).CreateOrUpdateUserWorkout(context.Background(), "usr_1", input)
	if err != nil {
		t.Fatal(err)
	}

	total := workout.Information.Exercises[0].Total
	if !total.Reps.Equal(decimal.NewFromInt(24)) {
		t.Fatalf("reps = %v", total.Reps)
	}
	// Moved weight: 10*50 + 8*60 + 6*70.
	if !total.Weight.Equal(decimal.NewFromInt(1400)) {
		t.Fatalf("weight = %v", total.Weight)
	}
	if total.RestTime != 270 {
		t.Fatalf("rest = %d", total.RestTime)
	}
	if !workout.Summary.Total.Weight.Equal(total.Weight) {
		t.Fatalf("summary total: %+v", workout.Summary.Total)
	}
	summary := workout.Summary.Exercises[0]
	if summary.NumSets != 3 || summary.BestSet == nil {
		t.Fatalf("summary: %+v", summary)
	}
	// Best set by the primary metric (weight).
	if !summary.BestSet.Statistic.Weight.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("best set: %+v", summary.BestSet.Statistic)
	}
}

func TestPersonalBestLifecycle(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_bench"] = &models.Exercise{ID: "ex_bench", Name: "Bench Press", Lot: models.ExerciseLotRepsAndWeight}
	engine := New(store)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	first, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_1", base, "ex_bench", liftSet(8, 60)))
	if err != nil {
		t.Fatal(err)
	}
	// A maiden workout sets every valid PR kind on its best set.
	if got := len(first.Information.Exercises[0].Sets[0].PersonalBests); got != 4 {
		t.Fatalf("first workout PR tags = %d", got)
	}

	// A weaker session earns nothing.
	second, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_2", base.AddDate(0, 0, 2), "ex_bench", liftSet(5, 50)))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(second.Information.Exercises[0].Sets[0].PersonalBests); got != 0 {
		t.Fatalf("second workout PR tags = %d", got)
	}

	// A heavier single beats weight and one-rm but not reps or volume.
	third, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_3", base.AddDate(0, 0, 4), "ex_bench", liftSet(1, 100)))
	if err != nil {
		t.Fatal(err)
	}
	tags := third.Information.Exercises[0].Sets[0].PersonalBests
	got := map[models.PersonalBestKind]bool{}
	for _, tag := range tags {
		got[tag] = true
	}
	if !got[models.PBWeight] || !got[models.PBOneRm] || got[models.PBReps] || got[models.PBVolume] {
		t.Fatalf("third workout PR tags = %v", tags)
	}

	edge := store.edges[edgeKey("usr_1", "ex_bench")]
	if edge == nil || edge.ExerciseExtraInformation == nil {
		t.Fatal("no training record")
	}
	extra := edge.ExerciseExtraInformation
	if edge.ExerciseNumTimesInteracted != 3 || len(extra.History) != 3 {
		t.Fatalf("record: interacted=%d history=%d", edge.ExerciseNumTimesInteracted, len(extra.History))
	}
	// History is newest first.
	if extra.History[0].WorkoutID != "wor_3" {
		t.Fatalf("history: %+v", extra.History)
	}
	if best := currentBest(extra, models.PBWeight); best == nil || best.WorkoutID != "wor_3" {
		t.Fatalf("weight best: %+v", best)
	}
	if best := currentBest(extra, models.PBVolume); best == nil || best.WorkoutID != "wor_1" {
		t.Fatalf("volume best: %+v", best)
	}
	// Lifetime reps: 8 + 5 + 1.
	if !extra.LifetimeStats.Reps.Equal(decimal.NewFromInt(14)) {
		t.Fatalf("lifetime reps = %v", extra.LifetimeStats.Reps)
	}
}

func TestPaceSmallerIsBetter(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_run"] = &models.Exercise{ID: "ex_run", Name: "Running", Lot: models.ExerciseLotDistanceAndDuration}
	engine := New(store)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)

	run := func(id string, start time.Time, distance, duration int64) *models.Workout {
		t.Helper()
		workout, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
			benchWorkout(id, start, "ex_run", SetInput{
				Lot:       models.SetLotNormal,
				Statistic: models.SetStatistic{Distance: dec(distance), Duration: dec(duration)},
			}))
		if err != nil {
			t.Fatal(err)
		}
		return workout
	}

	run("wor_1", base, 5, 30)                     // 6 min/km
	run("wor_2", base.AddDate(0, 0, 1), 5, 35)    // slower, no pace PR
	fast := run("wor_3", base.AddDate(0, 0, 2), 5, 25) // 5 min/km

	tags := fast.Information.Exercises[0].Sets[0].PersonalBests
	hasPace := false
	for _, tag := range tags {
		hasPace = hasPace || tag == models.PBPace
	}
	if !hasPace {
		t.Fatalf("fast run tags = %v", tags)
	}
	best := currentBest(store.edges[edgeKey("usr_1", "ex_run")].ExerciseExtraInformation, models.PBPace)
	if best == nil || best.WorkoutID != "wor_3" {
		t.Fatalf("pace best: %+v", best)
	}
}

func TestMergeExerciseRewritesAndRecomputes(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_bench"] = &models.Exercise{ID: "ex_bench", Name: "Bench Press", Lot: models.ExerciseLotRepsAndWeight}
	store.exercises["ex_bench_db"] = &models.Exercise{
		ID: "ex_bench_db", Name: "Bench Press DB", Lot: models.ExerciseLotRepsAndWeight,
		Source: models.ExerciseSourceCustom,
	}
	engine := New(store)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	if _, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_1", base, "ex_bench", liftSet(8, 60))); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_2", base.AddDate(0, 0, 2), "ex_bench_db", liftSet(10, 25))); err != nil {
		t.Fatal(err)
	}

	if err := engine.MergeExercise(ctx, "usr_1", "ex_bench_db", "ex_bench"); err != nil {
		t.Fatal(err)
	}

	for _, workoutID := range []string{"wor_1", "wor_2"} {
		workout := store.workouts[workoutID]
		if workout.Information.Exercises[0].ID != "ex_bench" {
			t.Fatalf("%s information: %+v", workoutID, workout.Information.Exercises[0])
		}
		if workout.Summary.Exercises[0].ID != "ex_bench" {
			t.Fatalf("%s summary: %+v", workoutID, workout.Summary.Exercises[0])
		}
	}

	if _, ok := store.edges[edgeKey("usr_1", "ex_bench_db")]; ok {
		t.Fatal("merged-from training record still present")
	}

	edge := store.edges[edgeKey("usr_1", "ex_bench")]
	if edge == nil || edge.ExerciseExtraInformation == nil {
		t.Fatal("no training record for merge target")
	}
	extra := edge.ExerciseExtraInformation
	if len(extra.History) != 2 || edge.ExerciseNumTimesInteracted != 2 {
		t.Fatalf("record: interacted=%d history=%d", edge.ExerciseNumTimesInteracted, len(extra.History))
	}
	// Lifetime reps over the merged history: 8 + 10.
	if !extra.LifetimeStats.Reps.Equal(decimal.NewFromInt(18)) {
		t.Fatalf("lifetime reps = %v", extra.LifetimeStats.Reps)
	}
	// The dumbbell session's volume (250) never beats the barbell's (480).
	if best := currentBest(extra, models.PBVolume); best == nil || best.WorkoutID != "wor_1" {
		t.Fatalf("volume best: %+v", best)
	}
}

func TestMergeIntoSelfRejected(t *testing.T) {
	if err := New(newFakeStore()).MergeExercise(context.Background(), "usr_1", "ex_a", "ex_a"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReEvaluateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.exercises["ex_bench"] = &models.Exercise{ID: "ex_bench", Name: "Bench Press", Lot: models.ExerciseLotRepsAndWeight}
	engine := New(store)
	ctx := context.Background()

	if _, err := engine.CreateOrUpdateUserWorkout(ctx, "usr_1",
		benchWorkout("wor_1", time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), "ex_bench", liftSet(8, 60))); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := engine.ReEvaluateUserWorkouts(ctx, "usr_1"); err != nil {
			t.Fatal(err)
		}
	}

	edge := store.edges[edgeKey("usr_1", "ex_bench")]
	extra := edge.ExerciseExtraInformation
	if edge.ExerciseNumTimesInteracted != 1 || len(extra.History) != 1 {
		t.Fatalf("record after replay: interacted=%d history=%d", edge.ExerciseNumTimesInteracted, len(extra.History))
	}
	if !extra.LifetimeStats.Reps.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("lifetime reps = %v", extra.LifetimeStats.Reps)
	}
	if got := len(store.workouts["wor_1"].Information.Exercises[0].Sets[0].PersonalBests); got != 4 {
		t.Fatalf("PR tags after replay = %d", got)
	}
}
