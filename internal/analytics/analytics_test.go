// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

type fakeStore struct {
	user         *models.User
	metadata     map[string]*models.Metadata
	seen         []*models.Seen
	reviews      []*models.Review
	workouts     []*models.Workout
	measurements []*models.UserMeasurement

	activities map[time.Time]*models.DailyUserActivity

	deletedAll  bool
	deletedFrom *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		user:       &models.User{ID: "usr_1"},
		metadata:   map[string]*models.Metadata{},
		activities: map[time.Time]*models.DailyUserActivity{},
	}
}

func (s *fakeStore) GetUser(_ context.Context, _ string) (*models.User, error) { return s.user, nil }

func (s *fakeStore) GetMetadata(_ context.Context, id string) (*models.Metadata, error) {
	if meta, ok := s.metadata[id]; ok {
		return meta, nil
	}
	return nil, database.ErrNotFound
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func (s *fakeStore) ListSeenForUser(_ context.Context, _ string, limit, offset int) ([]*models.Seen, error) {
	return page(s.seen, limit, offset), nil
}

func (s *fakeStore) ListReviewsByUser(_ context.Context, _ string, limit, offset int) ([]*models.Review, error) {
	return page(s.reviews, limit, offset), nil
}

func (s *fakeStore) ListWorkoutsForUser(_ context.Context, _ string, limit, offset int) ([]*models.Workout, error) {
	return page(s.workouts, limit, offset), nil
}

func (s *fakeStore) ListUserMeasurements(_ context.Context, _ string, _, _ time.Time) ([]*models.UserMeasurement, error) {
	return s.measurements, nil
}

func (s *fakeStore) UpsertDailyActivity(_ context.Context, a *models.DailyUserActivity) error {
	s.activities[a.Date] = a
	return nil
}

func (s *fakeStore) ListDailyActivities(_ context.Context, _ string, from, to time.Time) ([]*models.DailyUserActivity, error) {
	var out []*models.DailyUserActivity
	for _, a := range s.activities {
		if !from.IsZero() && a.Date.Before(from) {
			continue
		}
		if !to.IsZero() && a.Date.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) LatestActivityDate(_ context.Context, _ string) (time.Time, error) {
	var latest time.Time
	for date := range s.activities {
		if date.After(latest) {
			latest = date
		}
	}
	if latest.IsZero() {
		return time.Time{}, database.ErrNotFound
	}
	return latest, nil
}

func (s *fakeStore) DeleteActivitiesFrom(_ context.Context, _ string, from time.Time) error {
	s.deletedFrom = &from
	for date := range s.activities {
		if !date.Before(from) {
			delete(s.activities, date)
		}
	}
	return nil
}

func (s *fakeStore) DeleteAllActivities(_ context.Context, _ string) error {
	s.deletedAll = true
	s.activities = map[time.Time]*models.DailyUserActivity{}
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateFoldsSeenByDay(t *testing.T) {
	runtime := 136
	store := newFakeStore()
	store.metadata["met_1"] = &models.Metadata{
		ID: "met_1", Lot: models.MediaLotMovie,
		MovieSpecifics: &models.MovieSpecifics{Runtime: &runtime},
	}
	watched := time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC)
	store.seen = []*models.Seen{
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &watched},
		// Open rows never count.
		{MetadataID: "met_1", State: models.SeenStateInProgress},
	}

	if err := New(store, nil).CalculateUserActivitiesAndSummary(context.Background(), "usr_1", false); err != nil {
		t.Fatal(err)
	}

	bucket := store.activities[day(2026, 3, 10)]
	if bucket == nil {
		t.Fatalf("activities: %v", store.activities)
	}
	if bucket.MovieCount != 1 || bucket.MovieDuration != 136 {
		t.Fatalf("bucket: %+v", bucket)
	}
	if bucket.TotalCount != 1 || bucket.TotalDuration != 136 {
		t.Fatalf("totals: %+v", bucket)
	}
}

func TestCalculateUsesUserTimezone(t *testing.T) {
	store := newFakeStore()
	// UTC+5:30: 23:00 UTC on the 9th is already the 10th locally.
	store.user.TimezoneOffsetMinutes = 330
	store.metadata["met_1"] = &models.Metadata{ID: "met_1", Lot: models.MediaLotBook}
	watched := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	store.seen = []*models.Seen{
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &watched},
	}

	if err := New(store, nil).CalculateUserActivitiesAndSummary(context.Background(), "usr_1", false); err != nil {
		t.Fatal(err)
	}
	if store.activities[day(2026, 3, 10)] == nil {
		t.Fatalf("activities: %v", store.activities)
	}
}

func TestCalculateIncrementalRebuildsFromLatest(t *testing.T) {
	store := newFakeStore()
	store.activities[day(2026, 1, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2026, 1, 1), MovieCount: 3}
	store.activities[day(2026, 2, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2026, 2, 1), MovieCount: 1}

	store.metadata["met_1"] = &models.Metadata{ID: "met_1", Lot: models.MediaLotMovie}
	older := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	store.seen = []*models.Seen{
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &older},
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &newer},
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &newer},
	}

	if err := New(store, nil).CalculateUserActivitiesAndSummary(context.Background(), "usr_1", false); err != nil {
		t.Fatal(err)
	}

	if store.deletedAll {
		t.Fatal("incremental run purged everything")
	}
	if store.deletedFrom == nil || !store.deletedFrom.Equal(day(2026, 2, 1)) {
		t.Fatalf("deletedFrom = %v", store.deletedFrom)
	}
	// The January row predates the resume point and must survive.
	if store.activities[day(2026, 1, 1)].MovieCount != 3 {
		t.Fatalf("january: %+v", store.activities[day(2026, 1, 1)])
	}
	if store.activities[day(2026, 2, 1)].MovieCount != 2 {
		t.Fatalf("february: %+v", store.activities[day(2026, 2, 1)])
	}
}

func TestCalculateFromScratchPurges(t *testing.T) {
	store := newFakeStore()
	store.activities[day(2020, 1, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2020, 1, 1), MovieCount: 99}

	if err := New(store, nil).CalculateUserActivitiesAndSummary(context.Background(), "usr_1", true); err != nil {
		t.Fatal(err)
	}
	if !store.deletedAll {
		t.Fatal("from_scratch did not purge")
	}
	if len(store.activities) != 0 {
		t.Fatalf("activities: %v", store.activities)
	}
}

func TestCalculateFoldsWorkoutsReviewsMeasurements(t *testing.T) {
	store := newFakeStore()
	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	store.workouts = []*models.Workout{{
		EndTime: at, Duration: 3600,
		Summary: models.WorkoutSummary{Total: models.WorkoutOrExerciseTotals{
			Weight: decimal.NewFromInt(1200), Reps: decimal.NewFromInt(50),
			RestTime: 600, PersonalBestsAchieved: 2,
		}},
	}}
	store.reviews = []*models.Review{
		{EntityLot: models.EntityLotMetadata, PostedOn: at},
		{EntityLot: models.EntityLotPerson, PostedOn: at},
	}
	store.measurements = []*models.UserMeasurement{{Timestamp: at}}

	if err := New(store, nil).CalculateUserActivitiesAndSummary(context.Background(), "usr_1", false); err != nil {
		t.Fatal(err)
	}

	bucket := store.activities[day(2026, 4, 2)]
	if bucket == nil {
		t.Fatalf("activities: %v", store.activities)
	}
	if bucket.WorkoutCount != 1 || bucket.WorkoutDuration != 60 || bucket.WorkoutReps != 50 {
		t.Fatalf("workout: %+v", bucket)
	}
	if bucket.WorkoutPersonalBests != 2 {
		t.Fatalf("pbs: %+v", bucket)
	}
	if bucket.MetadataReviewCount != 1 || bucket.PersonReviewCount != 1 || bucket.MeasurementCount != 1 {
		t.Fatalf("counts: %+v", bucket)
	}
	// 2 reviews + 1 workout + 1 measurement.
	if bucket.TotalCount != 4 {
		t.Fatalf("total = %d", bucket.TotalCount)
	}
}

func TestAdaptiveBucketing(t *testing.T) {
	store := newFakeStore()
	for month := time.January; month <= time.December; month++ {
		store.activities[day(2025, month, 5)] = &models.DailyUserActivity{
			UserID: "usr_1", Date: day(2025, month, 5), MovieCount: 1,
		}
	}
	engine := New(store, nil)

	// 300 days wide: month buckets.
	rows, err := engine.DailyUserActivities(context.Background(), "usr_1",
		day(2025, 1, 1), day(2025, 10, 28), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 10 {
		t.Fatalf("month buckets = %d", len(rows))
	}

	// 700 days wide: year buckets.
	rows, err = engine.DailyUserActivities(context.Background(), "usr_1",
		day(2024, 1, 1), day(2025, 12, 31), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MovieCount != 12 {
		t.Fatalf("year buckets: %+v", rows)
	}

	// Narrow range: day buckets.
	rows, err = engine.DailyUserActivities(context.Background(), "usr_1",
		day(2025, 1, 1), day(2025, 3, 1), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("day buckets = %d", len(rows))
	}
}

func TestLatestUserSummaryMillennium(t *testing.T) {
	store := newFakeStore()
	store.activities[day(2019, 6, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2019, 6, 1), ShowCount: 2}
	store.activities[day(2026, 6, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2026, 6, 1), ShowCount: 3}

	summary, err := New(store, nil).LatestUserSummary(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.ShowCount != 5 || summary.TotalMetadataCount != 5 {
		t.Fatalf("summary: %+v", summary)
	}
}

func TestLatestUserSummaryMemoizedUntilRecalculation(t *testing.T) {
	store := newFakeStore()
	store.activities[day(2026, 5, 1)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2026, 5, 1), MovieCount: 1}

	memCache := cache.New(time.Minute)
	t.Cleanup(memCache.Close)
	engine := New(store, memCache)

	summary, err := engine.LatestUserSummary(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.MovieCount != 1 {
		t.Fatalf("summary: %+v", summary)
	}

	// A raw row appearing without a rollup run stays invisible: the
	// memoized summary is served.
	store.activities[day(2026, 5, 2)] = &models.DailyUserActivity{UserID: "usr_1", Date: day(2026, 5, 2), MovieCount: 1}
	summary, err = engine.LatestUserSummary(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.MovieCount != 1 {
		t.Fatalf("stale summary not served: %+v", summary)
	}

	// Recalculation expires the memo; the next read folds both rows.
	watched := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	store.metadata["met_1"] = &models.Metadata{ID: "met_1", Lot: models.MediaLotMovie}
	store.seen = []*models.Seen{
		{MetadataID: "met_1", State: models.SeenStateCompleted, FinishedOn: &watched},
	}
	if err := engine.CalculateUserActivitiesAndSummary(context.Background(), "usr_1", false); err != nil {
		t.Fatal(err)
	}
	summary, err = engine.LatestUserSummary(context.Background(), "usr_1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.MovieCount != 2 {
		t.Fatalf("summary after recalculation: %+v", summary)
	}
}
