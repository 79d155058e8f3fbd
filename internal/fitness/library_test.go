// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package fitness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

type fakeLibraryStore struct {
	exercises map[string]*models.Exercise
}

func (s *fakeLibraryStore) UpsertExercise(_ context.Context, e *models.Exercise) error {
	if s.exercises == nil {
		s.exercises = map[string]*models.Exercise{}
	}
	s.exercises[e.ID] = e
	return nil
}

const libraryFixture = `[
	{
		"name": "Barbell Bench Press",
		"level": "intermediate",
		"force": "push",
		"mechanic": "compound",
		"equipment": "barbell",
		"category": "strength",
		"primaryMuscles": ["chest"],
		"secondaryMuscles": ["triceps", "shoulders"],
		"instructions": ["Lie on the bench.", "Press the bar up."],
		"images": ["Barbell_Bench_Press/0.jpg"]
	},
	{
		"name": "Running",
		"level": "beginner",
		"category": "cardio",
		"primaryMuscles": ["quadriceps"],
		"images": []
	},
	{
		"name": "Hamstring Stretch",
		"level": "beginner",
		"category": "stretching"
	}
]`

func TestLibraryUpdateMapsEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(libraryFixture))
	}))
	defer srv.Close()

	store := &fakeLibraryStore{}
	updater := NewLibraryUpdater(store, time.Second)
	updater.url = srv.URL

	n, err := updater.Update(context.Background())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 3 {
		t.Fatalf("written = %d, want 3", n)
	}

	bench := store.exercises[models.DeterministicID(models.PrefixExercise, "Barbell Bench Press")]
	if bench == nil {
		t.Fatal("bench press not stored under deterministic id")
	}
	if bench.Lot != models.ExerciseLotRepsAndWeight {
		t.Errorf("bench lot = %s", bench.Lot)
	}
	if bench.Source != models.ExerciseSourceGithub {
		t.Errorf("bench source = %s", bench.Source)
	}
	if len(bench.Muscles) != 3 || bench.Muscles[0] != "chest" {
		t.Errorf("bench muscles = %v", bench.Muscles)
	}
	if len(bench.Assets.RemoteImages) != 1 || !strings.HasSuffix(bench.Assets.RemoteImages[0], "Barbell_Bench_Press/0.jpg") {
		t.Errorf("bench images = %v", bench.Assets.RemoteImages)
	}
	if !strings.HasPrefix(bench.Assets.RemoteImages[0], "https://") {
		t.Errorf("image url not absolute: %s", bench.Assets.RemoteImages[0])
	}

	running := store.exercises[models.DeterministicID(models.PrefixExercise, "Running")]
	if running == nil || running.Lot != models.ExerciseLotDistanceAndDuration {
		t.Errorf("running = %+v", running)
	}
	stretch := store.exercises[models.DeterministicID(models.PrefixExercise, "Hamstring Stretch")]
	if stretch == nil || stretch.Lot != models.ExerciseLotDuration {
		t.Errorf("stretch = %+v", stretch)
	}
}

func TestLibraryUpdateIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(libraryFixture))
	}))
	defer srv.Close()

	store := &fakeLibraryStore{}
	updater := NewLibraryUpdater(store, time.Second)
	updater.url = srv.URL

	for i := 0; i < 2; i++ {
		if _, err := updater.Update(context.Background()); err != nil {
			t.Fatalf("Update run %d: %v", i+1, err)
		}
	}
	if len(store.exercises) != 3 {
		t.Errorf("exercises = %d, want 3 after two runs", len(store.exercises))
	}
}

func TestLibraryUpdateSurfacesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	updater := NewLibraryUpdater(&fakeLibraryStore{}, time.Second)
	updater.url = srv.URL
	if _, err := updater.Update(context.Background()); err == nil {
		t.Fatal("expected error on upstream 502")
	}
}
