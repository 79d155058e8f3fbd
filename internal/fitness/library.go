// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package fitness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// The public exercise catalog the library sync pulls from.
const (
	libraryJSONURL  = "https://raw.githubusercontent.com/yuhonas/free-exercise-db/main/dist/exercises.json"
	libraryImageURL = "https://raw.githubusercontent.com/yuhonas/free-exercise-db/main/exercises/"
)

// LibraryStore is the persistence slice the library sync needs.
// *database.DB satisfies it.
type LibraryStore interface {
	UpsertExercise(ctx context.Context, e *models.Exercise) error
}

// LibraryUpdater syncs the shared exercise catalog. Rows get
// deterministic ids keyed on the exercise name, so re-runs update in
// place and user references stay stable.
type LibraryUpdater struct {
	store  LibraryStore
	client *http.Client
	url    string
}

// NewLibraryUpdater builds the updater.
func NewLibraryUpdater(store LibraryStore, timeout time.Duration) *LibraryUpdater {
	return &LibraryUpdater{
		store:  store,
		client: &http.Client{Timeout: timeout},
		url:    libraryJSONURL,
	}
}

// libraryEntry is the upstream JSON shape.
type libraryEntry struct {
	Name             string   `json:"name"`
	Level            string   `json:"level"`
	Force            *string  `json:"force"`
	Mechanic         *string  `json:"mechanic"`
	Equipment        *string  `json:"equipment"`
	Category         string   `json:"category"`
	PrimaryMuscles   []string `json:"primaryMuscles"`
	SecondaryMuscles []string `json:"secondaryMuscles"`
	Instructions     []string `json:"instructions"`
	Images           []string `json:"images"`
}

// Update fetches the catalog and upserts every entry. Returns the number
// of exercises written.
func (u *LibraryUpdater) Update(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fitness: fetch exercise library: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fitness: exercise library responded %d", resp.StatusCode)
	}

	var entries []libraryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return 0, fmt.Errorf("fitness: decode exercise library: %w", err)
	}

	var written int
	for _, entry := range entries {
		if entry.Name == "" {
			continue
		}
		exercise := libraryExercise(entry)
		if err := u.store.UpsertExercise(ctx, exercise); err != nil {
			return written, fmt.Errorf("fitness: upsert %q: %w", entry.Name, err)
		}
		written++
	}
	logging.Info().Int("count", written).Msg("Exercise library synced")
	return written, nil
}

func libraryExercise(entry libraryEntry) *models.Exercise {
	images := make([]string, 0, len(entry.Images))
	for _, img := range entry.Images {
		images = append(images, libraryImageURL+img)
	}
	muscles := append(append([]string{}, entry.PrimaryMuscles...), entry.SecondaryMuscles...)
	return &models.Exercise{
		ID:           models.DeterministicID(models.PrefixExercise, entry.Name),
		Name:         entry.Name,
		Lot:          lotForCategory(entry.Category),
		Source:       models.ExerciseSourceGithub,
		Level:        ptr(entry.Level),
		Force:        entry.Force,
		Mechanic:     entry.Mechanic,
		Equipment:    entry.Equipment,
		Muscles:      muscles,
		Instructions: entry.Instructions,
		Assets:       models.EntityAssets{RemoteImages: images},
	}
}

// lotForCategory maps the upstream category vocabulary onto the set
// statistic shape the exercise takes.
func lotForCategory(category string) models.ExerciseLot {
	switch category {
	case "cardio":
		return models.ExerciseLotDistanceAndDuration
	case "stretching":
		return models.ExerciseLotDuration
	default:
		return models.ExerciseLotRepsAndWeight
	}
}
