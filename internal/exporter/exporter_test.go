// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package exporter

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

type fakeStore struct {
	seen         []*models.Seen
	reviews      []*models.Review
	workouts     []*models.Workout
	measurements []*models.UserMeasurement
	metadata     map[string]*models.Metadata
	groups       map[string]*models.MetadataGroup
	people       map[string]*models.Person
	collections  []*models.Collection
	members      map[string][]*models.CollectionToEntity

	metadataFetches int
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

func (s *fakeStore) ListUserCollections(_ context.Context, _ string) ([]*models.Collection, error) {
	return s.collections, nil
}

func (s *fakeStore) ListCollectionEntities(_ context.Context, collectionID string, limit, offset int) ([]*models.CollectionToEntity, error) {
	return page(s.members[collectionID], limit, offset), nil
}

func (s *fakeStore) GetMetadata(_ context.Context, id string) (*models.Metadata, error) {
	s.metadataFetches++
	return s.metadata[id], nil
}

func (s *fakeStore) GetMetadataGroup(_ context.Context, id string) (*models.MetadataGroup, error) {
	return s.groups[id], nil
}

func (s *fakeStore) GetPerson(_ context.Context, id string) (*models.Person, error) {
	return s.people[id], nil
}

func TestWriteDocumentRoundTrips(t *testing.T) {
	finished := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		metadata: map[string]*models.Metadata{
			"met_1": {
				ID: "met_1", Lot: models.MediaLotShow, Source: models.MediaSourceTmdb,
				Identifier: "1396", Title: "Breaking Bad",
			},
		},
		seen: []*models.Seen{
			{
				MetadataID: "met_1", State: models.SeenStateCompleted,
				Progress: decimal.NewFromInt(100), FinishedOn: &finished,
				ShowExtraInformation: &models.SeenShowExtraInformation{Season: 1, Episode: 1},
			},
			{
				MetadataID: "met_1", State: models.SeenStateInProgress,
				Progress:             decimal.NewFromInt(40),
				ShowExtraInformation: &models.SeenShowExtraInformation{Season: 1, Episode: 2},
			},
		},
		reviews: []*models.Review{
			{
				EntityID: "met_1", EntityLot: models.EntityLotMetadata,
				Rating: ptr(decimal.NewFromInt(95)), Text: ptr("peak television"),
				Visibility: models.VisibilityPublic, PostedOn: finished,
			},
			// Non-metadata reviews land in their own top-level arrays.
			{EntityID: "per_1", EntityLot: models.EntityLotPerson, PostedOn: finished, Visibility: models.VisibilityPublic},
		},
		people: map[string]*models.Person{
			"per_1": {ID: "per_1", Source: models.MediaSourceTmdb, Identifier: "17419", Name: "Bryan Cranston"},
		},
		collections: []*models.Collection{{ID: "col_1", UserID: "usr_1", Name: "Favourites"}},
		members: map[string][]*models.CollectionToEntity{
			"col_1": {
				{CollectionID: "col_1", MetadataID: ptr("met_1")},
				{CollectionID: "col_1", PersonID: ptr("per_1")},
			},
		},
		workouts:     []*models.Workout{{ID: "wor_1", Name: "Push Day"}},
		measurements: []*models.UserMeasurement{{Timestamp: finished, Stats: models.UserMeasurementStats{Weight: ptr(decimal.NewFromInt(80))}}},
	}

	var buf bytes.Buffer
	require.NoError(t, New(store, nil).WriteDocument(context.Background(), "usr_1", &buf))

	var export models.CompleteExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export), "document is not valid JSON:\n%s", buf.String())
	require.Len(t, export.Media, 1)
	show := export.Media[0]
	require.Equal(t, "1396", show.Identifier)
	require.Equal(t, models.MediaLotShow, show.Lot)
	require.Equal(t, "Breaking Bad", show.SourceID)
	require.Len(t, show.SeenHistory, 2)
	require.NotNil(t, show.SeenHistory[0].EndedOn)
	require.True(t, show.SeenHistory[0].EndedOn.Equal(finished))
	require.NotNil(t, show.SeenHistory[1].Progress)
	require.True(t, show.SeenHistory[1].Progress.Equal(decimal.NewFromInt(40)))
	require.Len(t, show.Reviews, 1)
	review := show.Reviews[0]
	require.True(t, review.Rating.Equal(decimal.NewFromInt(95)))
	require.Equal(t, "peak television", *review.Review.Text)
	require.Equal(t, models.VisibilityPublic, *review.Review.Visibility)

	require.Equal(t, []string{"Favourites"}, show.Collections)

	require.Len(t, export.People, 1)
	person := export.People[0]
	require.Equal(t, "Bryan Cranston", person.Name)
	require.Equal(t, "17419", person.Identifier)
	require.Len(t, person.Reviews, 1)
	require.Equal(t, []string{"Favourites"}, person.Collections)

	require.Len(t, export.Workouts, 1)
	require.Equal(t, "Push Day", export.Workouts[0].Name)
	require.Len(t, export.Measurements, 1)

	// One metadata row, one fetch, however many seen and review rows.
	require.Equal(t, 1, store.metadataFetches)
}

func TestWriteDocumentEmitsCollectionOnlyEntities(t *testing.T) {
	store := &fakeStore{
		metadata: map[string]*models.Metadata{
			"met_1": {ID: "met_1", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb, Identifier: "603", Title: "The Matrix"},
		},
		groups: map[string]*models.MetadataGroup{
			"meg_1": {ID: "meg_1", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb, Identifier: "2344", Title: "The Matrix Collection"},
		},
		collections: []*models.Collection{{ID: "col_1", UserID: "usr_1", Name: "Watchlist"}},
		members: map[string][]*models.CollectionToEntity{
			"col_1": {
				{CollectionID: "col_1", MetadataID: ptr("met_1")},
				{CollectionID: "col_1", MetadataGroupID: ptr("meg_1")},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, New(store, nil).WriteDocument(context.Background(), "usr_1", &buf))
	var export models.CompleteExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export), "document is not valid JSON:\n%s", buf.String())

	// A watchlisted movie with no seen rows or reviews still round-trips
	// through the media array with its membership attached.
	require.Len(t, export.Media, 1)
	require.Equal(t, "603", export.Media[0].Identifier)
	require.Empty(t, export.Media[0].SeenHistory)
	require.Equal(t, []string{"Watchlist"}, export.Media[0].Collections)

	require.Len(t, export.MediaGroups, 1)
	require.Equal(t, "The Matrix Collection", export.MediaGroups[0].Title)
	require.Equal(t, []string{"Watchlist"}, export.MediaGroups[0].Collections)
}

func TestWriteDocumentPagesSeenRows(t *testing.T) {
	store := &fakeStore{
		metadata: map[string]*models.Metadata{
			"met_1": {ID: "met_1", Lot: models.MediaLotAnime, Source: models.MediaSourceAnilist, Identifier: "1"},
		},
	}
	for i := 0; i < pageSize+5; i++ {
		episode := i + 1
		store.seen = append(store.seen, &models.Seen{
			MetadataID:            "met_1",
			State:                 models.SeenStateCompleted,
			Progress:              decimal.NewFromInt(100),
			AnimeExtraInformation: &models.SeenAnimeExtraInformation{Episode: &episode},
		})
	}

	var buf bytes.Buffer
	require.NoError(t, New(store, nil).WriteDocument(context.Background(), "usr_1", &buf))
	var export models.CompleteExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	require.Len(t, export.Media, 1)
	require.Len(t, export.Media[0].SeenHistory, pageSize+5)
}
