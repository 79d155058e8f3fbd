// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
)

type fakeStore struct {
	integrations []*models.Integration
	metadata     map[string]*models.Metadata
	finished     []*models.Seen

	triggers []models.IntegrationTriggerResult
}

func (s *fakeStore) ListEnabledIntegrationsByLot(_ context.Context, lot models.IntegrationLot) ([]*models.Integration, error) {
	var out []*models.Integration
	for _, integration := range s.integrations {
		if integration.Lot == lot && !integration.IsDisabled {
			out = append(out, integration)
		}
	}
	return out, nil
}

func (s *fakeStore) GetIntegrationBySlug(_ context.Context, slug string) (*models.Integration, error) {
	for _, integration := range s.integrations {
		if integration.Slug == slug {
			return integration, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) RecordIntegrationTrigger(_ context.Context, _ string, result models.IntegrationTriggerResult) error {
	s.triggers = append(s.triggers, result)
	return nil
}

func (s *fakeStore) CommitMetadata(_ context.Context, p models.PartialMetadata) (string, error) {
	return "met_" + p.Identifier, nil
}

func (s *fakeStore) GetMetadata(_ context.Context, id string) (*models.Metadata, error) {
	if meta, ok := s.metadata[id]; ok {
		return meta, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) ListFinishedSeen(_ context.Context, userID, metadataID string) ([]*models.Seen, error) {
	var out []*models.Seen
	for _, row := range s.finished {
		if row.UserID == userID && row.MetadataID == metadataID {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeEngine struct {
	updates []progress.UpdateInput
	errs    []error
}

func (e *fakeEngine) Update(_ context.Context, _ string, in progress.UpdateInput) (*models.Seen, error) {
	e.updates = append(e.updates, in)
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		return nil, err
	}
	return &models.Seen{}, nil
}

type fakeApplier struct {
	results []*models.ImportResult
	failed  []models.ImportFailedItem
}

func (a *fakeApplier) Apply(_ context.Context, _, _ string, result *models.ImportResult) []models.ImportFailedItem {
	a.results = append(a.results, result)
	return a.failed
}

func testManager(store *fakeStore, engine *fakeEngine) *Manager {
	return &Manager{
		store:   store,
		applier: &fakeApplier{},
		engine:  engine,
		timeout: time.Second,
	}
}

func TestWindowAction(t *testing.T) {
	low, high := 20, 95
	integration := &models.Integration{MinimumProgress: &low, MaximumProgress: &high}

	if got := windowAction(integration, nil); got != windowUpdate {
		t.Fatalf("nil progress = %v", got)
	}
	if got := windowAction(integration, ptr(decimal.NewFromInt(10))); got != windowSkip {
		t.Fatalf("below minimum = %v", got)
	}
	if got := windowAction(integration, ptr(decimal.NewFromInt(95))); got != windowComplete {
		t.Fatalf("at maximum = %v", got)
	}
	if got := windowAction(integration, ptr(decimal.NewFromInt(50))); got != windowUpdate {
		t.Fatalf("inside window = %v", got)
	}
	if got := windowAction(&models.Integration{}, ptr(decimal.NewFromInt(1))); got != windowUpdate {
		t.Fatalf("no window = %v", got)
	}
}

func TestApplyWindowRewritesSeenHistory(t *testing.T) {
	low, high := 20, 95
	integration := &models.Integration{MinimumProgress: &low, MaximumProgress: &high}
	result := &models.ImportResult{Completed: []models.ImportCompletedItem{{
		Metadata: &models.ImportOrExportMetadataItem{
			SeenHistory: []models.ImportOrExportMetadataItemSeen{
				{Progress: ptr(decimal.NewFromInt(10))},
				{Progress: ptr(decimal.NewFromInt(50))},
				{Progress: ptr(decimal.NewFromInt(99))},
			},
		},
	}}}

	testManager(&fakeStore{}, &fakeEngine{}).applyWindow(integration, result)

	history := result.Completed[0].Metadata.SeenHistory
	if len(history) != 2 {
		t.Fatalf("kept %d entries", len(history))
	}
	if !history[0].Progress.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("first kept = %v", history[0].Progress)
	}
	if !history[1].Progress.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("promoted = %v", history[1].Progress)
	}
}

const plexScrobblePayload = `{
	"event": "media.scrobble",
	"Account": {"title": "rick"},
	"Metadata": {
		"type": "movie",
		"title": "The Matrix",
		"Guid": [{"id": "imdb://tt0133093"}, {"id": "tmdb://603"}]
	}
}`

func TestProcessSinkPlexScrobble(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "abc123",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationPlexSink,
		Specifics: models.IntegrationProviderSpecifics{PlexSinkUsername: "rick"},
	}}}
	engine := &fakeEngine{errs: []error{progress.ErrNoInProgress}}

	err := testManager(store, engine).ProcessSink(context.Background(), "abc123", []byte(plexScrobblePayload))
	if err != nil {
		t.Fatal(err)
	}
	// A scrobble first tries to close an open row, then inserts a fresh
	// completed one when nothing was open.
	if len(engine.updates) != 2 || engine.updates[0].ChangeLatestInProgress == nil || engine.updates[1].CreateNewCompleted == nil {
		t.Fatalf("updates: %+v", engine.updates)
	}
	if engine.updates[1].MetadataID != "met_603" {
		t.Fatalf("metadata id = %s", engine.updates[1].MetadataID)
	}
	if len(store.triggers) != 1 || store.triggers[0].Error != nil {
		t.Fatalf("triggers: %+v", store.triggers)
	}
}

func TestProcessSinkScrobbleClosesOpenRow(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "abc123",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationPlexSink,
		Specifics: models.IntegrationProviderSpecifics{PlexSinkUsername: "rick"},
	}}}
	engine := &fakeEngine{}

	err := testManager(store, engine).ProcessSink(context.Background(), "abc123", []byte(plexScrobblePayload))
	if err != nil {
		t.Fatal(err)
	}
	if len(engine.updates) != 1 {
		t.Fatalf("updates: %+v", engine.updates)
	}
	latest := engine.updates[0].ChangeLatestInProgress
	if latest == nil || !latest.Progress.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("update: %+v", engine.updates[0])
	}
}

func TestProcessSinkScrobbleReplayDoesNotDuplicate(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "abc123",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationPlexSink,
		Specifics: models.IntegrationProviderSpecifics{PlexSinkUsername: "rick"},
	}}}
	engine := &fakeEngine{errs: []error{progress.ErrNoInProgress}}
	manager := testManager(store, engine)
	ctx := context.Background()

	if err := manager.ProcessSink(ctx, "abc123", []byte(plexScrobblePayload)); err != nil {
		t.Fatal(err)
	}
	if len(engine.updates) != 2 || engine.updates[1].CreateNewCompleted == nil {
		t.Fatalf("first delivery updates: %+v", engine.updates)
	}

	// The first delivery left a completed row behind; an identical
	// payload must not insert a second one.
	now := time.Now().UTC()
	store.finished = append(store.finished, &models.Seen{
		UserID: "usr_1", MetadataID: "met_603",
		State: models.SeenStateCompleted, FinishedOn: &now,
	})
	engine.errs = []error{progress.ErrNoInProgress}

	if err := manager.ProcessSink(ctx, "abc123", []byte(plexScrobblePayload)); err != nil {
		t.Fatal(err)
	}
	for _, update := range engine.updates[2:] {
		if update.CreateNewCompleted != nil {
			t.Fatalf("replay inserted a second completed row: %+v", engine.updates)
		}
	}
	if len(store.triggers) != 2 || store.triggers[1].Error != nil {
		t.Fatalf("triggers: %+v", store.triggers)
	}
}

func TestSeenMatchesUnit(t *testing.T) {
	s5, e14 := 5, 14
	episodeRow := &models.Seen{ShowExtraInformation: &models.SeenShowExtraInformation{Season: 5, Episode: 14}}
	movieRow := &models.Seen{}

	if !seenMatchesUnit(movieRow, nil, nil) {
		t.Error("unaddressed event must match a plain row")
	}
	if seenMatchesUnit(episodeRow, nil, nil) {
		t.Error("unaddressed event must not match an episode row")
	}
	if !seenMatchesUnit(episodeRow, &s5, &e14) {
		t.Error("same episode must match")
	}
	other := 2
	if seenMatchesUnit(episodeRow, &s5, &other) {
		t.Error("different episode must not match")
	}
	podcastRow := &models.Seen{PodcastExtraInformation: &models.SeenPodcastExtraInformation{Episode: 14}}
	if !seenMatchesUnit(podcastRow, nil, &e14) {
		t.Error("podcast episode must match on episode alone")
	}
}

func TestProcessSinkPlexIgnoresOtherAccounts(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "abc123",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationPlexSink,
		Specifics: models.IntegrationProviderSpecifics{PlexSinkUsername: "morty"},
	}}}
	engine := &fakeEngine{}

	err := testManager(store, engine).ProcessSink(context.Background(), "abc123", []byte(plexScrobblePayload))
	if err != nil {
		t.Fatal(err)
	}
	if len(engine.updates) != 0 {
		t.Fatalf("updates: %+v", engine.updates)
	}
	// Ignored payloads still count as a successful trigger.
	if len(store.triggers) != 1 || store.triggers[0].Error != nil {
		t.Fatalf("triggers: %+v", store.triggers)
	}
}

func TestProcessSinkJellyfinProgress(t *testing.T) {
	payload := `{
		"NotificationType": "PlaybackProgress",
		"Item": {
			"Type": "Episode", "Name": "Ozymandias", "SeriesName": "Breaking Bad",
			"ParentIndexNumber": 5, "IndexNumber": 14,
			"RunTimeTicks": 1000
		},
		"Series": {"ProviderIds": {"Tmdb": "1396"}},
		"PlaybackInfo": {"PositionTicks": 400}
	}`
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "jf",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationJellyfinSink,
	}}}
	engine := &fakeEngine{}

	if err := testManager(store, engine).ProcessSink(context.Background(), "jf", []byte(payload)); err != nil {
		t.Fatal(err)
	}
	if len(engine.updates) != 2 {
		t.Fatalf("updates = %d", len(engine.updates))
	}
	open := engine.updates[0].CreateNewInProgress
	if open == nil || *open.Common.ShowSeasonNumber != 5 || *open.Common.ShowEpisodeNumber != 14 {
		t.Fatalf("in-progress update: %+v", engine.updates[0])
	}
	latest := engine.updates[1].ChangeLatestInProgress
	if latest == nil || !latest.Progress.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("latest update: %+v", engine.updates[1])
	}
}

func TestProcessSinkGenericJsonWindowPromotion(t *testing.T) {
	high := 95
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1", Slug: "gen",
		Lot: models.IntegrationLotSink, Provider: models.IntegrationGenericJson,
		MaximumProgress: &high,
	}}}
	engine := &fakeEngine{errs: []error{progress.ErrNoInProgress}}

	payload := `{"lot": "movie", "source": "tmdb", "identifier": "603", "progress": 96}`
	if err := testManager(store, engine).ProcessSink(context.Background(), "gen", []byte(payload)); err != nil {
		t.Fatal(err)
	}
	if len(engine.updates) != 2 || engine.updates[1].CreateNewCompleted == nil {
		t.Fatalf("updates: %+v", engine.updates)
	}
}

func TestProcessSinkDisabledIntegration(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", Slug: "off", IsDisabled: true,
		Lot: models.IntegrationLotSink, Provider: models.IntegrationGenericJson,
	}}}

	err := testManager(store, &fakeEngine{}).ProcessSink(context.Background(), "off", []byte(`{}`))
	if !errors.Is(err, ErrIntegrationDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncRecordsFailedTriggers(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1",
		Lot: models.IntegrationLotYank, Provider: models.IntegrationRadarr,
	}}}

	if err := testManager(store, &fakeEngine{}).Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.triggers) != 1 || store.triggers[0].Error == nil {
		t.Fatalf("triggers: %+v", store.triggers)
	}
	if !strings.Contains(*store.triggers[0].Error, "not a yank provider") {
		t.Fatalf("error = %s", *store.triggers[0].Error)
	}
}

func TestSyncYoutubeMusicNeedsServerKey(t *testing.T) {
	store := &fakeStore{integrations: []*models.Integration{{
		ID: "int_1", UserID: "usr_1",
		Lot: models.IntegrationLotYank, Provider: models.IntegrationYoutubeMusic,
	}}}
	manager := testManager(store, &fakeEngine{})

	if err := manager.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.triggers) != 1 || store.triggers[0].Error == nil {
		t.Fatalf("triggers: %+v", store.triggers)
	}
	if !strings.Contains(*store.triggers[0].Error, "server key") {
		t.Fatalf("error = %s", *store.triggers[0].Error)
	}
}

func TestParseYoutubeMusicHistory(t *testing.T) {
	response := `{
		"contents": {"sections": [
			{"musicShelfRenderer": {
				"title": {"runs": [{"text": "Today"}]},
				"contents": [
					{"musicResponsiveListItemRenderer": {
						"flexColumns": [{"musicResponsiveListItemFlexColumnRenderer": {
							"text": {"runs": [{"text": "Bohemian Rhapsody",
								"navigationEndpoint": {"watchEndpoint": {"videoId": "fJ9rUzIMcZQ"}}}]}
						}}]
					}},
					{"musicResponsiveListItemRenderer": {
						"flexColumns": [{"musicResponsiveListItemFlexColumnRenderer": {
							"text": {"runs": [{"text": "Bohemian Rhapsody",
								"navigationEndpoint": {"watchEndpoint": {"videoId": "fJ9rUzIMcZQ"}}}]}
						}}]
					}}
				]
			}},
			{"musicShelfRenderer": {
				"title": {"runs": [{"text": "Yesterday"}]},
				"contents": [{"musicResponsiveListItemRenderer": {
					"flexColumns": [{"musicResponsiveListItemFlexColumnRenderer": {
						"text": {"runs": [{"text": "Old Song",
							"navigationEndpoint": {"watchEndpoint": {"videoId": "zzz"}}}]}
					}}]
				}}]
			}}
		]}
	}`

	songs, err := parseYoutubeMusicHistory([]byte(response))
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 1 {
		t.Fatalf("songs: %+v", songs)
	}
	if songs[0].videoID != "fJ9rUzIMcZQ" || songs[0].title != "Bohemian Rhapsody" {
		t.Fatalf("song: %+v", songs[0])
	}
}

func TestParsePlexSinkPauseComputesPercent(t *testing.T) {
	payload := `{
		"event": "media.pause",
		"Account": {"title": "rick"},
		"Metadata": {
			"type": "movie", "title": "The Matrix",
			"viewOffset": 3600000, "duration": 7200000,
			"Guid": [{"id": "tmdb://603"}]
		}
	}`
	integration := &models.Integration{Provider: models.IntegrationPlexSink}
	events, err := parsePlexSink(integration, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events: %+v", events)
	}
	if !events[0].Progress.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("progress = %v", events[0].Progress)
	}
	if events[0].Lot != models.MediaLotMovie || events[0].Identifier != "603" {
		t.Fatalf("event: %+v", events[0])
	}
}
