// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

type fakeStore struct {
	metadata map[string]*models.Metadata
	people   map[string]*models.Person
	groups   map[string]*models.MetadataGroup

	updated     []*models.Metadata
	genres      map[string][]string
	peopleEdge  map[string][]models.MetadataToPerson
	personRoles map[string][]models.MetadataToPerson
	committed   []models.PartialMetadata
	groupParts  map[string][]string
	calendar    map[string][]models.CalendarEvent
	monitored   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metadata:    map[string]*models.Metadata{},
		people:      map[string]*models.Person{},
		groups:      map[string]*models.MetadataGroup{},
		genres:      map[string][]string{},
		peopleEdge:  map[string][]models.MetadataToPerson{},
		personRoles: map[string][]models.MetadataToPerson{},
		groupParts:  map[string][]string{},
		calendar:    map[string][]models.CalendarEvent{},
	}
}

func (s *fakeStore) GetMetadata(_ context.Context, id string) (*models.Metadata, error) {
	return s.metadata[id], nil
}

func (s *fakeStore) UpdateMetadataDetails(_ context.Context, m *models.Metadata) error {
	s.metadata[m.ID] = m
	s.updated = append(s.updated, m)
	return nil
}

func (s *fakeStore) UpsertGenre(_ context.Context, name string) (string, error) {
	return "gen_" + name, nil
}

func (s *fakeStore) ReplaceMetadataGenres(_ context.Context, metadataID string, genreIDs []string) error {
	s.genres[metadataID] = genreIDs
	return nil
}

func (s *fakeStore) CommitPerson(_ context.Context, identifier string, _ models.MediaSource, _ string, _ *models.PersonSourceSpecifics) (string, error) {
	return "per_" + identifier, nil
}

func (s *fakeStore) ReplaceMetadataPeople(_ context.Context, metadataID string, edges []models.MetadataToPerson) error {
	s.peopleEdge[metadataID] = edges
	return nil
}

func (s *fakeStore) CommitMetadata(_ context.Context, p models.PartialMetadata) (string, error) {
	s.committed = append(s.committed, p)
	return "met_" + p.Identifier, nil
}

func (s *fakeStore) CommitMetadataGroup(_ context.Context, _ models.MediaLot, _ models.MediaSource, identifier, _ string) (string, error) {
	return "meg_" + identifier, nil
}

func (s *fakeStore) AssociateMetadataGroup(_ context.Context, metadataID, groupID string, _ int) error {
	s.groupParts[groupID] = append(s.groupParts[groupID], metadataID)
	return nil
}

func (s *fakeStore) ReplaceCalendarEvents(_ context.Context, metadataID string, events []models.CalendarEvent) error {
	s.calendar[metadataID] = events
	return nil
}

func (s *fakeStore) ListMonitoredMetadataIDs(_ context.Context) ([]string, error) {
	return s.monitored, nil
}

func (s *fakeStore) GetPerson(_ context.Context, id string) (*models.Person, error) {
	return s.people[id], nil
}

func (s *fakeStore) UpdatePersonDetails(_ context.Context, p *models.Person) error {
	s.people[p.ID] = p
	return nil
}

func (s *fakeStore) ListPersonMetadata(_ context.Context, personID string) ([]models.MetadataToPerson, error) {
	return s.personRoles[personID], nil
}

func (s *fakeStore) GetMetadataGroup(_ context.Context, id string) (*models.MetadataGroup, error) {
	return s.groups[id], nil
}

func (s *fakeStore) UpdateMetadataGroupDetails(_ context.Context, g *models.MetadataGroup) error {
	s.groups[g.ID] = g
	return nil
}

type fakeProvider struct {
	source  models.MediaSource
	details *models.MetadataDetails
	err     error
}

func (p *fakeProvider) Source() models.MediaSource { return p.source }
func (p *fakeProvider) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotMovie, models.MediaLotShow}
}

func (p *fakeProvider) SearchMedia(context.Context, string, models.MediaLot, int, bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	return nil, providers.ErrUnsupportedOperation
}

func (p *fakeProvider) MediaDetails(context.Context, string, models.MediaLot) (*models.MetadataDetails, error) {
	return p.details, p.err
}

type fakePeopleProvider struct {
	fakeProvider
	person *models.PersonDetails
}

func (p *fakePeopleProvider) SearchPeople(context.Context, string, int, *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	return nil, providers.ErrUnsupportedOperation
}

func (p *fakePeopleProvider) PersonDetails(context.Context, string, *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	return p.person, p.err
}

type fakeCatalog struct{ provider providers.MediaProvider }

func (c *fakeCatalog) Get(models.MediaSource, models.MediaLot) (providers.MediaProvider, error) {
	return c.provider, nil
}

func (c *fakeCatalog) GetAny(models.MediaSource) (providers.MediaProvider, error) {
	return c.provider, nil
}

type fakeMonitor struct {
	sent []models.UserNotificationContent
}

func (m *fakeMonitor) NotifyMonitors(_ context.Context, content models.UserNotificationContent) error {
	m.sent = append(m.sent, content)
	return nil
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFirstFillClearsPartialWithoutNotifying(t *testing.T) {
	store := newFakeStore()
	store.metadata["met_1"] = &models.Metadata{
		ID: "met_1", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
		Identifier: "603", Title: "603", IsPartial: true,
	}
	monitor := &fakeMonitor{}
	catalog := &fakeCatalog{provider: &fakeProvider{
		source: models.MediaSourceTmdb,
		details: &models.MetadataDetails{
			Title:            "The Matrix",
			PublishDate:      date(1999, time.March, 31),
			ProductionStatus: ptr("Released"),
			Genres:           []string{"Action", "Sci-Fi"},
			People: []models.PartialMetadataPerson{
				{Source: models.MediaSourceTmdb, Identifier: "6384", Name: "Keanu Reeves", Role: "Actor"},
			},
		},
	}}

	r := New(store, catalog, monitor, nil)
	if err := r.UpdateMetadata(context.Background(), "met_1"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	got := store.metadata["met_1"]
	if got.IsPartial {
		t.Error("row still partial after refresh")
	}
	if got.Title != "The Matrix" {
		t.Errorf("title = %q", got.Title)
	}
	if len(monitor.sent) != 0 {
		t.Errorf("first fill notified %d changes, want 0", len(monitor.sent))
	}
	if len(store.genres["met_1"]) != 2 {
		t.Errorf("genres = %v", store.genres["met_1"])
	}
	if len(store.peopleEdge["met_1"]) != 1 || store.peopleEdge["met_1"][0].PersonID != "per_6384" {
		t.Errorf("people edges = %v", store.peopleEdge["met_1"])
	}
	if len(store.calendar["met_1"]) != 1 {
		t.Errorf("calendar events = %d, want 1", len(store.calendar["met_1"]))
	}
}

func TestRefreshExpiresCachedDetailViews(t *testing.T) {
	store := newFakeStore()
	store.metadata["met_1"] = &models.Metadata{
		ID: "met_1", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
		Identifier: "603", Title: "Old Title", IsPartial: false,
	}
	catalog := &fakeCatalog{provider: &fakeProvider{
		source:  models.MediaSourceTmdb,
		details: &models.MetadataDetails{Title: "New Title"},
	}}

	memCache := cache.New(time.Minute)
	t.Cleanup(memCache.Close)
	memCache.SetKey(cache.MetadataDetailsKey("met_1"), "stale details")
	memCache.SetKey(cache.UserMetadataDetailsKey("usr_1", "met_1"), "stale view")
	memCache.SetKey(cache.UserMetadataDetailsKey("usr_2", "met_1"), "stale view")
	memCache.SetKey(cache.UserMetadataDetailsKey("usr_1", "met_other"), "unrelated")

	r := New(store, catalog, nil, memCache)
	if err := r.UpdateMetadata(context.Background(), "met_1"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	if _, ok := memCache.GetValue(cache.MetadataDetailsKey("met_1")); ok {
		t.Error("metadata details survived the refresh")
	}
	if _, ok := memCache.GetValue(cache.UserMetadataDetailsKey("usr_1", "met_1")); ok {
		t.Error("usr_1 view survived the refresh")
	}
	if _, ok := memCache.GetValue(cache.UserMetadataDetailsKey("usr_2", "met_1")); ok {
		t.Error("usr_2 view survived the refresh")
	}
	if _, ok := memCache.GetValue(cache.UserMetadataDetailsKey("usr_1", "met_other")); !ok {
		t.Error("unrelated row was expired")
	}
}

func TestRefreshOfFullRowNotifiesChanges(t *testing.T) {
	store := newFakeStore()
	store.metadata["met_2"] = &models.Metadata{
		ID: "met_2", Lot: models.MediaLotShow, Source: models.MediaSourceTmdb,
		Identifier: "1396", Title: "Severance", IsPartial: false,
		ShowSpecifics: &models.ShowSpecifics{TotalSeasons: 1, TotalEpisodes: 9},
	}
	monitor := &fakeMonitor{}
	catalog := &fakeCatalog{provider: &fakeProvider{
		source: models.MediaSourceTmdb,
		details: &models.MetadataDetails{
			Title:         "Severance",
			ShowSpecifics: &models.ShowSpecifics{TotalSeasons: 2, TotalEpisodes: 19},
		},
	}}

	r := New(store, catalog, monitor, nil)
	if err := r.UpdateMetadata(context.Background(), "met_2"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	if len(monitor.sent) != 2 {
		t.Fatalf("notified %d changes, want 2 (seasons + episodes)", len(monitor.sent))
	}
	changes := map[models.MediaStateChanged]bool{}
	for _, c := range monitor.sent {
		changes[c.Change] = true
		if c.EntityID != "met_2" || c.EntityTitle != "Severance" {
			t.Errorf("change addressing = %+v", c)
		}
	}
	if !changes[models.ChangeMetadataNumberOfSeasonsChanged] || !changes[models.ChangeMetadataEpisodeReleased] {
		t.Errorf("change kinds = %v", changes)
	}
}

func TestProviderForgettingEntityKeepsStoredDetails(t *testing.T) {
	store := newFakeStore()
	store.metadata["met_3"] = &models.Metadata{
		ID: "met_3", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
		Identifier: "999", Title: "Kept", IsPartial: false,
	}
	catalog := &fakeCatalog{provider: &fakeProvider{err: providers.ErrNotFoundByProvider}}

	r := New(store, catalog, nil, nil)
	if err := r.UpdateMetadata(context.Background(), "met_3"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if len(store.updated) != 0 {
		t.Error("row was rewritten despite provider 404")
	}
}

func TestCustomMetadataIsNeverRefreshed(t *testing.T) {
	store := newFakeStore()
	store.metadata["met_4"] = &models.Metadata{
		ID: "met_4", Lot: models.MediaLotBook, Source: models.MediaSourceCustom,
		Identifier: "met_4", Title: "My Manuscript",
	}

	r := New(store, &fakeCatalog{}, nil, nil)
	if err := r.UpdateMetadata(context.Background(), "met_4"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if len(store.updated) != 0 {
		t.Error("custom row was refreshed")
	}
}

func TestCalendarEventsForShowSkipsSpecialsAndUndated(t *testing.T) {
	m := &models.Metadata{
		ID:  "met_5",
		Lot: models.MediaLotShow,
		ShowSpecifics: &models.ShowSpecifics{
			Seasons: []models.ShowSeason{
				{SeasonNumber: 0, Episodes: []models.ShowEpisode{
					{EpisodeNumber: 1, PublishDate: date(2024, time.January, 1)},
				}},
				{SeasonNumber: 1, Episodes: []models.ShowEpisode{
					{EpisodeNumber: 1, PublishDate: date(2024, time.February, 1)},
					{EpisodeNumber: 2, PublishDate: date(2024, time.February, 8)},
					{EpisodeNumber: 3},
				}},
			},
		},
	}

	events := CalendarEventsFor(m)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	for _, ev := range events {
		if ev.ShowSeasonNumber == nil || *ev.ShowSeasonNumber != 1 {
			t.Errorf("event season = %v", ev.ShowSeasonNumber)
		}
	}

	// Deterministic ids make rebuilds converge.
	again := CalendarEventsFor(m)
	if events[0].ID != again[0].ID || events[1].ID != again[1].ID {
		t.Error("event ids differ between rebuilds")
	}
}

func TestCalendarEventsForPodcastAndPlainRelease(t *testing.T) {
	podcast := &models.Metadata{
		ID:  "met_6",
		Lot: models.MediaLotPodcast,
		PodcastSpecifics: &models.PodcastSpecifics{
			TotalEpisodes: 2,
			Episodes: []models.PodcastEpisode{
				{Number: 1, PublishDate: date(2024, time.March, 1)},
				{Number: 2},
			},
		},
	}
	events := CalendarEventsFor(podcast)
	if len(events) != 1 || events[0].PodcastEpisodeNumber == nil || *events[0].PodcastEpisodeNumber != 1 {
		t.Fatalf("podcast events = %+v", events)
	}

	movie := &models.Metadata{ID: "met_7", Lot: models.MediaLotMovie, PublishDate: date(2026, time.June, 1)}
	events = CalendarEventsFor(movie)
	if len(events) != 1 || events[0].ShowSeasonNumber != nil || events[0].PodcastEpisodeNumber != nil {
		t.Fatalf("movie events = %+v", events)
	}

	if got := CalendarEventsFor(&models.Metadata{ID: "met_8"}); len(got) != 0 {
		t.Errorf("undated row produced %d events", len(got))
	}
}

func TestRecalculateCalendarEventsSweepsMonitoredRows(t *testing.T) {
	store := newFakeStore()
	store.monitored = []string{"met_9", "met_10"}
	store.metadata["met_9"] = &models.Metadata{ID: "met_9", PublishDate: date(2025, time.May, 5)}
	store.metadata["met_10"] = &models.Metadata{ID: "met_10"}

	r := New(store, &fakeCatalog{}, nil, nil)
	if err := r.RecalculateCalendarEvents(context.Background()); err != nil {
		t.Fatalf("RecalculateCalendarEvents: %v", err)
	}
	if len(store.calendar["met_9"]) != 1 {
		t.Errorf("met_9 events = %d, want 1", len(store.calendar["met_9"]))
	}
	if len(store.calendar["met_10"]) != 0 {
		t.Errorf("met_10 events = %d, want 0", len(store.calendar["met_10"]))
	}
}

func TestPersonRefreshNotifiesNewRolesOnly(t *testing.T) {
	store := newFakeStore()
	store.people["per_1"] = &models.Person{
		ID: "per_1", Source: models.MediaSourceTmdb, Identifier: "99",
		Name: "Jane Doe", IsPartial: false,
	}
	store.personRoles["per_1"] = []models.MetadataToPerson{{MetadataID: "met_known", PersonID: "per_1"}}

	provider := &fakePeopleProvider{
		fakeProvider: fakeProvider{source: models.MediaSourceTmdb},
		person: &models.PersonDetails{
			Identifier: "99", Source: models.MediaSourceTmdb, Name: "Jane Doe",
			RelatedMetadata: []models.PersonDetailsRelatedMetadata{
				{Role: "Actor", Metadata: models.PartialMetadata{
					Identifier: "known", Lot: models.MediaLotMovie,
					Source: models.MediaSourceTmdb, Title: "Known Movie",
				}},
				{Role: "Director", Metadata: models.PartialMetadata{
					Identifier: "fresh", Lot: models.MediaLotMovie,
					Source: models.MediaSourceTmdb, Title: "Fresh Movie",
				}},
			},
		},
	}
	monitor := &fakeMonitor{}

	r := New(store, &fakeCatalog{provider: provider}, monitor, nil)
	if err := r.UpdatePerson(context.Background(), "per_1"); err != nil {
		t.Fatalf("UpdatePerson: %v", err)
	}
	if len(monitor.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(monitor.sent))
	}
	got := monitor.sent[0]
	if got.Change != models.ChangePersonMediaAssociated || got.EntityID != "per_1" {
		t.Errorf("notification = %+v", got)
	}
	if len(store.committed) != 2 {
		t.Errorf("committed stubs = %d, want 2", len(store.committed))
	}
}

func TestPersonFirstFillDoesNotNotify(t *testing.T) {
	store := newFakeStore()
	store.people["per_2"] = &models.Person{
		ID: "per_2", Source: models.MediaSourceTmdb, Identifier: "7",
		Name: "New Face", IsPartial: true,
	}
	provider := &fakePeopleProvider{
		fakeProvider: fakeProvider{source: models.MediaSourceTmdb},
		person: &models.PersonDetails{
			Identifier: "7", Source: models.MediaSourceTmdb, Name: "New Face",
			RelatedMetadata: []models.PersonDetailsRelatedMetadata{
				{Role: "Actor", Metadata: models.PartialMetadata{
					Identifier: "x", Lot: models.MediaLotMovie,
					Source: models.MediaSourceTmdb, Title: "Some Movie",
				}},
			},
		},
	}
	monitor := &fakeMonitor{}

	r := New(store, &fakeCatalog{provider: provider}, monitor, nil)
	if err := r.UpdatePerson(context.Background(), "per_2"); err != nil {
		t.Fatalf("UpdatePerson: %v", err)
	}
	if len(monitor.sent) != 0 {
		t.Errorf("first fill notified %d times", len(monitor.sent))
	}
	if store.people["per_2"].IsPartial {
		t.Errorf("person still partial after fill")
	}
}
