// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package refresh fills partial catalog rows from their provider and
// keeps full rows current. A refresh re-fetches the details, diffs them
// against the stored snapshot for the monitoring fan-out, replaces the
// derived associations (genres, people, groups) and rebuilds the
// calendar events of the entity. Refreshes are idempotent; the scheduler
// re-runs them on a cadence.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/monitoring"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// Store is the persistence surface a refresh touches. *database.DB
// satisfies it.
type Store interface {
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	UpdateMetadataDetails(ctx context.Context, m *models.Metadata) error
	UpsertGenre(ctx context.Context, name string) (string, error)
	ReplaceMetadataGenres(ctx context.Context, metadataID string, genreIDs []string) error
	CommitPerson(ctx context.Context, identifier string, source models.MediaSource, name string, specifics *models.PersonSourceSpecifics) (string, error)
	ReplaceMetadataPeople(ctx context.Context, metadataID string, edges []models.MetadataToPerson) error
	CommitMetadata(ctx context.Context, p models.PartialMetadata) (string, error)
	CommitMetadataGroup(ctx context.Context, lot models.MediaLot, source models.MediaSource, identifier, title string) (string, error)
	AssociateMetadataGroup(ctx context.Context, metadataID, groupID string, part int) error
	ReplaceCalendarEvents(ctx context.Context, metadataID string, events []models.CalendarEvent) error
	ListMonitoredMetadataIDs(ctx context.Context) ([]string, error)

	GetPerson(ctx context.Context, id string) (*models.Person, error)
	UpdatePersonDetails(ctx context.Context, p *models.Person) error
	ListPersonMetadata(ctx context.Context, personID string) ([]models.MetadataToPerson, error)
	GetMetadataGroup(ctx context.Context, id string) (*models.MetadataGroup, error)
	UpdateMetadataGroupDetails(ctx context.Context, g *models.MetadataGroup) error
}

// Catalog resolves provider adapters. *providers.Registry satisfies it.
type Catalog interface {
	Get(source models.MediaSource, lot models.MediaLot) (providers.MediaProvider, error)
	GetAny(source models.MediaSource) (providers.MediaProvider, error)
}

// Notifier fans observed changes out to monitoring users.
// *monitoring.Monitor satisfies it.
type Notifier interface {
	NotifyMonitors(ctx context.Context, content models.UserNotificationContent) error
}

// Cache is the slice of *cache.Cache a refresh invalidates when it
// rewrites a row. May be nil.
type Cache interface {
	ExpireKey(key cache.Key)
	ExpireWhere(pred func(key string) bool) int
}

// Refresher owns the fetch-diff-store pipeline.
type Refresher struct {
	store   Store
	catalog Catalog
	monitor Notifier
	cache   Cache
}

// New builds a refresher. monitor may be nil to skip the fan-out and
// c may be nil to skip cache invalidation.
func New(store Store, catalog Catalog, monitor Notifier, c Cache) *Refresher {
	return &Refresher{store: store, catalog: catalog, monitor: monitor, cache: c}
}

// UpdateMetadata re-fetches one metadata row from its provider, stores
// the fresh details and notifies monitoring users of observed changes.
// The first fill of a partial row is not a change, so it never notifies.
func (r *Refresher) UpdateMetadata(ctx context.Context, metadataID string) error {
	old, err := r.store.GetMetadata(ctx, metadataID)
	if err != nil {
		return err
	}
	if old.Source == models.MediaSourceCustom {
		return nil
	}
	provider, err := r.catalog.Get(old.Source, old.Lot)
	if err != nil {
		return err
	}
	details, err := provider.MediaDetails(ctx, old.Identifier, old.Lot)
	if err != nil {
		if errors.Is(err, providers.ErrNotFoundByProvider) {
			logging.Warn().Str("metadata_id", metadataID).Str("source", string(old.Source)).
				Msg("Provider no longer knows entity, leaving stored details")
			return nil
		}
		return fmt.Errorf("refresh: fetch %s: %w", metadataID, err)
	}

	fresh := applyDetails(old, details)
	var changes []models.UserNotificationContent
	if !old.IsPartial {
		changes = monitoring.Diff(old, fresh)
	}

	if err := r.store.UpdateMetadataDetails(ctx, fresh); err != nil {
		return err
	}
	if r.cache != nil {
		// Every cached view of the row is stale now, for every user.
		r.cache.ExpireKey(cache.MetadataDetailsKey(metadataID))
		r.cache.ExpireWhere(func(key string) bool {
			return cache.UserMetadataDetailsKeyMatches(key, metadataID)
		})
	}
	if err := r.storeAssociations(ctx, metadataID, details); err != nil {
		return err
	}
	if err := r.store.ReplaceCalendarEvents(ctx, metadataID, CalendarEventsFor(fresh)); err != nil {
		return err
	}

	if r.monitor != nil {
		for _, change := range changes {
			if err := r.monitor.NotifyMonitors(ctx, change); err != nil {
				logging.Err(err).Str("metadata_id", metadataID).
					Str("change", string(change.Change)).Msg("Monitor fan-out failed")
			}
		}
	}
	return nil
}

// storeAssociations replaces the derived edges of a metadata row. Person
// and group stubs are committed partial; the periodic refresh sweep picks
// them up, so nothing is enqueued here.
func (r *Refresher) storeAssociations(ctx context.Context, metadataID string, details *models.MetadataDetails) error {
	if len(details.Genres) > 0 {
		genreIDs := make([]string, 0, len(details.Genres))
		for _, name := range details.Genres {
			id, err := r.store.UpsertGenre(ctx, name)
			if err != nil {
				return err
			}
			genreIDs = append(genreIDs, id)
		}
		if err := r.store.ReplaceMetadataGenres(ctx, metadataID, genreIDs); err != nil {
			return err
		}
	}

	if len(details.People) > 0 {
		edges := make([]models.MetadataToPerson, 0, len(details.People))
		for i, p := range details.People {
			personID, err := r.store.CommitPerson(ctx, p.Identifier, p.Source, p.Name, p.SourceSpecifics)
			if err != nil {
				return err
			}
			edges = append(edges, models.MetadataToPerson{
				MetadataID: metadataID,
				PersonID:   personID,
				Role:       p.Role,
				Character:  p.Character,
				Index:      i,
			})
		}
		if err := r.store.ReplaceMetadataPeople(ctx, metadataID, edges); err != nil {
			return err
		}
	}

	for _, g := range details.Groups {
		groupID, err := r.store.CommitMetadataGroup(ctx, g.Lot, g.Source, g.Identifier, g.Title)
		if err != nil {
			return err
		}
		if err := r.store.AssociateMetadataGroup(ctx, metadataID, groupID, g.Part); err != nil {
			return err
		}
	}

	for _, s := range details.Suggestions {
		if _, err := r.store.CommitMetadata(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// applyDetails builds the row that replaces old: identity fields kept,
// every provider-sourced field taken from the fresh fetch.
func applyDetails(old *models.Metadata, d *models.MetadataDetails) *models.Metadata {
	fresh := *old
	fresh.Title = d.Title
	fresh.Description = d.Description
	fresh.PublishYear = d.PublishYear
	fresh.PublishDate = d.PublishDate
	fresh.IsNsfw = d.IsNsfw
	fresh.IsPartial = false
	fresh.ProviderRating = d.ProviderRating
	fresh.SourceURL = d.SourceURL
	fresh.OriginalLanguage = d.OriginalLanguage
	fresh.ProductionStatus = d.ProductionStatus
	fresh.Assets = d.Assets
	fresh.ExternalIdentifiers = d.ExternalIdentifiers
	fresh.WatchProviders = d.WatchProviders
	fresh.FreeCreators = d.Creators
	fresh.ShowSpecifics = d.ShowSpecifics
	fresh.PodcastSpecifics = d.PodcastSpecifics
	fresh.BookSpecifics = d.BookSpecifics
	fresh.MovieSpecifics = d.MovieSpecifics
	fresh.AnimeSpecifics = d.AnimeSpecifics
	fresh.MangaSpecifics = d.MangaSpecifics
	fresh.AudioBookSpecifics = d.AudioBookSpecifics
	fresh.VideoGameSpecifics = d.VideoGameSpecifics
	fresh.VisualNovelSpecifics = d.VisualNovelSpecifics
	fresh.MusicSpecifics = d.MusicSpecifics
	return &fresh
}

// UpdatePerson re-fetches one person row. Providers without people
// support leave the row as committed. Once the row has been filled,
// roles on media it was not linked to before notify monitoring users.
func (r *Refresher) UpdatePerson(ctx context.Context, personID string) error {
	person, err := r.store.GetPerson(ctx, personID)
	if err != nil {
		return err
	}
	adapter, err := r.catalog.GetAny(person.Source)
	if err != nil {
		return err
	}
	pp, ok := adapter.(providers.PeopleProvider)
	if !ok {
		return nil
	}
	details, err := pp.PersonDetails(ctx, person.Identifier, person.SourceSpecifics)
	if err != nil {
		if errors.Is(err, providers.ErrNotFoundByProvider) {
			return nil
		}
		return fmt.Errorf("refresh: fetch person %s: %w", personID, err)
	}

	var known map[string]bool
	if !person.IsPartial && r.monitor != nil {
		edges, err := r.store.ListPersonMetadata(ctx, personID)
		if err != nil {
			return err
		}
		known = make(map[string]bool, len(edges))
		for _, e := range edges {
			known[e.MetadataID] = true
		}
	}

	person.Name = details.Name
	person.Description = details.Description
	person.Gender = details.Gender
	person.BirthDate = details.BirthDate
	person.DeathDate = details.DeathDate
	person.Place = details.Place
	person.Website = details.Website
	person.Assets = details.Assets
	person.SourceURL = details.SourceURL
	person.IsPartial = false
	if err := r.store.UpdatePersonDetails(ctx, person); err != nil {
		return err
	}

	// Related media become partial stubs for the sweep.
	for _, rel := range details.RelatedMetadata {
		metadataID, err := r.store.CommitMetadata(ctx, rel.Metadata)
		if err != nil {
			return err
		}
		if known == nil || known[metadataID] {
			continue
		}
		change := monitoring.PersonMediaAssociated(personID, person.Name, rel.Metadata.Title, rel.Role)
		if err := r.monitor.NotifyMonitors(ctx, change); err != nil {
			logging.Err(err).Str("person_id", personID).Msg("Monitor fan-out failed")
		}
	}
	return nil
}

// UpdateMetadataGroup re-fetches one group row and commits its parts.
func (r *Refresher) UpdateMetadataGroup(ctx context.Context, groupID string) error {
	group, err := r.store.GetMetadataGroup(ctx, groupID)
	if err != nil {
		return err
	}
	adapter, err := r.catalog.GetAny(group.Source)
	if err != nil {
		return err
	}
	gp, ok := adapter.(providers.GroupProvider)
	if !ok {
		return nil
	}
	details, err := gp.GroupDetails(ctx, group.Identifier, group.Lot)
	if err != nil {
		if errors.Is(err, providers.ErrNotFoundByProvider) {
			return nil
		}
		return fmt.Errorf("refresh: fetch group %s: %w", groupID, err)
	}

	group.Title = details.Group.Title
	group.Description = details.Group.Description
	group.Parts = len(details.Parts)
	group.Assets = details.Group.Assets
	group.SourceURL = details.Group.SourceURL
	group.IsPartial = false
	if err := r.store.UpdateMetadataGroupDetails(ctx, group); err != nil {
		return err
	}

	for i, part := range details.Parts {
		partID, err := r.store.CommitMetadata(ctx, part)
		if err != nil {
			return err
		}
		if err := r.store.AssociateMetadataGroup(ctx, partID, groupID, i+1); err != nil {
			return err
		}
	}
	return nil
}

// RecalculateCalendarEvents rebuilds the derived release-date table for
// every monitored metadata row.
func (r *Refresher) RecalculateCalendarEvents(ctx context.Context) error {
	ids, err := r.store.ListMonitoredMetadataIDs(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, id := range ids {
		m, err := r.store.GetMetadata(ctx, id)
		if err != nil {
			failed++
			logging.Err(err).Str("metadata_id", id).Msg("Calendar rebuild skipped row")
			continue
		}
		if err := r.store.ReplaceCalendarEvents(ctx, id, CalendarEventsFor(m)); err != nil {
			failed++
			logging.Err(err).Str("metadata_id", id).Msg("Calendar rebuild failed for row")
		}
	}
	if failed > 0 {
		return fmt.Errorf("refresh: calendar rebuild failed for %d of %d rows", failed, len(ids))
	}
	return nil
}

// CalendarEventsFor derives the release-date rows of one metadata row:
// one per dated show episode (specials excluded), one per dated podcast
// episode, or a single row on the publish date otherwise. Event ids are
// deterministic so rebuilds converge.
func CalendarEventsFor(m *models.Metadata) []models.CalendarEvent {
	var out []models.CalendarEvent

	switch {
	case m.ShowSpecifics != nil:
		for si := range m.ShowSpecifics.Seasons {
			season := &m.ShowSpecifics.Seasons[si]
			if season.SeasonNumber == 0 {
				continue
			}
			for ei := range season.Episodes {
				episode := &season.Episodes[ei]
				if episode.PublishDate == nil {
					continue
				}
				sn, en := season.SeasonNumber, episode.EpisodeNumber
				out = append(out, models.CalendarEvent{
					ID: models.DeterministicID(models.PrefixCalendarEvent,
						m.ID, fmt.Sprintf("s%d", sn), fmt.Sprintf("e%d", en)),
					MetadataID:        m.ID,
					Date:              *episode.PublishDate,
					ShowSeasonNumber:  &sn,
					ShowEpisodeNumber: &en,
				})
			}
		}
	case m.PodcastSpecifics != nil:
		for i := range m.PodcastSpecifics.Episodes {
			episode := &m.PodcastSpecifics.Episodes[i]
			if episode.PublishDate == nil {
				continue
			}
			num := episode.Number
			out = append(out, models.CalendarEvent{
				ID: models.DeterministicID(models.PrefixCalendarEvent,
					m.ID, fmt.Sprintf("p%d", num)),
				MetadataID:           m.ID,
				Date:                 *episode.PublishDate,
				PodcastEpisodeNumber: &num,
			})
		}
	default:
		if m.PublishDate != nil {
			out = append(out, models.CalendarEvent{
				ID:         models.DeterministicID(models.PrefixCalendarEvent, m.ID, "release"),
				MetadataID: m.ID,
				Date:       *m.PublishDate,
			})
		}
	}
	return out
}
