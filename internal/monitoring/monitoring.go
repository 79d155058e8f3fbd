// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package monitoring turns metadata refreshes into user notifications.
// Diff computes what changed between the stored and freshly fetched
// details; NotifyMonitors fans each change out to the users whose
// Monitoring collection holds the entity.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// Store is the persistence surface the monitor needs. *database.DB
// satisfies it.
type Store interface {
	WithAdvisoryLock(ctx context.Context, fn func(ctx context.Context) error, scope ...string) error
	ListMonitoringUsers(ctx context.Context, entityID string) ([]models.MonitoredEntity, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUserNotificationPlatforms(ctx context.Context, userID string) ([]*models.NotificationPlatform, error)
	TouchCollectionEntity(ctx context.Context, edgeID string) error
}

// Sender delivers one rendered message. *notifications.Sender satisfies
// it.
type Sender interface {
	Send(ctx context.Context, platform *models.NotificationPlatform, msg string) error
}

// Monitor owns the diff-and-deliver pipeline.
type Monitor struct {
	store  Store
	sender Sender
}

func New(store Store, sender Sender) *Monitor {
	return &Monitor{store: store, sender: sender}
}

// Diff compares the stored metadata against a fresh provider fetch and
// returns one notification per observed change kind. The content carries
// everything needed to render the message so delivery never reads the
// database again.
func Diff(old, fresh *models.Metadata) []models.UserNotificationContent {
	var changes []models.UserNotificationContent
	add := func(change models.MediaStateChanged, format string, args ...any) {
		changes = append(changes, models.UserNotificationContent{
			Change:      change,
			EntityID:    fresh.ID,
			EntityLot:   models.EntityLotMetadata,
			EntityTitle: fresh.Title,
			Message:     fmt.Sprintf("%s: %s", fresh.Title, fmt.Sprintf(format, args...)),
		})
	}

	if old.PublishDate == nil && fresh.PublishDate != nil && !fresh.PublishDate.After(time.Now()) {
		add(models.ChangeMetadataPublished, "has been published")
	}
	if !equalPtr(old.ProductionStatus, fresh.ProductionStatus) && fresh.ProductionStatus != nil {
		add(models.ChangeMetadataStatusChanged, "status changed to %q", *fresh.ProductionStatus)
	}
	if old.PublishDate != nil && fresh.PublishDate != nil && !old.PublishDate.Equal(*fresh.PublishDate) {
		add(models.ChangeMetadataReleaseDateChanged,
			"release date moved to %s", fresh.PublishDate.Format("2006-01-02"))
	}

	diffShows(old.ShowSpecifics, fresh.ShowSpecifics, add)

	if old.PodcastSpecifics != nil && fresh.PodcastSpecifics != nil &&
		fresh.PodcastSpecifics.TotalEpisodes > old.PodcastSpecifics.TotalEpisodes {
		add(models.ChangeMetadataEpisodeReleased, "%d new episodes are out",
			fresh.PodcastSpecifics.TotalEpisodes-old.PodcastSpecifics.TotalEpisodes)
	}

	if old.AnimeSpecifics != nil && fresh.AnimeSpecifics != nil &&
		!equalPtr(old.AnimeSpecifics.Episodes, fresh.AnimeSpecifics.Episodes) && fresh.AnimeSpecifics.Episodes != nil {
		add(models.ChangeMetadataChaptersOrEpisodesChanged,
			"now has %d episodes", *fresh.AnimeSpecifics.Episodes)
	}
	if old.MangaSpecifics != nil && fresh.MangaSpecifics != nil &&
		fresh.MangaSpecifics.Chapters != nil &&
		(old.MangaSpecifics.Chapters == nil || !old.MangaSpecifics.Chapters.Equal(*fresh.MangaSpecifics.Chapters)) {
		add(models.ChangeMetadataChaptersOrEpisodesChanged,
			"now has %s chapters", fresh.MangaSpecifics.Chapters)
	}
	return changes
}

func diffShows(old, fresh *models.ShowSpecifics, add func(models.MediaStateChanged, string, ...any)) {
	if old == nil || fresh == nil {
		return
	}
	if fresh.TotalSeasons != old.TotalSeasons {
		add(models.ChangeMetadataNumberOfSeasonsChanged,
			"number of seasons changed from %d to %d", old.TotalSeasons, fresh.TotalSeasons)
	}
	if fresh.TotalEpisodes > old.TotalEpisodes {
		add(models.ChangeMetadataEpisodeReleased, "%d new episodes are out",
			fresh.TotalEpisodes-old.TotalEpisodes)
	}

	type episodeKey struct{ season, episode int }
	known := map[episodeKey]models.ShowEpisode{}
	for _, season := range old.Seasons {
		for _, episode := range season.Episodes {
			known[episodeKey{season.SeasonNumber, episode.EpisodeNumber}] = episode
		}
	}
	for _, season := range fresh.Seasons {
		for _, episode := range season.Episodes {
			before, ok := known[episodeKey{season.SeasonNumber, episode.EpisodeNumber}]
			if !ok {
				continue
			}
			if before.Name != episode.Name && episode.Name != "" {
				add(models.ChangeMetadataEpisodeNameChanged,
					"S%dE%d was renamed to %q", season.SeasonNumber, episode.EpisodeNumber, episode.Name)
			}
			if len(before.PosterImages) != len(episode.PosterImages) {
				add(models.ChangeMetadataEpisodeImagesChanged,
					"S%dE%d images changed", season.SeasonNumber, episode.EpisodeNumber)
			}
		}
	}
}

// ReviewPosted builds the notification for a freshly posted review;
// emitted by the review flow, not by a metadata diff.
func ReviewPosted(entityID string, entityLot models.EntityLot, entityTitle, reviewer string) models.UserNotificationContent {
	return models.UserNotificationContent{
		Change:      models.ChangeReviewPosted,
		EntityID:    entityID,
		EntityLot:   entityLot,
		EntityTitle: entityTitle,
		Message:     fmt.Sprintf("%s: %s posted a review", entityTitle, reviewer),
	}
}

// PersonMediaAssociated builds the notification for a person gaining a
// new role on some media.
func PersonMediaAssociated(personID, personName, mediaTitle, role string) models.UserNotificationContent {
	return models.UserNotificationContent{
		Change:      models.ChangePersonMediaAssociated,
		EntityID:    personID,
		EntityLot:   models.EntityLotPerson,
		EntityTitle: personName,
		Message:     fmt.Sprintf("%s is now associated with %s as %s", personName, mediaTitle, role),
	}
}

// NotifyMonitors delivers one change to every monitoring user. Per user,
// the change must pass their notification preferences, then goes to every
// enabled platform subscribed to the change kind. Delivery errors are
// logged and skipped; a successful delivery touches the collection edge
// so the monitor reads as acknowledged.
func (m *Monitor) NotifyMonitors(ctx context.Context, content models.UserNotificationContent) error {
	// Concurrent refreshes of the same entity would deliver the same
	// change twice; the fan-out is serialized per entity.
	return m.store.WithAdvisoryLock(ctx, func(ctx context.Context) error {
		return m.notifyMonitors(ctx, content)
	}, "monitor", string(content.EntityLot), content.EntityID)
}

func (m *Monitor) notifyMonitors(ctx context.Context, content models.UserNotificationContent) error {
	monitors, err := m.store.ListMonitoringUsers(ctx, content.EntityID)
	if err != nil {
		return fmt.Errorf("monitoring: list monitors for %s: %w", content.EntityID, err)
	}

	for _, monitor := range monitors {
		user, err := m.store.GetUser(ctx, monitor.UserID)
		if err != nil {
			logging.Err(err).Str("user_id", monitor.UserID).Msg("Failed to load monitoring user")
			continue
		}
		if user.IsDisabled || !user.Preferences.Notifications.WantsChange(content.Change) {
			continue
		}

		platforms, err := m.store.ListUserNotificationPlatforms(ctx, user.ID)
		if err != nil {
			logging.Err(err).Str("user_id", user.ID).Msg("Failed to list notification platforms")
			continue
		}

		delivered := false
		for _, platform := range platforms {
			if !platform.WantsEvent(content.Change) {
				continue
			}
			if err := m.sender.Send(ctx, platform, content.Message); err != nil {
				logging.Err(err).
					Str("user_id", user.ID).
					Str("platform", string(platform.Kind)).
					Str("change", string(content.Change)).
					Msg("Notification delivery failed")
				continue
			}
			delivered = true
		}
		if delivered {
			if err := m.store.TouchCollectionEntity(ctx, monitor.CollectionToEntityID); err != nil {
				logging.Err(err).Str("edge_id", monitor.CollectionToEntityID).
					Msg("Failed to touch collection edge")
			}
		}
	}
	return nil
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
