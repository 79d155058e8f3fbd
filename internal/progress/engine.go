// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package progress implements the consumption state engine: the single
// mutation that moves Seen rows through their lifecycle, the collection
// side-effects that follow every mutation, and finished detection for
// serialized lots.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

var (
	// ErrNoInProgress means ChangeLatestInProgress found no open Seen row.
	ErrNoInProgress = errors.New("progress: no in-progress record")
	// ErrAlreadyInProgress means CreateNewInProgress found an open Seen row.
	ErrAlreadyInProgress = errors.New("progress: an in-progress record already exists")
	// ErrInvalidAddressing means the lot-specific addressing does not match
	// the metadata's lot, or names an episode the metadata does not have.
	ErrInvalidAddressing = errors.New("progress: invalid progress addressing")
	// ErrInvalidChange means the input named no change or more than one.
	ErrInvalidChange = errors.New("progress: exactly one change must be set")
)

var hundred = decimal.NewFromInt(100)

// Store is the persistence surface the engine needs. *database.DB
// satisfies it.
type Store interface {
	WithAdvisoryLock(ctx context.Context, fn func(ctx context.Context) error, scope ...string) error
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	GetSeen(ctx context.Context, id string) (*models.Seen, error)
	GetOpenSeen(ctx context.Context, userID, metadataID string) (*models.Seen, error)
	InsertSeen(ctx context.Context, s *models.Seen) error
	UpdateSeen(ctx context.Context, s *models.Seen) error
	DeleteSeen(ctx context.Context, id string) error
	ListFinishedSeen(ctx context.Context, userID, metadataID string) ([]*models.Seen, error)

	GetCollectionByName(ctx context.Context, userID, name string) (*models.Collection, error)
	NextCollectionRank(ctx context.Context, collectionID string) (decimal.Decimal, error)
	AddEntityToCollection(ctx context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error)
	RemoveEntityFromCollection(ctx context.Context, collectionID, entityID string) error

	EnsureUserToEntity(ctx context.Context, userID, entityID string) (*models.UserToEntity, error)
	SaveUserToEntity(ctx context.Context, u *models.UserToEntity) error
}

// Cache is the slice of the application cache the engine invalidates.
type Cache interface {
	ExpireByDiscriminant(d cache.KeyDiscriminant, userID string) int
}

// Hooks are the pipeline notifications the engine emits. Nil hooks are
// skipped.
type Hooks struct {
	// OnSeenComplete fires after a Seen row reaches completed state.
	OnSeenComplete func(ctx context.Context, userID, seenID string)
}

// Engine applies progress updates.
type Engine struct {
	store Store
	cache Cache
	hooks Hooks
}

// NewEngine builds the engine.
func NewEngine(store Store, c Cache, hooks Hooks) *Engine {
	return &Engine{store: store, cache: c, hooks: hooks}
}

// LatestInProgressChange mutates the single open Seen row.
type LatestInProgressChange struct {
	State    *models.SeenState `json:"state,omitempty"`
	Progress *decimal.Decimal  `json:"progress,omitempty"`
}

// NewInProgressChange starts a fresh open Seen row.
type NewInProgressChange struct {
	StartedOn *time.Time                          `json:"started_on,omitempty"`
	Common    models.MetadataProgressUpdateCommon `json:"common"`
}

// NewCompletedChange records an already-finished consumption, with
// whichever dates are known.
type NewCompletedChange struct {
	StartedOn  *time.Time                          `json:"started_on,omitempty"`
	FinishedOn *time.Time                          `json:"finished_on,omitempty"`
	Common     models.MetadataProgressUpdateCommon `json:"common"`
}

// UpdateInput is the progress mutation. Exactly one change must be set.
type UpdateInput struct {
	MetadataID string `json:"metadata_id"`

	ChangeLatestInProgress *LatestInProgressChange `json:"change_latest_in_progress,omitempty"`
	CreateNewInProgress    *NewInProgressChange    `json:"create_new_in_progress,omitempty"`
	CreateNewCompleted     *NewCompletedChange     `json:"create_new_completed,omitempty"`
}

func (in *UpdateInput) validate() error {
	count := 0
	if in.ChangeLatestInProgress != nil {
		count++
	}
	if in.CreateNewInProgress != nil {
		count++
	}
	if in.CreateNewCompleted != nil {
		count++
	}
	if count != 1 {
		return ErrInvalidChange
	}
	return nil
}

// Update applies one progress mutation for the user and runs the
// after-seen side effects. It returns the affected Seen row.
func (e *Engine) Update(ctx context.Context, userID string, in UpdateInput) (*models.Seen, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	meta, err := e.store.GetMetadata(ctx, in.MetadataID)
	if err != nil {
		return nil, fmt.Errorf("progress: load metadata: %w", err)
	}

	// The read-modify-write below must not interleave with a concurrent
	// update for the same (user, metadata) pair, or two open rows can
	// slip past the single-open-row check.
	var seen *models.Seen
	err = e.store.WithAdvisoryLock(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		var err error
		switch {
		case in.ChangeLatestInProgress != nil:
			seen, err = e.changeLatest(ctx, userID, meta, in.ChangeLatestInProgress, now)
		case in.CreateNewInProgress != nil:
			seen, err = e.createInProgress(ctx, userID, meta, in.CreateNewInProgress, now)
		default:
			seen, err = e.createCompleted(ctx, userID, meta, in.CreateNewCompleted, now)
		}
		if err != nil {
			return err
		}
		return e.afterSeenTasks(ctx, meta, seen)
	}, "seen", userID, meta.ID)
	if err != nil {
		return nil, err
	}
	if seen.State == models.SeenStateCompleted && e.hooks.OnSeenComplete != nil {
		e.hooks.OnSeenComplete(ctx, userID, seen.ID)
	}
	return seen, nil
}

// DeleteSeen removes one seen row owned by the user and re-evaluates the
// collection placement of its metadata: Completed membership follows the
// finished check, In Progress membership follows the open-row check.
func (e *Engine) DeleteSeen(ctx context.Context, userID, seenID string) error {
	seen, err := e.store.GetSeen(ctx, seenID)
	if err != nil {
		return err
	}
	if seen.UserID != userID {
		return database.ErrNotFound
	}
	meta, err := e.store.GetMetadata(ctx, seen.MetadataID)
	if err != nil {
		return fmt.Errorf("progress: load metadata: %w", err)
	}
	return e.store.WithAdvisoryLock(ctx, func(ctx context.Context) error {
		if err := e.store.DeleteSeen(ctx, seenID); err != nil {
			return err
		}
		return e.afterSeenDeleted(ctx, meta, userID)
	}, "seen", userID, meta.ID)
}

func (e *Engine) afterSeenDeleted(ctx context.Context, meta *models.Metadata, userID string) error {
	finished, err := e.IsFinishedByUser(ctx, userID, meta)
	if err != nil {
		return err
	}
	if !finished {
		if err := e.removeFrom(ctx, userID, models.CollectionCompleted, meta.ID); err != nil {
			return err
		}
	}
	if _, err := e.store.GetOpenSeen(ctx, userID, meta.ID); err != nil {
		if !isNotFound(err) {
			return err
		}
		if err := e.removeFrom(ctx, userID, models.CollectionInProgress, meta.ID); err != nil {
			return err
		}
	}
	if e.cache != nil {
		e.cache.ExpireByDiscriminant(cache.DiscUserCollectionContents, userID)
		e.cache.ExpireByDiscriminant(cache.DiscUserMetadataDetails, userID)
	}
	return nil
}

func (e *Engine) changeLatest(ctx context.Context, userID string, meta *models.Metadata, change *LatestInProgressChange, now time.Time) (*models.Seen, error) {
	seen, err := e.store.GetOpenSeen(ctx, userID, meta.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNoInProgress
		}
		return nil, err
	}
	if change.State != nil {
		seen.State = *change.State
	}
	if change.Progress != nil {
		progress := *change.Progress
		if progress.GreaterThanOrEqual(hundred) {
			progress = hundred
			seen.State = models.SeenStateCompleted
			if seen.FinishedOn == nil {
				seen.FinishedOn = &now
			}
		}
		seen.Progress = progress
	}
	if seen.State == models.SeenStateCompleted {
		seen.Progress = hundred
		if seen.FinishedOn == nil {
			seen.FinishedOn = &now
		}
	}
	seen.Touch(now)
	if err := e.store.UpdateSeen(ctx, seen); err != nil {
		return nil, err
	}
	return seen, nil
}

func (e *Engine) createInProgress(ctx context.Context, userID string, meta *models.Metadata, change *NewInProgressChange, now time.Time) (*models.Seen, error) {
	if _, err := e.store.GetOpenSeen(ctx, userID, meta.ID); err == nil {
		return nil, ErrAlreadyInProgress
	} else if !isNotFound(err) {
		return nil, err
	}
	seen, err := newSeen(userID, meta, change.Common)
	if err != nil {
		return nil, err
	}
	seen.State = models.SeenStateInProgress
	seen.Progress = decimal.Zero
	seen.StartedOn = change.StartedOn
	if seen.StartedOn == nil {
		seen.StartedOn = &now
	}
	seen.Touch(now)
	if err := e.store.InsertSeen(ctx, seen); err != nil {
		return nil, err
	}
	return seen, nil
}

func (e *Engine) createCompleted(ctx context.Context, userID string, meta *models.Metadata, change *NewCompletedChange, now time.Time) (*models.Seen, error) {
	seen, err := newSeen(userID, meta, change.Common)
	if err != nil {
		return nil, err
	}
	seen.State = models.SeenStateCompleted
	seen.Progress = hundred
	seen.StartedOn = change.StartedOn
	seen.FinishedOn = change.FinishedOn
	seen.Touch(now)
	if err := e.store.InsertSeen(ctx, seen); err != nil {
		return nil, err
	}
	return seen, nil
}

// newSeen builds a Seen row with validated lot-specific addressing.
func newSeen(userID string, meta *models.Metadata, common models.MetadataProgressUpdateCommon) (*models.Seen, error) {
	seen := &models.Seen{
		ID:                models.NewID(models.PrefixSeen),
		UserID:            userID,
		MetadataID:        meta.ID,
		ProviderWatchedOn: common.ProviderWatchedOn,
	}
	switch meta.Lot {
	case models.MediaLotShow:
		if common.ShowSeasonNumber == nil || common.ShowEpisodeNumber == nil {
			return nil, fmt.Errorf("%w: show progress needs season and episode", ErrInvalidAddressing)
		}
		if meta.ShowSpecifics == nil || !showHasEpisode(meta.ShowSpecifics, *common.ShowSeasonNumber, *common.ShowEpisodeNumber) {
			return nil, fmt.Errorf("%w: S%dE%d does not exist", ErrInvalidAddressing,
				*common.ShowSeasonNumber, *common.ShowEpisodeNumber)
		}
		seen.ShowExtraInformation = &models.SeenShowExtraInformation{
			Season: *common.ShowSeasonNumber, Episode: *common.ShowEpisodeNumber,
		}
	case models.MediaLotPodcast:
		if common.PodcastEpisodeNumber == nil {
			return nil, fmt.Errorf("%w: podcast progress needs an episode", ErrInvalidAddressing)
		}
		if meta.PodcastSpecifics == nil || !podcastHasEpisode(meta.PodcastSpecifics, *common.PodcastEpisodeNumber) {
			return nil, fmt.Errorf("%w: episode %d does not exist", ErrInvalidAddressing,
				*common.PodcastEpisodeNumber)
		}
		seen.PodcastExtraInformation = &models.SeenPodcastExtraInformation{
			Episode: *common.PodcastEpisodeNumber,
		}
	case models.MediaLotAnime:
		if common.AnimeEpisodeNumber != nil {
			seen.AnimeExtraInformation = &models.SeenAnimeExtraInformation{
				Episode: common.AnimeEpisodeNumber,
			}
		}
	case models.MediaLotManga:
		if common.MangaChapterNumber != nil || common.MangaVolumeNumber != nil {
			seen.MangaExtraInformation = &models.SeenMangaExtraInformation{
				Chapter: common.MangaChapterNumber,
				Volume:  common.MangaVolumeNumber,
			}
		}
	default:
		if common.ShowSeasonNumber != nil || common.ShowEpisodeNumber != nil ||
			common.PodcastEpisodeNumber != nil || common.AnimeEpisodeNumber != nil ||
			common.MangaChapterNumber != nil || common.MangaVolumeNumber != nil {
			return nil, fmt.Errorf("%w: %s progress takes no episode addressing",
				ErrInvalidAddressing, meta.Lot)
		}
	}
	return seen, nil
}

func showHasEpisode(s *models.ShowSpecifics, season, episode int) bool {
	for _, se := range s.Seasons {
		if se.SeasonNumber != season {
			continue
		}
		for _, ep := range se.Episodes {
			if ep.EpisodeNumber == episode {
				return true
			}
		}
	}
	return false
}

func podcastHasEpisode(p *models.PodcastSpecifics, episode int) bool {
	for _, ep := range p.Episodes {
		if ep.Number == episode {
			return true
		}
	}
	return false
}

// afterSeenTasks applies the collection side effects of a mutation.
func (e *Engine) afterSeenTasks(ctx context.Context, meta *models.Metadata, seen *models.Seen) error {
	userID := seen.UserID

	if err := e.removeFrom(ctx, userID, models.CollectionWatchlist, meta.ID); err != nil {
		return err
	}
	if err := e.markSeenReason(ctx, userID, meta.ID); err != nil {
		return err
	}

	switch seen.State {
	case models.SeenStateInProgress, models.SeenStateOnAHold:
		if err := e.addTo(ctx, userID, models.CollectionInProgress, meta.ID); err != nil {
			return err
		}
		if err := e.addTo(ctx, userID, models.CollectionMonitoring, meta.ID); err != nil {
			return err
		}
	case models.SeenStateDropped:
		if err := e.removeFrom(ctx, userID, models.CollectionInProgress, meta.ID); err != nil {
			return err
		}
	case models.SeenStateCompleted:
		finished := true
		if meta.Lot.IsSerialized() {
			var err error
			finished, err = e.IsFinishedByUser(ctx, userID, meta)
			if err != nil {
				return err
			}
		}
		if finished {
			if err := e.addTo(ctx, userID, models.CollectionCompleted, meta.ID); err != nil {
				return err
			}
			if err := e.removeFrom(ctx, userID, models.CollectionInProgress, meta.ID); err != nil {
				return err
			}
		} else {
			if err := e.addTo(ctx, userID, models.CollectionInProgress, meta.ID); err != nil {
				return err
			}
			if err := e.addTo(ctx, userID, models.CollectionMonitoring, meta.ID); err != nil {
				return err
			}
		}
	}

	if e.cache != nil {
		e.cache.ExpireByDiscriminant(cache.DiscUserCollectionContents, userID)
		e.cache.ExpireByDiscriminant(cache.DiscUserMetadataDetails, userID)
	}
	return nil
}

func (e *Engine) markSeenReason(ctx context.Context, userID, metadataID string) error {
	ute, err := e.store.EnsureUserToEntity(ctx, userID, metadataID)
	if err != nil {
		return err
	}
	if ute.AddReason(models.EntityReasonSeen) {
		return e.store.SaveUserToEntity(ctx, ute)
	}
	return nil
}

func (e *Engine) addTo(ctx context.Context, userID string, name models.DefaultCollection, entityID string) error {
	coll, err := e.store.GetCollectionByName(ctx, userID, string(name))
	if err != nil {
		if isNotFound(err) {
			logging.Warn().Str("user_id", userID).Str("collection", string(name)).
				Msg("Default collection missing, skipping membership update")
			return nil
		}
		return err
	}
	rank, err := e.store.NextCollectionRank(ctx, coll.ID)
	if err != nil {
		return err
	}
	edge, err := models.NewCollectionToEntity(coll.ID, entityID, rank)
	if err != nil {
		return err
	}
	_, err = e.store.AddEntityToCollection(ctx, edge)
	return err
}

func (e *Engine) removeFrom(ctx context.Context, userID string, name models.DefaultCollection, entityID string) error {
	coll, err := e.store.GetCollectionByName(ctx, userID, string(name))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return e.store.RemoveEntityFromCollection(ctx, coll.ID, entityID)
}

// IsFinishedByUser reports whether the user has consumed every unit of the
// metadata. Serialized lots compare the canonical unit set with the user's
// completed rows bucketed by unit; every bucket must be seen the same
// nonzero number of times. Non-serialized lots just need one completed
// row.
func (e *Engine) IsFinishedByUser(ctx context.Context, userID string, meta *models.Metadata) (bool, error) {
	rows, err := e.store.ListFinishedSeen(ctx, userID, meta.ID)
	if err != nil {
		return false, err
	}
	if !meta.Lot.IsSerialized() {
		return len(rows) > 0, nil
	}

	canonical := canonicalUnits(meta)
	if len(canonical) == 0 {
		return false, nil
	}
	buckets := make(map[string]int, len(canonical))
	for _, s := range rows {
		if key, ok := seenUnitKey(s); ok {
			buckets[key]++
		}
	}
	count := -1
	for _, unit := range canonical {
		n := buckets[unit]
		if n == 0 {
			return false, nil
		}
		if count == -1 {
			count = n
		} else if n != count {
			return false, nil
		}
	}
	return true, nil
}

// canonicalUnits enumerates the units the lot demands: show episodes
// excluding specials, podcast episodes, 1..episodes for anime, 1..chapters
// for manga.
func canonicalUnits(meta *models.Metadata) []string {
	var units []string
	switch meta.Lot {
	case models.MediaLotShow:
		if meta.ShowSpecifics == nil {
			return nil
		}
		for _, season := range meta.ShowSpecifics.Seasons {
			if season.SeasonNumber == 0 {
				continue
			}
			for _, ep := range season.Episodes {
				units = append(units, fmt.Sprintf("%d-%d", season.SeasonNumber, ep.EpisodeNumber))
			}
		}
	case models.MediaLotPodcast:
		if meta.PodcastSpecifics == nil {
			return nil
		}
		for _, ep := range meta.PodcastSpecifics.Episodes {
			units = append(units, fmt.Sprintf("%d", ep.Number))
		}
	case models.MediaLotAnime:
		if meta.AnimeSpecifics == nil || meta.AnimeSpecifics.Episodes == nil {
			return nil
		}
		for i := 1; i <= *meta.AnimeSpecifics.Episodes; i++ {
			units = append(units, fmt.Sprintf("%d", i))
		}
	case models.MediaLotManga:
		if meta.MangaSpecifics == nil || meta.MangaSpecifics.Chapters == nil {
			return nil
		}
		total := int(meta.MangaSpecifics.Chapters.IntPart())
		for i := 1; i <= total; i++ {
			units = append(units, fmt.Sprintf("%d", i))
		}
	}
	return units
}

// seenUnitKey buckets a completed Seen row by the same keys as
// canonicalUnits.
func seenUnitKey(s *models.Seen) (string, bool) {
	switch {
	case s.ShowExtraInformation != nil:
		return fmt.Sprintf("%d-%d", s.ShowExtraInformation.Season, s.ShowExtraInformation.Episode), true
	case s.PodcastExtraInformation != nil:
		return fmt.Sprintf("%d", s.PodcastExtraInformation.Episode), true
	case s.AnimeExtraInformation != nil && s.AnimeExtraInformation.Episode != nil:
		return fmt.Sprintf("%d", *s.AnimeExtraInformation.Episode), true
	case s.MangaExtraInformation != nil && s.MangaExtraInformation.Chapter != nil:
		return s.MangaExtraInformation.Chapter.String(), true
	}
	return "", false
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
