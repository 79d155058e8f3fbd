// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package integrations connects per-user external services. Yank
// integrations are polled on the scheduler cadence and their results
// replayed through the importer; sink integrations receive webhooks
// routed by slug; push integrations mirror Shelfwatch events outward.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/importer"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
)

// ErrFeatureRequiresProFeature gates integrations behind server-key
// validation.
var ErrFeatureRequiresProFeature = errors.New("integrations: feature requires a validated server key")

// Store is the persistence surface the manager needs. *database.DB
// satisfies it.
type Store interface {
	ListEnabledIntegrationsByLot(ctx context.Context, lot models.IntegrationLot) ([]*models.Integration, error)
	GetIntegrationBySlug(ctx context.Context, slug string) (*models.Integration, error)
	RecordIntegrationTrigger(ctx context.Context, id string, result models.IntegrationTriggerResult) error
	CommitMetadata(ctx context.Context, p models.PartialMetadata) (string, error)
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	ListFinishedSeen(ctx context.Context, userID, metadataID string) ([]*models.Seen, error)
}

// Applier replays an ImportResult for a user. *importer.Importer
// satisfies it; yanks pass an empty report id so no ImportReport row is
// created.
type Applier interface {
	Apply(ctx context.Context, userID, reportID string, result *models.ImportResult) []models.ImportFailedItem
}

// ProgressEngine feeds sink progress updates. *progress.Engine satisfies
// it.
type ProgressEngine interface {
	Update(ctx context.Context, userID string, in progress.UpdateInput) (*models.Seen, error)
}

// YankSource is one pollable integration connection.
type YankSource interface {
	YankProgress(ctx context.Context) (*models.ImportResult, error)
}

// OwnedSource yields the service's whole catalog without progress, for
// owned-collection sync.
type OwnedSource interface {
	PullOwned(ctx context.Context) (*models.ImportResult, error)
}

// Manager drives every integration direction.
type Manager struct {
	store   Store
	applier Applier
	engine  ProgressEngine

	books    *importer.BookResolver
	episodes importer.PodcastEpisodeResolver
	timeout  time.Duration

	// serverKeyValidated unlocks the gated providers (YouTube Music).
	serverKeyValidated bool
}

// NewManager builds the manager. books and episodes may be nil; sources
// that need them fail their trigger instead of the whole sweep.
func NewManager(cfg config.ProvidersConfig, store Store, applier Applier, engine ProgressEngine, books *importer.BookResolver, episodes importer.PodcastEpisodeResolver, serverKeyValidated bool) *Manager {
	return &Manager{
		store:              store,
		applier:            applier,
		engine:             engine,
		books:              books,
		episodes:           episodes,
		timeout:            cfg.Timeout,
		serverKeyValidated: serverKeyValidated,
	}
}

// Sync polls every enabled yank integration, applying progress and
// recording a trigger result per row. Individual failures never stop the
// sweep.
func (m *Manager) Sync(ctx context.Context) error {
	rows, err := m.store.ListEnabledIntegrationsByLot(ctx, models.IntegrationLotYank)
	if err != nil {
		return fmt.Errorf("integrations: list yank integrations: %w", err)
	}
	for _, integration := range rows {
		err := m.syncOne(ctx, integration)
		m.recordTrigger(ctx, integration, err)
	}
	return nil
}

func (m *Manager) syncOne(ctx context.Context, integration *models.Integration) error {
	source, err := m.yankSource(integration)
	if err != nil {
		return err
	}

	result, err := source.YankProgress(ctx)
	if err != nil {
		return err
	}
	m.applyWindow(integration, result)
	if failed := m.applier.Apply(ctx, integration.UserID, "", result); len(failed) > 0 {
		return fmt.Errorf("%d of %d items failed to apply", len(failed), len(result.Completed))
	}

	if integration.SyncToOwnedCollection {
		if err := m.syncOwned(ctx, integration, source); err != nil {
			return err
		}
	}
	return nil
}

// syncOwned forces every catalog item of the source into the user's Owned
// collection, with progress stripped.
func (m *Manager) syncOwned(ctx context.Context, integration *models.Integration, source YankSource) error {
	owned, ok := source.(OwnedSource)
	if !ok {
		return fmt.Errorf("%s cannot sync an owned collection", integration.Provider)
	}
	catalog, err := owned.PullOwned(ctx)
	if err != nil {
		return err
	}
	for idx := range catalog.Completed {
		if item := catalog.Completed[idx].Metadata; item != nil {
			item.SeenHistory = nil
			item.Reviews = nil
			item.Collections = []string{string(models.CollectionOwned)}
		}
	}
	if failed := m.applier.Apply(ctx, integration.UserID, "", catalog); len(failed) > 0 {
		return fmt.Errorf("%d owned items failed to apply", len(failed))
	}
	return nil
}

func (m *Manager) yankSource(integration *models.Integration) (YankSource, error) {
	specifics := integration.Specifics
	switch integration.Provider {
	case models.IntegrationAudiobookshelf:
		return newAudiobookshelfYank(specifics, m.timeout, m.books, m.episodes), nil
	case models.IntegrationKomga:
		return newKomgaYank(specifics, m.timeout), nil
	case models.IntegrationPlexYank:
		return &plexYank{source: importer.NewPlex(specifics.PlexYankBaseURL, specifics.PlexYankToken, m.timeout)}, nil
	case models.IntegrationYoutubeMusic:
		if !m.serverKeyValidated {
			return nil, ErrFeatureRequiresProFeature
		}
		return newYoutubeMusicYank(specifics, m.timeout), nil
	default:
		return nil, fmt.Errorf("%s is not a yank provider", integration.Provider)
	}
}

// applyWindow enforces the integration's minimum/maximum progress window
// on every yanked seen entry: below the minimum the entry is dropped,
// at or above the maximum it is promoted to completed.
func (m *Manager) applyWindow(integration *models.Integration, result *models.ImportResult) {
	for _, item := range result.Completed {
		if item.Metadata == nil {
			continue
		}
		kept := item.Metadata.SeenHistory[:0]
		for _, seen := range item.Metadata.SeenHistory {
			switch windowAction(integration, seen.Progress) {
			case windowSkip:
				continue
			case windowComplete:
				seen.Progress = ptr(decimal.NewFromInt(100))
			}
			kept = append(kept, seen)
		}
		item.Metadata.SeenHistory = kept
	}
}

type windowVerdict int

const (
	windowUpdate windowVerdict = iota
	windowSkip
	windowComplete
)

// windowAction classifies a progress value against the integration's
// window. Entries without a progress value (already-finished history)
// always pass through.
func windowAction(integration *models.Integration, p *decimal.Decimal) windowVerdict {
	if p == nil {
		return windowUpdate
	}
	if min := integration.MinimumProgress; min != nil && p.LessThan(decimal.NewFromInt(int64(*min))) {
		return windowSkip
	}
	if max := integration.MaximumProgress; max != nil && p.GreaterThanOrEqual(decimal.NewFromInt(int64(*max))) {
		return windowComplete
	}
	return windowUpdate
}

func (m *Manager) recordTrigger(ctx context.Context, integration *models.Integration, err error) {
	result := models.IntegrationTriggerResult{FinishedAt: time.Now().UTC()}
	if err != nil {
		result.Error = ptr(err.Error())
		logging.Err(err).Str("integration_id", integration.ID).
			Str("provider", string(integration.Provider)).Msg("Integration trigger failed")
	}
	if recordErr := m.store.RecordIntegrationTrigger(ctx, integration.ID, result); recordErr != nil {
		logging.Err(recordErr).Str("integration_id", integration.ID).Msg("Failed to record integration trigger")
	}
}

// plexYank adapts the Plex import source to the yank interface: the
// watched-state pull is the same operation in both directions.
type plexYank struct {
	source *importer.Plex
}

func (p *plexYank) YankProgress(ctx context.Context) (*models.ImportResult, error) {
	return p.source.Import(ctx, "")
}

func ptr[T any](v T) *T { return &v }
