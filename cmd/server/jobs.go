// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/analytics"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/exporter"
	"github.com/shelfwatch/shelfwatch/internal/fitness"
	"github.com/shelfwatch/shelfwatch/internal/integrations"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/monitoring"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/refresh"
)

// jobDeps carries everything the background handlers reach into.
type jobDeps struct {
	db        *database.DB
	bus       *jobs.Bus
	engine    *progress.Engine
	manager   *integrations.Manager
	refresher *refresh.Refresher
	fitness   *fitness.Engine
	library   *fitness.LibraryUpdater
	analytics *analytics.Engine
	exporter  *exporter.Exporter
	monitor   *monitoring.Monitor
	imports   *importDispatcher
}

// bulkProgressPayload is the envelope sink batches enqueue on the hp
// queue.
type bulkProgressPayload struct {
	Updates []progress.UpdateInput `json:"updates"`
}

// registerJobHandlers binds every job kind to its handler. Delivery is
// at-least-once, so each handler tolerates replays.
func registerJobHandlers(mux *jobs.Mux, d jobDeps) {
	// Lp: follow-up work triggered by other mutations.
	mux.Handle(jobs.KindHandleEntityAddedToCollection, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.CollectionEntityPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		lot, ok := models.EntityLotForID(p.EntityID)
		if !ok || lot != models.EntityLotMetadata {
			return nil
		}
		meta, err := d.db.GetMetadata(ctx, p.EntityID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil
			}
			return err
		}
		if meta.IsPartial {
			err := d.bus.Enqueue(ctx, jobs.KindUpdateMetadata, "", jobs.MetadataPayload{MetadataID: meta.ID})
			if err != nil {
				logging.Err(err).Str("metadata_id", meta.ID).Msg("Failed to enqueue fill of partial row")
			}
		}
		return d.manager.HandleMetadataAddedToCollection(ctx, job.UserID, p.CollectionID, p.EntityID)
	})

	mux.Handle(jobs.KindHandleOnSeenComplete, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.SeenPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		seen, err := d.db.GetSeen(ctx, p.SeenID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil
			}
			return err
		}
		return d.manager.HandleSeenCompleted(ctx, job.UserID, seen.MetadataID)
	})

	mux.Handle(jobs.KindHandleAfterExerciseDeleted, func(ctx context.Context, job *jobs.Job) error {
		return d.fitness.ReEvaluateUserWorkouts(ctx, job.UserID)
	})

	// Mp: refreshes, syncs, imports, exports.
	mux.Handle(jobs.KindUpdateMetadata, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.MetadataPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		return d.refresher.UpdateMetadata(ctx, p.MetadataID)
	})

	mux.Handle(jobs.KindUpdatePerson, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.PersonPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		return d.refresher.UpdatePerson(ctx, p.PersonID)
	})

	mux.Handle(jobs.KindUpdateMetadataGroup, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.MetadataGroupPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		return d.refresher.UpdateMetadataGroup(ctx, p.MetadataGroupID)
	})

	mux.Handle(jobs.KindSyncIntegrationsData, func(ctx context.Context, _ *jobs.Job) error {
		return d.manager.Sync(ctx)
	})

	mux.Handle(jobs.KindImportFromExternalSource, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.ImportRequestPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		return d.imports.Run(ctx, job.UserID, p)
	})

	mux.Handle(jobs.KindUpdateExerciseLibrary, func(ctx context.Context, _ *jobs.Job) error {
		_, err := d.library.Update(ctx)
		return err
	})

	mux.Handle(jobs.KindPerformExport, func(ctx context.Context, job *jobs.Job) error {
		key, err := d.exporter.Run(ctx, job.UserID)
		if err != nil {
			return err
		}
		logging.Info().Str("user_id", job.UserID).Str("key", key).Msg("Export finished")
		return nil
	})

	mux.Handle(jobs.KindRecalculateCalendarEvents, func(ctx context.Context, _ *jobs.Job) error {
		return d.refresher.RecalculateCalendarEvents(ctx)
	})

	mux.Handle(jobs.KindReEvaluateUserWorkouts, func(ctx context.Context, job *jobs.Job) error {
		return d.fitness.ReEvaluateUserWorkouts(ctx, job.UserID)
	})

	// Hp: user-visible actions with side effects.
	mux.Handle(jobs.KindReviewPosted, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.ReviewPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		review, err := d.db.GetReview(ctx, p.ReviewID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil
			}
			return err
		}
		if review.Visibility != models.VisibilityPublic {
			return nil
		}
		reviewer, err := d.db.GetUser(ctx, review.UserID)
		if err != nil {
			return err
		}
		title, err := d.db.GetEntityTitleForLot(ctx, review.EntityID, review.EntityLot)
		if err != nil {
			return err
		}
		return d.monitor.NotifyMonitors(ctx,
			monitoring.ReviewPosted(review.EntityID, review.EntityLot, title, reviewer.Name))
	})

	mux.Handle(jobs.KindBulkProgressUpdate, func(ctx context.Context, job *jobs.Job) error {
		var p bulkProgressPayload
		if err := job.DecodePayload(&p); err != nil {
			return err
		}
		for _, in := range p.Updates {
			if _, err := d.engine.Update(ctx, job.UserID, in); err != nil &&
				!errors.Is(err, progress.ErrAlreadyInProgress) {
				logging.Err(err).Str("user_id", job.UserID).
					Str("metadata_id", in.MetadataID).Msg("Bulk progress item failed")
			}
		}
		return nil
	})

	// Single: process-wide singleton sweeps.
	mux.Handle(jobs.KindPerformBackgroundTasks, func(ctx context.Context, _ *jobs.Job) error {
		return d.notifyTodaysReleases(ctx)
	})

	mux.Handle(jobs.KindCalculateUserActivitiesAndSummary, func(ctx context.Context, job *jobs.Job) error {
		var p jobs.ActivitiesPayload
		if job.Payload != nil {
			if err := job.DecodePayload(&p); err != nil {
				return err
			}
		}
		return d.analytics.CalculateUserActivitiesAndSummary(ctx, job.UserID, p.FromScratch)
	})
}

// notifyTodaysReleases scans the calendar table for events whose date has
// just passed and fans an episode/release notification out to monitoring
// users. The durable cache dedupes events across the at-least-once
// delivery and across restarts.
func (d jobDeps) notifyTodaysReleases(ctx context.Context) error {
	now := time.Now().UTC()
	events, err := d.db.ListCalendarEvents(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return err
	}
	for _, ev := range events {
		dedupeKey := "calendar_notified:" + ev.ID
		if _, err := d.db.GetCacheEntry(ctx, dedupeKey); err == nil {
			continue
		}
		meta, err := d.db.GetMetadata(ctx, ev.MetadataID)
		if err != nil {
			continue
		}
		content := models.UserNotificationContent{
			Change:      models.ChangeMetadataEpisodeReleased,
			EntityID:    meta.ID,
			EntityLot:   models.EntityLotMetadata,
			EntityTitle: meta.Title,
			Message:     releaseMessage(meta.Title, ev),
		}
		if ev.ShowSeasonNumber == nil && ev.PodcastEpisodeNumber == nil {
			content.Change = models.ChangeMetadataPublished
		}
		if err := d.monitor.NotifyMonitors(ctx, content); err != nil {
			logging.Err(err).Str("metadata_id", meta.ID).Msg("Release fan-out failed")
			continue
		}
		if err := d.db.SetCacheEntry(ctx, dedupeKey, []byte("1"), 72*time.Hour); err != nil {
			logging.Err(err).Str("event_id", ev.ID).Msg("Failed to record release dedupe entry")
		}
	}
	return nil
}

func releaseMessage(title string, ev models.CalendarEvent) string {
	switch {
	case ev.ShowSeasonNumber != nil && ev.ShowEpisodeNumber != nil:
		return fmt.Sprintf("%s: S%dE%d has been released", title, *ev.ShowSeasonNumber, *ev.ShowEpisodeNumber)
	case ev.PodcastEpisodeNumber != nil:
		return fmt.Sprintf("%s: episode %d has been released", title, *ev.PodcastEpisodeNumber)
	default:
		return fmt.Sprintf("%s has been released", title)
	}
}
