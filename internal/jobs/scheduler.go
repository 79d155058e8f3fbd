// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"context"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/logging"
)

// refreshBatchSize bounds how many stale metadata rows one sweep enqueues.
// The next sweep picks up where this one left off because UpdateMetadata
// bumps last_updated_on.
const refreshBatchSize = 100

// Maintenance is the slice of the database the scheduler sweeps need.
// *database.DB satisfies it.
type Maintenance interface {
	DeleteExpiredCacheEntries(ctx context.Context) (int64, error)
	ListMetadataForRefresh(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Scheduler ticks on a fixed cadence and enqueues whatever periodic work
// has come due. It implements suture.Service; state is in-memory only, so
// a restart re-runs every sweep, which the idempotent handlers absorb.
type Scheduler struct {
	cfg  config.SchedulerConfig
	bus  *Bus
	db   Maintenance
	now  func() time.Time
	last map[string]time.Time
}

// NewScheduler builds the scheduler.
func NewScheduler(cfg config.SchedulerConfig, bus *Bus, db Maintenance) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		bus:  bus,
		db:   db,
		now:  time.Now,
		last: make(map[string]time.Time),
	}
}

// Serve runs the tick loop until the context is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// due reports whether the named sweep's interval has elapsed, and marks it
// run when it has.
func (s *Scheduler) due(name string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	now := s.now()
	if last, ok := s.last[name]; ok && now.Sub(last) < interval {
		return false
	}
	s.last[name] = now
	return true
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.bus.Enqueue(ctx, KindPerformBackgroundTasks, "", nil); err != nil {
		logging.Err(err).Msg("Failed to enqueue background tasks")
	}

	if s.due("cache_cleanup", 15*time.Minute) {
		if n, err := s.db.DeleteExpiredCacheEntries(ctx); err != nil {
			logging.Err(err).Msg("Cache cleanup sweep failed")
		} else if n > 0 {
			logging.Debug().Int64("deleted", n).Msg("Removed expired cache entries")
		}
	}

	if s.due("integration_sync", s.cfg.IntegrationSyncInterval) {
		if err := s.bus.Enqueue(ctx, KindSyncIntegrationsData, "", nil); err != nil {
			logging.Err(err).Msg("Failed to enqueue integration sync")
		}
	}

	if s.due("calendar_refresh", s.cfg.CalendarRefreshInterval) {
		if err := s.bus.Enqueue(ctx, KindRecalculateCalendarEvents, "", nil); err != nil {
			logging.Err(err).Msg("Failed to enqueue calendar refresh")
		}
	}

	if s.due("metadata_refresh", s.cfg.MetadataRefreshInterval/24) {
		s.sweepStaleMetadata(ctx)
	}

	if s.due("activity_rollup", 24*time.Hour) {
		s.sweepActivityRollups(ctx)
	}
}

// sweepStaleMetadata enqueues refreshes for rows whose details are older
// than the refresh interval. The sweep itself runs far more often than the
// interval so a backlog drains in batches instead of one burst.
func (s *Scheduler) sweepStaleMetadata(ctx context.Context) {
	olderThan := s.now().Add(-s.cfg.MetadataRefreshInterval)
	ids, err := s.db.ListMetadataForRefresh(ctx, olderThan, refreshBatchSize)
	if err != nil {
		logging.Err(err).Msg("Stale metadata sweep failed")
		return
	}
	for _, id := range ids {
		err := s.bus.Enqueue(ctx, KindUpdateMetadata, "", MetadataPayload{MetadataID: id})
		if err != nil {
			logging.Err(err).Str("metadata_id", id).Msg("Failed to enqueue metadata refresh")
		}
	}
	if len(ids) > 0 {
		logging.Info().Int("count", len(ids)).Msg("Enqueued stale metadata refreshes")
	}
}

func (s *Scheduler) sweepActivityRollups(ctx context.Context) {
	userIDs, err := s.db.ListUserIDs(ctx)
	if err != nil {
		logging.Err(err).Msg("Activity rollup sweep failed")
		return
	}
	for _, userID := range userIDs {
		err := s.bus.Enqueue(ctx, KindCalculateUserActivitiesAndSummary, userID, ActivitiesPayload{})
		if err != nil {
			logging.Err(err).Str("user_id", userID).Msg("Failed to enqueue activity rollup")
		}
	}
}
