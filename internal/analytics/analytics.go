// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package analytics materializes per-day activity counters and serves
// bucketed queries over them. Recomputation is incremental by default:
// only days at or after the newest rolled-up day are rebuilt.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const pageSize = 1000

// Store is the persistence surface the engine needs. *database.DB
// satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	ListSeenForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Seen, error)
	ListReviewsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Review, error)
	ListWorkoutsForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Workout, error)
	ListUserMeasurements(ctx context.Context, userID string, from, to time.Time) ([]*models.UserMeasurement, error)

	UpsertDailyActivity(ctx context.Context, a *models.DailyUserActivity) error
	ListDailyActivities(ctx context.Context, userID string, from, to time.Time) ([]*models.DailyUserActivity, error)
	LatestActivityDate(ctx context.Context, userID string) (time.Time, error)
	DeleteActivitiesFrom(ctx context.Context, userID string, from time.Time) error
	DeleteAllActivities(ctx context.Context, userID string) error
}

// Cache is the slice of *cache.Cache the engine uses. A nil cache
// disables summary memoization.
type Cache interface {
	GetValue(key cache.Key) (any, bool)
	SetKey(key cache.Key, value any)
	ExpireByDiscriminant(d cache.KeyDiscriminant, userID string) int
}

// Engine folds user events into DailyUserActivity rows.
type Engine struct {
	store Store
	cache Cache
}

func New(store Store, c Cache) *Engine {
	return &Engine{store: store, cache: c}
}

// CalculateUserActivitiesAndSummary rebuilds the rollup for one user.
// With fromScratch the whole history is purged and refolded; otherwise
// only the newest rolled-up day onward is rebuilt, so events landing on
// an already-computed day are picked up.
func (e *Engine) CalculateUserActivitiesAndSummary(ctx context.Context, userID string, fromScratch bool) error {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("analytics: user %s: %w", userID, err)
	}
	offset := time.Duration(user.TimezoneOffsetMinutes) * time.Minute

	var since time.Time
	if fromScratch {
		if err := e.store.DeleteAllActivities(ctx, userID); err != nil {
			return fmt.Errorf("analytics: purge activities: %w", err)
		}
	} else {
		latest, err := e.store.LatestActivityDate(ctx, userID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			// No rows yet; fold everything.
		case err != nil:
			return fmt.Errorf("analytics: latest activity date: %w", err)
		default:
			since = latest
			if err := e.store.DeleteActivitiesFrom(ctx, userID, latest); err != nil {
				return fmt.Errorf("analytics: delete from %s: %w", latest.Format("2006-01-02"), err)
			}
		}
	}

	buckets := map[time.Time]*models.DailyUserActivity{}
	dayFor := func(at time.Time) *models.DailyUserActivity {
		day := localDay(at, offset)
		bucket, ok := buckets[day]
		if !ok {
			bucket = &models.DailyUserActivity{UserID: userID, Date: day}
			buckets[day] = bucket
		}
		return bucket
	}
	include := func(at time.Time) bool {
		return since.IsZero() || !localDay(at, offset).Before(since)
	}

	if err := e.foldSeen(ctx, userID, dayFor, include); err != nil {
		return err
	}
	if err := e.foldReviews(ctx, userID, dayFor, include); err != nil {
		return err
	}
	if err := e.foldWorkouts(ctx, userID, dayFor, include); err != nil {
		return err
	}

	measurements, err := e.store.ListUserMeasurements(ctx, userID, time.Time{}, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("analytics: list measurements: %w", err)
	}
	for _, measurement := range measurements {
		if include(measurement.Timestamp) {
			dayFor(measurement.Timestamp).MeasurementCount++
		}
	}

	for _, bucket := range buckets {
		bucket.Finalize()
		if err := e.store.UpsertDailyActivity(ctx, bucket); err != nil {
			return fmt.Errorf("analytics: upsert day %s: %w", bucket.Date.Format("2006-01-02"), err)
		}
	}
	if e.cache != nil {
		e.cache.ExpireByDiscriminant(cache.DiscUserAnalytics, userID)
	}
	return nil
}

func (e *Engine) foldSeen(ctx context.Context, userID string, dayFor func(time.Time) *models.DailyUserActivity, include func(time.Time) bool) error {
	metadata := map[string]*models.Metadata{}
	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListSeenForUser(ctx, userID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("analytics: list seen: %w", err)
		}
		for _, seen := range page {
			if seen.State != models.SeenStateCompleted || seen.FinishedOn == nil || !include(*seen.FinishedOn) {
				continue
			}
			meta, ok := metadata[seen.MetadataID]
			if !ok {
				meta, err = e.store.GetMetadata(ctx, seen.MetadataID)
				if err != nil {
					return fmt.Errorf("analytics: metadata %s: %w", seen.MetadataID, err)
				}
				metadata[seen.MetadataID] = meta
			}
			countSeen(dayFor(*seen.FinishedOn), seen, meta)
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

// countSeen adds one completed consumption to the day's counters,
// including a duration where the metadata carries one.
func countSeen(day *models.DailyUserActivity, seen *models.Seen, meta *models.Metadata) {
	switch meta.Lot {
	case models.MediaLotAudioBook:
		day.AudioBookCount++
		if s := meta.AudioBookSpecifics; s != nil && s.Runtime != nil {
			day.AudioBookDuration += *s.Runtime
		}
	case models.MediaLotAnime:
		day.AnimeCount++
	case models.MediaLotBook:
		day.BookCount++
		if s := meta.BookSpecifics; s != nil && s.Pages != nil {
			day.BookPages += *s.Pages
		}
	case models.MediaLotPodcast:
		day.PodcastCount++
		if s := meta.PodcastSpecifics; s != nil && seen.PodcastExtraInformation != nil {
			for _, episode := range s.Episodes {
				if episode.Number == seen.PodcastExtraInformation.Episode && episode.Runtime != nil {
					day.PodcastDuration += *episode.Runtime
				}
			}
		}
	case models.MediaLotManga:
		day.MangaCount++
	case models.MediaLotMovie:
		day.MovieCount++
		if s := meta.MovieSpecifics; s != nil && s.Runtime != nil {
			day.MovieDuration += *s.Runtime
		}
	case models.MediaLotMusic:
		day.MusicCount++
		if s := meta.MusicSpecifics; s != nil && s.Duration != nil {
			day.MusicDuration += *s.Duration / 60
		}
	case models.MediaLotShow:
		day.ShowCount++
		if s := meta.ShowSpecifics; s != nil && seen.ShowExtraInformation != nil {
			day.ShowDuration += episodeRuntime(s, seen.ShowExtraInformation.Season, seen.ShowExtraInformation.Episode)
		}
	case models.MediaLotVideoGame:
		day.VideoGameCount++
	case models.MediaLotVisualNovel:
		day.VisualNovelCount++
		if s := meta.VisualNovelSpecifics; s != nil && s.LengthMinutes != nil {
			day.VisualNovelDuration += *s.LengthMinutes
		}
	}
}

func episodeRuntime(s *models.ShowSpecifics, season, episode int) int {
	for _, ss := range s.Seasons {
		if ss.SeasonNumber != season {
			continue
		}
		for _, ep := range ss.Episodes {
			if ep.EpisodeNumber == episode && ep.Runtime != nil {
				return *ep.Runtime
			}
		}
	}
	return 0
}

func (e *Engine) foldReviews(ctx context.Context, userID string, dayFor func(time.Time) *models.DailyUserActivity, include func(time.Time) bool) error {
	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListReviewsByUser(ctx, userID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("analytics: list reviews: %w", err)
		}
		for _, review := range page {
			if !include(review.PostedOn) {
				continue
			}
			day := dayFor(review.PostedOn)
			switch review.EntityLot {
			case models.EntityLotMetadata:
				day.MetadataReviewCount++
			case models.EntityLotCollection:
				day.CollectionReviewCount++
			case models.EntityLotPerson:
				day.PersonReviewCount++
			case models.EntityLotMetadataGroup:
				day.MetadataGroupReviewCount++
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

func (e *Engine) foldWorkouts(ctx context.Context, userID string, dayFor func(time.Time) *models.DailyUserActivity, include func(time.Time) bool) error {
	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListWorkoutsForUser(ctx, userID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("analytics: list workouts: %w", err)
		}
		for _, workout := range page {
			if !include(workout.EndTime) {
				continue
			}
			day := dayFor(workout.EndTime)
			day.WorkoutCount++
			day.WorkoutDuration += workout.Duration / 60
			total := workout.Summary.Total
			day.WorkoutWeight = day.WorkoutWeight.Add(total.Weight)
			day.WorkoutReps += int(total.Reps.IntPart())
			day.WorkoutDistance = day.WorkoutDistance.Add(total.Distance)
			day.WorkoutRestTime += total.RestTime
			day.WorkoutPersonalBests += total.PersonalBestsAchieved
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

// localDay shifts the instant into the user's timezone and truncates to
// midnight UTC of that civil date, the bucket key used everywhere.
func localDay(at time.Time, offset time.Duration) time.Time {
	year, month, day := at.UTC().Add(offset).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DailyUserActivities returns the user's counters bucketed by groupBy.
// When groupBy is empty it is chosen adaptively from the range width.
func (e *Engine) DailyUserActivities(ctx context.Context, userID string, from, to time.Time, groupBy models.ActivityGroupBy) ([]*models.DailyUserActivity, error) {
	if groupBy == "" {
		groupBy = models.AdaptiveGroupBy(from, to)
	}
	rows, err := e.store.ListDailyActivities(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("analytics: list activities: %w", err)
	}

	var (
		order   []time.Time
		grouped = map[time.Time]*models.DailyUserActivity{}
	)
	for _, row := range rows {
		key := truncateDate(row.Date, groupBy)
		bucket, ok := grouped[key]
		if !ok {
			bucket = &models.DailyUserActivity{UserID: userID, Date: key}
			grouped[key] = bucket
			order = append(order, key)
		}
		mergeCounters(bucket, row)
	}

	out := make([]*models.DailyUserActivity, 0, len(order))
	for _, key := range order {
		grouped[key].Finalize()
		out = append(out, grouped[key])
	}
	return out, nil
}

// LatestUserSummary is the dashboard's single all-time row: every day
// folded into one millennium bucket. The row is memoized until the next
// rollup recomputation expires it.
func (e *Engine) LatestUserSummary(ctx context.Context, userID string) (*models.DailyUserActivity, error) {
	key := cache.UserAnalyticsKey(userID)
	if e.cache != nil {
		if cached, ok := e.cache.GetValue(key); ok {
			if summary, ok := cached.(*models.DailyUserActivity); ok {
				return summary, nil
			}
		}
	}
	rows, err := e.DailyUserActivities(ctx, userID, time.Time{}, time.Time{}, models.GroupByMillennium)
	if err != nil {
		return nil, err
	}
	summary := &models.DailyUserActivity{UserID: userID}
	if len(rows) > 0 {
		summary = rows[0]
	}
	if e.cache != nil {
		e.cache.SetKey(key, summary)
	}
	return summary, nil
}

func truncateDate(date time.Time, groupBy models.ActivityGroupBy) time.Time {
	switch groupBy {
	case models.GroupByMonth:
		return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.GroupByYear:
		return time.Date(date.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case models.GroupByMillennium:
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return date
	}
}

// mergeCounters sums every raw counter of src into dst. The derived
// totals are recomputed by Finalize afterwards.
func mergeCounters(dst, src *models.DailyUserActivity) {
	dst.MetadataReviewCount += src.MetadataReviewCount
	dst.CollectionReviewCount += src.CollectionReviewCount
	dst.PersonReviewCount += src.PersonReviewCount
	dst.MetadataGroupReviewCount += src.MetadataGroupReviewCount

	dst.MeasurementCount += src.MeasurementCount
	dst.WorkoutCount += src.WorkoutCount
	dst.WorkoutDuration += src.WorkoutDuration
	dst.WorkoutWeight = dst.WorkoutWeight.Add(src.WorkoutWeight)
	dst.WorkoutReps += src.WorkoutReps
	dst.WorkoutDistance = dst.WorkoutDistance.Add(src.WorkoutDistance)
	dst.WorkoutRestTime += src.WorkoutRestTime
	dst.WorkoutPersonalBests += src.WorkoutPersonalBests

	dst.AudioBookCount += src.AudioBookCount
	dst.AudioBookDuration += src.AudioBookDuration
	dst.AnimeCount += src.AnimeCount
	dst.BookCount += src.BookCount
	dst.BookPages += src.BookPages
	dst.PodcastCount += src.PodcastCount
	dst.PodcastDuration += src.PodcastDuration
	dst.MangaCount += src.MangaCount
	dst.MovieCount += src.MovieCount
	dst.MovieDuration += src.MovieDuration
	dst.MusicCount += src.MusicCount
	dst.MusicDuration += src.MusicDuration
	dst.ShowCount += src.ShowCount
	dst.ShowDuration += src.ShowDuration
	dst.VideoGameCount += src.VideoGameCount
	dst.VideoGameDuration += src.VideoGameDuration
	dst.VisualNovelCount += src.VisualNovelCount
	dst.VisualNovelDuration += src.VisualNovelDuration
}
