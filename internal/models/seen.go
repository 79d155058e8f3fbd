// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeenShowExtraInformation addresses a show seen row to one episode.
type SeenShowExtraInformation struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// SeenPodcastExtraInformation addresses a podcast seen row to one episode.
type SeenPodcastExtraInformation struct {
	Episode int `json:"episode"`
}

// SeenAnimeExtraInformation addresses an anime seen row to one episode.
type SeenAnimeExtraInformation struct {
	Episode *int `json:"episode,omitempty"`
}

// SeenMangaExtraInformation addresses a manga seen row to a chapter or a
// volume.
type SeenMangaExtraInformation struct {
	Chapter *decimal.Decimal `json:"chapter,omitempty"`
	Volume  *int             `json:"volume,omitempty"`
}

// Seen is one consumption event. Invariants: state=completed iff
// progress=100; lot-specific extras are present iff the metadata's lot
// demands them; UpdatedAt grows monotonically.
type Seen struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	MetadataID string    `json:"metadata_id"`
	State      SeenState `json:"state"`
	// Progress is a percentage in [0,100], fixed point.
	Progress   decimal.Decimal `json:"progress"`
	StartedOn  *time.Time      `json:"started_on,omitempty"`
	FinishedOn *time.Time      `json:"finished_on,omitempty"`

	ShowExtraInformation    *SeenShowExtraInformation    `json:"show_extra_information,omitempty"`
	PodcastExtraInformation *SeenPodcastExtraInformation `json:"podcast_extra_information,omitempty"`
	AnimeExtraInformation   *SeenAnimeExtraInformation   `json:"anime_extra_information,omitempty"`
	MangaExtraInformation   *SeenMangaExtraInformation   `json:"manga_extra_information,omitempty"`

	// ProviderWatchedOn records which external service played the media
	// (integrations set this: "Plex", "Audiobookshelf", ...).
	ProviderWatchedOn *string `json:"provider_watched_on,omitempty"`

	// UpdatedAt is the append-only trail of mutation timestamps.
	UpdatedAt []time.Time `json:"updated_at"`

	LastUpdatedOn time.Time `json:"last_updated_on"`
}

// IsOpen reports whether this row is the user's single open (mutable)
// record for the metadata: not finished and not dropped.
func (s *Seen) IsOpen() bool {
	return s.Progress.LessThan(decimal.NewFromInt(100)) && s.State != SeenStateDropped
}

// Touch appends a mutation timestamp, keeping the trail monotone.
func (s *Seen) Touch(now time.Time) {
	if n := len(s.UpdatedAt); n > 0 && now.Before(s.UpdatedAt[n-1]) {
		now = s.UpdatedAt[n-1]
	}
	s.UpdatedAt = append(s.UpdatedAt, now)
	s.LastUpdatedOn = now
}

// UserExerciseSettings are per-user overrides for one exercise.
type UserExerciseSettings struct {
	ExcludeFromAnalytics bool `json:"exclude_from_analytics"`
	RestTimer            *int `json:"rest_timer,omitempty"` // seconds
}

// ExerciseBestSetRecord points at the set holding a personal best.
type ExerciseBestSetRecord struct {
	Lot        PersonalBestKind `json:"lot"`
	WorkoutID  string           `json:"workout_id"`
	ExerciseIdx int             `json:"exercise_idx"`
	SetIdx     int              `json:"set_idx"`
	Statistic  SetStatistic     `json:"statistic"`
}

// ExerciseLifetimeStats accumulates over a user's whole history with one
// exercise.
type ExerciseLifetimeStats struct {
	Weight         decimal.Decimal `json:"weight"`
	Reps           decimal.Decimal `json:"reps"`
	Distance       decimal.Decimal `json:"distance"`
	Duration       decimal.Decimal `json:"duration"`
	PersonalBestsAchieved int      `json:"personal_bests_achieved"`
}

// Add folds a workout total into the lifetime stats.
func (s *ExerciseLifetimeStats) Add(t WorkoutOrExerciseTotals) {
	s.Weight = s.Weight.Add(t.Weight)
	s.Reps = s.Reps.Add(t.Reps)
	s.Distance = s.Distance.Add(t.Distance)
	s.Duration = s.Duration.Add(t.Duration)
	s.PersonalBestsAchieved += t.PersonalBestsAchieved
}

// UserToExerciseExtraInformation is the denormalized per-(user, exercise)
// training record.
type UserToExerciseExtraInformation struct {
	History       []UserToExerciseHistoryRecord `json:"history"`
	LifetimeStats ExerciseLifetimeStats         `json:"lifetime_stats"`
	PersonalBests []ExerciseBestSetRecord       `json:"personal_bests"`
	Settings      UserExerciseSettings          `json:"settings"`
}

// UserToExerciseHistoryRecord indexes one workout appearance of the
// exercise, newest first.
type UserToExerciseHistoryRecord struct {
	WorkoutID   string    `json:"workout_id"`
	WorkoutEndOn time.Time `json:"workout_end_on"`
	Idx         int       `json:"idx"` // position within the workout
}

// UserToEntity is the per-(user, entity) denormalization: why the entity
// matters to the user, plus exercise training extras when the entity is an
// exercise.
type UserToEntity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	EntityID  string         `json:"entity_id"`
	EntityLot EntityLot      `json:"entity_lot"`
	MediaReason []EntityReason `json:"media_reason,omitempty"`

	ExerciseExtraInformation *UserToExerciseExtraInformation `json:"exercise_extra_information,omitempty"`
	ExerciseNumTimesInteracted int                           `json:"exercise_num_times_interacted,omitempty"`

	CreatedOn     time.Time `json:"created_on"`
	LastUpdatedOn time.Time `json:"last_updated_on"`
}

// HasReason reports whether the row already carries a reason.
func (u *UserToEntity) HasReason(r EntityReason) bool {
	for _, have := range u.MediaReason {
		if have == r {
			return true
		}
	}
	return false
}

// AddReason appends a reason if absent and reports whether it was added.
func (u *UserToEntity) AddReason(r EntityReason) bool {
	if u.HasReason(r) {
		return false
	}
	u.MediaReason = append(u.MediaReason, r)
	return true
}

// RemoveReason drops a reason and reports whether it was present.
func (u *UserToEntity) RemoveReason(r EntityReason) bool {
	for i, have := range u.MediaReason {
		if have == r {
			u.MediaReason = append(u.MediaReason[:i], u.MediaReason[i+1:]...)
			return true
		}
	}
	return false
}
