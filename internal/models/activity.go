// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyUserActivity materializes per-(user, day) counters folded from
// seen, workout, measurement and review events. Durations are minutes.
type DailyUserActivity struct {
	UserID string    `json:"user_id"`
	Date   time.Time `json:"date"`

	MetadataReviewCount      int `json:"metadata_review_count"`
	CollectionReviewCount    int `json:"collection_review_count"`
	PersonReviewCount        int `json:"person_review_count"`
	MetadataGroupReviewCount int `json:"metadata_group_review_count"`

	MeasurementCount     int             `json:"measurement_count"`
	WorkoutCount         int             `json:"workout_count"`
	WorkoutDuration      int             `json:"workout_duration"`
	WorkoutWeight        decimal.Decimal `json:"workout_weight"`
	WorkoutReps          int             `json:"workout_reps"`
	WorkoutDistance      decimal.Decimal `json:"workout_distance"`
	WorkoutRestTime      int             `json:"workout_rest_time"`
	WorkoutPersonalBests int             `json:"workout_personal_bests"`

	AudioBookCount    int `json:"audio_book_count"`
	AudioBookDuration int `json:"audio_book_duration"`
	AnimeCount        int `json:"anime_count"`
	BookCount         int `json:"book_count"`
	BookPages         int `json:"book_pages"`
	PodcastCount      int `json:"podcast_count"`
	PodcastDuration   int `json:"podcast_duration"`
	MangaCount        int `json:"manga_count"`
	MovieCount        int `json:"movie_count"`
	MovieDuration     int `json:"movie_duration"`
	MusicCount        int `json:"music_count"`
	MusicDuration     int `json:"music_duration"`
	ShowCount         int `json:"show_count"`
	ShowDuration      int `json:"show_duration"`
	VideoGameCount    int `json:"video_game_count"`
	VideoGameDuration int `json:"video_game_duration"`
	VisualNovelCount  int `json:"visual_novel_count"`
	VisualNovelDuration int `json:"visual_novel_duration"`

	TotalMetadataCount int `json:"total_metadata_count"`
	TotalReviewCount   int `json:"total_review_count"`
	TotalCount         int `json:"total_count"`
	TotalDuration      int `json:"total_duration"`
}

// Finalize recomputes the derived totals from the per-lot counters.
// TotalCount must equal the sum of all per-lot counts for the row.
func (a *DailyUserActivity) Finalize() {
	a.TotalMetadataCount = a.AudioBookCount + a.AnimeCount + a.BookCount +
		a.PodcastCount + a.MangaCount + a.MovieCount + a.MusicCount +
		a.ShowCount + a.VideoGameCount + a.VisualNovelCount
	a.TotalReviewCount = a.MetadataReviewCount + a.CollectionReviewCount +
		a.PersonReviewCount + a.MetadataGroupReviewCount
	a.TotalCount = a.TotalMetadataCount + a.TotalReviewCount +
		a.MeasurementCount + a.WorkoutCount
	a.TotalDuration = a.AudioBookDuration + a.PodcastDuration +
		a.MovieDuration + a.MusicDuration + a.ShowDuration +
		a.VideoGameDuration + a.VisualNovelDuration + a.WorkoutDuration
}

// ActivityGroupBy selects the bucket width of an analytics query.
type ActivityGroupBy string

const (
	GroupByDay        ActivityGroupBy = "day"
	GroupByMonth      ActivityGroupBy = "month"
	GroupByYear       ActivityGroupBy = "year"
	GroupByMillennium ActivityGroupBy = "millennium"
)

// AdaptiveGroupBy picks a bucket width from the range span: wide ranges
// aggregate coarser so dashboards stay readable.
func AdaptiveGroupBy(from, to time.Time) ActivityGroupBy {
	days := int(to.Sub(from).Hours() / 24)
	switch {
	case days >= 500:
		return GroupByYear
	case days >= 200:
		return GroupByMonth
	default:
		return GroupByDay
	}
}
