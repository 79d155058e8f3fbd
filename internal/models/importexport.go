// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportOrExportItemRating is a review/rating attached to an imported or
// exported item. Rating is in the 0..100 storage scale.
type ImportOrExportItemRating struct {
	Rating  *decimal.Decimal `json:"rating,omitempty"`
	Review  *ImportOrExportItemReview `json:"review,omitempty"`
	ShowSeasonNumber   *int `json:"show_season_number,omitempty"`
	ShowEpisodeNumber  *int `json:"show_episode_number,omitempty"`
	PodcastEpisodeNumber *int `json:"podcast_episode_number,omitempty"`
	AnimeEpisodeNumber *int `json:"anime_episode_number,omitempty"`
	MangaChapterNumber *decimal.Decimal `json:"manga_chapter_number,omitempty"`
	Comments []ReviewComment `json:"comments,omitempty"`
}

// ImportOrExportItemReview is the text part of a rating.
type ImportOrExportItemReview struct {
	Date      *time.Time `json:"date,omitempty"`
	Spoiler   *bool      `json:"spoiler,omitempty"`
	Text      *string    `json:"text,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty"`
}

// ImportOrExportMetadataItemSeen is one seen-history entry of an item.
type ImportOrExportMetadataItemSeen struct {
	StartedOn  *time.Time `json:"started_on,omitempty"`
	EndedOn    *time.Time `json:"ended_on,omitempty"`
	Progress   *decimal.Decimal `json:"progress,omitempty"`
	ProviderWatchedOn *string `json:"provider_watched_on,omitempty"`
	ShowSeasonNumber  *int `json:"show_season_number,omitempty"`
	ShowEpisodeNumber *int `json:"show_episode_number,omitempty"`
	PodcastEpisodeNumber *int `json:"podcast_episode_number,omitempty"`
	AnimeEpisodeNumber *int `json:"anime_episode_number,omitempty"`
	MangaChapterNumber *decimal.Decimal `json:"manga_chapter_number,omitempty"`
	MangaVolumeNumber  *int `json:"manga_volume_number,omitempty"`
}

// ImportOrExportMetadataItem is the interchange schema for one media item:
// the importer consumes it, the exporter emits it, and the generic_json
// source round-trips it.
type ImportOrExportMetadataItem struct {
	Lot         MediaLot    `json:"lot"`
	Source      MediaSource `json:"source"`
	Identifier  string      `json:"identifier"`
	SourceID    string      `json:"source_id,omitempty"` // source-local display title
	SeenHistory []ImportOrExportMetadataItemSeen `json:"seen_history,omitempty"`
	Reviews     []ImportOrExportItemRating       `json:"reviews,omitempty"`
	Collections []string                         `json:"collections,omitempty"`
}

// ImportOrExportMetadataGroupItem is the interchange schema for a group.
type ImportOrExportMetadataGroupItem struct {
	Lot         MediaLot    `json:"lot"`
	Source      MediaSource `json:"source"`
	Identifier  string      `json:"identifier"`
	Title       string      `json:"title"`
	Reviews     []ImportOrExportItemRating `json:"reviews,omitempty"`
	Collections []string                   `json:"collections,omitempty"`
}

// ImportOrExportPersonItem is the interchange schema for a person.
type ImportOrExportPersonItem struct {
	Source          MediaSource            `json:"source"`
	Identifier      string                 `json:"identifier"`
	SourceSpecifics *PersonSourceSpecifics `json:"source_specifics,omitempty"`
	Name            string                 `json:"name"`
	Reviews         []ImportOrExportItemRating `json:"reviews,omitempty"`
	Collections     []string                   `json:"collections,omitempty"`
}

// ImportOrExportExerciseItem is the interchange schema for an exercise.
type ImportOrExportExerciseItem struct {
	Name        string      `json:"name"`
	Lot         ExerciseLot `json:"lot"`
	Reviews     []ImportOrExportItemRating `json:"reviews,omitempty"`
	Collections []string                   `json:"collections,omitempty"`
}

// ImportCompletedItem is the tagged union of everything an import adapter
// can produce. Exactly one field is set.
type ImportCompletedItem struct {
	Metadata      *ImportOrExportMetadataItem      `json:"metadata,omitempty"`
	MetadataGroup *ImportOrExportMetadataGroupItem `json:"metadata_group,omitempty"`
	Person        *ImportOrExportPersonItem        `json:"person,omitempty"`
	Exercise      *ImportOrExportExerciseItem      `json:"exercise,omitempty"`
	Workout       *Workout                         `json:"workout,omitempty"`
	Measurement   *UserMeasurement                 `json:"measurement,omitempty"`
	Collection    *Collection                      `json:"collection,omitempty"`
}

// Name describes the item for progress reporting.
func (i ImportCompletedItem) Name() string {
	switch {
	case i.Metadata != nil:
		return i.Metadata.SourceID
	case i.MetadataGroup != nil:
		return i.MetadataGroup.Title
	case i.Person != nil:
		return i.Person.Name
	case i.Exercise != nil:
		return i.Exercise.Name
	case i.Workout != nil:
		return i.Workout.Name
	case i.Measurement != nil:
		return i.Measurement.Timestamp.Format(time.RFC3339)
	case i.Collection != nil:
		return i.Collection.Name
	}
	return "unknown"
}

// ImportFailedItem records one item that could not be imported and the
// step it failed at.
type ImportFailedItem struct {
	Identifier string         `json:"identifier"`
	Lot        *MediaLot      `json:"lot,omitempty"`
	Step       ImportFailStep `json:"step"`
	Error      *string        `json:"error,omitempty"`
}

// ImportResult is what every source adapter returns.
type ImportResult struct {
	Completed []ImportCompletedItem `json:"completed"`
	Failed    []ImportFailedItem    `json:"failed"`
}

// ImportResultDetails is the persisted summary inside an ImportReport.
type ImportResultDetails struct {
	Import      ImportDetails      `json:"import"`
	FailedItems []ImportFailedItem `json:"failed_items"`
}

// ImportDetails counts successful items.
type ImportDetails struct {
	Total int `json:"total"`
}

// ImportReport is the audit row of one import run.
type ImportReport struct {
	ID         string               `json:"id"`
	UserID     string               `json:"user_id"`
	Source     ImportSource         `json:"source"`
	StartedOn  time.Time            `json:"started_on"`
	FinishedOn *time.Time           `json:"finished_on,omitempty"`
	WasSuccess *bool                `json:"was_success,omitempty"`
	Details    *ImportResultDetails `json:"details,omitempty"`
	Progress   *decimal.Decimal     `json:"progress,omitempty"` // 0..100
	EstimatedFinishTime *time.Time  `json:"estimated_finish_time,omitempty"`
}

// CompleteExport is the v1 export document shape. The importer's
// generic_json source parses this exact shape back.
type CompleteExport struct {
	Media        []ImportOrExportMetadataItem      `json:"media,omitempty"`
	MediaGroups  []ImportOrExportMetadataGroupItem `json:"media_group,omitempty"`
	People       []ImportOrExportPersonItem        `json:"people,omitempty"`
	Measurements []UserMeasurement                 `json:"measurements,omitempty"`
	Workouts     []Workout                         `json:"workouts,omitempty"`
}
