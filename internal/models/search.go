// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SearchDetails carries pagination info of one provider search page.
// NextPage is nil on the last page.
type SearchDetails struct {
	Total    int  `json:"total"`
	NextPage *int `json:"next_page,omitempty"`
}

// SearchResults is one page of provider search output.
type SearchResults[T any] struct {
	Details SearchDetails `json:"details"`
	Items   []T           `json:"items"`
}

// MetadataSearchItem is a provider search hit for media.
type MetadataSearchItem struct {
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Image       *string `json:"image,omitempty"`
	PublishYear *int    `json:"publish_year,omitempty"`
}

// PeopleSearchItem is a provider search hit for a person.
type PeopleSearchItem struct {
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	Image      *string `json:"image,omitempty"`
	BirthYear  *int    `json:"birth_year,omitempty"`
}

// MetadataGroupSearchItem is a provider search hit for a group.
type MetadataGroupSearchItem struct {
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	Image      *string `json:"image,omitempty"`
	Parts      int     `json:"parts"`
}

// MetadataDetails is the fully populated provider response for one media
// item, including the episode/chapter tree and partial-metadata
// suggestions.
type MetadataDetails struct {
	Identifier       string           `json:"identifier"`
	Lot              MediaLot         `json:"lot"`
	Source           MediaSource      `json:"source"`
	Title            string           `json:"title"`
	Description      *string          `json:"description,omitempty"`
	PublishYear      *int             `json:"publish_year,omitempty"`
	PublishDate      *time.Time       `json:"publish_date,omitempty"`
	IsNsfw           bool             `json:"is_nsfw"`
	ProviderRating   *decimal.Decimal `json:"provider_rating,omitempty"`
	SourceURL        *string          `json:"source_url,omitempty"`
	OriginalLanguage *string          `json:"original_language,omitempty"`
	ProductionStatus *string          `json:"production_status,omitempty"`
	Genres           []string         `json:"genres,omitempty"`
	Assets           EntityAssets     `json:"assets"`
	ExternalIdentifiers *ExternalIdentifiers `json:"external_identifiers,omitempty"`
	WatchProviders   []WatchProvider  `json:"watch_providers,omitempty"`
	Creators         []MetadataFreeCreator `json:"creators,omitempty"`
	People           []PartialMetadataPerson `json:"people,omitempty"`
	Suggestions      []PartialMetadata `json:"suggestions,omitempty"`
	Groups           []PartialMetadataGroup `json:"groups,omitempty"`

	ShowSpecifics        *ShowSpecifics        `json:"show_specifics,omitempty"`
	PodcastSpecifics     *PodcastSpecifics     `json:"podcast_specifics,omitempty"`
	BookSpecifics        *BookSpecifics        `json:"book_specifics,omitempty"`
	MovieSpecifics       *MovieSpecifics       `json:"movie_specifics,omitempty"`
	AnimeSpecifics       *AnimeSpecifics       `json:"anime_specifics,omitempty"`
	MangaSpecifics       *MangaSpecifics       `json:"manga_specifics,omitempty"`
	AudioBookSpecifics   *AudioBookSpecifics   `json:"audio_book_specifics,omitempty"`
	VideoGameSpecifics   *VideoGameSpecifics   `json:"video_game_specifics,omitempty"`
	VisualNovelSpecifics *VisualNovelSpecifics `json:"visual_novel_specifics,omitempty"`
	MusicSpecifics       *MusicSpecifics       `json:"music_specifics,omitempty"`
}

// PartialMetadataPerson references a credited person by provider identity.
type PartialMetadataPerson struct {
	Source          MediaSource            `json:"source"`
	Identifier      string                 `json:"identifier"`
	Name            string                 `json:"name"`
	Role            string                 `json:"role"`
	Character       *string                `json:"character,omitempty"`
	SourceSpecifics *PersonSourceSpecifics `json:"source_specifics,omitempty"`
}

// PartialMetadataGroup references a group by provider identity.
type PartialMetadataGroup struct {
	Lot        MediaLot    `json:"lot"`
	Source     MediaSource `json:"source"`
	Identifier string      `json:"identifier"`
	Title      string      `json:"title"`
	Part       int         `json:"part,omitempty"`
}

// PersonDetailsRelatedMetadata links a person to media they worked on.
type PersonDetailsRelatedMetadata struct {
	Role      string          `json:"role"`
	Character *string         `json:"character,omitempty"`
	Metadata  PartialMetadata `json:"metadata"`
}

// PersonDetails is the fully populated provider response for a person.
type PersonDetails struct {
	Identifier      string                 `json:"identifier"`
	Source          MediaSource            `json:"source"`
	SourceSpecifics *PersonSourceSpecifics `json:"source_specifics,omitempty"`
	Name            string                 `json:"name"`
	Description     *string                `json:"description,omitempty"`
	Gender          *string                `json:"gender,omitempty"`
	BirthDate       *time.Time             `json:"birth_date,omitempty"`
	DeathDate       *time.Time             `json:"death_date,omitempty"`
	Place           *string                `json:"place,omitempty"`
	Website         *string                `json:"website,omitempty"`
	Assets          EntityAssets           `json:"assets"`
	SourceURL       *string                `json:"source_url,omitempty"`
	RelatedMetadata []PersonDetailsRelatedMetadata `json:"related_metadata,omitempty"`
}

// MetadataGroupDetails is the fully populated provider response for a
/// group: the group header plus partial stubs of its parts.
type MetadataGroupDetails struct {
	Group MetadataGroup     `json:"group"`
	Parts []PartialMetadata `json:"parts"`
}

// TranslationResult is the output of a provider translate call.
type TranslationResult struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MetadataProgressUpdateCommon carries lot-specific addressing for a
// progress update. Exactly the fields matching the metadata's lot may be
// set.
type MetadataProgressUpdateCommon struct {
	ShowSeasonNumber     *int             `json:"show_season_number,omitempty"`
	ShowEpisodeNumber    *int             `json:"show_episode_number,omitempty"`
	PodcastEpisodeNumber *int             `json:"podcast_episode_number,omitempty"`
	AnimeEpisodeNumber   *int             `json:"anime_episode_number,omitempty"`
	MangaChapterNumber   *decimal.Decimal `json:"manga_chapter_number,omitempty"`
	MangaVolumeNumber    *int             `json:"manga_volume_number,omitempty"`
	ProviderWatchedOn    *string          `json:"provider_watched_on,omitempty"`
}
