// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityAssets groups the image/video references of a catalog entity.
// Remote URLs come from providers; s3 keys are user uploads.
type EntityAssets struct {
	RemoteImages []string `json:"remote_images,omitempty"`
	RemoteVideos []string `json:"remote_videos,omitempty"`
	S3Images     []string `json:"s3_images,omitempty"`
	S3Videos     []string `json:"s3_videos,omitempty"`
}

// WatchProvider is a streaming/purchase option reported by a provider.
type WatchProvider struct {
	Name      string   `json:"name"`
	Image     string   `json:"image,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// MetadataFreeCreator is a creator credited by name only, with no person
// row behind it.
type MetadataFreeCreator struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Image string `json:"image,omitempty"`
}

// ExternalIdentifiers holds cross-provider ids attached to a metadata row.
type ExternalIdentifiers struct {
	Tmdb *int    `json:"tmdb,omitempty"`
	Tvdb *int    `json:"tvdb,omitempty"`
	Imdb *string `json:"imdb,omitempty"`
	Mal  *int    `json:"mal,omitempty"`
}

// Metadata is the generic catalog row. Uniqueness is (lot, source,
// identifier) except for source=custom which is unique by id alone.
// is_partial marks a stub inserted to satisfy a foreign key before full
// details were fetched.
type Metadata struct {
	ID                  string               `json:"id"`
	Lot                 MediaLot             `json:"lot"`
	Source              MediaSource          `json:"source"`
	Identifier          string               `json:"identifier"`
	Title               string               `json:"title"`
	Description         *string              `json:"description,omitempty"`
	PublishYear         *int                 `json:"publish_year,omitempty"`
	PublishDate         *time.Time           `json:"publish_date,omitempty"`
	IsNsfw              bool                 `json:"is_nsfw"`
	IsPartial           bool                 `json:"is_partial"`
	ProviderRating      *decimal.Decimal     `json:"provider_rating,omitempty"`
	SourceURL           *string              `json:"source_url,omitempty"`
	OriginalLanguage    *string              `json:"original_language,omitempty"`
	ProductionStatus    *string              `json:"production_status,omitempty"`
	Assets              EntityAssets         `json:"assets"`
	ExternalIdentifiers *ExternalIdentifiers `json:"external_identifiers,omitempty"`
	WatchProviders      []WatchProvider      `json:"watch_providers,omitempty"`
	FreeCreators        []MetadataFreeCreator `json:"free_creators,omitempty"`

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

	CreatedOn     time.Time `json:"created_on"`
	LastUpdatedOn time.Time `json:"last_updated_on"`
}

// ShowSpecifics carries the season/episode tree of a show.
type ShowSpecifics struct {
	Seasons      []ShowSeason `json:"seasons"`
	TotalSeasons int          `json:"total_seasons"`
	TotalEpisodes int         `json:"total_episodes"`
	Runtime      *int         `json:"runtime,omitempty"` // minutes, summed over episodes
}

// ShowSeason is one season of a show. Season 0 holds specials and is
// excluded from finished detection.
type ShowSeason struct {
	SeasonNumber int           `json:"season_number"`
	Name         string        `json:"name,omitempty"`
	Overview     *string       `json:"overview,omitempty"`
	PosterImages []string      `json:"poster_images,omitempty"`
	PublishDate  *time.Time    `json:"publish_date,omitempty"`
	Episodes     []ShowEpisode `json:"episodes"`
}

// ShowEpisode is one episode of a season.
type ShowEpisode struct {
	EpisodeNumber int        `json:"episode_number"`
	Name          string     `json:"name,omitempty"`
	Overview      *string    `json:"overview,omitempty"`
	PosterImages  []string   `json:"poster_images,omitempty"`
	PublishDate   *time.Time `json:"publish_date,omitempty"`
	Runtime       *int       `json:"runtime,omitempty"` // minutes
}

// PodcastSpecifics carries the full episode list of a podcast.
type PodcastSpecifics struct {
	TotalEpisodes int              `json:"total_episodes"`
	Episodes      []PodcastEpisode `json:"episodes"`
}

// PodcastEpisode is one episode. Number may be synthesized by position
// when the provider omits it (Listennotes, iTunes).
type PodcastEpisode struct {
	Number      int        `json:"number"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Overview    *string    `json:"overview,omitempty"`
	Thumbnail   *string    `json:"thumbnail,omitempty"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Runtime     *int       `json:"runtime,omitempty"` // minutes
}

// BookSpecifics holds book-only attributes.
type BookSpecifics struct {
	Pages  *int  `json:"pages,omitempty"`
	IsCompilation bool `json:"is_compilation,omitempty"`
}

// MovieSpecifics holds movie-only attributes.
type MovieSpecifics struct {
	Runtime *int `json:"runtime,omitempty"` // minutes
}

// AnimeSpecifics holds anime-only attributes.
type AnimeSpecifics struct {
	Episodes *int `json:"episodes,omitempty"`
}

// MangaSpecifics holds manga-only attributes. Chapters is decimal because
// providers publish half chapters.
type MangaSpecifics struct {
	Chapters *decimal.Decimal `json:"chapters,omitempty"`
	Volumes  *int             `json:"volumes,omitempty"`
}

// AudioBookSpecifics holds audiobook-only attributes.
type AudioBookSpecifics struct {
	Runtime *int `json:"runtime,omitempty"` // minutes
}

// VideoGameSpecifics holds video-game-only attributes.
type VideoGameSpecifics struct {
	Platforms []string `json:"platforms,omitempty"`
}

// VisualNovelSpecifics holds visual-novel-only attributes.
type VisualNovelSpecifics struct {
	LengthMinutes *int `json:"length_minutes,omitempty"`
}

// MusicSpecifics holds music-only attributes.
type MusicSpecifics struct {
	Duration         *int `json:"duration,omitempty"` // seconds
	ViewCount        *int `json:"view_count,omitempty"`
	ByVariousArtists bool `json:"by_various_artists,omitempty"`
}

// PartialMetadata is the stub used to reference a catalog entity before
// its details are fetched. CommitMetadata turns it into an is_partial row.
type PartialMetadata struct {
	Lot        MediaLot    `json:"lot"`
	Source     MediaSource `json:"source"`
	Identifier string      `json:"identifier"`
	Title      string      `json:"title,omitempty"`
	Image      *string     `json:"image,omitempty"`
}

// MetadataGroup is a set of metadata (trilogy, series arc). Same (lot,
// source, identifier) uniqueness as Metadata.
type MetadataGroup struct {
	ID            string       `json:"id"`
	Lot           MediaLot     `json:"lot"`
	Source        MediaSource  `json:"source"`
	Identifier    string       `json:"identifier"`
	Title         string       `json:"title"`
	Description   *string      `json:"description,omitempty"`
	Parts         int          `json:"parts"`
	Assets        EntityAssets `json:"assets"`
	IsPartial     bool         `json:"is_partial"`
	SourceURL     *string      `json:"source_url,omitempty"`
	CreatedOn     time.Time    `json:"created_on"`
	LastUpdatedOn time.Time    `json:"last_updated_on"`
}

// PersonSourceSpecifics carries provider-scoped flags that disambiguate a
// person identity, e.g. "this identifier is a company, not a person".
// Uniqueness of Person treats an empty struct as NULL.
type PersonSourceSpecifics struct {
	IsTmdbCompany   bool `json:"is_tmdb_company,omitempty"`
	IsAnilistStudio bool `json:"is_anilist_studio,omitempty"`
	IsGiantBombCompany bool `json:"is_giant_bomb_company,omitempty"`
	IsHardcoverPublisher bool `json:"is_hardcover_publisher,omitempty"`
}

// IsZero reports whether no flag is set; zero specifics are persisted as
// NULL so the (source, identifier, specifics) uniqueness holds.
func (s *PersonSourceSpecifics) IsZero() bool {
	return s == nil || (!s.IsTmdbCompany && !s.IsAnilistStudio &&
		!s.IsGiantBombCompany && !s.IsHardcoverPublisher)
}

// Person is the identity of a creator, actor or studio.
type Person struct {
	ID              string                 `json:"id"`
	Source          MediaSource            `json:"source"`
	Identifier      string                 `json:"identifier"`
	SourceSpecifics *PersonSourceSpecifics `json:"source_specifics,omitempty"`
	Name            string                 `json:"name"`
	Description     *string                `json:"description,omitempty"`
	Gender          *string                `json:"gender,omitempty"`
	BirthDate       *time.Time             `json:"birth_date,omitempty"`
	DeathDate       *time.Time             `json:"death_date,omitempty"`
	Place           *string                `json:"place,omitempty"`
	Website         *string                `json:"website,omitempty"`
	Assets          EntityAssets           `json:"assets"`
	IsPartial       bool                   `json:"is_partial"`
	SourceURL       *string                `json:"source_url,omitempty"`
	CreatedOn       time.Time              `json:"created_on"`
	LastUpdatedOn   time.Time              `json:"last_updated_on"`
}

// Genre is a shared string label, many-to-many with metadata.
type Genre struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MetadataToPerson is the credited edge between a metadata row and a
// person, ordered by Index within a role.
type MetadataToPerson struct {
	MetadataID string  `json:"metadata_id"`
	PersonID   string  `json:"person_id"`
	Role       string  `json:"role"`
	Character  *string `json:"character,omitempty"`
	Index      int     `json:"index"`
}

// MetadataGroupToPerson is the credited edge for groups.
type MetadataGroupToPerson struct {
	MetadataGroupID string `json:"metadata_group_id"`
	PersonID        string `json:"person_id"`
	Role            string `json:"role"`
	Index           int    `json:"index"`
}

// MetadataToMetadataGroup orders a metadata row inside its group.
type MetadataToMetadataGroup struct {
	MetadataID      string `json:"metadata_id"`
	MetadataGroupID string `json:"metadata_group_id"`
	Part            int    `json:"part"`
}

// CalendarEvent is a derived row, one per (metadata, release date,
// optional episode address). Rebuilt by the RecalculateCalendarEvents job.
type CalendarEvent struct {
	ID               string     `json:"id"`
	MetadataID       string     `json:"metadata_id"`
	Date             time.Time  `json:"date"`
	ShowSeasonNumber *int       `json:"show_season_number,omitempty"`
	ShowEpisodeNumber *int      `json:"show_episode_number,omitempty"`
	PodcastEpisodeNumber *int   `json:"podcast_episode_number,omitempty"`
	CreatedOn        time.Time  `json:"created_on"`
}
