// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import "time"

// IntegrationProviderSpecifics is the union of per-provider connection
// settings. Only the fields for the row's provider are populated.
type IntegrationProviderSpecifics struct {
	// audiobookshelf
	AudiobookshelfBaseURL string `json:"audiobookshelf_base_url,omitempty"`
	AudiobookshelfToken   string `json:"audiobookshelf_token,omitempty"`
	// komga
	KomgaBaseURL  string      `json:"komga_base_url,omitempty"`
	KomgaUsername string      `json:"komga_username,omitempty"`
	KomgaPassword string      `json:"komga_password,omitempty"`
	KomgaProvider MediaSource `json:"komga_provider,omitempty"`
	// plex
	PlexYankBaseURL string `json:"plex_yank_base_url,omitempty"`
	PlexYankToken   string `json:"plex_yank_token,omitempty"`
	PlexSinkUsername string `json:"plex_sink_username,omitempty"`
	// jellyfin / emby
	JellyfinPushBaseURL  string `json:"jellyfin_push_base_url,omitempty"`
	JellyfinPushUsername string `json:"jellyfin_push_username,omitempty"`
	JellyfinPushPassword string `json:"jellyfin_push_password,omitempty"`
	EmbyBaseURL          string `json:"emby_base_url,omitempty"`
	EmbyAPIKey           string `json:"emby_api_key,omitempty"`
	// radarr / sonarr
	RadarrBaseURL      string   `json:"radarr_base_url,omitempty"`
	RadarrAPIKey       string   `json:"radarr_api_key,omitempty"`
	RadarrProfileID    int      `json:"radarr_profile_id,omitempty"`
	RadarrRootFolder   string   `json:"radarr_root_folder_path,omitempty"`
	RadarrSyncCollectionIDs []string `json:"radarr_sync_collection_ids,omitempty"`
	SonarrBaseURL      string   `json:"sonarr_base_url,omitempty"`
	SonarrAPIKey       string   `json:"sonarr_api_key,omitempty"`
	SonarrProfileID    int      `json:"sonarr_profile_id,omitempty"`
	SonarrRootFolder   string   `json:"sonarr_root_folder_path,omitempty"`
	SonarrSyncCollectionIDs []string `json:"sonarr_sync_collection_ids,omitempty"`
	// youtube music
	YoutubeMusicTimezone  string `json:"youtube_music_timezone,omitempty"`
	YoutubeMusicAuthCookie string `json:"youtube_music_auth_cookie,omitempty"`
}

// IntegrationTriggerResult records the outcome of the most recent yank or
// sink trigger.
type IntegrationTriggerResult struct {
	FinishedAt time.Time `json:"finished_at"`
	Error      *string   `json:"error,omitempty"`
}

// Integration is a per-user connection to an external system. The Slug
// routes sink webhooks; it is opaque per user per integration.
type Integration struct {
	ID       string              `json:"id"`
	UserID   string              `json:"user_id"`
	Lot      IntegrationLot      `json:"lot"`
	Provider IntegrationProvider `json:"provider"`
	Slug     string              `json:"slug"`

	Specifics IntegrationProviderSpecifics `json:"specifics"`

	IsDisabled            bool  `json:"is_disabled"`
	SyncToOwnedCollection bool  `json:"sync_to_owned_collection"`
	MinimumProgress       *int  `json:"minimum_progress,omitempty"` // percent
	MaximumProgress       *int  `json:"maximum_progress,omitempty"`

	TriggerResult []IntegrationTriggerResult `json:"trigger_result,omitempty"`
	LastFinishedAt *time.Time                `json:"last_finished_at,omitempty"`
	CreatedOn      time.Time                 `json:"created_on"`
}

// UserNotificationContent carries everything needed to render one
// notification without a second database read.
type UserNotificationContent struct {
	Change      MediaStateChanged `json:"change"`
	EntityID    string            `json:"entity_id"`
	EntityLot   EntityLot         `json:"entity_lot"`
	EntityTitle string            `json:"entity_title"`
	Message     string            `json:"message"`
}
