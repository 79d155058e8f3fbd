// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

// MediaLot identifies the kind of a catalog entity. Persisted as
// snake_case strings.
type MediaLot string

const (
	MediaLotBook        MediaLot = "book"
	MediaLotMovie       MediaLot = "movie"
	MediaLotShow        MediaLot = "show"
	MediaLotPodcast     MediaLot = "podcast"
	MediaLotAnime       MediaLot = "anime"
	MediaLotManga       MediaLot = "manga"
	MediaLotAudioBook   MediaLot = "audio_book"
	MediaLotVideoGame   MediaLot = "video_game"
	MediaLotVisualNovel MediaLot = "visual_novel"
	MediaLotMusic       MediaLot = "music"
)

// AllMediaLots lists every media lot in a stable order.
var AllMediaLots = []MediaLot{
	MediaLotBook, MediaLotMovie, MediaLotShow, MediaLotPodcast,
	MediaLotAnime, MediaLotManga, MediaLotAudioBook, MediaLotVideoGame,
	MediaLotVisualNovel, MediaLotMusic,
}

// IsValid reports whether the lot is a known variant.
func (l MediaLot) IsValid() bool {
	for _, v := range AllMediaLots {
		if l == v {
			return true
		}
	}
	return false
}

// IsSerialized reports whether consumption of this lot is addressed by
// episode/chapter rather than a single completion. Finished detection for
// serialized lots requires every unit to be seen.
func (l MediaLot) IsSerialized() bool {
	switch l {
	case MediaLotShow, MediaLotPodcast, MediaLotAnime, MediaLotManga:
		return true
	default:
		return false
	}
}

// MediaSource identifies the external provider that authoritatively knows
// an entity's identifier.
type MediaSource string

const (
	MediaSourceTmdb         MediaSource = "tmdb"
	MediaSourceIgdb         MediaSource = "igdb"
	MediaSourceAnilist      MediaSource = "anilist"
	MediaSourceMal          MediaSource = "mal"
	MediaSourceVndb         MediaSource = "vndb"
	MediaSourceItunes       MediaSource = "itunes"
	MediaSourceListennotes  MediaSource = "listennotes"
	MediaSourceAudible      MediaSource = "audible"
	MediaSourceOpenlibrary  MediaSource = "openlibrary"
	MediaSourceHardcover    MediaSource = "hardcover"
	MediaSourceGoogleBooks  MediaSource = "google_books"
	MediaSourceMangaUpdates MediaSource = "manga_updates"
	MediaSourceYoutubeMusic MediaSource = "youtube_music"
	MediaSourceTvdb         MediaSource = "tvdb"
	MediaSourceGiantBomb    MediaSource = "giant_bomb"
	MediaSourceCustom       MediaSource = "custom"
)

// SeenState is the lifecycle state of one consumption record.
type SeenState string

const (
	SeenStateInProgress SeenState = "in_progress"
	SeenStateCompleted  SeenState = "completed"
	SeenStateDropped    SeenState = "dropped"
	SeenStateOnAHold    SeenState = "on_a_hold"
)

// UserLot distinguishes admin users from normal ones.
type UserLot string

const (
	UserLotAdmin  UserLot = "admin"
	UserLotNormal UserLot = "normal"
)

// Visibility controls who can see a review.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// EntityLot tags the target of a polymorphic edge (collection membership,
// review, user-to-entity row).
type EntityLot string

const (
	EntityLotMetadata        EntityLot = "metadata"
	EntityLotMetadataGroup   EntityLot = "metadata_group"
	EntityLotPerson          EntityLot = "person"
	EntityLotExercise        EntityLot = "exercise"
	EntityLotWorkout         EntityLot = "workout"
	EntityLotWorkoutTemplate EntityLot = "workout_template"
	EntityLotCollection      EntityLot = "collection"
)

// EntityReason records why a user-to-entity row exists. A row carries the
// union of every reason that currently applies.
type EntityReason string

const (
	EntityReasonSeen       EntityReason = "seen"
	EntityReasonOwned      EntityReason = "owned"
	EntityReasonReviewed   EntityReason = "reviewed"
	EntityReasonReminder   EntityReason = "reminder"
	EntityReasonWatchlist  EntityReason = "watchlist"
	EntityReasonCollection EntityReason = "collection"
	EntityReasonMonitoring EntityReason = "monitoring"
	EntityReasonFinished   EntityReason = "finished"
)

// DefaultCollection names carry engine-maintained semantics.
type DefaultCollection string

const (
	CollectionWatchlist  DefaultCollection = "Watchlist"
	CollectionInProgress DefaultCollection = "In Progress"
	CollectionCompleted  DefaultCollection = "Completed"
	CollectionMonitoring DefaultCollection = "Monitoring"
	CollectionOwned      DefaultCollection = "Owned"
	CollectionReminders  DefaultCollection = "Reminders"
)

// DefaultCollections lists the buckets bootstrapped for every new user.
var DefaultCollections = []DefaultCollection{
	CollectionWatchlist, CollectionInProgress, CollectionCompleted,
	CollectionMonitoring, CollectionOwned, CollectionReminders,
}

// ProductionStatus values mirror what providers report; stored free-form
// but these cover the common vocabulary.
const (
	ProductionStatusReleased      = "Released"
	ProductionStatusInDevelopment = "In development"
	ProductionStatusCancelled     = "Cancelled"
	ProductionStatusFinished      = "Finished"
)

// UserReviewScale is the display scale a user prefers for ratings. Storage
// is always 0..100 regardless of this preference.
type UserReviewScale string

const (
	ReviewScaleOutOfFive        UserReviewScale = "out_of_five"
	ReviewScaleOutOfTen         UserReviewScale = "out_of_ten"
	ReviewScaleOutOfHundred     UserReviewScale = "out_of_hundred"
	ReviewScaleThreePointSmiley UserReviewScale = "three_point_smiley"
)

// MediaStateChanged enumerates the change kinds the monitoring system
// detects when a refreshed entity is diffed against its stored snapshot.
type MediaStateChanged string

const (
	ChangeMetadataPublished                 MediaStateChanged = "metadata_published"
	ChangeMetadataStatusChanged             MediaStateChanged = "metadata_status_changed"
	ChangeMetadataReleaseDateChanged        MediaStateChanged = "metadata_release_date_changed"
	ChangeMetadataNumberOfSeasonsChanged    MediaStateChanged = "metadata_number_of_seasons_changed"
	ChangeMetadataEpisodeReleased           MediaStateChanged = "metadata_episode_released"
	ChangeMetadataEpisodeNameChanged        MediaStateChanged = "metadata_episode_name_changed"
	ChangeMetadataChaptersOrEpisodesChanged MediaStateChanged = "metadata_chapters_or_episodes_changed"
	ChangeMetadataEpisodeImagesChanged      MediaStateChanged = "metadata_episode_images_changed"
	ChangePersonMediaAssociated             MediaStateChanged = "person_media_associated"
	ChangeReviewPosted                      MediaStateChanged = "review_posted"
)

// NotificationPlatformKind enumerates delivery targets.
type NotificationPlatformKind string

const (
	PlatformApprise    NotificationPlatformKind = "apprise"
	PlatformDiscord    NotificationPlatformKind = "discord"
	PlatformGotify     NotificationPlatformKind = "gotify"
	PlatformNtfy       NotificationPlatformKind = "ntfy"
	PlatformPushBullet NotificationPlatformKind = "push_bullet"
	PlatformPushOver   NotificationPlatformKind = "push_over"
	PlatformPushSafer  NotificationPlatformKind = "push_safer"
	PlatformEmail      NotificationPlatformKind = "email"
	PlatformTelegram   NotificationPlatformKind = "telegram"
)

// IntegrationLot is the direction of an integration.
type IntegrationLot string

const (
	IntegrationLotYank IntegrationLot = "yank"
	IntegrationLotSink IntegrationLot = "sink"
	IntegrationLotPush IntegrationLot = "push"
)

// IntegrationProvider enumerates the supported external systems.
type IntegrationProvider string

const (
	IntegrationAudiobookshelf IntegrationProvider = "audiobookshelf"
	IntegrationKomga          IntegrationProvider = "komga"
	IntegrationPlexYank       IntegrationProvider = "plex_yank"
	IntegrationPlexSink       IntegrationProvider = "plex_sink"
	IntegrationJellyfinPush   IntegrationProvider = "jellyfin_push"
	IntegrationJellyfinSink   IntegrationProvider = "jellyfin_sink"
	IntegrationEmby           IntegrationProvider = "emby"
	IntegrationKodi           IntegrationProvider = "kodi"
	IntegrationRadarr         IntegrationProvider = "radarr"
	IntegrationSonarr         IntegrationProvider = "sonarr"
	IntegrationYoutubeMusic   IntegrationProvider = "youtube_music"
	IntegrationGenericJson    IntegrationProvider = "generic_json"
)

// ImportSource enumerates the importer's source adapters.
type ImportSource string

const (
	ImportSourceAnilist        ImportSource = "anilist"
	ImportSourceAudiobookshelf ImportSource = "audiobookshelf"
	ImportSourceGenericJson    ImportSource = "generic_json"
	ImportSourceGoodreads      ImportSource = "goodreads"
	ImportSourceGrouvee        ImportSource = "grouvee"
	ImportSourceHevy           ImportSource = "hevy"
	ImportSourceIgdb           ImportSource = "igdb"
	ImportSourceImdb           ImportSource = "imdb"
	ImportSourceJellyfin       ImportSource = "jellyfin"
	ImportSourceMediaTracker   ImportSource = "media_tracker"
	ImportSourceMovary         ImportSource = "movary"
	ImportSourceMyAnimeList    ImportSource = "myanimelist"
	ImportSourceOpenScale      ImportSource = "open_scale"
	ImportSourcePlex           ImportSource = "plex"
	ImportSourceStoryGraph     ImportSource = "story_graph"
	ImportSourceStrongApp      ImportSource = "strong_app"
	ImportSourceTrakt          ImportSource = "trakt"
)

// ImportFailStep records how far an item got before failing.
type ImportFailStep string

const (
	ImportFailItemDetailsFromSource      ImportFailStep = "item_details_from_source"
	ImportFailInputTransformation        ImportFailStep = "input_transformation"
	ImportFailMediaDetailsFromProvider   ImportFailStep = "media_details_from_provider"
	ImportFailSeenHistoryConversion      ImportFailStep = "seen_history_conversion"
	ImportFailDatabaseCommit             ImportFailStep = "database_commit"
)

// ExerciseLot determines which set-statistic fields are meaningful and
// which personal-best kinds are valid.
type ExerciseLot string

const (
	ExerciseLotReps                ExerciseLot = "reps"
	ExerciseLotRepsAndWeight       ExerciseLot = "reps_and_weight"
	ExerciseLotDuration            ExerciseLot = "duration"
	ExerciseLotDistanceAndDuration ExerciseLot = "distance_and_duration"
	ExerciseLotRepsAndDuration     ExerciseLot = "reps_and_duration"
)

// ExerciseSource distinguishes catalog exercises from user-created ones.
type ExerciseSource string

const (
	ExerciseSourceGithub ExerciseSource = "github"
	ExerciseSourceCustom ExerciseSource = "custom"
)

// SetLot classifies a workout set.
type SetLot string

const (
	SetLotNormal  SetLot = "normal"
	SetLotWarmup  SetLot = "warmup"
	SetLotDrop    SetLot = "drop"
	SetLotFailure SetLot = "failure"
)

// PersonalBestKind enumerates PR metrics.
type PersonalBestKind string

const (
	PBWeight   PersonalBestKind = "weight"
	PBReps     PersonalBestKind = "reps"
	PBOneRm    PersonalBestKind = "one_rm"
	PBVolume   PersonalBestKind = "volume"
	PBTime     PersonalBestKind = "time"
	PBPace     PersonalBestKind = "pace"
	PBDistance PersonalBestKind = "distance"
)

// ValidPersonalBests returns the PR kinds that are meaningful for an
// exercise lot.
func (l ExerciseLot) ValidPersonalBests() []PersonalBestKind {
	switch l {
	case ExerciseLotReps:
		return []PersonalBestKind{PBReps}
	case ExerciseLotRepsAndWeight:
		return []PersonalBestKind{PBWeight, PBReps, PBOneRm, PBVolume}
	case ExerciseLotDuration:
		return []PersonalBestKind{PBTime}
	case ExerciseLotDistanceAndDuration:
		return []PersonalBestKind{PBTime, PBPace, PBDistance}
	case ExerciseLotRepsAndDuration:
		return []PersonalBestKind{PBReps, PBTime}
	default:
		return nil
	}
}
