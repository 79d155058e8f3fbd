// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
)

// ErrIntegrationDisabled rejects webhooks for disabled rows.
var ErrIntegrationDisabled = errors.New("integrations: integration is disabled")

// ErrPayloadIgnored marks payloads that parse fine but carry nothing to
// apply (wrong event kind, unmatched user, no identifier).
var ErrPayloadIgnored = errors.New("integrations: payload ignored")

// sinkEvent is the provider-independent form of one webhook payload.
type sinkEvent struct {
	Lot        models.MediaLot
	Source     models.MediaSource
	Identifier string
	Title      string
	Progress   decimal.Decimal
	Season     *int
	Episode    *int
	PlayedOn   string // provider display name for provider_watched_on
}

// ProcessSink routes one webhook body to its integration by slug and
// feeds the derived progress update through the progress engine. The
// trigger outcome is recorded on the integration row either way.
func (m *Manager) ProcessSink(ctx context.Context, slug string, payload []byte) error {
	integration, err := m.store.GetIntegrationBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if integration.IsDisabled {
		return ErrIntegrationDisabled
	}

	err = m.processSinkPayload(ctx, integration, payload)
	if err != nil && !errors.Is(err, ErrPayloadIgnored) {
		m.recordTrigger(ctx, integration, err)
		return err
	}
	m.recordTrigger(ctx, integration, nil)
	return nil
}

func (m *Manager) processSinkPayload(ctx context.Context, integration *models.Integration, payload []byte) error {
	events, err := parseSinkPayload(integration, payload)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return ErrPayloadIgnored
	}
	for _, event := range events {
		if err := m.applySinkEvent(ctx, integration, event); err != nil {
			return err
		}
	}
	return nil
}

// applySinkEvent commits the metadata identity and advances the user's
// progress. Replays are idempotent: completing twice updates the same
// row, and re-sending an in-progress percentage mutates the single open
// Seen.
func (m *Manager) applySinkEvent(ctx context.Context, integration *models.Integration, event sinkEvent) error {
	metadataID, err := m.store.CommitMetadata(ctx, models.PartialMetadata{
		Lot:        event.Lot,
		Source:     event.Source,
		Identifier: event.Identifier,
		Title:      event.Title,
	})
	if err != nil {
		return err
	}

	common := models.MetadataProgressUpdateCommon{
		ShowSeasonNumber:  event.Season,
		ShowEpisodeNumber: event.Episode,
	}
	if event.PlayedOn != "" {
		common.ProviderWatchedOn = &event.PlayedOn
	}

	verdict := windowAction(integration, &event.Progress)
	if verdict == windowSkip {
		return nil
	}
	if verdict == windowComplete || event.Progress.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		// Close the open row first; only insert a fresh completed row
		// when there is nothing open and no identical completion on
		// record, so a replayed payload lands on the same row.
		full := decimal.NewFromInt(100)
		_, err := m.engine.Update(ctx, integration.UserID, progress.UpdateInput{
			MetadataID:             metadataID,
			ChangeLatestInProgress: &progress.LatestInProgressChange{Progress: &full},
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, progress.ErrNoInProgress) {
			return err
		}
		done, err := m.completedToday(ctx, integration.UserID, metadataID, event)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		_, err = m.engine.Update(ctx, integration.UserID, progress.UpdateInput{
			MetadataID:         metadataID,
			CreateNewCompleted: &progress.NewCompletedChange{Common: common},
		})
		return err
	}

	_, err = m.engine.Update(ctx, integration.UserID, progress.UpdateInput{
		MetadataID:          metadataID,
		CreateNewInProgress: &progress.NewInProgressChange{Common: common},
	})
	if err != nil && !errors.Is(err, progress.ErrAlreadyInProgress) {
		return err
	}
	_, err = m.engine.Update(ctx, integration.UserID, progress.UpdateInput{
		MetadataID:             metadataID,
		ChangeLatestInProgress: &progress.LatestInProgressChange{Progress: &event.Progress},
	})
	return err
}

// completedToday reports whether the user already holds a completed row
// for the event's unit finished on the current UTC day. Sinks replay
// their payloads freely, so a repeated completion must not insert a
// second history row.
func (m *Manager) completedToday(ctx context.Context, userID, metadataID string, event sinkEvent) (bool, error) {
	rows, err := m.store.ListFinishedSeen(ctx, userID, metadataID)
	if err != nil {
		return false, err
	}
	today := time.Now().UTC()
	for _, row := range rows {
		if !seenMatchesUnit(row, event.Season, event.Episode) {
			continue
		}
		if row.FinishedOn != nil && sameUTCDay(*row.FinishedOn, today) {
			return true, nil
		}
	}
	return false, nil
}

// seenMatchesUnit compares a seen row's addressing against an incoming
// event's episode coordinates. Rows without extras match unaddressed
// events only.
func seenMatchesUnit(row *models.Seen, season, episode *int) bool {
	if season == nil && episode == nil {
		return row.ShowExtraInformation == nil && row.PodcastExtraInformation == nil
	}
	if season == nil && episode != nil && row.PodcastExtraInformation != nil {
		return row.PodcastExtraInformation.Episode == *episode
	}
	show := row.ShowExtraInformation
	if show == nil || season == nil || episode == nil {
		return false
	}
	return show.Season == *season && show.Episode == *episode
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func parseSinkPayload(integration *models.Integration, payload []byte) ([]sinkEvent, error) {
	switch integration.Provider {
	case models.IntegrationPlexSink:
		return parsePlexSink(integration, payload)
	case models.IntegrationJellyfinSink, models.IntegrationKodi:
		// The Kodi addon emits the Jellyfin webhook shape.
		return parseJellyfinSink(payload)
	case models.IntegrationEmby:
		return parseEmbySink(payload)
	case models.IntegrationGenericJson:
		return parseGenericJsonSink(payload)
	default:
		return nil, fmt.Errorf("integrations: %s is not a sink provider", integration.Provider)
	}
}

// plexSinkPayload is the JSON part of a Plex webhook.
type plexSinkPayload struct {
	Event   string `json:"event"`
	Account struct {
		Title string `json:"title"`
	} `json:"Account"`
	Metadata struct {
		Type             string `json:"type"`
		Title            string `json:"title"`
		GrandparentTitle string `json:"grandparentTitle"`
		ParentIndex      *int   `json:"parentIndex"`
		Index            *int   `json:"index"`
		ViewOffset       int64  `json:"viewOffset"`
		Duration         int64  `json:"duration"`
		Guid             []struct {
			ID string `json:"id"`
		} `json:"Guid"`
	} `json:"Metadata"`
}

func parsePlexSink(integration *models.Integration, payload []byte) ([]sinkEvent, error) {
	var hook plexSinkPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("integrations: decode plex payload: %w", err)
	}
	if username := integration.Specifics.PlexSinkUsername; username != "" && hook.Account.Title != username {
		return nil, nil
	}

	var pct decimal.Decimal
	switch hook.Event {
	case "media.scrobble":
		pct = decimal.NewFromInt(100)
	case "media.pause", "media.stop", "media.play", "media.resume":
		if hook.Metadata.Duration == 0 {
			return nil, nil
		}
		pct = decimal.NewFromInt(hook.Metadata.ViewOffset).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(hook.Metadata.Duration))
	default:
		return nil, nil
	}

	tmdbID := ""
	for _, guid := range hook.Metadata.Guid {
		if id, ok := strings.CutPrefix(guid.ID, "tmdb://"); ok {
			tmdbID = id
			break
		}
	}
	if tmdbID == "" {
		return nil, fmt.Errorf("integrations: plex payload carries no tmdb guid")
	}

	event := sinkEvent{
		Source:     models.MediaSourceTmdb,
		Identifier: tmdbID,
		Progress:   pct,
		PlayedOn:   "Plex",
	}
	switch hook.Metadata.Type {
	case "movie":
		event.Lot = models.MediaLotMovie
		event.Title = hook.Metadata.Title
	case "episode":
		event.Lot = models.MediaLotShow
		event.Title = hook.Metadata.GrandparentTitle
		event.Season = hook.Metadata.ParentIndex
		event.Episode = hook.Metadata.Index
	default:
		return nil, nil
	}
	return []sinkEvent{event}, nil
}

// jellyfinSinkPayload is the Jellyfin webhook plugin shape.
type jellyfinSinkPayload struct {
	Event string `json:"NotificationType"`
	Item  struct {
		Type              string            `json:"Type"`
		Name              string            `json:"Name"`
		SeriesName        string            `json:"SeriesName"`
		ParentIndexNumber *int              `json:"ParentIndexNumber"`
		IndexNumber       *int              `json:"IndexNumber"`
		ProviderIds       map[string]string `json:"ProviderIds"`
		RunTimeTicks      int64             `json:"RunTimeTicks"`
	} `json:"Item"`
	Series struct {
		ProviderIds map[string]string `json:"ProviderIds"`
	} `json:"Series"`
	PlaybackInfo struct {
		PositionTicks int64 `json:"PositionTicks"`
	} `json:"PlaybackInfo"`
}

func parseJellyfinSink(payload []byte) ([]sinkEvent, error) {
	var hook jellyfinSinkPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("integrations: decode jellyfin payload: %w", err)
	}

	var pct decimal.Decimal
	switch hook.Event {
	case "PlaybackStop", "PlaybackProgress":
		if hook.Item.RunTimeTicks == 0 {
			return nil, nil
		}
		pct = decimal.NewFromInt(hook.PlaybackInfo.PositionTicks).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(hook.Item.RunTimeTicks))
	case "MarkPlayed":
		pct = decimal.NewFromInt(100)
	default:
		return nil, nil
	}

	event := sinkEvent{Source: models.MediaSourceTmdb, Progress: pct, PlayedOn: "Jellyfin"}
	switch hook.Item.Type {
	case "Movie":
		event.Lot = models.MediaLotMovie
		event.Title = hook.Item.Name
		event.Identifier = hook.Item.ProviderIds["Tmdb"]
	case "Episode":
		event.Lot = models.MediaLotShow
		event.Title = hook.Item.SeriesName
		event.Identifier = hook.Series.ProviderIds["Tmdb"]
		event.Season = hook.Item.ParentIndexNumber
		event.Episode = hook.Item.IndexNumber
	default:
		return nil, nil
	}
	if event.Identifier == "" {
		return nil, fmt.Errorf("integrations: jellyfin payload carries no tmdb id")
	}
	return []sinkEvent{event}, nil
}

// embySinkPayload is Emby's notification shape; close to Jellyfin's but
// with a lowercase event vocabulary.
type embySinkPayload struct {
	Event string `json:"Event"`
	Item  struct {
		Type              string            `json:"Type"`
		Name              string            `json:"Name"`
		SeriesName        string            `json:"SeriesName"`
		ParentIndexNumber *int              `json:"ParentIndexNumber"`
		IndexNumber       *int              `json:"IndexNumber"`
		ProviderIds       map[string]string `json:"ProviderIds"`
		RunTimeTicks      int64             `json:"RunTimeTicks"`
	} `json:"Item"`
	PlaybackInfo struct {
		PositionTicks int64 `json:"PositionTicks"`
	} `json:"PlaybackInfo"`
}

func parseEmbySink(payload []byte) ([]sinkEvent, error) {
	var hook embySinkPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("integrations: decode emby payload: %w", err)
	}

	var pct decimal.Decimal
	switch hook.Event {
	case "playback.stop", "playback.pause", "playback.unpause":
		if hook.Item.RunTimeTicks == 0 {
			return nil, nil
		}
		pct = decimal.NewFromInt(hook.PlaybackInfo.PositionTicks).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(hook.Item.RunTimeTicks))
	case "item.markplayed":
		pct = decimal.NewFromInt(100)
	default:
		return nil, nil
	}

	event := sinkEvent{Source: models.MediaSourceTmdb, Progress: pct, PlayedOn: "Emby"}
	switch hook.Item.Type {
	case "Movie":
		event.Lot = models.MediaLotMovie
		event.Title = hook.Item.Name
		event.Identifier = hook.Item.ProviderIds["Tmdb"]
	case "Episode":
		event.Lot = models.MediaLotShow
		event.Title = hook.Item.SeriesName
		// Emby puts the series provider ids on the episode item.
		event.Identifier = hook.Item.ProviderIds["Tmdb"]
		event.Season = hook.Item.ParentIndexNumber
		event.Episode = hook.Item.IndexNumber
	default:
		return nil, nil
	}
	if event.Identifier == "" {
		return nil, fmt.Errorf("integrations: emby payload carries no tmdb id")
	}
	return []sinkEvent{event}, nil
}

// genericJsonSinkPayload lets scripts push progress in our own terms.
type genericJsonSinkPayload struct {
	Lot               models.MediaLot    `json:"lot"`
	Source            models.MediaSource `json:"source"`
	Identifier        string             `json:"identifier"`
	Title             string             `json:"title,omitempty"`
	Progress          decimal.Decimal    `json:"progress"`
	ShowSeasonNumber  *int               `json:"show_season_number,omitempty"`
	ShowEpisodeNumber *int               `json:"show_episode_number,omitempty"`
}

func parseGenericJsonSink(payload []byte) ([]sinkEvent, error) {
	var hook genericJsonSinkPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("integrations: decode generic payload: %w", err)
	}
	if hook.Identifier == "" || !hook.Lot.IsValid() {
		return nil, fmt.Errorf("integrations: generic payload needs lot and identifier")
	}
	return []sinkEvent{{
		Lot:        hook.Lot,
		Source:     hook.Source,
		Identifier: hook.Identifier,
		Title:      hook.Title,
		Progress:   hook.Progress,
		Season:     hook.ShowSeasonNumber,
		Episode:    hook.ShowEpisodeNumber,
	}}, nil
}
