// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// HandleMetadataAddedToCollection fans a collection addition out to the
// user's push integrations: Radarr picks up movies, Sonarr picks up
// shows, each only for the collections it is configured to watch.
// Failures are recorded on the integration row, never returned.
func (m *Manager) HandleMetadataAddedToCollection(ctx context.Context, userID, collectionID, metadataID string) error {
	rows, err := m.store.ListEnabledIntegrationsByLot(ctx, models.IntegrationLotPush)
	if err != nil {
		return fmt.Errorf("integrations: list push integrations: %w", err)
	}
	metadata, err := m.store.GetMetadata(ctx, metadataID)
	if err != nil {
		return fmt.Errorf("integrations: metadata %s: %w", metadataID, err)
	}

	for _, integration := range rows {
		if integration.UserID != userID {
			continue
		}
		var pushErr error
		switch integration.Provider {
		case models.IntegrationRadarr:
			if metadata.Lot != models.MediaLotMovie || metadata.Source != models.MediaSourceTmdb {
				continue
			}
			if !slices.Contains(integration.Specifics.RadarrSyncCollectionIDs, collectionID) {
				continue
			}
			pushErr = m.pushRadarr(ctx, integration.Specifics, metadata)
		case models.IntegrationSonarr:
			if metadata.Lot != models.MediaLotShow || metadata.Source != models.MediaSourceTmdb {
				continue
			}
			if !slices.Contains(integration.Specifics.SonarrSyncCollectionIDs, collectionID) {
				continue
			}
			pushErr = m.pushSonarr(ctx, integration.Specifics, metadata)
		default:
			continue
		}
		m.recordTrigger(ctx, integration, pushErr)
	}
	return nil
}

// HandleSeenCompleted mirrors a finished movie or episode outward to
// Jellyfin push integrations by marking the item played there.
func (m *Manager) HandleSeenCompleted(ctx context.Context, userID, metadataID string) error {
	rows, err := m.store.ListEnabledIntegrationsByLot(ctx, models.IntegrationLotPush)
	if err != nil {
		return fmt.Errorf("integrations: list push integrations: %w", err)
	}
	metadata, err := m.store.GetMetadata(ctx, metadataID)
	if err != nil {
		return fmt.Errorf("integrations: metadata %s: %w", metadataID, err)
	}
	if metadata.Source != models.MediaSourceTmdb {
		return nil
	}

	for _, integration := range rows {
		if integration.UserID != userID || integration.Provider != models.IntegrationJellyfinPush {
			continue
		}
		m.recordTrigger(ctx, integration, m.pushJellyfinPlayed(ctx, integration.Specifics, metadata))
	}
	return nil
}

func (m *Manager) pushRadarr(ctx context.Context, specifics models.IntegrationProviderSpecifics, metadata *models.Metadata) error {
	tmdbID, err := strconv.Atoi(metadata.Identifier)
	if err != nil {
		return fmt.Errorf("radarr: identifier %q is not a tmdb id", metadata.Identifier)
	}
	client := providers.NewClient("radarr", m.timeout, 5).
		WithHeader("X-Api-Key", specifics.RadarrAPIKey)

	body := map[string]any{
		"title":               metadata.Title,
		"tmdbId":              tmdbID,
		"qualityProfileId":    specifics.RadarrProfileID,
		"rootFolderPath":      specifics.RadarrRootFolder,
		"monitored":           true,
		"minimumAvailability": "announced",
		"addOptions":          map[string]any{"searchForMovie": true},
	}
	err = client.PostJSON(ctx, specifics.RadarrBaseURL+"/api/v3/movie", body, nil)
	if err != nil {
		return fmt.Errorf("radarr: add movie %q: %w", metadata.Title, err)
	}
	return nil
}

// pushSonarr adds by looking the series up first: Sonarr's add endpoint
// wants the full lookup object, not a bare external id.
func (m *Manager) pushSonarr(ctx context.Context, specifics models.IntegrationProviderSpecifics, metadata *models.Metadata) error {
	client := providers.NewClient("sonarr", m.timeout, 5).
		WithHeader("X-Api-Key", specifics.SonarrAPIKey)

	var matches []json.RawMessage
	err := client.GetJSON(ctx,
		specifics.SonarrBaseURL+"/api/v3/series/lookup?term=tmdb:"+metadata.Identifier, nil, &matches)
	if err != nil {
		return fmt.Errorf("sonarr: lookup %q: %w", metadata.Title, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("sonarr: no match for %q", metadata.Title)
	}

	var series map[string]any
	if err := json.Unmarshal(matches[0], &series); err != nil {
		return fmt.Errorf("sonarr: decode lookup: %w", err)
	}
	series["qualityProfileId"] = specifics.SonarrProfileID
	series["rootFolderPath"] = specifics.SonarrRootFolder
	series["monitored"] = true
	series["addOptions"] = map[string]any{"searchForMissingEpisodes": true}

	if err := client.PostJSON(ctx, specifics.SonarrBaseURL+"/api/v3/series", series, nil); err != nil {
		return fmt.Errorf("sonarr: add series %q: %w", metadata.Title, err)
	}
	return nil
}

// pushJellyfinPlayed authenticates with the configured account, locates
// the item by its TMDB provider id and flags it played.
func (m *Manager) pushJellyfinPlayed(ctx context.Context, specifics models.IntegrationProviderSpecifics, metadata *models.Metadata) error {
	client := providers.NewClient("jellyfin_push", m.timeout, 5).
		WithHeader("X-Emby-Authorization",
			`MediaBrowser Client="Shelfwatch", Device="server", DeviceId="shelfwatch", Version="1"`)

	var session struct {
		User struct {
			ID string `json:"Id"`
		} `json:"User"`
		AccessToken string `json:"AccessToken"`
	}
	err := client.PostJSON(ctx, specifics.JellyfinPushBaseURL+"/Users/AuthenticateByName",
		map[string]string{
			"Username": specifics.JellyfinPushUsername,
			"Pw":       specifics.JellyfinPushPassword,
		}, &session)
	if err != nil {
		return fmt.Errorf("jellyfin: authenticate: %w", err)
	}
	client.WithHeader("X-Emby-Token", session.AccessToken)

	var listing struct {
		Items []struct {
			ID string `json:"Id"`
		} `json:"Items"`
	}
	err = client.GetJSON(ctx, fmt.Sprintf(
		"%s/Users/%s/Items?Recursive=true&AnyProviderIdEquals=Tmdb.%s",
		specifics.JellyfinPushBaseURL, session.User.ID, metadata.Identifier), nil, &listing)
	if err != nil {
		return fmt.Errorf("jellyfin: find item for tmdb %s: %w", metadata.Identifier, err)
	}
	if len(listing.Items) == 0 {
		return fmt.Errorf("jellyfin: no item for tmdb %s", metadata.Identifier)
	}

	err = client.PostJSON(ctx, fmt.Sprintf("%s/Users/%s/PlayedItems/%s?DatePlayed=%s",
		specifics.JellyfinPushBaseURL, session.User.ID, listing.Items[0].ID,
		time.Now().UTC().Format("2006-01-02T15:04:05")), nil, nil)
	if err != nil {
		return fmt.Errorf("jellyfin: mark played: %w", err)
	}
	return nil
}
