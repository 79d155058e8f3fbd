// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// Jellyfin imports played movies and episodes from a Jellyfin server,
// keyed by the TMDB provider ids Jellyfin stores per item.
type Jellyfin struct {
	client   *providers.Client
	baseURL  string
	username string
	password string
}

// NewJellyfin builds the source for one server and account.
func NewJellyfin(baseURL, username, password string, timeout time.Duration) *Jellyfin {
	client := providers.NewClient("jellyfin", timeout, 5).
		WithHeader("X-Emby-Authorization",
			`MediaBrowser Client="Shelfwatch", Device="server", DeviceId="shelfwatch", Version="1"`)
	return &Jellyfin{client: client, baseURL: baseURL, username: username, password: password}
}

func (j *Jellyfin) Source() models.ImportSource { return models.ImportSourceJellyfin }

type jellyfinItem struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	SeriesID          string            `json:"SeriesId"`
	SeriesName        string            `json:"SeriesName"`
	ParentIndexNumber *int              `json:"ParentIndexNumber"`
	IndexNumber       *int              `json:"IndexNumber"`
	ProviderIds       map[string]string `json:"ProviderIds"`
	UserData          *struct {
		Played         bool       `json:"Played"`
		LastPlayedDate *time.Time `json:"LastPlayedDate"`
	} `json:"UserData"`
}

func (j *Jellyfin) authenticate(ctx context.Context) (userID string, err error) {
	var auth struct {
		User struct {
			ID string `json:"Id"`
		} `json:"User"`
		AccessToken string `json:"AccessToken"`
	}
	body := map[string]string{"Username": j.username, "Pw": j.password}
	if err := j.client.PostJSON(ctx, j.baseURL+"/Users/AuthenticateByName", body, &auth); err != nil {
		return "", fmt.Errorf("jellyfin auth: %w", err)
	}
	j.client.WithHeader("X-Emby-Token", auth.AccessToken)
	return auth.User.ID, nil
}

func (j *Jellyfin) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	accountID, err := j.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"Recursive":        {"true"},
		"IsPlayed":         {"true"},
		"IncludeItemTypes": {"Movie,Episode"},
		"Fields":           {"ProviderIds"},
	}
	var listing struct {
		Items []jellyfinItem `json:"Items"`
	}
	err = j.client.GetJSON(ctx, j.baseURL+"/Users/"+accountID+"/Items", query, &listing)
	if err != nil {
		return nil, fmt.Errorf("jellyfin items: %w", err)
	}

	result := &models.ImportResult{}
	shows := map[string]*models.ImportOrExportMetadataItem{}
	seriesTmdb := map[string]string{}
	for _, raw := range listing.Items {
		if raw.UserData == nil || !raw.UserData.Played {
			continue
		}
		switch raw.Type {
		case "Movie":
			tmdbID := raw.ProviderIds["Tmdb"]
			if tmdbID == "" {
				result.Failed = append(result.Failed, failNoTmdb(raw.Name, models.MediaLotMovie))
				continue
			}
			result.Completed = append(result.Completed, models.ImportCompletedItem{
				Metadata: &models.ImportOrExportMetadataItem{
					Lot:        models.MediaLotMovie,
					Source:     models.MediaSourceTmdb,
					Identifier: tmdbID,
					SourceID:   raw.Name,
					SeenHistory: []models.ImportOrExportMetadataItemSeen{
						{EndedOn: raw.UserData.LastPlayedDate},
					},
				},
			})
		case "Episode":
			if raw.ParentIndexNumber == nil || raw.IndexNumber == nil || raw.SeriesID == "" {
				continue
			}
			tmdbID, err := j.seriesTmdbID(ctx, accountID, raw.SeriesID, seriesTmdb)
			if err != nil || tmdbID == "" {
				result.Failed = append(result.Failed, failNoTmdb(raw.SeriesName, models.MediaLotShow))
				continue
			}
			item, ok := shows[tmdbID]
			if !ok {
				item = &models.ImportOrExportMetadataItem{
					Lot:        models.MediaLotShow,
					Source:     models.MediaSourceTmdb,
					Identifier: tmdbID,
					SourceID:   raw.SeriesName,
				}
				shows[tmdbID] = item
				result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
			}
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn:           raw.UserData.LastPlayedDate,
				ShowSeasonNumber:  raw.ParentIndexNumber,
				ShowEpisodeNumber: raw.IndexNumber,
			})
		}
	}
	return result, nil
}

// seriesTmdbID fetches (and memoizes) the TMDB id of an episode's series.
func (j *Jellyfin) seriesTmdbID(ctx context.Context, accountID, seriesID string, cache map[string]string) (string, error) {
	if id, ok := cache[seriesID]; ok {
		return id, nil
	}
	var series jellyfinItem
	err := j.client.GetJSON(ctx,
		j.baseURL+"/Users/"+accountID+"/Items/"+seriesID,
		url.Values{"Fields": {"ProviderIds"}}, &series)
	if err != nil {
		return "", err
	}
	cache[seriesID] = series.ProviderIds["Tmdb"]
	return cache[seriesID], nil
}

func failNoTmdb(name string, lot models.MediaLot) models.ImportFailedItem {
	return models.ImportFailedItem{
		Identifier: name,
		Lot:        &lot,
		Step:       models.ImportFailInputTransformation,
		Error:      ptr("no tmdb id"),
	}
}
