// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// MediaTracker imports from a self-hosted MediaTracker instance through
// its token-authenticated API.
type MediaTracker struct {
	client  *providers.Client
	baseURL string
	token   string
}

// NewMediaTracker builds the source for one instance.
func NewMediaTracker(baseURL, token string, timeout time.Duration) *MediaTracker {
	return &MediaTracker{
		client:  providers.NewClient("mediatracker", timeout, 5),
		baseURL: baseURL,
		token:   token,
	}
}

func (m *MediaTracker) Source() models.ImportSource { return models.ImportSourceMediaTracker }

type mediaTrackerItem struct {
	ID            int    `json:"id"`
	MediaType     string `json:"mediaType"`
	Title         string `json:"title"`
	TmdbID        int    `json:"tmdbId"`
	IgdbID        int    `json:"igdbId"`
	OpenlibraryID string `json:"openlibraryId"`
	AudibleID     string `json:"audibleId"`
	GoodreadsID   int    `json:"goodreadsId"`
	OnWatchlist   bool   `json:"onWatchlist"`
}

type mediaTrackerDetails struct {
	SeenHistory []struct {
		SeasonNumber  *int  `json:"seasonNumber"`
		EpisodeNumber *int  `json:"episodeNumber"`
		Date          int64 `json:"date"`
	} `json:"seenHistory"`
	UserRating *struct {
		Rating *float64 `json:"rating"`
		Review *string  `json:"review"`
		Date   int64    `json:"date"`
	} `json:"userRating"`
}

// identify maps a MediaTracker item onto our lot, source and identifier.
// Books carrying only a Goodreads id cannot be resolved to a supported
// provider and fail the item.
func (i mediaTrackerItem) identify() (models.MediaLot, models.MediaSource, string, error) {
	switch i.MediaType {
	case "movie":
		return models.MediaLotMovie, models.MediaSourceTmdb, strconv.Itoa(i.TmdbID), nil
	case "tv":
		return models.MediaLotShow, models.MediaSourceTmdb, strconv.Itoa(i.TmdbID), nil
	case "video_game":
		return models.MediaLotVideoGame, models.MediaSourceIgdb, strconv.Itoa(i.IgdbID), nil
	case "audiobook":
		return models.MediaLotAudioBook, models.MediaSourceAudible, i.AudibleID, nil
	case "book":
		if i.OpenlibraryID == "" {
			return "", "", "", fmt.Errorf("book %q has only a goodreads id, which no provider resolves", i.Title)
		}
		return models.MediaLotBook, models.MediaSourceOpenlibrary, providers.StripKey(i.OpenlibraryID), nil
	default:
		return "", "", "", fmt.Errorf("unknown media type %q", i.MediaType)
	}
}

func (m *MediaTracker) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	query := url.Values{"token": {m.token}}
	var items []mediaTrackerItem
	if err := m.client.GetJSON(ctx, m.baseURL+"/api/items", query, &items); err != nil {
		return nil, fmt.Errorf("mediatracker items: %w", err)
	}

	result := &models.ImportResult{}
	for _, raw := range items {
		lot, source, identifier, err := raw.identify()
		if err != nil || identifier == "" || identifier == "0" {
			failure := "missing identifier"
			if err != nil {
				failure = err.Error()
			}
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: raw.Title,
				Step:       models.ImportFailInputTransformation,
				Error:      &failure,
			})
			continue
		}

		item := &models.ImportOrExportMetadataItem{
			Lot:        lot,
			Source:     source,
			Identifier: identifier,
			SourceID:   raw.Title,
		}
		if raw.OnWatchlist {
			item.Collections = append(item.Collections, string(models.CollectionWatchlist))
		}

		var details mediaTrackerDetails
		err = m.client.GetJSON(ctx,
			fmt.Sprintf("%s/api/details/%d", m.baseURL, raw.ID), query, &details)
		if err != nil {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: raw.Title,
				Lot:        &lot,
				Step:       models.ImportFailItemDetailsFromSource,
				Error:      ptr(err.Error()),
			})
			continue
		}

		for _, seen := range details.SeenHistory {
			entry := models.ImportOrExportMetadataItemSeen{
				ShowSeasonNumber:  seen.SeasonNumber,
				ShowEpisodeNumber: seen.EpisodeNumber,
			}
			if seen.Date > 0 {
				entry.EndedOn = ptr(time.UnixMilli(seen.Date).UTC())
			}
			item.SeenHistory = append(item.SeenHistory, entry)
		}
		if rated := details.UserRating; rated != nil {
			rating := models.ImportOrExportItemRating{}
			if rated.Rating != nil {
				// MediaTracker ratings are 1..5.
				rating.Rating = ptr(decimal.NewFromFloat(*rated.Rating * 20))
			}
			if rated.Review != nil && *rated.Review != "" {
				review := &models.ImportOrExportItemReview{Text: rated.Review}
				if rated.Date > 0 {
					review.Date = ptr(time.UnixMilli(rated.Date).UTC())
				}
				rating.Review = review
			}
			if rating.Rating != nil || rating.Review != nil {
				item.Reviews = append(item.Reviews, rating)
			}
		}
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
	}
	return result, nil
}
