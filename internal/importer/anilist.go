// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

const anilistGraphqlURL = "https://graphql.anilist.co"

// anilistListQuery fetches one media list collection with POINT_100
// scores, so ratings arrive already on the storage scale.
const anilistListQuery = `
query ($userName: String!, $type: MediaType!) {
  MediaListCollection(userName: $userName, type: $type) {
    lists {
      name
      isCustomList
      entries {
        status
        score(format: POINT_100)
        progress
        progressVolumes
        startedAt { year month day }
        completedAt { year month day }
        media { id title { userPreferred } }
      }
    }
  }
}`

// Anilist imports a user's public anime and manga lists through the
// AniList GraphQL API.
type Anilist struct {
	client   *providers.Client
	username string
}

// NewAnilist builds the source for one AniList username.
func NewAnilist(username string, timeout time.Duration) *Anilist {
	return &Anilist{
		client:   providers.NewClient("anilist", timeout, 2),
		username: username,
	}
}

func (a *Anilist) Source() models.ImportSource { return models.ImportSourceAnilist }

type anilistDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

func (d anilistDate) time() *time.Time {
	if d.Year == nil || d.Month == nil || d.Day == nil {
		return nil
	}
	return ptr(time.Date(*d.Year, time.Month(*d.Month), *d.Day, 0, 0, 0, 0, time.UTC))
}

type anilistEntry struct {
	Status          string      `json:"status"`
	Score           float64     `json:"score"`
	Progress        int         `json:"progress"`
	ProgressVolumes int         `json:"progressVolumes"`
	StartedAt       anilistDate `json:"startedAt"`
	CompletedAt     anilistDate `json:"completedAt"`
	Media           struct {
		ID    int `json:"id"`
		Title struct {
			UserPreferred string `json:"userPreferred"`
		} `json:"title"`
	} `json:"media"`
}

type anilistResponse struct {
	Data struct {
		MediaListCollection struct {
			Lists []struct {
				Name         string         `json:"name"`
				IsCustomList bool           `json:"isCustomList"`
				Entries      []anilistEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *Anilist) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	result := &models.ImportResult{}
	items := map[string]*models.ImportOrExportMetadataItem{}
	for _, mediaType := range []struct {
		gql string
		lot models.MediaLot
	}{
		{"ANIME", models.MediaLotAnime},
		{"MANGA", models.MediaLotManga},
	} {
		var response anilistResponse
		err := a.client.PostJSON(ctx, anilistGraphqlURL, map[string]any{
			"query": anilistListQuery,
			"variables": map[string]string{
				"userName": a.username,
				"type":     mediaType.gql,
			},
		}, &response)
		if err != nil {
			return nil, fmt.Errorf("anilist %s list: %w", mediaType.gql, err)
		}
		if len(response.Errors) > 0 {
			return nil, fmt.Errorf("anilist %s list: %s", mediaType.gql, response.Errors[0].Message)
		}
		for _, list := range response.Data.MediaListCollection.Lists {
			for _, entry := range list.Entries {
				item := a.itemFor(result, items, mediaType.lot, entry)
				if list.IsCustomList {
					item.Collections = append(item.Collections, list.Name)
				}
			}
		}
	}
	return result, nil
}

func (a *Anilist) itemFor(result *models.ImportResult, items map[string]*models.ImportOrExportMetadataItem, lot models.MediaLot, entry anilistEntry) *models.ImportOrExportMetadataItem {
	key := string(lot) + "/" + strconv.Itoa(entry.Media.ID)
	if item, ok := items[key]; ok {
		return item
	}

	item := &models.ImportOrExportMetadataItem{
		Lot:        lot,
		Source:     models.MediaSourceAnilist,
		Identifier: strconv.Itoa(entry.Media.ID),
		SourceID:   entry.Media.Title.UserPreferred,
	}
	items[key] = item
	result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})

	switch entry.Status {
	case "COMPLETED", "REPEATING":
		item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
			StartedOn: entry.StartedAt.time(),
			EndedOn:   entry.CompletedAt.time(),
		})
	case "CURRENT":
		seen := models.ImportOrExportMetadataItemSeen{StartedOn: entry.StartedAt.time()}
		if lot == models.MediaLotAnime && entry.Progress > 0 {
			seen.AnimeEpisodeNumber = &entry.Progress
		}
		if lot == models.MediaLotManga {
			if entry.Progress > 0 {
				seen.MangaChapterNumber = ptr(decimal.NewFromInt(int64(entry.Progress)))
			}
			if entry.ProgressVolumes > 0 {
				seen.MangaVolumeNumber = &entry.ProgressVolumes
			}
		}
		item.SeenHistory = append(item.SeenHistory, seen)
	case "PLANNING":
		item.Collections = append(item.Collections, string(models.CollectionWatchlist))
	}

	if entry.Score > 0 {
		item.Reviews = append(item.Reviews, models.ImportOrExportItemRating{
			Rating: ptr(decimal.NewFromFloat(entry.Score)),
		})
	}
	return item
}
