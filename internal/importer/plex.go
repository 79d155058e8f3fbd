// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// Plex imports watched movies and shows from a Plex server. Only items
// with at least one play count as watched; identifiers come from the
// tmdb:// entries in each item's Guid list.
type Plex struct {
	client  *providers.Client
	baseURL string
}

// NewPlex builds the source for one server token.
func NewPlex(baseURL, token string, timeout time.Duration) *Plex {
	return &Plex{
		client:  providers.NewClient("plex", timeout, 5).WithHeader("X-Plex-Token", token),
		baseURL: baseURL,
	}
}

func (p *Plex) Source() models.ImportSource { return models.ImportSourcePlex }

type plexMetadata struct {
	RatingKey    string `json:"ratingKey"`
	Title        string `json:"title"`
	ParentIndex  *int   `json:"parentIndex"`
	Index        *int   `json:"index"`
	ViewCount    int    `json:"viewCount"`
	LastViewedAt int64  `json:"lastViewedAt"`
	Guid         []struct {
		ID string `json:"id"`
	} `json:"Guid"`
}

// tmdbID extracts the numeric id from a "tmdb://603" guid entry.
func (m plexMetadata) tmdbID() string {
	for _, guid := range m.Guid {
		if id, ok := strings.CutPrefix(guid.ID, "tmdb://"); ok {
			return id
		}
	}
	return ""
}

func (m plexMetadata) viewedAt() *time.Time {
	if m.LastViewedAt == 0 {
		return nil
	}
	return ptr(time.Unix(m.LastViewedAt, 0).UTC())
}

type plexContainer struct {
	MediaContainer struct {
		Directory []struct {
			Key  string `json:"key"`
			Type string `json:"type"`
		} `json:"Directory"`
		Metadata []plexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

func (p *Plex) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	var sections plexContainer
	if err := p.client.GetJSON(ctx, p.baseURL+"/library/sections", nil, &sections); err != nil {
		return nil, fmt.Errorf("plex sections: %w", err)
	}

	result := &models.ImportResult{}
	for _, section := range sections.MediaContainer.Directory {
		var items plexContainer
		err := p.client.GetJSON(ctx,
			fmt.Sprintf("%s/library/sections/%s/all", p.baseURL, section.Key), nil, &items)
		if err != nil {
			return nil, fmt.Errorf("plex section %s: %w", section.Key, err)
		}
		switch section.Type {
		case "movie":
			p.importMovies(result, items.MediaContainer.Metadata)
		case "show":
			if err := p.importShows(ctx, result, items.MediaContainer.Metadata); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func (p *Plex) importMovies(result *models.ImportResult, metadata []plexMetadata) {
	for _, movie := range metadata {
		if movie.ViewCount == 0 {
			continue
		}
		tmdbID := movie.tmdbID()
		if tmdbID == "" {
			result.Failed = append(result.Failed, failNoTmdb(movie.Title, models.MediaLotMovie))
			continue
		}
		result.Completed = append(result.Completed, models.ImportCompletedItem{
			Metadata: &models.ImportOrExportMetadataItem{
				Lot:        models.MediaLotMovie,
				Source:     models.MediaSourceTmdb,
				Identifier: tmdbID,
				SourceID:   movie.Title,
				SeenHistory: []models.ImportOrExportMetadataItemSeen{
					{EndedOn: movie.viewedAt()},
				},
			},
		})
	}
}

func (p *Plex) importShows(ctx context.Context, result *models.ImportResult, metadata []plexMetadata) error {
	for _, show := range metadata {
		if show.ViewCount == 0 {
			continue
		}
		tmdbID := show.tmdbID()
		if tmdbID == "" {
			result.Failed = append(result.Failed, failNoTmdb(show.Title, models.MediaLotShow))
			continue
		}

		var leaves plexContainer
		err := p.client.GetJSON(ctx,
			fmt.Sprintf("%s/library/metadata/%s/allLeaves", p.baseURL, show.RatingKey), nil, &leaves)
		if err != nil {
			return fmt.Errorf("plex show %s: %w", show.RatingKey, err)
		}

		item := &models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotShow,
			Source:     models.MediaSourceTmdb,
			Identifier: tmdbID,
			SourceID:   show.Title,
		}
		for _, episode := range leaves.MediaContainer.Metadata {
			if episode.ViewCount == 0 || episode.ParentIndex == nil || episode.Index == nil {
				continue
			}
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn:           episode.viewedAt(),
				ShowSeasonNumber:  episode.ParentIndex,
				ShowEpisodeNumber: episode.Index,
			})
		}
		if len(item.SeenHistory) > 0 {
			result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
		}
	}
	return nil
}
