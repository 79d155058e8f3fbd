// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// PodcastEpisodeResolver maps an episode title of an iTunes podcast onto
// its episode number in our catalog ordering.
type PodcastEpisodeResolver func(ctx context.Context, itunesID, episodeTitle string) (int, error)

// Audiobookshelf imports listening history from an Audiobookshelf server.
// Books resolve through the ISBN chain, audiobooks through their ASIN,
// and podcast episodes through iTunes title matching.
type Audiobookshelf struct {
	client   *providers.Client
	baseURL  string
	books    *BookResolver
	episodes PodcastEpisodeResolver
}

// NewAudiobookshelf builds the source for one server token.
func NewAudiobookshelf(baseURL, token string, timeout time.Duration, books *BookResolver, episodes PodcastEpisodeResolver) *Audiobookshelf {
	return &Audiobookshelf{
		client:   providers.NewClient("audiobookshelf", timeout, 5).WithHeader("Authorization", "Bearer "+token),
		baseURL:  baseURL,
		books:    books,
		episodes: episodes,
	}
}

func (a *Audiobookshelf) Source() models.ImportSource { return models.ImportSourceAudiobookshelf }

type audiobookshelfItem struct {
	ID        string `json:"id"`
	MediaType string `json:"mediaType"`
	Media     struct {
		Metadata struct {
			Title    string `json:"title"`
			Isbn     string `json:"isbn"`
			Asin     string `json:"asin"`
			ItunesID string `json:"itunesId"`
		} `json:"metadata"`
		Episodes []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"episodes"`
	} `json:"media"`
}

type audiobookshelfProgress struct {
	IsFinished  bool    `json:"isFinished"`
	Progress    float64 `json:"progress"`
	FinishedAt  int64   `json:"finishedAt"`
	LastUpdate  int64   `json:"lastUpdate"`
	StartedAt   int64   `json:"startedAt"`
	HideFromHub bool    `json:"hideFromContinueListening"`
}

func (p audiobookshelfProgress) seen() models.ImportOrExportMetadataItemSeen {
	seen := models.ImportOrExportMetadataItemSeen{}
	if p.StartedAt > 0 {
		seen.StartedOn = ptr(time.UnixMilli(p.StartedAt).UTC())
	}
	if p.IsFinished {
		if p.FinishedAt > 0 {
			seen.EndedOn = ptr(time.UnixMilli(p.FinishedAt).UTC())
		} else {
			seen.EndedOn = ptr(time.UnixMilli(p.LastUpdate).UTC())
		}
		return seen
	}
	seen.Progress = ptr(decimal.NewFromFloat(p.Progress * 100))
	return seen
}

func (a *Audiobookshelf) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	var libraries struct {
		Libraries []struct {
			ID        string `json:"id"`
			MediaType string `json:"mediaType"`
		} `json:"libraries"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/api/libraries", nil, &libraries); err != nil {
		return nil, fmt.Errorf("audiobookshelf libraries: %w", err)
	}

	result := &models.ImportResult{}
	for _, library := range libraries.Libraries {
		var listing struct {
			Results []audiobookshelfItem `json:"results"`
		}
		err := a.client.GetJSON(ctx,
			fmt.Sprintf("%s/api/libraries/%s/items?limit=0", a.baseURL, library.ID), nil, &listing)
		if err != nil {
			return nil, fmt.Errorf("audiobookshelf library %s: %w", library.ID, err)
		}
		for _, item := range listing.Results {
			switch item.MediaType {
			case "book":
				a.importBook(ctx, result, item)
			case "podcast":
				a.importPodcast(ctx, result, item)
			}
		}
	}
	return result, nil
}

func (a *Audiobookshelf) progress(ctx context.Context, itemID, episodeID string) (*audiobookshelfProgress, error) {
	path := a.baseURL + "/api/me/progress/" + itemID
	if episodeID != "" {
		path += "/" + episodeID
	}
	var progress audiobookshelfProgress
	if err := a.client.GetJSON(ctx, path, nil, &progress); err != nil {
		if errors.Is(err, providers.ErrNotFoundByProvider) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

func (a *Audiobookshelf) importBook(ctx context.Context, result *models.ImportResult, item audiobookshelfItem) {
	progress, err := a.progress(ctx, item.ID, "")
	if err != nil {
		result.Failed = append(result.Failed, models.ImportFailedItem{
			Identifier: item.Media.Metadata.Title,
			Step:       models.ImportFailItemDetailsFromSource,
			Error:      ptr(err.Error()),
		})
		return
	}
	if progress == nil || (!progress.IsFinished && progress.Progress == 0) {
		return
	}

	var (
		lot        models.MediaLot
		source     models.MediaSource
		identifier string
	)
	switch {
	case item.Media.Metadata.Isbn != "":
		lot = models.MediaLotBook
		identifier, source, err = a.books.Resolve(ctx, item.Media.Metadata.Isbn)
	case item.Media.Metadata.Asin != "":
		lot = models.MediaLotAudioBook
		source = models.MediaSourceAudible
		identifier = item.Media.Metadata.Asin
	default:
		err = fmt.Errorf("no isbn or asin")
	}
	if err != nil || identifier == "" {
		failure := "no isbn or asin"
		if err != nil {
			failure = err.Error()
		}
		result.Failed = append(result.Failed, models.ImportFailedItem{
			Identifier: item.Media.Metadata.Title,
			Step:       models.ImportFailMediaDetailsFromProvider,
			Error:      &failure,
		})
		return
	}

	result.Completed = append(result.Completed, models.ImportCompletedItem{
		Metadata: &models.ImportOrExportMetadataItem{
			Lot:         lot,
			Source:      source,
			Identifier:  identifier,
			SourceID:    item.Media.Metadata.Title,
			SeenHistory: []models.ImportOrExportMetadataItemSeen{progress.seen()},
		},
	})
}

// importPodcast pulls the item with its episode list and imports only the
// finished episodes, mapped to our episode numbering by title.
func (a *Audiobookshelf) importPodcast(ctx context.Context, result *models.ImportResult, item audiobookshelfItem) {
	itunesID := item.Media.Metadata.ItunesID
	if itunesID == "" || a.episodes == nil {
		result.Failed = append(result.Failed, models.ImportFailedItem{
			Identifier: item.Media.Metadata.Title,
			Step:       models.ImportFailInputTransformation,
			Error:      ptr("no itunes id"),
		})
		return
	}

	var expanded struct {
		Item audiobookshelfItem `json:"libraryItem"`
	}
	err := a.client.GetJSON(ctx, a.baseURL+"/api/items/"+item.ID+"?expanded=1", nil, &expanded)
	if err != nil {
		result.Failed = append(result.Failed, models.ImportFailedItem{
			Identifier: item.Media.Metadata.Title,
			Step:       models.ImportFailItemDetailsFromSource,
			Error:      ptr(err.Error()),
		})
		return
	}

	podcast := &models.ImportOrExportMetadataItem{
		Lot:        models.MediaLotPodcast,
		Source:     models.MediaSourceItunes,
		Identifier: itunesID,
		SourceID:   item.Media.Metadata.Title,
	}
	for _, episode := range expanded.Item.Media.Episodes {
		progress, err := a.progress(ctx, item.ID, episode.ID)
		if err != nil || progress == nil || !progress.IsFinished {
			continue
		}
		number, err := a.episodes(ctx, itunesID, episode.Title)
		if err != nil {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: item.Media.Metadata.Title + " / " + episode.Title,
				Step:       models.ImportFailMediaDetailsFromProvider,
				Error:      ptr("episode " + strconv.Quote(episode.Title) + " not matched by title"),
			})
			continue
		}
		seen := progress.seen()
		seen.PodcastEpisodeNumber = &number
		podcast.SeenHistory = append(podcast.SeenHistory, seen)
	}
	if len(podcast.SeenHistory) > 0 {
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: podcast})
	}
}
