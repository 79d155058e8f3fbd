// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/importer"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// audiobookshelfYank polls the items the user currently has in progress.
// Unlike the one-shot import source it only touches the continue-listening
// shelf, so the sweep stays cheap on large libraries.
type audiobookshelfYank struct {
	client   *providers.Client
	baseURL  string
	books    *importer.BookResolver
	episodes importer.PodcastEpisodeResolver
}

func newAudiobookshelfYank(specifics models.IntegrationProviderSpecifics, timeout time.Duration, books *importer.BookResolver, episodes importer.PodcastEpisodeResolver) *audiobookshelfYank {
	return &audiobookshelfYank{
		client: providers.NewClient("audiobookshelf", timeout, 5).
			WithHeader("Authorization", "Bearer "+specifics.AudiobookshelfToken),
		baseURL:  specifics.AudiobookshelfBaseURL,
		books:    books,
		episodes: episodes,
	}
}

type audiobookshelfInProgressItem struct {
	ID        string `json:"id"`
	MediaType string `json:"mediaType"`
	Media     struct {
		Metadata struct {
			Title    string `json:"title"`
			Isbn     string `json:"isbn"`
			Asin     string `json:"asin"`
			ItunesID string `json:"itunesId"`
		} `json:"metadata"`
	} `json:"media"`
	RecentEpisode *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"recentEpisode"`
}

type audiobookshelfItemProgress struct {
	Progress      float64 `json:"progress"`
	EbookProgress float64 `json:"ebookProgress"`
	IsFinished    bool    `json:"isFinished"`
}

// percent is the larger of the listening and ebook positions, as a
// percentage. An item read as an ebook and listened to as an audiobook
// advances on whichever medium is further along.
func (p audiobookshelfItemProgress) percent() decimal.Decimal {
	value := p.Progress
	if p.EbookProgress > value {
		value = p.EbookProgress
	}
	if p.IsFinished {
		value = 1
	}
	return decimal.NewFromFloat(value * 100)
}

func (a *audiobookshelfYank) YankProgress(ctx context.Context) (*models.ImportResult, error) {
	var listing struct {
		Items []audiobookshelfInProgressItem `json:"libraryItems"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/api/me/items-in-progress", nil, &listing); err != nil {
		return nil, fmt.Errorf("audiobookshelf in-progress: %w", err)
	}

	result := &models.ImportResult{}
	for _, item := range listing.Items {
		switch item.MediaType {
		case "book":
			a.yankBook(ctx, result, item)
		case "podcast":
			a.yankPodcastEpisode(ctx, result, item)
		}
	}
	return result, nil
}

func (a *audiobookshelfYank) itemProgress(ctx context.Context, itemID, episodeID string) (*audiobookshelfItemProgress, error) {
	path := a.baseURL + "/api/me/progress/" + itemID
	if episodeID != "" {
		path += "/" + episodeID
	}
	var progress audiobookshelfItemProgress
	if err := a.client.GetJSON(ctx, path, nil, &progress); err != nil {
		if errors.Is(err, providers.ErrNotFoundByProvider) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

func (a *audiobookshelfYank) yankBook(ctx context.Context, result *models.ImportResult, item audiobookshelfInProgressItem) {
	progress, err := a.itemProgress(ctx, item.ID, "")
	if err != nil || progress == nil {
		a.fail(result, item.Media.Metadata.Title, err)
		return
	}

	identity, err := a.identifyBook(ctx, item)
	if err != nil {
		a.fail(result, item.Media.Metadata.Title, err)
		return
	}
	identity.SeenHistory = []models.ImportOrExportMetadataItemSeen{
		{Progress: ptr(progress.percent())},
	}
	result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: identity})
}

func (a *audiobookshelfYank) yankPodcastEpisode(ctx context.Context, result *models.ImportResult, item audiobookshelfInProgressItem) {
	itunesID := item.Media.Metadata.ItunesID
	if itunesID == "" || item.RecentEpisode == nil || a.episodes == nil {
		a.fail(result, item.Media.Metadata.Title, errors.New("no itunes id or recent episode"))
		return
	}
	progress, err := a.itemProgress(ctx, item.ID, item.RecentEpisode.ID)
	if err != nil || progress == nil {
		a.fail(result, item.Media.Metadata.Title, err)
		return
	}
	number, err := a.episodes(ctx, itunesID, item.RecentEpisode.Title)
	if err != nil {
		a.fail(result, item.Media.Metadata.Title+" / "+item.RecentEpisode.Title, err)
		return
	}

	result.Completed = append(result.Completed, models.ImportCompletedItem{
		Metadata: &models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotPodcast,
			Source:     models.MediaSourceItunes,
			Identifier: itunesID,
			SourceID:   item.Media.Metadata.Title,
			SeenHistory: []models.ImportOrExportMetadataItemSeen{
				{Progress: ptr(progress.percent()), PodcastEpisodeNumber: &number},
			},
		},
	})
}

// identifyBook resolves the item's catalog identity: ISBN through the
// book provider chain, otherwise ASIN straight to Audible.
func (a *audiobookshelfYank) identifyBook(ctx context.Context, item audiobookshelfInProgressItem) (*models.ImportOrExportMetadataItem, error) {
	metadata := item.Media.Metadata
	switch {
	case metadata.Isbn != "":
		identifier, source, err := a.books.Resolve(ctx, metadata.Isbn)
		if err != nil {
			return nil, err
		}
		return &models.ImportOrExportMetadataItem{
			Lot: models.MediaLotBook, Source: source,
			Identifier: identifier, SourceID: metadata.Title,
		}, nil
	case metadata.Asin != "":
		return &models.ImportOrExportMetadataItem{
			Lot: models.MediaLotAudioBook, Source: models.MediaSourceAudible,
			Identifier: metadata.Asin, SourceID: metadata.Title,
		}, nil
	default:
		return nil, errors.New("no isbn or asin")
	}
}

// PullOwned walks every library so owned-collection sync covers items the
// user has never started.
func (a *audiobookshelfYank) PullOwned(ctx context.Context) (*models.ImportResult, error) {
	var libraries struct {
		Libraries []struct {
			ID string `json:"id"`
		} `json:"libraries"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/api/libraries", nil, &libraries); err != nil {
		return nil, fmt.Errorf("audiobookshelf libraries: %w", err)
	}

	result := &models.ImportResult{}
	for _, library := range libraries.Libraries {
		var listing struct {
			Results []audiobookshelfInProgressItem `json:"results"`
		}
		err := a.client.GetJSON(ctx,
			fmt.Sprintf("%s/api/libraries/%s/items?limit=0", a.baseURL, library.ID), nil, &listing)
		if err != nil {
			return nil, fmt.Errorf("audiobookshelf library %s: %w", library.ID, err)
		}
		for _, item := range listing.Results {
			if item.MediaType != "book" {
				continue
			}
			identity, err := a.identifyBook(ctx, item)
			if err != nil {
				a.fail(result, item.Media.Metadata.Title, err)
				continue
			}
			result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: identity})
		}
	}
	return result, nil
}

func (a *audiobookshelfYank) fail(result *models.ImportResult, identifier string, err error) {
	failure := "no progress row"
	if err != nil {
		failure = err.Error()
	}
	result.Failed = append(result.Failed, models.ImportFailedItem{
		Identifier: identifier,
		Step:       models.ImportFailItemDetailsFromSource,
		Error:      &failure,
	})
}
