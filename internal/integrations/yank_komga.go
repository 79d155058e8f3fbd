// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// komgaYank polls in-progress books from a Komga server. Komga tracks
// page-level read progress per book; the series links carry the external
// catalog URL that the configured provider resolves identifiers from.
type komgaYank struct {
	client   *providers.Client
	baseURL  string
	provider models.MediaSource

	// series identity lookups repeat across books of one series.
	seriesCache map[string]string
}

func newKomgaYank(specifics models.IntegrationProviderSpecifics, timeout time.Duration) *komgaYank {
	token := base64.StdEncoding.EncodeToString(
		[]byte(specifics.KomgaUsername + ":" + specifics.KomgaPassword))
	return &komgaYank{
		client:      providers.NewClient("komga", timeout, 5).WithHeader("Authorization", "Basic "+token),
		baseURL:     specifics.KomgaBaseURL,
		provider:    specifics.KomgaProvider,
		seriesCache: map[string]string{},
	}
}

type komgaBook struct {
	ID       string `json:"id"`
	SeriesID string `json:"seriesId"`
	Name     string `json:"name"`
	Metadata struct {
		Number string `json:"number"`
	} `json:"metadata"`
	Media struct {
		PagesCount int `json:"pagesCount"`
	} `json:"media"`
	ReadProgress struct {
		Page      int  `json:"page"`
		Completed bool `json:"completed"`
	} `json:"readProgress"`
}

func (k *komgaYank) YankProgress(ctx context.Context) (*models.ImportResult, error) {
	result := &models.ImportResult{}
	for page := 0; ; page++ {
		var listing struct {
			Content []komgaBook `json:"content"`
			Last    bool        `json:"last"`
		}
		params := url.Values{
			"read_status": {"IN_PROGRESS"},
			"page":        {fmt.Sprint(page)},
			"size":        {"100"},
		}
		if err := k.client.GetJSON(ctx, k.baseURL+"/api/v1/books", params, &listing); err != nil {
			return nil, fmt.Errorf("komga books: %w", err)
		}
		for _, book := range listing.Content {
			k.yankBook(ctx, result, book)
		}
		if listing.Last || len(listing.Content) == 0 {
			break
		}
	}
	return result, nil
}

func (k *komgaYank) yankBook(ctx context.Context, result *models.ImportResult, book komgaBook) {
	identifier, title, err := k.seriesIdentity(ctx, book.SeriesID)
	if err != nil {
		failure := err.Error()
		result.Failed = append(result.Failed, models.ImportFailedItem{
			Identifier: book.Name,
			Step:       models.ImportFailMediaDetailsFromProvider,
			Error:      &failure,
		})
		return
	}

	seen := models.ImportOrExportMetadataItemSeen{}
	if book.Media.PagesCount > 0 {
		seen.Progress = ptr(decimal.NewFromInt(int64(book.ReadProgress.Page)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(book.Media.PagesCount))))
	}
	if chapter, err := decimal.NewFromString(book.Metadata.Number); err == nil {
		seen.MangaChapterNumber = &chapter
	}

	result.Completed = append(result.Completed, models.ImportCompletedItem{
		Metadata: &models.ImportOrExportMetadataItem{
			Lot:         models.MediaLotManga,
			Source:      k.provider,
			Identifier:  identifier,
			SourceID:    title,
			SeenHistory: []models.ImportOrExportMetadataItemSeen{seen},
		},
	})
}

// seriesIdentity finds the external identifier for a series from its
// metadata links, matching the link label against the configured
// provider. The identifier is the last path segment of the link URL.
func (k *komgaYank) seriesIdentity(ctx context.Context, seriesID string) (string, string, error) {
	var series struct {
		Metadata struct {
			Title string `json:"title"`
			Links []struct {
				Label string `json:"label"`
				URL   string `json:"url"`
			} `json:"links"`
		} `json:"metadata"`
	}
	if cached, ok := k.seriesCache[seriesID]; ok {
		parts := strings.SplitN(cached, "\x00", 2)
		return parts[0], parts[1], nil
	}
	if err := k.client.GetJSON(ctx, k.baseURL+"/api/v1/series/"+seriesID, nil, &series); err != nil {
		return "", "", fmt.Errorf("komga series %s: %w", seriesID, err)
	}

	wanted := providerLinkLabel(k.provider)
	for _, link := range series.Metadata.Links {
		if !strings.EqualFold(link.Label, wanted) {
			continue
		}
		parsed, err := url.Parse(link.URL)
		if err != nil {
			continue
		}
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		identifier := segments[len(segments)-1]
		if identifier != "" {
			k.seriesCache[seriesID] = identifier + "\x00" + series.Metadata.Title
			return identifier, series.Metadata.Title, nil
		}
	}
	return "", "", fmt.Errorf("series %q has no %s link", series.Metadata.Title, wanted)
}

func providerLinkLabel(source models.MediaSource) string {
	switch source {
	case models.MediaSourceMal:
		return "MyAnimeList"
	case models.MediaSourceAnilist:
		return "AniList"
	case models.MediaSourceMangaUpdates:
		return "MangaUpdates"
	default:
		return string(source)
	}
}
