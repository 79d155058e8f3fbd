// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const malBaseURL = "https://api.myanimelist.net/v2"

// Mal serves anime and manga through the MyAnimeList v2 API, identified
// by a client id header. MAL identifiers also arrive through imports, so
// the adapter exists mainly to resolve those even though Anilist is the
// default source for the lots.
type Mal struct {
	client *Client
}

// NewMal builds the adapter with the configured client id.
func NewMal(cfg *config.ProvidersConfig) *Mal {
	return &Mal{
		client: NewClient("mal", cfg.Timeout, 2).
			WithHeader("X-MAL-CLIENT-ID", cfg.MalClientID),
	}
}

func (m *Mal) Source() models.MediaSource { return models.MediaSourceMal }

func (m *Mal) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotAnime, models.MediaLotManga}
}

func malPath(lot models.MediaLot) string {
	if lot == models.MediaLotManga {
		return "manga"
	}
	return "anime"
}

type malNode struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	MainPicture struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"main_picture"`
	StartDate string `json:"start_date"`
}

func malImage(n malNode) *string {
	return emptyToNil(firstNonEmpty(n.MainPicture.Large, n.MainPicture.Medium))
}

// SearchMedia searches anime or manga. MAL reports no total, so the next
// page comes from its paging cursor.
func (m *Mal) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		Data []struct {
			Node malNode `json:"node"`
		} `json:"data"`
		Paging struct {
			Next string `json:"next"`
		} `json:"paging"`
	}
	err := m.client.GetJSON(ctx, malBaseURL+"/"+malPath(lot), url.Values{
		"q":      {query},
		"limit":  {strconv.Itoa(PageSize)},
		"offset": {strconv.Itoa(pageOffset(page))},
		"fields": {"start_date"},
		"nsfw":   {strconv.FormatBool(displayNsfw)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Data))
	for _, d := range resp.Data {
		items = append(items, models.MetadataSearchItem{
			Identifier:  strconv.Itoa(d.Node.ID),
			Title:       d.Node.Title,
			Image:       malImage(d.Node),
			PublishYear: yearOf(d.Node.StartDate),
		})
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if resp.Paging.Next != "" {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataSearchItem]{Details: details, Items: items}, nil
}

type malDetails struct {
	malNode
	Synopsis string  `json:"synopsis"`
	Mean     float64 `json:"mean"`
	Status   string  `json:"status"`
	Nsfw     string  `json:"nsfw"`
	Genres   []struct {
		Name string `json:"name"`
	} `json:"genres"`
	NumEpisodes int `json:"num_episodes"`
	NumChapters int `json:"num_chapters"`
	NumVolumes  int `json:"num_volumes"`
	Pictures    []struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"pictures"`
	Recommendations []struct {
		Node malNode `json:"node"`
	} `json:"recommendations"`
}

// MediaDetails fetches one title.
func (m *Mal) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var d malDetails
	err := m.client.GetJSON(ctx,
		fmt.Sprintf("%s/%s/%s", malBaseURL, malPath(lot), identifier),
		url.Values{"fields": {
			"start_date,synopsis,mean,status,nsfw,genres,num_episodes,num_chapters,num_volumes,pictures,recommendations",
		}}, &d)
	if err != nil {
		return nil, err
	}

	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              lot,
		Source:           models.MediaSourceMal,
		Title:            d.Title,
		Description:      emptyToNil(d.Synopsis),
		PublishDate:      parseDate(d.StartDate),
		PublishYear:      yearOf(d.StartDate),
		IsNsfw:           d.Nsfw == "black" || d.Nsfw == "gray",
		SourceURL:        ptr(fmt.Sprintf("https://myanimelist.net/%s/%s", malPath(lot), identifier)),
		ProductionStatus: emptyToNil(d.Status),
	}
	if d.Mean > 0 {
		// MAL rates out of ten; normalize to the 0..100 scale.
		rating := decimal.NewFromFloat(d.Mean).Mul(decimal.NewFromInt(10))
		details.ProviderRating = &rating
	}
	if malID, err := strconv.Atoi(identifier); err == nil {
		details.ExternalIdentifiers = &models.ExternalIdentifiers{Mal: &malID}
	}
	if img := malImage(d.malNode); img != nil {
		details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
	}
	for _, p := range d.Pictures {
		if img := firstNonEmpty(p.Large, p.Medium); img != "" {
			details.Assets.RemoteImages = append(details.Assets.RemoteImages, img)
		}
	}
	for _, g := range d.Genres {
		details.Genres = append(details.Genres, g.Name)
	}
	for _, rec := range d.Recommendations {
		details.Suggestions = append(details.Suggestions, models.PartialMetadata{
			Lot: lot, Source: models.MediaSourceMal,
			Identifier: strconv.Itoa(rec.Node.ID), Title: rec.Node.Title,
			Image: malImage(rec.Node),
		})
	}
	if lot == models.MediaLotAnime {
		specifics := &models.AnimeSpecifics{}
		if d.NumEpisodes > 0 {
			specifics.Episodes = &d.NumEpisodes
		}
		details.AnimeSpecifics = specifics
	} else {
		specifics := &models.MangaSpecifics{}
		if d.NumChapters > 0 {
			c := decimal.NewFromInt(int64(d.NumChapters))
			specifics.Chapters = &c
		}
		if d.NumVolumes > 0 {
			specifics.Volumes = &d.NumVolumes
		}
		details.MangaSpecifics = specifics
	}
	return details, nil
}
