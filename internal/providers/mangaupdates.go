// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const mangaUpdatesBaseURL = "https://api.mangaupdates.com/v1"

// MangaUpdates serves manga. Search is a POST endpoint; identifiers are
// numeric series ids.
type MangaUpdates struct {
	client *Client
}

// NewMangaUpdates builds the keyless adapter.
func NewMangaUpdates(cfg *config.ProvidersConfig) *MangaUpdates {
	return &MangaUpdates{client: NewClient("manga_updates", cfg.Timeout, 2)}
}

func (m *MangaUpdates) Source() models.MediaSource { return models.MediaSourceMangaUpdates }

func (m *MangaUpdates) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotManga}
}

type mangaUpdatesImage struct {
	URL struct {
		Original string `json:"original"`
	} `json:"url"`
}

type mangaUpdatesRecord struct {
	SeriesID    int64             `json:"series_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Image       mangaUpdatesImage `json:"image"`
	Year        string            `json:"year"`
	URL         string            `json:"url"`
	BayesianRating float64        `json:"bayesian_rating"`
	LatestChapter  int            `json:"latest_chapter"`
	Genres      []struct {
		Genre string `json:"genre"`
	} `json:"genres"`
	Authors []struct {
		AuthorID int64  `json:"author_id"`
		Name     string `json:"name"`
		Type     string `json:"type"`
	} `json:"authors"`
	Publishers []struct {
		PublisherName string `json:"publisher_name"`
	} `json:"publishers"`
	Recommendations []struct {
		SeriesID   int64  `json:"series_id"`
		SeriesName string `json:"series_name"`
	} `json:"recommendations"`
}

// SearchMedia searches series.
func (m *MangaUpdates) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		TotalHits int `json:"total_hits"`
		Results   []struct {
			Record mangaUpdatesRecord `json:"record"`
		} `json:"results"`
	}
	err := m.client.PostJSON(ctx, mangaUpdatesBaseURL+"/series/search", map[string]any{
		"search":  query,
		"page":    page,
		"perpage": PageSize,
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		items = append(items, models.MetadataSearchItem{
			Identifier:  strconv.FormatInt(r.Record.SeriesID, 10),
			Title:       r.Record.Title,
			Image:       emptyToNil(r.Record.Image.URL.Original),
			PublishYear: yearOf(r.Record.Year),
		})
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.TotalHits,
			NextPage: nextPageFor(page, resp.TotalHits),
		},
		Items: items,
	}, nil
}

// MediaDetails fetches one series.
func (m *MangaUpdates) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var r mangaUpdatesRecord
	err := m.client.GetJSON(ctx,
		fmt.Sprintf("%s/series/%s", mangaUpdatesBaseURL, identifier), nil, &r)
	if err != nil {
		return nil, err
	}

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotManga,
		Source:      models.MediaSourceMangaUpdates,
		Title:       r.Title,
		Description: emptyToNil(r.Description),
		PublishYear: yearOf(r.Year),
		SourceURL:   emptyToNil(r.URL),
	}
	if r.Image.URL.Original != "" {
		details.Assets.RemoteImages = []string{r.Image.URL.Original}
	}
	if r.BayesianRating > 0 {
		// MangaUpdates rates out of ten; normalize to the 0..100 scale.
		rating := decimal.NewFromFloat(r.BayesianRating).Mul(decimal.NewFromInt(10))
		details.ProviderRating = &rating
	}
	for _, g := range r.Genres {
		details.Genres = append(details.Genres, g.Genre)
	}
	specifics := &models.MangaSpecifics{}
	if r.LatestChapter > 0 {
		c := decimal.NewFromInt(int64(r.LatestChapter))
		specifics.Chapters = &c
	}
	details.MangaSpecifics = specifics
	for _, a := range r.Authors {
		role := a.Type
		if role == "" {
			role = "Author"
		}
		if a.AuthorID == 0 {
			details.Creators = append(details.Creators, models.MetadataFreeCreator{
				Name: a.Name, Role: role,
			})
			continue
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:     models.MediaSourceMangaUpdates,
			Identifier: strconv.FormatInt(a.AuthorID, 10),
			Name:       a.Name, Role: role,
		})
	}
	for _, p := range r.Publishers {
		details.Creators = append(details.Creators, models.MetadataFreeCreator{
			Name: p.PublisherName, Role: "Publisher",
		})
	}
	for _, rec := range r.Recommendations {
		details.Suggestions = append(details.Suggestions, models.PartialMetadata{
			Lot: models.MediaLotManga, Source: models.MediaSourceMangaUpdates,
			Identifier: strconv.FormatInt(rec.SeriesID, 10), Title: rec.SeriesName,
		})
	}
	return details, nil
}

// PersonDetails fetches one author.
func (m *MangaUpdates) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	var author struct {
		Name     string            `json:"name"`
		Birthday string            `json:"birthday"`
		Birthplace string          `json:"birthplace"`
		Gender   string            `json:"gender"`
		Image    mangaUpdatesImage `json:"image"`
		URL      string            `json:"url"`
	}
	err := m.client.GetJSON(ctx,
		fmt.Sprintf("%s/authors/%s", mangaUpdatesBaseURL, identifier), nil, &author)
	if err != nil {
		return nil, err
	}
	out := &models.PersonDetails{
		Identifier: identifier,
		Source:     models.MediaSourceMangaUpdates,
		Name:       author.Name,
		Gender:     emptyToNil(author.Gender),
		BirthDate:  parseDate(author.Birthday),
		Place:      emptyToNil(author.Birthplace),
		SourceURL:  emptyToNil(author.URL),
	}
	if author.Image.URL.Original != "" {
		out.Assets.RemoteImages = []string{author.Image.URL.Original}
	}

	var series struct {
		SeriesList []struct {
			SeriesID int64  `json:"series_id"`
			Title    string `json:"title"`
		} `json:"series_list"`
	}
	err = m.client.PostJSON(ctx,
		fmt.Sprintf("%s/authors/%s/series", mangaUpdatesBaseURL, identifier),
		map[string]any{"orderby": "year"}, &series)
	if err == nil {
		for _, s := range series.SeriesList {
			out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
				Role: "Author",
				Metadata: models.PartialMetadata{
					Lot: models.MediaLotManga, Source: models.MediaSourceMangaUpdates,
					Identifier: strconv.FormatInt(s.SeriesID, 10), Title: s.Title,
				},
			})
		}
	}
	return out, nil
}
