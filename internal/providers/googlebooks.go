// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const googleBooksBaseURL = "https://www.googleapis.com/books/v1/volumes"

// GoogleBooks serves books by volume id. It also resolves ISBNs for the
// import chains.
type GoogleBooks struct {
	client *Client
	apiKey string
}

// NewGoogleBooks builds the adapter with the configured API key.
func NewGoogleBooks(cfg *config.ProvidersConfig) *GoogleBooks {
	return &GoogleBooks{
		client: NewClient("google_books", cfg.Timeout, 2),
		apiKey: cfg.GoogleBooksAPIKey,
	}
}

func (g *GoogleBooks) Source() models.MediaSource { return models.MediaSourceGoogleBooks }

func (g *GoogleBooks) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotBook}
}

type googleBooksVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Subtitle      string   `json:"subtitle"`
		Authors       []string `json:"authors"`
		Publisher     string   `json:"publisher"`
		PublishedDate string   `json:"publishedDate"`
		Description   string   `json:"description"`
		PageCount     int      `json:"pageCount"`
		Categories    []string `json:"categories"`
		AverageRating float64  `json:"averageRating"`
		Language      string   `json:"language"`
		MaturityRating string  `json:"maturityRating"`
		ImageLinks    struct {
			ExtraLarge string `json:"extraLarge"`
			Large      string `json:"large"`
			Thumbnail  string `json:"thumbnail"`
		} `json:"imageLinks"`
		CanonicalVolumeLink string `json:"canonicalVolumeLink"`
	} `json:"volumeInfo"`
}

func googleBooksImage(v googleBooksVolume) *string {
	return emptyToNil(firstNonEmpty(
		v.VolumeInfo.ImageLinks.ExtraLarge,
		v.VolumeInfo.ImageLinks.Large,
		v.VolumeInfo.ImageLinks.Thumbnail,
	))
}

func (g *GoogleBooks) search(ctx context.Context, query string, page int) (int, []googleBooksVolume, error) {
	var resp struct {
		TotalItems int                 `json:"totalItems"`
		Items      []googleBooksVolume `json:"items"`
	}
	err := g.client.GetJSON(ctx, googleBooksBaseURL, url.Values{
		"q":          {query},
		"startIndex": {strconv.Itoa(pageOffset(page))},
		"maxResults": {strconv.Itoa(PageSize)},
		"key":        {g.apiKey},
	}, &resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.TotalItems, resp.Items, nil
}

// SearchMedia searches volumes.
func (g *GoogleBooks) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	total, volumes, err := g.search(ctx, query, page)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(volumes))
	for _, v := range volumes {
		items = append(items, models.MetadataSearchItem{
			Identifier:  v.ID,
			Title:       v.VolumeInfo.Title,
			Image:       googleBooksImage(v),
			PublishYear: yearOf(v.VolumeInfo.PublishedDate),
		})
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{Total: total, NextPage: nextPageFor(page, total)},
		Items:   items,
	}, nil
}

// MediaDetails fetches one volume.
func (g *GoogleBooks) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var v googleBooksVolume
	err := g.client.GetJSON(ctx, googleBooksBaseURL+"/"+identifier,
		url.Values{"key": {g.apiKey}}, &v)
	if err != nil {
		return nil, err
	}
	info := v.VolumeInfo

	title := info.Title
	if info.Subtitle != "" {
		title = title + ": " + info.Subtitle
	}
	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              models.MediaLotBook,
		Source:           models.MediaSourceGoogleBooks,
		Title:            title,
		Description:      emptyToNil(info.Description),
		PublishDate:      parseDate(info.PublishedDate),
		PublishYear:      yearOf(info.PublishedDate),
		IsNsfw:           info.MaturityRating == "MATURE",
		OriginalLanguage: emptyToNil(info.Language),
		SourceURL:        emptyToNil(info.CanonicalVolumeLink),
	}
	if img := googleBooksImage(v); img != nil {
		details.Assets.RemoteImages = []string{*img}
	}
	if info.AverageRating > 0 {
		// Google rates out of five; normalize to the 0..100 scale.
		rating := decimal.NewFromFloat(info.AverageRating).Mul(decimal.NewFromInt(20))
		details.ProviderRating = &rating
	}
	if info.PageCount > 0 {
		details.BookSpecifics = &models.BookSpecifics{Pages: &info.PageCount}
	}
	// Categories arrive as slash-delimited paths like "Fiction / Fantasy".
	seen := map[string]bool{}
	for _, c := range info.Categories {
		for _, part := range strings.Split(c, "/") {
			part = strings.TrimSpace(part)
			if part != "" && !seen[part] {
				seen[part] = true
				details.Genres = append(details.Genres, part)
			}
		}
	}
	for _, a := range info.Authors {
		details.Creators = append(details.Creators, models.MetadataFreeCreator{
			Name: a, Role: "Author",
		})
	}
	if info.Publisher != "" {
		details.Creators = append(details.Creators, models.MetadataFreeCreator{
			Name: info.Publisher, Role: "Publisher",
		})
	}
	return details, nil
}

// VolumeByIsbn resolves an ISBN to a volume identifier.
func (g *GoogleBooks) VolumeByIsbn(ctx context.Context, isbn string) (string, error) {
	_, volumes, err := g.search(ctx, "isbn:"+isbn, 1)
	if err != nil {
		return "", err
	}
	if len(volumes) == 0 {
		return "", ErrNotFoundByProvider
	}
	return volumes[0].ID, nil
}
