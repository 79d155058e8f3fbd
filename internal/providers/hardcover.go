// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const hardcoverGraphqlURL = "https://api.hardcover.app/v1/graphql"

// Hardcover serves books over its GraphQL API. Identifiers are numeric
// book ids. The adapter also resolves ISBNs, the first hop of the
// goodreads import chain.
type Hardcover struct {
	client *Client
}

// NewHardcover builds the adapter with the configured bearer token.
func NewHardcover(cfg *config.ProvidersConfig) *Hardcover {
	return &Hardcover{
		client: NewClient("hardcover", cfg.Timeout, 2).
			WithHeader("Authorization", "Bearer "+cfg.HardcoverToken),
	}
}

func (h *Hardcover) Source() models.MediaSource { return models.MediaSourceHardcover }

func (h *Hardcover) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotBook}
}

func (h *Hardcover) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err := h.client.PostJSON(ctx, hardcoverGraphqlURL,
		map[string]any{"query": query, "variables": variables}, &envelope)
	if err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("providers: hardcover: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

type hardcoverBook struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ReleaseDate string  `json:"release_date"`
	Pages       *int    `json:"pages"`
	Rating      float64 `json:"rating"`
	Compilation bool    `json:"compilation"`
	Slug        string  `json:"slug"`
	Image       struct {
		URL string `json:"url"`
	} `json:"image"`
	CachedTags map[string][]struct {
		Tag string `json:"tag"`
	} `json:"cached_tags"`
	Contributions []struct {
		Contribution string `json:"contribution"`
		Author       struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"author"`
	} `json:"contributions"`
}

const hardcoverSearchQuery = `
query ($query: String!, $perPage: Int!, $page: Int!) {
  search(query: $query, query_type: "Book", per_page: $perPage, page: $page) {
    results
  }
}`

// SearchMedia searches books. The search endpoint returns raw Typesense
// hits, decoded into the fields the list needs.
func (h *Hardcover) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		Search struct {
			Results json.RawMessage `json:"results"`
		} `json:"search"`
	}
	err := h.graphql(ctx, hardcoverSearchQuery,
		map[string]any{"query": query, "perPage": PageSize, "page": page}, &resp)
	if err != nil {
		return nil, err
	}
	var results struct {
		Found int `json:"found"`
		Hits  []struct {
			Document struct {
				ID          string `json:"id"`
				Title       string `json:"title"`
				ReleaseYear int    `json:"release_year"`
				Image       struct {
					URL string `json:"url"`
				} `json:"image"`
			} `json:"document"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(resp.Search.Results, &results); err != nil {
		return nil, fmt.Errorf("providers: decode hardcover search: %w", err)
	}
	items := make([]models.MetadataSearchItem, 0, len(results.Hits))
	for _, hit := range results.Hits {
		item := models.MetadataSearchItem{
			Identifier: hit.Document.ID,
			Title:      hit.Document.Title,
			Image:      emptyToNil(hit.Document.Image.URL),
		}
		if hit.Document.ReleaseYear > 0 {
			item.PublishYear = &hit.Document.ReleaseYear
		}
		items = append(items, item)
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    results.Found,
			NextPage: nextPageFor(page, results.Found),
		},
		Items: items,
	}, nil
}

const hardcoverDetailsQuery = `
query ($id: Int!) {
  books_by_pk(id: $id) {
    id
    title
    description
    release_date
    pages
    rating
    compilation
    slug
    image { url }
    cached_tags
    contributions { contribution author { id name } }
  }
}`

// MediaDetails fetches one book.
func (h *Hardcover) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	id, err := strconv.Atoi(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hardcover identifier %q", ErrNotFoundByProvider, identifier)
	}
	var resp struct {
		Book *hardcoverBook `json:"books_by_pk"`
	}
	if err := h.graphql(ctx, hardcoverDetailsQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.Book == nil {
		return nil, ErrNotFoundByProvider
	}
	b := resp.Book

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotBook,
		Source:      models.MediaSourceHardcover,
		Title:       b.Title,
		Description: emptyToNil(b.Description),
		PublishDate: parseDate(b.ReleaseDate),
		PublishYear: yearOf(b.ReleaseDate),
		SourceURL:   ptr("https://hardcover.app/books/" + b.Slug),
		BookSpecifics: &models.BookSpecifics{
			Pages:         b.Pages,
			IsCompilation: b.Compilation,
		},
	}
	if b.Image.URL != "" {
		details.Assets.RemoteImages = []string{b.Image.URL}
	}
	if b.Rating > 0 {
		// Hardcover rates out of five; normalize to the 0..100 scale.
		rating := decimal.NewFromFloat(b.Rating).Mul(decimal.NewFromInt(20))
		details.ProviderRating = &rating
	}
	for _, tag := range b.CachedTags["Genre"] {
		details.Genres = append(details.Genres, tag.Tag)
	}
	for _, c := range b.Contributions {
		role := c.Contribution
		if role == "" {
			role = "Author"
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:     models.MediaSourceHardcover,
			Identifier: strconv.FormatInt(c.Author.ID, 10),
			Name:       c.Author.Name,
			Role:       role,
		})
	}
	return details, nil
}

const hardcoverIsbnQuery = `
query ($isbn: String!) {
  editions(where: {_or: [{isbn_13: {_eq: $isbn}}, {isbn_10: {_eq: $isbn}}]}, limit: 1) {
    book_id
  }
}`

// BookByIsbn resolves an ISBN to a book identifier.
func (h *Hardcover) BookByIsbn(ctx context.Context, isbn string) (string, error) {
	var resp struct {
		Editions []struct {
			BookID int64 `json:"book_id"`
		} `json:"editions"`
	}
	if err := h.graphql(ctx, hardcoverIsbnQuery, map[string]any{"isbn": isbn}, &resp); err != nil {
		return "", err
	}
	if len(resp.Editions) == 0 {
		return "", ErrNotFoundByProvider
	}
	return strconv.FormatInt(resp.Editions[0].BookID, 10), nil
}

const hardcoverAuthorQuery = `
query ($id: Int!) {
  authors_by_pk(id: $id) {
    id
    name
    bio
    born_date
    death_date
    slug
    image { url }
    contributions(limit: 50) { book { id title image { url } } }
  }
}`

// PersonDetails fetches one author.
func (h *Hardcover) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	id, err := strconv.Atoi(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hardcover identifier %q", ErrNotFoundByProvider, identifier)
	}
	var resp struct {
		Author *struct {
			Name      string `json:"name"`
			Bio       string `json:"bio"`
			BornDate  string `json:"born_date"`
			DeathDate string `json:"death_date"`
			Slug      string `json:"slug"`
			Image     struct {
				URL string `json:"url"`
			} `json:"image"`
			Contributions []struct {
				Book *struct {
					ID    int64  `json:"id"`
					Title string `json:"title"`
					Image struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"book"`
			} `json:"contributions"`
		} `json:"authors_by_pk"`
	}
	if err := h.graphql(ctx, hardcoverAuthorQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.Author == nil {
		return nil, ErrNotFoundByProvider
	}
	a := resp.Author
	out := &models.PersonDetails{
		Identifier:      identifier,
		Source:          models.MediaSourceHardcover,
		SourceSpecifics: specifics,
		Name:            a.Name,
		Description:     emptyToNil(a.Bio),
		BirthDate:       parseDate(a.BornDate),
		DeathDate:       parseDate(a.DeathDate),
		SourceURL:       ptr("https://hardcover.app/authors/" + a.Slug),
	}
	if a.Image.URL != "" {
		out.Assets.RemoteImages = []string{a.Image.URL}
	}
	for _, c := range a.Contributions {
		if c.Book == nil {
			continue
		}
		out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
			Role: "Author",
			Metadata: models.PartialMetadata{
				Lot: models.MediaLotBook, Source: models.MediaSourceHardcover,
				Identifier: strconv.FormatInt(c.Book.ID, 10), Title: c.Book.Title,
				Image: emptyToNil(c.Book.Image.URL),
			},
		})
	}
	return out, nil
}
