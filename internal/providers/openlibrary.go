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
	"strings"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const (
	openlibraryBaseURL  = "https://openlibrary.org"
	openlibraryCoverURL = "https://covers.openlibrary.org"
)

// Openlibrary serves books. Identifiers are bare work keys (OL45883W,
// the /works/ prefix stripped). Work records carry no page counts or
// publish dates, so details make a second call over the editions and take
// the earliest publish year and the largest page count.
type Openlibrary struct {
	client *Client
}

// NewOpenlibrary builds the keyless adapter.
func NewOpenlibrary(cfg *config.ProvidersConfig) *Openlibrary {
	return &Openlibrary{client: NewClient("openlibrary", cfg.Timeout, 2)}
}

func (o *Openlibrary) Source() models.MediaSource { return models.MediaSourceOpenlibrary }

func (o *Openlibrary) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotBook}
}

// StripKey removes the /works/ or /authors/ prefix from an Openlibrary
// key. Import sources hand over both shapes.
func StripKey(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func openlibraryCover(coverID int) *string {
	if coverID <= 0 {
		return nil
	}
	return ptr(fmt.Sprintf("%s/b/id/%d-L.jpg", openlibraryCoverURL, coverID))
}

// SearchMedia searches works.
func (o *Openlibrary) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			Key              string `json:"key"`
			Title            string `json:"title"`
			CoverI           int    `json:"cover_i"`
			FirstPublishYear int    `json:"first_publish_year"`
		} `json:"docs"`
	}
	err := o.client.GetJSON(ctx, openlibraryBaseURL+"/search.json", url.Values{
		"q":      {query},
		"page":   {strconv.Itoa(page)},
		"limit":  {strconv.Itoa(PageSize)},
		"fields": {"key,title,cover_i,first_publish_year"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		item := models.MetadataSearchItem{
			Identifier: StripKey(d.Key),
			Title:      d.Title,
			Image:      openlibraryCover(d.CoverI),
		}
		if d.FirstPublishYear > 0 {
			item.PublishYear = &d.FirstPublishYear
		}
		items = append(items, item)
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.NumFound,
			NextPage: nextPageFor(page, resp.NumFound),
		},
		Items: items,
	}, nil
}

// openlibraryText decodes the description field, which is either a plain
// string or a {type, value} object.
type openlibraryText string

func (t *openlibraryText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = openlibraryText(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = openlibraryText(obj.Value)
	return nil
}

type openlibraryWork struct {
	Title       string          `json:"title"`
	Description openlibraryText `json:"description"`
	Covers      []int           `json:"covers"`
	Subjects    []string        `json:"subjects"`
	Authors     []struct {
		Author struct {
			Key string `json:"key"`
		} `json:"author"`
	} `json:"authors"`
}

// MediaDetails fetches the work, its authors' names and its editions.
func (o *Openlibrary) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var work openlibraryWork
	err := o.client.GetJSON(ctx,
		fmt.Sprintf("%s/works/%s.json", openlibraryBaseURL, identifier), nil, &work)
	if err != nil {
		return nil, err
	}

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotBook,
		Source:      models.MediaSourceOpenlibrary,
		Title:       work.Title,
		Description: emptyToNil(string(work.Description)),
		SourceURL:   ptr(fmt.Sprintf("%s/works/%s", openlibraryBaseURL, identifier)),
	}
	for _, c := range work.Covers {
		if img := openlibraryCover(c); img != nil {
			details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
		}
	}
	// Subjects double as the genre vocabulary; cap the noisy tail.
	for idx, s := range work.Subjects {
		if idx == 10 {
			break
		}
		details.Genres = append(details.Genres, s)
	}
	for _, a := range work.Authors {
		key := StripKey(a.Author.Key)
		if key == "" {
			continue
		}
		var author struct {
			Name string `json:"name"`
		}
		if err := o.client.GetJSON(ctx,
			fmt.Sprintf("%s/authors/%s.json", openlibraryBaseURL, key), nil, &author); err != nil {
			continue
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source: models.MediaSourceOpenlibrary, Identifier: key,
			Name: author.Name, Role: "Author",
		})
	}

	var editions struct {
		Entries []struct {
			PublishDate   string `json:"publish_date"`
			NumberOfPages int    `json:"number_of_pages"`
		} `json:"entries"`
	}
	err = o.client.GetJSON(ctx,
		fmt.Sprintf("%s/works/%s/editions.json", openlibraryBaseURL, identifier), nil, &editions)
	if err == nil {
		var minYear, maxPages int
		for _, e := range editions.Entries {
			if y := yearOf(e.PublishDate); y != nil && (minYear == 0 || *y < minYear) {
				minYear = *y
			}
			if e.NumberOfPages > maxPages {
				maxPages = e.NumberOfPages
			}
		}
		if minYear > 0 {
			details.PublishYear = &minYear
		}
		if maxPages > 0 {
			details.BookSpecifics = &models.BookSpecifics{Pages: &maxPages}
		}
	}
	return details, nil
}

// SearchPeople searches authors.
func (o *Openlibrary) SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			Key       string `json:"key"`
			Name      string `json:"name"`
			BirthDate string `json:"birth_date"`
		} `json:"docs"`
	}
	err := o.client.GetJSON(ctx, openlibraryBaseURL+"/search/authors.json", url.Values{
		"q":      {query},
		"offset": {strconv.Itoa(pageOffset(page))},
		"limit":  {strconv.Itoa(PageSize)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.PeopleSearchItem, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		items = append(items, models.PeopleSearchItem{
			Identifier: StripKey(d.Key),
			Name:       d.Name,
			BirthYear:  yearOf(d.BirthDate),
		})
	}
	return &models.SearchResults[models.PeopleSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.NumFound,
			NextPage: nextPageFor(page, resp.NumFound),
		},
		Items: items,
	}, nil
}

// PersonDetails fetches one author and their works.
func (o *Openlibrary) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	var author struct {
		Name      string          `json:"name"`
		Bio       openlibraryText `json:"bio"`
		BirthDate string          `json:"birth_date"`
		DeathDate string          `json:"death_date"`
		Photos    []int           `json:"photos"`
		Links     []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	err := o.client.GetJSON(ctx,
		fmt.Sprintf("%s/authors/%s.json", openlibraryBaseURL, identifier), nil, &author)
	if err != nil {
		return nil, err
	}
	out := &models.PersonDetails{
		Identifier:  identifier,
		Source:      models.MediaSourceOpenlibrary,
		Name:        author.Name,
		Description: emptyToNil(string(author.Bio)),
		BirthDate:   parseDate(author.BirthDate),
		DeathDate:   parseDate(author.DeathDate),
		SourceURL:   ptr(fmt.Sprintf("%s/authors/%s", openlibraryBaseURL, identifier)),
	}
	if len(author.Links) > 0 {
		out.Website = emptyToNil(author.Links[0].URL)
	}
	for _, p := range author.Photos {
		if p > 0 {
			out.Assets.RemoteImages = append(out.Assets.RemoteImages,
				fmt.Sprintf("%s/a/id/%d-L.jpg", openlibraryCoverURL, p))
		}
	}

	var works struct {
		Entries []struct {
			Key    string `json:"key"`
			Title  string `json:"title"`
			Covers []int  `json:"covers"`
		} `json:"entries"`
	}
	err = o.client.GetJSON(ctx,
		fmt.Sprintf("%s/authors/%s/works.json", openlibraryBaseURL, identifier),
		url.Values{"limit": {"50"}}, &works)
	if err == nil {
		for _, w := range works.Entries {
			partial := models.PartialMetadata{
				Lot: models.MediaLotBook, Source: models.MediaSourceOpenlibrary,
				Identifier: StripKey(w.Key), Title: w.Title,
			}
			if len(w.Covers) > 0 {
				partial.Image = openlibraryCover(w.Covers[0])
			}
			out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
				Role: "Author", Metadata: partial,
			})
		}
	}
	return out, nil
}

// MediaDetailsByIsbn resolves an ISBN to a work identifier, for the
// import chains that only know the ISBN.
func (o *Openlibrary) MediaDetailsByIsbn(ctx context.Context, isbn string) (string, error) {
	var edition struct {
		Works []struct {
			Key string `json:"key"`
		} `json:"works"`
	}
	err := o.client.GetJSON(ctx,
		fmt.Sprintf("%s/isbn/%s.json", openlibraryBaseURL, isbn), nil, &edition)
	if err != nil {
		return "", err
	}
	if len(edition.Works) == 0 {
		return "", ErrNotFoundByProvider
	}
	return StripKey(edition.Works[0].Key), nil
}
