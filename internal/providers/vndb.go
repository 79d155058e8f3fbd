// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const vndbBaseURL = "https://api.vndb.org/kana"

const vndbFields = "title,aliases,languages,devstatus,released,description,image.url,rating,length_minutes,tags.name,developers.id,developers.name"

// Vndb serves visual novels through the kana API, a filter-expression
// POST interface. Identifiers are vndb ids (v17).
type Vndb struct {
	client *Client
}

// NewVndb builds the keyless adapter.
func NewVndb(cfg *config.ProvidersConfig) *Vndb {
	return &Vndb{client: NewClient("vndb", cfg.Timeout, 2)}
}

func (v *Vndb) Source() models.MediaSource { return models.MediaSourceVndb }

func (v *Vndb) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotVisualNovel}
}

type vndbQuery struct {
	Filters []any  `json:"filters"`
	Fields  string `json:"fields"`
	Results int    `json:"results"`
	Page    int    `json:"page"`
}

type vndbNovel struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Languages   []string `json:"languages"`
	Devstatus   int      `json:"devstatus"`
	Released    string   `json:"released"`
	Description string   `json:"description"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image"`
	Rating        *float64 `json:"rating"`
	LengthMinutes *int     `json:"length_minutes"`
	Tags          []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Developers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"developers"`
}

type vndbResponse struct {
	Results []vndbNovel `json:"results"`
	More    bool        `json:"more"`
	Count   int         `json:"count"`
}

func vndbProductionStatus(devstatus int) *string {
	switch devstatus {
	case 0:
		return ptr("Finished")
	case 1:
		return ptr("In development")
	case 2:
		return ptr("Cancelled")
	default:
		return nil
	}
}

// SearchMedia searches visual novels by title.
func (v *Vndb) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp vndbResponse
	err := v.client.PostJSON(ctx, vndbBaseURL+"/vn", vndbQuery{
		Filters: []any{"search", "=", query},
		Fields:  "title,released,image.url",
		Results: PageSize,
		Page:    page,
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := models.MetadataSearchItem{
			Identifier:  r.ID,
			Title:       r.Title,
			PublishYear: yearOf(r.Released),
		}
		if r.Image != nil {
			item.Image = emptyToNil(r.Image.URL)
		}
		items = append(items, item)
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if resp.More {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataSearchItem]{Details: details, Items: items}, nil
}

// MediaDetails fetches one visual novel by id filter.
func (v *Vndb) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var resp vndbResponse
	err := v.client.PostJSON(ctx, vndbBaseURL+"/vn", vndbQuery{
		Filters: []any{"id", "=", identifier},
		Fields:  vndbFields,
		Results: 1,
		Page:    1,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFoundByProvider
	}
	n := resp.Results[0]

	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              models.MediaLotVisualNovel,
		Source:           models.MediaSourceVndb,
		Title:            n.Title,
		Description:      emptyToNil(n.Description),
		PublishDate:      parseDate(n.Released),
		PublishYear:      yearOf(n.Released),
		SourceURL:        ptr("https://vndb.org/" + identifier),
		ProductionStatus: vndbProductionStatus(n.Devstatus),
		VisualNovelSpecifics: &models.VisualNovelSpecifics{LengthMinutes: n.LengthMinutes},
	}
	if len(n.Languages) > 0 {
		details.OriginalLanguage = &n.Languages[0]
	}
	if n.Image != nil && n.Image.URL != "" {
		details.Assets.RemoteImages = []string{n.Image.URL}
	}
	if n.Rating != nil {
		// vndb rates 10..100 already on the percent scale.
		rating := decimal.NewFromFloat(*n.Rating)
		details.ProviderRating = &rating
	}
	for idx, t := range n.Tags {
		if idx == 10 {
			break
		}
		details.Genres = append(details.Genres, t.Name)
	}
	for _, d := range n.Developers {
		details.People = append(details.People, models.PartialMetadataPerson{
			Source: models.MediaSourceVndb, Identifier: d.ID,
			Name: d.Name, Role: "Developer",
		})
	}
	return details, nil
}

// SearchPeople searches producers (developers and publishers).
func (v *Vndb) SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		Results []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"results"`
		More bool `json:"more"`
	}
	err := v.client.PostJSON(ctx, vndbBaseURL+"/producer", vndbQuery{
		Filters: []any{"search", "=", query},
		Fields:  "name",
		Results: PageSize,
		Page:    page,
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.PeopleSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		items = append(items, models.PeopleSearchItem{Identifier: r.ID, Name: r.Name})
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if resp.More {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.PeopleSearchItem]{Details: details, Items: items}, nil
}

// PersonDetails fetches one producer and the novels it developed.
func (v *Vndb) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	var resp struct {
		Results []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Lang        string `json:"lang"`
		} `json:"results"`
	}
	err := v.client.PostJSON(ctx, vndbBaseURL+"/producer", vndbQuery{
		Filters: []any{"id", "=", identifier},
		Fields:  "name,description,lang",
		Results: 1,
		Page:    1,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFoundByProvider
	}
	p := resp.Results[0]
	out := &models.PersonDetails{
		Identifier:  identifier,
		Source:      models.MediaSourceVndb,
		Name:        p.Name,
		Description: emptyToNil(p.Description),
		Place:       emptyToNil(p.Lang),
		SourceURL:   ptr("https://vndb.org/" + identifier),
	}

	var novels vndbResponse
	err = v.client.PostJSON(ctx, vndbBaseURL+"/vn", vndbQuery{
		Filters: []any{"developer", "=", []any{"id", "=", identifier}},
		Fields:  "title,image.url",
		Results: 50,
		Page:    1,
	}, &novels)
	if err == nil {
		for _, n := range novels.Results {
			partial := models.PartialMetadata{
				Lot: models.MediaLotVisualNovel, Source: models.MediaSourceVndb,
				Identifier: n.ID, Title: n.Title,
			}
			if n.Image != nil {
				partial.Image = emptyToNil(n.Image.URL)
			}
			out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
				Role: "Developer", Metadata: partial,
			})
		}
	}
	return out, nil
}
