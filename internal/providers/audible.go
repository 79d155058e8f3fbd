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
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const audibleBaseURL = "https://api.audible.com/1.0/catalog/products"

// audibleSimilarityTypes are the five feeds merged into suggestions.
var audibleSimilarityTypes = []string{
	"InTheSameSeries",
	"ByTheSameNarrator",
	"RawSimilarities",
	"ByTheSameAuthor",
	"NextInSameSeries",
}

const audibleResponseGroups = "contributors,category_ladders,media,product_attrs,product_extended_attrs,rating,relationships"

// Audible serves audiobooks through the unauthenticated catalog API.
// Identifiers are ASINs.
type Audible struct {
	client *Client
}

// NewAudible builds the keyless adapter.
func NewAudible(cfg *config.ProvidersConfig) *Audible {
	return &Audible{client: NewClient("audible", cfg.Timeout, 2)}
}

func (a *Audible) Source() models.MediaSource { return models.MediaSourceAudible }

func (a *Audible) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotAudioBook}
}

type audibleProduct struct {
	Asin         string `json:"asin"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	ReleaseDate  string `json:"release_date"`
	PublisherSummary string `json:"publisher_summary"`
	MerchandisingSummary string `json:"merchandising_summary"`
	RuntimeLengthMin *int `json:"runtime_length_min"`
	IsAdultProduct bool `json:"is_adult_product"`
	Language     string `json:"language"`
	ProductImages map[string]string `json:"product_images"`
	Authors      []audibleContributor `json:"authors"`
	Narrators    []audibleContributor `json:"narrators"`
	Rating       struct {
		OverallDistribution struct {
			DisplayAverageRating string `json:"display_average_rating"`
		} `json:"overall_distribution"`
	} `json:"rating"`
	CategoryLadders []struct {
		Ladder []struct {
			Name string `json:"name"`
		} `json:"ladder"`
	} `json:"category_ladders"`
	Relationships []struct {
		Asin             string `json:"asin"`
		RelationshipType string `json:"relationship_type"`
		Title            string `json:"title"`
		Sequence         string `json:"sequence"`
	} `json:"relationships"`
}

type audibleContributor struct {
	Asin string `json:"asin"`
	Name string `json:"name"`
}

func audibleImage(p audibleProduct) *string {
	for _, size := range []string{"2400", "500"} {
		if u, ok := p.ProductImages[size]; ok && u != "" {
			return &u
		}
	}
	return nil
}

// SearchMedia searches the catalog by keyword.
func (a *Audible) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		TotalResults int              `json:"total_results"`
		Products     []audibleProduct `json:"products"`
	}
	err := a.client.GetJSON(ctx, audibleBaseURL, url.Values{
		"keywords":         {query},
		"num_results":      {strconv.Itoa(PageSize)},
		"page":             {strconv.Itoa(page)},
		"products_sort_by": {"Relevance"},
		"response_groups":  {"media,product_attrs"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Products))
	for _, p := range resp.Products {
		if !displayNsfw && p.IsAdultProduct {
			continue
		}
		items = append(items, models.MetadataSearchItem{
			Identifier:  p.Asin,
			Title:       p.Title,
			Image:       audibleImage(p),
			PublishYear: yearOf(p.ReleaseDate),
		})
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.TotalResults,
			NextPage: nextPageFor(page, resp.TotalResults),
		},
		Items: items,
	}, nil
}

// MediaDetails fetches one audiobook and merges the five similarity feeds
// into its suggestions. A failing similarity feed is logged and skipped
// rather than failing the whole fetch.
func (a *Audible) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var resp struct {
		Product audibleProduct `json:"product"`
	}
	err := a.client.GetJSON(ctx, audibleBaseURL+"/"+identifier, url.Values{
		"response_groups": {audibleResponseGroups},
	}, &resp)
	if err != nil {
		return nil, err
	}
	p := resp.Product
	if p.Asin == "" {
		return nil, ErrNotFoundByProvider
	}

	title := p.Title
	if p.Subtitle != "" {
		title = title + ": " + p.Subtitle
	}
	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              models.MediaLotAudioBook,
		Source:           models.MediaSourceAudible,
		Title:            title,
		Description:      emptyToNil(firstNonEmpty(p.PublisherSummary, p.MerchandisingSummary)),
		PublishDate:      parseDate(p.ReleaseDate),
		PublishYear:      yearOf(p.ReleaseDate),
		IsNsfw:           p.IsAdultProduct,
		OriginalLanguage: emptyToNil(p.Language),
		SourceURL:        ptr("https://www.audible.com/pd/" + identifier),
		AudioBookSpecifics: &models.AudioBookSpecifics{Runtime: p.RuntimeLengthMin},
	}
	if img := audibleImage(p); img != nil {
		details.Assets.RemoteImages = []string{*img}
	}
	if rating, err := decimal.NewFromString(p.Rating.OverallDistribution.DisplayAverageRating); err == nil && rating.IsPositive() {
		// Audible rates out of five; normalize to the 0..100 scale.
		normalized := rating.Mul(decimal.NewFromInt(20))
		details.ProviderRating = &normalized
	}

	// Category ladder leaves like "Science Fiction & Fantasy" are two
	// genres, not one.
	seenGenres := map[string]bool{}
	for _, ladder := range p.CategoryLadders {
		for _, step := range ladder.Ladder {
			for _, name := range strings.Split(step.Name, " & ") {
				name = strings.TrimSpace(name)
				if name != "" && !seenGenres[name] {
					seenGenres[name] = true
					details.Genres = append(details.Genres, name)
				}
			}
		}
	}

	for _, author := range p.Authors {
		if author.Asin == "" {
			details.Creators = append(details.Creators, models.MetadataFreeCreator{
				Name: author.Name, Role: "Author",
			})
			continue
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source: models.MediaSourceAudible, Identifier: author.Asin,
			Name: author.Name, Role: "Author",
		})
	}
	for _, narrator := range p.Narrators {
		details.Creators = append(details.Creators, models.MetadataFreeCreator{
			Name: narrator.Name, Role: "Narrator",
		})
	}

	seenAsins := map[string]bool{identifier: true}
	for _, simType := range audibleSimilarityTypes {
		var sims struct {
			SimilarProducts []audibleProduct `json:"similar_products"`
		}
		err := a.client.GetJSON(ctx, audibleBaseURL+"/"+identifier+"/sims", url.Values{
			"similarity_type": {simType},
			"response_groups": {"media"},
		}, &sims)
		if err != nil {
			logging.Debug().Str("asin", identifier).Str("type", simType).AnErr("error", err).
				Msg("Audible similarity feed failed")
			continue
		}
		for _, s := range sims.SimilarProducts {
			if seenAsins[s.Asin] {
				continue
			}
			seenAsins[s.Asin] = true
			details.Suggestions = append(details.Suggestions, models.PartialMetadata{
				Lot: models.MediaLotAudioBook, Source: models.MediaSourceAudible,
				Identifier: s.Asin, Title: s.Title, Image: audibleImage(s),
			})
		}
	}
	return details, nil
}
