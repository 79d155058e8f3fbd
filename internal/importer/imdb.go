// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// ImdbResolver maps an IMDB "tt" id to a TMDB identifier and lot.
// (*providers.Tmdb).FindByImdbID satisfies it.
type ImdbResolver func(ctx context.Context, imdbID string) (string, models.MediaLot, error)

// Imdb imports IMDB's ratings and watchlist CSV exports. IMDB ids are
// resolved to TMDB because that is the movie/show source of record here.
type Imdb struct {
	ratings   io.Reader
	watchlist io.Reader
	resolve   ImdbResolver
}

// NewImdb builds the source. Either reader may be nil.
func NewImdb(ratings, watchlist io.Reader, resolve ImdbResolver) *Imdb {
	return &Imdb{ratings: ratings, watchlist: watchlist, resolve: resolve}
}

func (i *Imdb) Source() models.ImportSource { return models.ImportSourceImdb }

func (i *Imdb) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	result := &models.ImportResult{}

	itemFor := func(row map[string]string) *models.ImportOrExportMetadataItem {
		imdbID := row["Const"]
		identifier, lot, err := i.resolve(ctx, imdbID)
		if err != nil {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: row["Title"],
				Step:       models.ImportFailMediaDetailsFromProvider,
				Error:      ptr(err.Error()),
			})
			return nil
		}
		item := &models.ImportOrExportMetadataItem{
			Lot:        lot,
			Source:     models.MediaSourceTmdb,
			Identifier: identifier,
			SourceID:   row["Title"],
		}
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
		return item
	}

	if i.ratings != nil {
		rows, err := csvRecords(i.ratings)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			item := itemFor(row)
			if item == nil {
				continue
			}
			if rating := parseDecimal(row["Your Rating"]); rating != nil && !rating.IsZero() {
				item.Reviews = append(item.Reviews, models.ImportOrExportItemRating{
					// IMDB ratings are 1..10.
					Rating: ptr(rating.Mul(decimal.NewFromInt(10))),
					Review: &models.ImportOrExportItemReview{
						Date: parseDateIn(row["Date Rated"], "2006-01-02"),
					},
				})
			}
			// A rated title was watched.
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn: parseDateIn(row["Date Rated"], "2006-01-02"),
			})
		}
	}

	if i.watchlist != nil {
		rows, err := csvRecords(i.watchlist)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			item := itemFor(row)
			if item == nil {
				continue
			}
			item.Collections = append(item.Collections, string(models.CollectionWatchlist))
		}
	}

	return result, nil
}
