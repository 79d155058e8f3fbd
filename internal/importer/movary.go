// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// Movary imports the three Movary CSV exports: watch history, ratings,
// and the watchlist. Every row carries a TMDB id, so no provider
// resolution is needed.
type Movary struct {
	history   io.Reader
	ratings   io.Reader
	watchlist io.Reader
}

// NewMovary builds the source. Any reader may be nil when the user did
// not upload that file.
func NewMovary(history, ratings, watchlist io.Reader) *Movary {
	return &Movary{history: history, ratings: ratings, watchlist: watchlist}
}

func (m *Movary) Source() models.ImportSource { return models.ImportSourceMovary }

func (m *Movary) Import(_ context.Context, _ string) (*models.ImportResult, error) {
	result := &models.ImportResult{}
	items := map[string]*models.ImportOrExportMetadataItem{}
	movieLot := models.MediaLotMovie

	itemFor := func(row map[string]string) *models.ImportOrExportMetadataItem {
		tmdbID := row["tmdbId"]
		if item, ok := items[tmdbID]; ok {
			return item
		}
		item := &models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotMovie,
			Source:     models.MediaSourceTmdb,
			Identifier: tmdbID,
			SourceID:   row["title"],
		}
		items[tmdbID] = item
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
		return item
	}

	if m.history != nil {
		rows, err := csvRecords(m.history)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row["tmdbId"] == "" {
				result.Failed = append(result.Failed, models.ImportFailedItem{
					Identifier: row["title"],
					Lot:        &movieLot,
					Step:       models.ImportFailInputTransformation,
					Error:      ptr("no tmdbId"),
				})
				continue
			}
			item := itemFor(row)
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn: parseDateIn(row["watchedAt"], "2006-01-02", time.RFC3339),
			})
		}
	}

	if m.ratings != nil {
		rows, err := csvRecords(m.ratings)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row["tmdbId"] == "" {
				continue
			}
			rating := parseDecimal(row["userRating"])
			if rating == nil || rating.IsZero() {
				continue
			}
			item := itemFor(row)
			item.Reviews = append(item.Reviews, models.ImportOrExportItemRating{
				// Movary ratings are 1..10.
				Rating: ptr(rating.Mul(decimal.NewFromInt(10))),
			})
		}
	}

	if m.watchlist != nil {
		rows, err := csvRecords(m.watchlist)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row["tmdbId"] == "" {
				continue
			}
			item := itemFor(row)
			item.Collections = append(item.Collections, string(models.CollectionWatchlist))
		}
	}

	return result, nil
}
