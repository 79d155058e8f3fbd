// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// Goodreads imports the goodreads library export CSV. Books are resolved
// through the ISBN chain; the exclusive shelf drives seen state and the
// remaining bookshelves become collections.
type Goodreads struct {
	cfg      config.ImporterConfig
	reader   io.Reader
	resolver *BookResolver
}

// NewGoodreads builds the source over an export file.
func NewGoodreads(cfg config.ImporterConfig, r io.Reader, resolver *BookResolver) *Goodreads {
	return &Goodreads{cfg: cfg, reader: r, resolver: resolver}
}

func (g *Goodreads) Source() models.ImportSource { return models.ImportSourceGoodreads }

func (g *Goodreads) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	rows, err := csvRecords(g.reader)
	if err != nil {
		return nil, err
	}

	bookLot := models.MediaLotBook
	result := &models.ImportResult{}
	for _, row := range rows {
		title := row["Title"]
		isbn := firstOf(row["ISBN13"], row["ISBN"])

		identifier, source, err := g.resolver.Resolve(ctx, isbn)
		if err != nil {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: title,
				Lot:        &bookLot,
				Step:       models.ImportFailMediaDetailsFromProvider,
				Error:      ptr(err.Error()),
			})
			continue
		}

		item := models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotBook,
			Source:     source,
			Identifier: identifier,
			SourceID:   title,
		}

		switch row["Exclusive Shelf"] {
		case "read":
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn: parseDateIn(row["Date Read"], "2006/01/02"),
			})
		case "currently-reading":
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				StartedOn: parseDateIn(row["Date Added"], "2006/01/02"),
			})
		case "to-read":
			item.Collections = append(item.Collections, string(models.CollectionWatchlist))
		case "":
		default:
			if g.cfg.StrictShelves {
				result.Failed = append(result.Failed, models.ImportFailedItem{
					Identifier: title,
					Lot:        &bookLot,
					Step:       models.ImportFailInputTransformation,
					Error:      ptr("unknown exclusive shelf " + row["Exclusive Shelf"]),
				})
				continue
			}
		}

		for _, shelf := range splitList(row["Bookshelves"]) {
			switch shelf {
			case "read", "currently-reading", "to-read":
				// Mirrors of the exclusive shelf, already handled.
			default:
				item.Collections = append(item.Collections, titleCase(shelf))
			}
		}

		if rating := parseDecimal(row["My Rating"]); rating != nil && !rating.IsZero() {
			review := models.ImportOrExportItemRating{
				// Goodreads stars are 1..5.
				Rating: ptr(rating.Mul(decimal.NewFromInt(20))),
			}
			if text := row["My Review"]; text != "" {
				review.Review = &models.ImportOrExportItemReview{Text: &text}
			}
			item.Reviews = append(item.Reviews, review)
		}

		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: &item})
	}
	return result, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if cleanIsbn(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := make([]string, 0, 4)
	for _, part := range splitAndTrim(s, ",") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
