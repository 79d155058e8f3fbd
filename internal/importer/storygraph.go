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

// StoryGraph imports the StoryGraph library export CSV. Like goodreads it
// identifies books by ISBN and carries star ratings out of five.
type StoryGraph struct {
	cfg      config.ImporterConfig
	reader   io.Reader
	resolver *BookResolver
}

// NewStoryGraph builds the source over an export file.
func NewStoryGraph(cfg config.ImporterConfig, r io.Reader, resolver *BookResolver) *StoryGraph {
	return &StoryGraph{cfg: cfg, reader: r, resolver: resolver}
}

func (s *StoryGraph) Source() models.ImportSource { return models.ImportSourceStoryGraph }

func (s *StoryGraph) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	rows, err := csvRecords(s.reader)
	if err != nil {
		return nil, err
	}

	bookLot := models.MediaLotBook
	result := &models.ImportResult{}
	for _, row := range rows {
		title := row["Title"]
		identifier, source, err := s.resolver.Resolve(ctx, row["ISBN/UID"])
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

		switch row["Read Status"] {
		case "read":
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn: parseDateIn(row["Last Date Read"], "2006/01/02"),
			})
		case "currently-reading":
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{})
		case "to-read":
			item.Collections = append(item.Collections, string(models.CollectionWatchlist))
		case "did-not-finish", "":
		default:
			if s.cfg.StrictShelves {
				result.Failed = append(result.Failed, models.ImportFailedItem{
					Identifier: title,
					Lot:        &bookLot,
					Step:       models.ImportFailInputTransformation,
					Error:      ptr("unknown read status " + row["Read Status"]),
				})
				continue
			}
		}

		for _, tag := range splitList(row["Tags"]) {
			item.Collections = append(item.Collections, titleCase(tag))
		}

		if rating := parseDecimal(row["Star Rating"]); rating != nil && !rating.IsZero() {
			review := models.ImportOrExportItemRating{
				Rating: ptr(rating.Mul(decimal.NewFromInt(20))),
			}
			if text := row["Review"]; text != "" {
				review.Review = &models.ImportOrExportItemReview{Text: &text}
			}
			item.Reviews = append(item.Reviews, review)
		}

		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: &item})
	}
	return result, nil
}
