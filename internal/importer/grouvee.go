// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// grouveeShelfMap translates Grouvee's built-in shelves onto the default
// collections. Anything else becomes a user collection of the same name.
var grouveeShelfMap = map[string]models.DefaultCollection{
	"Played":    models.CollectionCompleted,
	"Playing":   models.CollectionInProgress,
	"Wish List": models.CollectionWatchlist,
}

// Grouvee imports the Grouvee CSV export. Games are identified by their
// Giant Bomb GUID ("3030-{id}"); rows without one cannot be resolved.
type Grouvee struct {
	cfg    config.ImporterConfig
	reader io.Reader
}

// NewGrouvee builds the source over an export file.
func NewGrouvee(cfg config.ImporterConfig, r io.Reader) *Grouvee {
	return &Grouvee{cfg: cfg, reader: r}
}

func (g *Grouvee) Source() models.ImportSource { return models.ImportSourceGrouvee }

func (g *Grouvee) Import(_ context.Context, _ string) (*models.ImportResult, error) {
	rows, err := csvRecords(g.reader)
	if err != nil {
		return nil, err
	}

	gameLot := models.MediaLotVideoGame
	result := &models.ImportResult{}
	for _, row := range rows {
		name := row["name"]
		if row["giantbomb_id"] == "" {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: name,
				Lot:        &gameLot,
				Step:       models.ImportFailInputTransformation,
				Error:      ptr("no giantbomb_id"),
			})
			continue
		}

		item := models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotVideoGame,
			Source:     models.MediaSourceGiantBomb,
			Identifier: "3030-" + row["giantbomb_id"],
			SourceID:   name,
		}

		for _, shelf := range grouveeShelves(row["shelves"]) {
			if mapped, ok := grouveeShelfMap[shelf]; ok {
				if mapped == models.CollectionCompleted {
					item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{})
				}
				item.Collections = append(item.Collections, string(mapped))
				continue
			}
			if g.cfg.StrictShelves {
				result.Failed = append(result.Failed, models.ImportFailedItem{
					Identifier: name,
					Lot:        &gameLot,
					Step:       models.ImportFailInputTransformation,
					Error:      ptr("unknown shelf " + shelf),
				})
				continue
			}
			item.Collections = append(item.Collections, titleCase(shelf))
		}

		if rating := parseDecimal(row["rating"]); rating != nil && !rating.IsZero() {
			review := models.ImportOrExportItemRating{
				Rating: ptr(rating.Mul(decimal.NewFromInt(20))),
			}
			if text := row["review"]; text != "" {
				review.Review = &models.ImportOrExportItemReview{Text: &text}
			}
			item.Reviews = append(item.Reviews, review)
		}

		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: &item})
	}
	return result, nil
}

// grouveeShelves extracts the shelf names from the JSON blob the export
// stores in the shelves column.
func grouveeShelves(raw string) []string {
	if raw == "" {
		return nil
	}
	var shelves map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &shelves); err != nil {
		return nil
	}
	names := make([]string, 0, len(shelves))
	for name := range shelves {
		names = append(names, name)
	}
	return names
}
