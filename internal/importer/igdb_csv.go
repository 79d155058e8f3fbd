// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"io"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// IgdbCsv imports a CSV of IGDB game ids ("id", "game" columns) into one
// target collection.
type IgdbCsv struct {
	reader     io.Reader
	collection string
}

// NewIgdbCsv builds the source. The collection name is where every row
// lands.
func NewIgdbCsv(r io.Reader, collection string) *IgdbCsv {
	return &IgdbCsv{reader: r, collection: collection}
}

func (i *IgdbCsv) Source() models.ImportSource { return models.ImportSourceIgdb }

func (i *IgdbCsv) Import(_ context.Context, _ string) (*models.ImportResult, error) {
	rows, err := csvRecords(i.reader)
	if err != nil {
		return nil, err
	}

	gameLot := models.MediaLotVideoGame
	result := &models.ImportResult{}
	for _, row := range rows {
		if row["id"] == "" {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: row["game"],
				Lot:        &gameLot,
				Step:       models.ImportFailInputTransformation,
				Error:      ptr("no igdb id"),
			})
			continue
		}
		item := &models.ImportOrExportMetadataItem{
			Lot:        models.MediaLotVideoGame,
			Source:     models.MediaSourceIgdb,
			Identifier: row["id"],
			SourceID:   row["game"],
		}
		if i.collection != "" {
			item.Collections = append(item.Collections, i.collection)
		}
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
	}
	return result, nil
}
