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

// OpenScale imports the openScale body-measurement CSV backup.
type OpenScale struct {
	reader io.Reader
}

// NewOpenScale builds the source over a backup file.
func NewOpenScale(r io.Reader) *OpenScale {
	return &OpenScale{reader: r}
}

func (o *OpenScale) Source() models.ImportSource { return models.ImportSourceOpenScale }

func (o *OpenScale) Import(_ context.Context, userID string) (*models.ImportResult, error) {
	rows, err := csvRecords(o.reader)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{}
	for _, row := range rows {
		when := parseDateIn(row["dateTime"], "2006-01-02 15:04", "2006-01-02 15:04:05")
		if when == nil {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: row["dateTime"],
				Step:       models.ImportFailInputTransformation,
				Error:      ptr("unparseable dateTime"),
			})
			continue
		}

		measurement := &models.UserMeasurement{
			UserID:    userID,
			Timestamp: when.UTC(),
			Stats: models.UserMeasurementStats{
				Weight:     parseDecimal(row["weight"]),
				BodyFat:    parseDecimal(row["fat"]),
				Chest:      parseDecimal(row["chest"]),
				Waist:      parseDecimal(row["waist"]),
				Hips:       parseDecimal(row["hip"]),
				Neck:       parseDecimal(row["neck"]),
				LeftBicep:  parseDecimal(row["biceps"]),
				RightBicep: parseDecimal(row["biceps"]),
				LeftThigh:  parseDecimal(row["thigh"]),
				RightThigh: parseDecimal(row["thigh"]),
			},
		}
		for _, custom := range []string{"muscle", "water", "bone", "lbm", "visceralFat"} {
			if v := parseDecimal(row[custom]); v != nil {
				if measurement.Stats.Custom == nil {
					measurement.Stats.Custom = map[string]decimal.Decimal{}
				}
				measurement.Stats.Custom[custom] = *v
			}
		}
		if comment := row["comment"]; comment != "" {
			measurement.Comment = &comment
		}
		result.Completed = append(result.Completed, models.ImportCompletedItem{Measurement: measurement})
	}
	return result, nil
}
