// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// GenericJson re-imports the application's own export document, making
// export -> import a lossless round trip.
type GenericJson struct {
	reader io.Reader
}

// NewGenericJson builds the source over an export file.
func NewGenericJson(r io.Reader) *GenericJson {
	return &GenericJson{reader: r}
}

func (g *GenericJson) Source() models.ImportSource { return models.ImportSourceGenericJson }

func (g *GenericJson) Import(_ context.Context, _ string) (*models.ImportResult, error) {
	var export models.CompleteExport
	if err := json.NewDecoder(g.reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode export document: %w", err)
	}

	result := &models.ImportResult{}
	for idx := range export.Media {
		result.Completed = append(result.Completed,
			models.ImportCompletedItem{Metadata: &export.Media[idx]})
	}
	for idx := range export.MediaGroups {
		result.Completed = append(result.Completed,
			models.ImportCompletedItem{MetadataGroup: &export.MediaGroups[idx]})
	}
	for idx := range export.People {
		result.Completed = append(result.Completed,
			models.ImportCompletedItem{Person: &export.People[idx]})
	}
	for idx := range export.Measurements {
		result.Completed = append(result.Completed,
			models.ImportCompletedItem{Measurement: &export.Measurements[idx]})
	}
	for idx := range export.Workouts {
		result.Completed = append(result.Completed,
			models.ImportCompletedItem{Workout: &export.Workouts[idx]})
	}
	return result, nil
}
