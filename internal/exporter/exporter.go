// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package exporter produces the complete-export JSON document for one
// user and parks it in object storage. The document is the same shape the
// generic_json import source consumes, so export -> import round-trips.
package exporter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/storage"
)

// pageSize is how many rows each paged query pulls. Large enough to keep
// round trips low, small enough to bound memory per page.
const pageSize = 1000

// Store is the read surface the exporter needs. *database.DB satisfies it.
type Store interface {
	ListSeenForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Seen, error)
	ListReviewsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Review, error)
	ListWorkoutsForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Workout, error)
	ListUserMeasurements(ctx context.Context, userID string, from, to time.Time) ([]*models.UserMeasurement, error)
	ListUserCollections(ctx context.Context, userID string) ([]*models.Collection, error)
	ListCollectionEntities(ctx context.Context, collectionID string, limit, offset int) ([]*models.CollectionToEntity, error)
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	GetMetadataGroup(ctx context.Context, id string) (*models.MetadataGroup, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
}

// Exporter streams export documents. The storage client may be nil, in
// which case only WriteDocument is usable.
type Exporter struct {
	store   Store
	storage *storage.Client
}

// New builds the exporter.
func New(store Store, storage *storage.Client) *Exporter {
	return &Exporter{store: store, storage: storage}
}

// Run produces the document and uploads it under
// exports/{user_id}/{id}.json, recording the export window in the object
// metadata. It returns the object key.
func (e *Exporter) Run(ctx context.Context, userID string) (string, error) {
	if e.storage == nil {
		return "", fmt.Errorf("exporter: object storage is not configured")
	}
	started := time.Now().UTC()

	// Spool to disk first: PutObject needs a sized body, and the document
	// can be far larger than what belongs in memory.
	spool, err := os.CreateTemp("", "shelfwatch-export-*.json")
	if err != nil {
		return "", fmt.Errorf("exporter: create spool: %w", err)
	}
	defer func() {
		spool.Close()
		if err := os.Remove(spool.Name()); err != nil {
			logging.Err(err).Str("path", spool.Name()).Msg("Failed to remove export spool")
		}
	}()

	if err := e.WriteDocument(ctx, userID, spool); err != nil {
		return "", err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("exporter: rewind spool: %w", err)
	}

	suffix, err := gonanoid.New(12)
	if err != nil {
		return "", fmt.Errorf("exporter: generate key: %w", err)
	}
	key := fmt.Sprintf("exports/%s/%s.json", userID, suffix)
	ended := time.Now().UTC()
	err = e.storage.Upload(ctx, key, "application/json", spool, map[string]string{
		"started_at": started.Format(time.RFC3339),
		"ended_at":   ended.Format(time.RFC3339),
		"exported":   `["media","media_group","people","measurements","workouts"]`,
	})
	if err != nil {
		return "", err
	}
	logging.Info().Str("user_id", userID).Str("key", key).
		Dur("took", ended.Sub(started)).Msg("Export finished")
	return key, nil
}

// WriteDocument streams the user's export document to w. The top-level
// object is framed by hand so each array element is encoded and flushed
// individually instead of materializing the whole document.
func (e *Exporter) WriteDocument(ctx context.Context, userID string, w io.Writer) error {
	bw := bufio.NewWriter(w)

	memberships, err := e.collectMemberships(ctx, userID)
	if err != nil {
		return err
	}
	media, groups, people, err := e.collectEntities(ctx, userID, memberships)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(bw, `{"media":[`); err != nil {
		return err
	}
	for idx, item := range media {
		if err := writeElem(bw, idx, item); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(bw, `],"media_group":[`); err != nil {
		return err
	}
	for idx, item := range groups {
		if err := writeElem(bw, idx, item); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(bw, `],"people":[`); err != nil {
		return err
	}
	for idx, item := range people {
		if err := writeElem(bw, idx, item); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(bw, `],"measurements":[`); err != nil {
		return err
	}
	measurements, err := e.store.ListUserMeasurements(ctx, userID, time.Time{}, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("exporter: list measurements: %w", err)
	}
	for idx, measurement := range measurements {
		if err := writeElem(bw, idx, measurement); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(bw, `],"workouts":[`); err != nil {
		return err
	}
	for offset, n := 0, 0; ; offset += pageSize {
		workouts, err := e.store.ListWorkoutsForUser(ctx, userID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("exporter: list workouts: %w", err)
		}
		for _, workout := range workouts {
			if err := writeElem(bw, n, workout); err != nil {
				return err
			}
			n++
		}
		if len(workouts) < pageSize {
			break
		}
	}

	if _, err := io.WriteString(bw, `]}`); err != nil {
		return err
	}
	return bw.Flush()
}

func writeElem(w io.Writer, idx int, v any) error {
	if idx > 0 {
		if _, err := io.WriteString(w, ","); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("exporter: encode element: %w", err)
	}
	_, err = w.Write(raw)
	return err
}

// membershipIndex maps entity ids to the names of the user's collections
// holding them, preserving first-seen order for deterministic output.
type membershipIndex struct {
	names map[string][]string
	order []string
}

// collectMemberships walks every collection of the user and indexes the
// member entity ids by collection name.
func (e *Exporter) collectMemberships(ctx context.Context, userID string) (*membershipIndex, error) {
	idx := &membershipIndex{names: map[string][]string{}}
	collections, err := e.store.ListUserCollections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("exporter: list collections: %w", err)
	}
	for _, collection := range collections {
		for offset := 0; ; offset += pageSize {
			page, err := e.store.ListCollectionEntities(ctx, collection.ID, pageSize, offset)
			if err != nil {
				return nil, fmt.Errorf("exporter: collection %s entities: %w", collection.ID, err)
			}
			for _, entity := range page {
				id := entity.EntityID()
				if _, seen := idx.names[id]; !seen {
					idx.order = append(idx.order, id)
				}
				idx.names[id] = append(idx.names[id], collection.Name)
			}
			if len(page) < pageSize {
				break
			}
		}
	}
	return idx, nil
}

// collectEntities folds the user's seen rows, reviews and collection
// memberships into export items, one per metadata, group and person.
func (e *Exporter) collectEntities(ctx context.Context, userID string, memberships *membershipIndex) (
	[]*models.ImportOrExportMetadataItem,
	[]*models.ImportOrExportMetadataGroupItem,
	[]*models.ImportOrExportPersonItem,
	error,
) {
	var mediaOrder []*models.ImportOrExportMetadataItem
	var groupOrder []*models.ImportOrExportMetadataGroupItem
	var peopleOrder []*models.ImportOrExportPersonItem
	media := map[string]*models.ImportOrExportMetadataItem{}
	groups := map[string]*models.ImportOrExportMetadataGroupItem{}
	people := map[string]*models.ImportOrExportPersonItem{}

	mediaFor := func(metadataID string) (*models.ImportOrExportMetadataItem, error) {
		if item, ok := media[metadataID]; ok {
			return item, nil
		}
		meta, err := e.store.GetMetadata(ctx, metadataID)
		if err != nil {
			return nil, fmt.Errorf("exporter: metadata %s: %w", metadataID, err)
		}
		item := &models.ImportOrExportMetadataItem{
			Lot:         meta.Lot,
			Source:      meta.Source,
			Identifier:  meta.Identifier,
			SourceID:    meta.Title,
			Collections: memberships.names[metadataID],
		}
		media[metadataID] = item
		mediaOrder = append(mediaOrder, item)
		return item, nil
	}
	groupFor := func(groupID string) (*models.ImportOrExportMetadataGroupItem, error) {
		if item, ok := groups[groupID]; ok {
			return item, nil
		}
		group, err := e.store.GetMetadataGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("exporter: metadata group %s: %w", groupID, err)
		}
		item := &models.ImportOrExportMetadataGroupItem{
			Lot:         group.Lot,
			Source:      group.Source,
			Identifier:  group.Identifier,
			Title:       group.Title,
			Collections: memberships.names[groupID],
		}
		groups[groupID] = item
		groupOrder = append(groupOrder, item)
		return item, nil
	}
	personFor := func(personID string) (*models.ImportOrExportPersonItem, error) {
		if item, ok := people[personID]; ok {
			return item, nil
		}
		person, err := e.store.GetPerson(ctx, personID)
		if err != nil {
			return nil, fmt.Errorf("exporter: person %s: %w", personID, err)
		}
		item := &models.ImportOrExportPersonItem{
			Source:          person.Source,
			Identifier:      person.Identifier,
			SourceSpecifics: person.SourceSpecifics,
			Name:            person.Name,
			Collections:     memberships.names[personID],
		}
		people[personID] = item
		peopleOrder = append(peopleOrder, item)
		return item, nil
	}

	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListSeenForUser(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("exporter: list seen: %w", err)
		}
		for _, seen := range page {
			item, err := mediaFor(seen.MetadataID)
			if err != nil {
				return nil, nil, nil, err
			}
			item.SeenHistory = append(item.SeenHistory, exportSeen(seen))
		}
		if len(page) < pageSize {
			break
		}
	}

	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListReviewsByUser(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("exporter: list reviews: %w", err)
		}
		for _, review := range page {
			switch review.EntityLot {
			case models.EntityLotMetadata:
				item, err := mediaFor(review.EntityID)
				if err != nil {
					return nil, nil, nil, err
				}
				item.Reviews = append(item.Reviews, exportReview(review))
			case models.EntityLotMetadataGroup:
				item, err := groupFor(review.EntityID)
				if err != nil {
					return nil, nil, nil, err
				}
				item.Reviews = append(item.Reviews, exportReview(review))
			case models.EntityLotPerson:
				item, err := personFor(review.EntityID)
				if err != nil {
					return nil, nil, nil, err
				}
				item.Reviews = append(item.Reviews, exportReview(review))
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	// Entities the user only collected still belong in the document.
	for _, entityID := range memberships.order {
		var err error
		switch models.IDPrefix(entityID) {
		case models.PrefixMetadata:
			_, err = mediaFor(entityID)
		case models.PrefixMetadataGroup:
			_, err = groupFor(entityID)
		case models.PrefixPerson:
			_, err = personFor(entityID)
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}

	return mediaOrder, groupOrder, peopleOrder, nil
}

func exportSeen(seen *models.Seen) models.ImportOrExportMetadataItemSeen {
	out := models.ImportOrExportMetadataItemSeen{
		StartedOn:         seen.StartedOn,
		EndedOn:           seen.FinishedOn,
		Progress:          ptr(seen.Progress),
		ProviderWatchedOn: seen.ProviderWatchedOn,
	}
	if extra := seen.ShowExtraInformation; extra != nil {
		out.ShowSeasonNumber = ptr(extra.Season)
		out.ShowEpisodeNumber = ptr(extra.Episode)
	}
	if extra := seen.PodcastExtraInformation; extra != nil {
		out.PodcastEpisodeNumber = ptr(extra.Episode)
	}
	if extra := seen.AnimeExtraInformation; extra != nil {
		out.AnimeEpisodeNumber = extra.Episode
	}
	if extra := seen.MangaExtraInformation; extra != nil {
		out.MangaChapterNumber = extra.Chapter
		out.MangaVolumeNumber = extra.Volume
	}
	return out
}

func exportReview(review *models.Review) models.ImportOrExportItemRating {
	out := models.ImportOrExportItemRating{
		Rating:   review.Rating,
		Comments: review.Comments,
		Review: &models.ImportOrExportItemReview{
			Date:       ptr(review.PostedOn),
			Spoiler:    ptr(review.IsSpoiler),
			Text:       review.Text,
			Visibility: ptr(review.Visibility),
		},
	}
	if extra := review.ShowExtraInformation; extra != nil {
		out.ShowSeasonNumber = extra.Season
		out.ShowEpisodeNumber = extra.Episode
	}
	if extra := review.PodcastExtraInformation; extra != nil {
		out.PodcastEpisodeNumber = extra.Episode
	}
	if extra := review.AnimeExtraInformation; extra != nil {
		out.AnimeEpisodeNumber = extra.Episode
	}
	if extra := review.MangaExtraInformation; extra != nil {
		out.MangaChapterNumber = extra.Chapter
	}
	return out
}

func ptr[T any](v T) *T { return &v }
