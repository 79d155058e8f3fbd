// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package importer pulls a user's history out of other services and files
// and replays it through the progress engine. Every source adapter
// produces the same ImportResult shape; processing is source-independent.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
)

// perItemBudget seeds the first finish-time estimate: the worst-case
// geometric backoff sum for one item before any real timing exists.
const perItemBudget = 2 * time.Second

// Source is one import adapter. Import enumerates everything the source
// has for the user and maps it; it does not touch the database.
type Source interface {
	Source() models.ImportSource
	Import(ctx context.Context, userID string) (*models.ImportResult, error)
}

// Store is the persistence surface processing needs. *database.DB
// satisfies it.
type Store interface {
	CommitMetadata(ctx context.Context, p models.PartialMetadata) (string, error)
	CommitMetadataGroup(ctx context.Context, lot models.MediaLot, source models.MediaSource, identifier, title string) (string, error)
	CommitPerson(ctx context.Context, identifier string, source models.MediaSource, name string, specifics *models.PersonSourceSpecifics) (string, error)

	GetCollectionByName(ctx context.Context, userID, name string) (*models.Collection, error)
	CreateCollection(ctx context.Context, c *models.Collection) error
	NextCollectionRank(ctx context.Context, collectionID string) (decimal.Decimal, error)
	AddEntityToCollection(ctx context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error)

	InsertReview(ctx context.Context, r *models.Review) error
	UpsertExercise(ctx context.Context, e *models.Exercise) error
	UpsertWorkout(ctx context.Context, w *models.Workout) error
	InsertUserMeasurement(ctx context.Context, m *models.UserMeasurement) error

	CreateImportReport(ctx context.Context, userID string, source models.ImportSource) (*models.ImportReport, error)
	UpdateImportReportProgress(ctx context.Context, id string, progress decimal.Decimal, estimatedFinish time.Time) error
	FinishImportReport(ctx context.Context, id string, success bool, details *models.ImportResultDetails) error
}

// ProgressEngine replays seen history. *progress.Engine satisfies it.
type ProgressEngine interface {
	Update(ctx context.Context, userID string, in progress.UpdateInput) (*models.Seen, error)
}

// Cache is the slice of *cache.Cache the importer invalidates when a
// new collection appears. May be nil.
type Cache interface {
	ExpireByDiscriminant(d cache.KeyDiscriminant, userID string) int
}

// Importer runs adapters and applies their results.
type Importer struct {
	cfg    config.ImporterConfig
	store  Store
	engine ProgressEngine
	cache  Cache
}

// NewImporter builds the importer.
func NewImporter(cfg config.ImporterConfig, store Store, engine ProgressEngine, c Cache) *Importer {
	return &Importer{cfg: cfg, store: store, engine: engine, cache: c}
}

// Run executes one import: create the report, pull the source, apply every
// item, and finish the report with per-item accounting.
func (i *Importer) Run(ctx context.Context, userID string, source Source) (*models.ImportReport, error) {
	report, err := i.store.CreateImportReport(ctx, userID, source.Source())
	if err != nil {
		return nil, fmt.Errorf("importer: create report: %w", err)
	}

	result, err := source.Import(ctx, userID)
	if err != nil {
		details := &models.ImportResultDetails{
			FailedItems: []models.ImportFailedItem{{
				Identifier: string(source.Source()),
				Step:       models.ImportFailItemDetailsFromSource,
				Error:      ptr(err.Error()),
			}},
		}
		if finishErr := i.store.FinishImportReport(ctx, report.ID, false, details); finishErr != nil {
			logging.Err(finishErr).Str("report_id", report.ID).Msg("Failed to finish import report")
		}
		return report, fmt.Errorf("importer: %s: %w", source.Source(), err)
	}

	failed := i.Apply(ctx, userID, report.ID, result)
	details := &models.ImportResultDetails{
		Import:      models.ImportDetails{Total: len(result.Completed) - countFailedCommits(failed)},
		FailedItems: append(result.Failed, failed...),
	}
	success := len(details.FailedItems) == 0
	if err := i.store.FinishImportReport(ctx, report.ID, success, details); err != nil {
		return report, fmt.Errorf("importer: finish report: %w", err)
	}
	logging.Info().Str("source", string(source.Source())).Str("user_id", userID).
		Int("completed", details.Import.Total).Int("failed", len(details.FailedItems)).
		Msg("Import finished")
	return report, nil
}

func countFailedCommits(failed []models.ImportFailedItem) int {
	n := 0
	for _, f := range failed {
		if f.Step == models.ImportFailDatabaseCommit {
			n++
		}
	}
	return n
}

// Apply commits every completed item, ticking report progress after each.
// It returns the items that failed during commit. reportID may be empty
// (integration yanks apply results without a report).
func (i *Importer) Apply(ctx context.Context, userID, reportID string, result *models.ImportResult) []models.ImportFailedItem {
	var failed []models.ImportFailedItem
	total := len(result.Completed)
	started := time.Now()
	if reportID != "" && total > 0 {
		estimate := started.Add(time.Duration(total) * perItemBudget)
		if err := i.store.UpdateImportReportProgress(ctx, reportID, decimal.Zero, estimate); err != nil {
			logging.Err(err).Str("report_id", reportID).Msg("Failed to update import progress")
		}
	}

	for idx, item := range result.Completed {
		if err := i.applyItem(ctx, userID, item); err != nil {
			var ie *itemError
			if errors.As(err, &ie) {
				failed = append(failed, ie.item)
			} else {
				failed = append(failed, models.ImportFailedItem{
					Identifier: item.Name(),
					Step:       models.ImportFailDatabaseCommit,
					Error:      ptr(err.Error()),
				})
			}
		}
		if reportID != "" {
			i.tickProgress(ctx, reportID, started, idx+1, total)
		}
	}
	return failed
}

func (i *Importer) tickProgress(ctx context.Context, reportID string, started time.Time, done, total int) {
	pct := decimal.NewFromInt(int64(done)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total)))
	elapsed := time.Since(started)
	remaining := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	if err := i.store.UpdateImportReportProgress(ctx, reportID, pct, time.Now().Add(remaining)); err != nil {
		logging.Err(err).Str("report_id", reportID).Msg("Failed to update import progress")
	}
}

// itemError carries a structured failure through the apply path.
type itemError struct {
	item models.ImportFailedItem
}

func (e *itemError) Error() string {
	if e.item.Error != nil {
		return fmt.Sprintf("importer: %s at %s: %s", e.item.Identifier, e.item.Step, *e.item.Error)
	}
	return fmt.Sprintf("importer: %s failed at %s", e.item.Identifier, e.item.Step)
}

func (i *Importer) applyItem(ctx context.Context, userID string, item models.ImportCompletedItem) error {
	switch {
	case item.Metadata != nil:
		return i.applyMetadata(ctx, userID, item.Metadata)
	case item.MetadataGroup != nil:
		return i.applyMetadataGroup(ctx, userID, item.MetadataGroup)
	case item.Person != nil:
		return i.applyPerson(ctx, userID, item.Person)
	case item.Exercise != nil:
		return i.applyExercise(ctx, userID, item.Exercise)
	case item.Workout != nil:
		w := *item.Workout
		w.UserID = userID
		if w.ID == "" {
			w.ID = models.NewID(models.PrefixWorkout)
		}
		return i.store.UpsertWorkout(ctx, &w)
	case item.Measurement != nil:
		m := *item.Measurement
		m.UserID = userID
		return i.store.InsertUserMeasurement(ctx, &m)
	case item.Collection != nil:
		c := *item.Collection
		c.UserID = userID
		_, err := i.ensureCollection(ctx, userID, c.Name)
		return err
	}
	return fmt.Errorf("importer: empty completed item")
}

func (i *Importer) applyMetadata(ctx context.Context, userID string, item *models.ImportOrExportMetadataItem) error {
	metadataID, err := i.store.CommitMetadata(ctx, models.PartialMetadata{
		Lot:        item.Lot,
		Source:     item.Source,
		Identifier: item.Identifier,
		Title:      item.SourceID,
	})
	if err != nil {
		return &itemError{item: models.ImportFailedItem{
			Identifier: item.Identifier,
			Lot:        &item.Lot,
			Step:       models.ImportFailDatabaseCommit,
			Error:      ptr(err.Error()),
		}}
	}

	for _, seen := range item.SeenHistory {
		if err := i.applySeen(ctx, userID, metadataID, item.Lot, seen); err != nil {
			return &itemError{item: models.ImportFailedItem{
				Identifier: item.Identifier,
				Lot:        &item.Lot,
				Step:       models.ImportFailSeenHistoryConversion,
				Error:      ptr(err.Error()),
			}}
		}
	}
	for _, rating := range item.Reviews {
		if err := i.applyReview(ctx, userID, metadataID, models.EntityLotMetadata, item.Lot, rating); err != nil {
			return err
		}
	}
	return i.addToCollections(ctx, userID, metadataID, item.Collections)
}

// applySeen replays one history entry through the progress engine.
// Entries that look finished become completed rows; open entries become an
// in-progress row carried to the recorded percentage. Replays are
// tolerated: an existing open row absorbs the update instead of erroring.
func (i *Importer) applySeen(ctx context.Context, userID, metadataID string, lot models.MediaLot, seen models.ImportOrExportMetadataItemSeen) error {
	common := models.MetadataProgressUpdateCommon{
		ShowSeasonNumber:     seen.ShowSeasonNumber,
		ShowEpisodeNumber:    seen.ShowEpisodeNumber,
		PodcastEpisodeNumber: seen.PodcastEpisodeNumber,
		AnimeEpisodeNumber:   seen.AnimeEpisodeNumber,
		MangaChapterNumber:   seen.MangaChapterNumber,
		MangaVolumeNumber:    seen.MangaVolumeNumber,
		ProviderWatchedOn:    seen.ProviderWatchedOn,
	}

	finished := seen.EndedOn != nil ||
		(seen.Progress != nil && seen.Progress.GreaterThanOrEqual(decimal.NewFromInt(100)))
	if finished {
		_, err := i.engine.Update(ctx, userID, progress.UpdateInput{
			MetadataID: metadataID,
			CreateNewCompleted: &progress.NewCompletedChange{
				StartedOn:  seen.StartedOn,
				FinishedOn: seen.EndedOn,
				Common:     common,
			},
		})
		return err
	}

	_, err := i.engine.Update(ctx, userID, progress.UpdateInput{
		MetadataID: metadataID,
		CreateNewInProgress: &progress.NewInProgressChange{
			StartedOn: seen.StartedOn,
			Common:    common,
		},
	})
	if err != nil && !errors.Is(err, progress.ErrAlreadyInProgress) {
		return err
	}
	if seen.Progress != nil {
		_, err = i.engine.Update(ctx, userID, progress.UpdateInput{
			MetadataID:             metadataID,
			ChangeLatestInProgress: &progress.LatestInProgressChange{Progress: seen.Progress},
		})
	}
	return err
}

func (i *Importer) applyReview(ctx context.Context, userID, entityID string, entityLot models.EntityLot, mediaLot models.MediaLot, rating models.ImportOrExportItemRating) error {
	review := &models.Review{
		ID:         models.NewID(models.PrefixReview),
		UserID:     userID,
		EntityID:   entityID,
		EntityLot:  entityLot,
		Rating:     rating.Rating,
		Visibility: models.VisibilityPrivate,
		Comments:   rating.Comments,
		PostedOn:   time.Now().UTC(),
	}
	if r := rating.Review; r != nil {
		review.Text = r.Text
		if r.Spoiler != nil {
			review.IsSpoiler = *r.Spoiler
		}
		if r.Visibility != nil {
			review.Visibility = *r.Visibility
		}
		if r.Date != nil {
			review.PostedOn = *r.Date
		}
	}
	switch mediaLot {
	case models.MediaLotShow:
		if rating.ShowSeasonNumber != nil || rating.ShowEpisodeNumber != nil {
			review.ShowExtraInformation = &models.ReviewShowExtraInformation{
				Season: rating.ShowSeasonNumber, Episode: rating.ShowEpisodeNumber,
			}
		}
	case models.MediaLotPodcast:
		if rating.PodcastEpisodeNumber != nil {
			review.PodcastExtraInformation = &models.ReviewPodcastExtraInformation{
				Episode: rating.PodcastEpisodeNumber,
			}
		}
	case models.MediaLotAnime:
		if rating.AnimeEpisodeNumber != nil {
			review.AnimeExtraInformation = &models.ReviewAnimeExtraInformation{
				Episode: rating.AnimeEpisodeNumber,
			}
		}
	case models.MediaLotManga:
		if rating.MangaChapterNumber != nil {
			review.MangaExtraInformation = &models.ReviewMangaExtraInformation{
				Chapter: rating.MangaChapterNumber,
			}
		}
	}
	return i.store.InsertReview(ctx, review)
}

func (i *Importer) applyMetadataGroup(ctx context.Context, userID string, item *models.ImportOrExportMetadataGroupItem) error {
	groupID, err := i.store.CommitMetadataGroup(ctx, item.Lot, item.Source, item.Identifier, item.Title)
	if err != nil {
		return err
	}
	for _, rating := range item.Reviews {
		if err := i.applyReview(ctx, userID, groupID, models.EntityLotMetadataGroup, item.Lot, rating); err != nil {
			return err
		}
	}
	return i.addToCollections(ctx, userID, groupID, item.Collections)
}

func (i *Importer) applyPerson(ctx context.Context, userID string, item *models.ImportOrExportPersonItem) error {
	personID, err := i.store.CommitPerson(ctx, item.Identifier, item.Source, item.Name, item.SourceSpecifics)
	if err != nil {
		return err
	}
	for _, rating := range item.Reviews {
		if err := i.applyReview(ctx, userID, personID, models.EntityLotPerson, "", rating); err != nil {
			return err
		}
	}
	return i.addToCollections(ctx, userID, personID, item.Collections)
}

func (i *Importer) applyExercise(ctx context.Context, userID string, item *models.ImportOrExportExerciseItem) error {
	exercise := &models.Exercise{
		ID:        models.DeterministicID(models.PrefixExercise, item.Name, string(item.Lot), userID),
		Name:      item.Name,
		Lot:       item.Lot,
		Source:    models.ExerciseSourceCustom,
		CreatedBy: &userID,
		CreatedOn: time.Now().UTC(),
	}
	if err := i.store.UpsertExercise(ctx, exercise); err != nil {
		return err
	}
	return i.addToCollections(ctx, userID, exercise.ID, item.Collections)
}

// ensureCollection fetches the user's collection by name, creating it if
// it does not exist yet.
func (i *Importer) ensureCollection(ctx context.Context, userID, name string) (*models.Collection, error) {
	coll, err := i.store.GetCollectionByName(ctx, userID, name)
	if err == nil {
		return coll, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	coll = &models.Collection{
		ID:     models.NewID(models.PrefixCollection),
		UserID: userID,
		Name:   name,
	}
	if err := i.store.CreateCollection(ctx, coll); err != nil {
		return nil, err
	}
	if i.cache != nil {
		i.cache.ExpireByDiscriminant(cache.DiscUserCollectionsList, userID)
	}
	return coll, nil
}

func (i *Importer) addToCollections(ctx context.Context, userID, entityID string, names []string) error {
	for _, name := range names {
		coll, err := i.ensureCollection(ctx, userID, name)
		if err != nil {
			return err
		}
		rank, err := i.store.NextCollectionRank(ctx, coll.ID)
		if err != nil {
			return err
		}
		edge, err := models.NewCollectionToEntity(coll.ID, entityID, rank)
		if err != nil {
			return err
		}
		if _, err := i.store.AddEntityToCollection(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
