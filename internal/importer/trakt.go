// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

const traktBaseURL = "https://api.trakt.tv"

// Trakt imports a user's public Trakt profile: watched history, ratings,
// the watchlist, favorites, and custom lists. Identifiers come from the
// embedded TMDB ids.
type Trakt struct {
	client   *providers.Client
	username string
}

// NewTrakt builds the source for one Trakt username.
func NewTrakt(clientID, username string, timeout time.Duration) *Trakt {
	return &Trakt{
		client: providers.NewClient("trakt", timeout, 3).
			WithHeader("trakt-api-version", "2").
			WithHeader("trakt-api-key", clientID),
		username: username,
	}
}

func (t *Trakt) Source() models.ImportSource { return models.ImportSourceTrakt }

type traktIds struct {
	Trakt int    `json:"trakt"`
	Slug  string `json:"slug"`
	Tmdb  int    `json:"tmdb"`
}

type traktItem struct {
	Title string   `json:"title"`
	Ids   traktIds `json:"ids"`
}

func (t *Trakt) url(path string) string {
	return traktBaseURL + "/users/" + t.username + path
}

func (t *Trakt) Import(ctx context.Context, _ string) (*models.ImportResult, error) {
	result := &models.ImportResult{}
	items := map[string]*models.ImportOrExportMetadataItem{}

	itemFor := func(lot models.MediaLot, media traktItem) *models.ImportOrExportMetadataItem {
		if media.Ids.Tmdb == 0 {
			result.Failed = append(result.Failed, models.ImportFailedItem{
				Identifier: media.Title,
				Lot:        &lot,
				Step:       models.ImportFailInputTransformation,
				Error:      ptr("no tmdb id"),
			})
			return nil
		}
		key := string(lot) + "/" + strconv.Itoa(media.Ids.Tmdb)
		if item, ok := items[key]; ok {
			return item
		}
		item := &models.ImportOrExportMetadataItem{
			Lot:        lot,
			Source:     models.MediaSourceTmdb,
			Identifier: strconv.Itoa(media.Ids.Tmdb),
			SourceID:   media.Title,
		}
		items[key] = item
		result.Completed = append(result.Completed, models.ImportCompletedItem{Metadata: item})
		return item
	}

	if err := t.importWatched(ctx, result, itemFor); err != nil {
		return nil, err
	}
	if err := t.importRatings(ctx, result, itemFor); err != nil {
		return nil, err
	}
	if err := t.importListed(ctx, result, itemFor); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Trakt) importWatched(ctx context.Context, result *models.ImportResult, itemFor func(models.MediaLot, traktItem) *models.ImportOrExportMetadataItem) error {
	var movies []struct {
		LastWatchedAt *time.Time `json:"last_watched_at"`
		Movie         traktItem  `json:"movie"`
	}
	if err := t.client.GetJSON(ctx, t.url("/watched/movies"), nil, &movies); err != nil {
		return fmt.Errorf("trakt watched movies: %w", err)
	}
	for _, watched := range movies {
		if item := itemFor(models.MediaLotMovie, watched.Movie); item != nil {
			item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
				EndedOn: watched.LastWatchedAt,
			})
		}
	}

	var shows []struct {
		Show    traktItem `json:"show"`
		Seasons []struct {
			Number   int `json:"number"`
			Episodes []struct {
				Number        int        `json:"number"`
				LastWatchedAt *time.Time `json:"last_watched_at"`
			} `json:"episodes"`
		} `json:"seasons"`
	}
	if err := t.client.GetJSON(ctx, t.url("/watched/shows"), nil, &shows); err != nil {
		return fmt.Errorf("trakt watched shows: %w", err)
	}
	for _, watched := range shows {
		item := itemFor(models.MediaLotShow, watched.Show)
		if item == nil {
			continue
		}
		for _, season := range watched.Seasons {
			for _, episode := range season.Episodes {
				s, e := season.Number, episode.Number
				item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
					EndedOn:           episode.LastWatchedAt,
					ShowSeasonNumber:  &s,
					ShowEpisodeNumber: &e,
				})
			}
		}
	}
	return nil
}

func (t *Trakt) importRatings(ctx context.Context, _ *models.ImportResult, itemFor func(models.MediaLot, traktItem) *models.ImportOrExportMetadataItem) error {
	for _, kind := range []struct {
		path string
		lot  models.MediaLot
	}{
		{"/ratings/movies", models.MediaLotMovie},
		{"/ratings/shows", models.MediaLotShow},
	} {
		var ratings []struct {
			Rating  int        `json:"rating"`
			RatedAt *time.Time `json:"rated_at"`
			Movie   *traktItem `json:"movie"`
			Show    *traktItem `json:"show"`
		}
		if err := t.client.GetJSON(ctx, t.url(kind.path), nil, &ratings); err != nil {
			return fmt.Errorf("trakt %s: %w", kind.path, err)
		}
		for _, rated := range ratings {
			media := rated.Movie
			if media == nil {
				media = rated.Show
			}
			if media == nil || rated.Rating == 0 {
				continue
			}
			if item := itemFor(kind.lot, *media); item != nil {
				item.Reviews = append(item.Reviews, models.ImportOrExportItemRating{
					// Trakt ratings are 1..10.
					Rating: ptr(decimal.NewFromInt(int64(rated.Rating) * 10)),
					Review: &models.ImportOrExportItemReview{Date: rated.RatedAt},
				})
			}
		}
	}
	return nil
}

type traktListEntry struct {
	Movie *traktItem `json:"movie"`
	Show  *traktItem `json:"show"`
}

func (e traktListEntry) media() (models.MediaLot, *traktItem) {
	if e.Movie != nil {
		return models.MediaLotMovie, e.Movie
	}
	if e.Show != nil {
		return models.MediaLotShow, e.Show
	}
	return "", nil
}

func (t *Trakt) importListed(ctx context.Context, _ *models.ImportResult, itemFor func(models.MediaLot, traktItem) *models.ImportOrExportMetadataItem) error {
	addAll := func(path, collection string) error {
		var entries []traktListEntry
		if err := t.client.GetJSON(ctx, t.url(path), nil, &entries); err != nil {
			return fmt.Errorf("trakt %s: %w", path, err)
		}
		for _, entry := range entries {
			lot, media := entry.media()
			if media == nil {
				continue
			}
			if item := itemFor(lot, *media); item != nil {
				item.Collections = append(item.Collections, collection)
			}
		}
		return nil
	}

	if err := addAll("/watchlist", string(models.CollectionWatchlist)); err != nil {
		return err
	}
	if err := addAll("/favorites", "Favorites"); err != nil {
		return err
	}

	var lists []struct {
		Name string   `json:"name"`
		Ids  traktIds `json:"ids"`
	}
	if err := t.client.GetJSON(ctx, t.url("/lists"), nil, &lists); err != nil {
		return fmt.Errorf("trakt lists: %w", err)
	}
	for _, list := range lists {
		err := addAll(fmt.Sprintf("/lists/%d/items", list.Ids.Trakt), titleCase(list.Name))
		if err != nil {
			return err
		}
	}
	return nil
}
