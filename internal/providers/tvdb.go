// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const tvdbBaseURL = "https://api4.thetvdb.com/v4"

// Tvdb serves movies and shows through the TVDB v4 API. A login call
// trades the API key for a bearer token valid for a month. Show details
// fetch the official seasons concurrently, five at a time.
type Tvdb struct {
	client *Client
	apiKey string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewTvdb builds the adapter with the configured API key.
func NewTvdb(cfg *config.ProvidersConfig) *Tvdb {
	return &Tvdb{
		client: NewClient("tvdb", cfg.Timeout, 4),
		apiKey: cfg.TvdbAPIKey,
	}
}

func (t *Tvdb) Source() models.MediaSource { return models.MediaSourceTvdb }

func (t *Tvdb) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotMovie, models.MediaLotShow}
}

func (t *Tvdb) bearer(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Now().Before(t.tokenExp) {
		return t.token, nil
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	err := t.client.PostJSON(ctx, tvdbBaseURL+"/login",
		map[string]string{"apikey": t.apiKey}, &resp)
	if err != nil {
		return "", fmt.Errorf("providers: tvdb login: %w", err)
	}
	t.token = resp.Data.Token
	t.tokenExp = time.Now().Add(27 * 24 * time.Hour)
	return t.token, nil
}

func (t *Tvdb) get(ctx context.Context, path string, params url.Values, out any) error {
	token, err := t.bearer(ctx)
	if err != nil {
		return err
	}
	t.client.WithHeader("Authorization", "Bearer "+token)
	return t.client.GetJSON(ctx, tvdbBaseURL+path, params, out)
}

// SearchMedia searches series or movies.
func (t *Tvdb) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	kind := "movie"
	if lot == models.MediaLotShow {
		kind = "series"
	}
	var resp struct {
		Data []struct {
			TvdbID   string `json:"tvdb_id"`
			Name     string `json:"name"`
			ImageURL string `json:"image_url"`
			Year     string `json:"year"`
		} `json:"data"`
		Links struct {
			TotalItems int `json:"total_items"`
		} `json:"links"`
	}
	err := t.get(ctx, "/search", url.Values{
		"query": {query},
		"type":  {kind},
		"page":  {strconv.Itoa(page - 1)},
		"limit": {strconv.Itoa(PageSize)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Data))
	for _, d := range resp.Data {
		item := models.MetadataSearchItem{
			Identifier: d.TvdbID,
			Title:      d.Name,
			Image:      emptyToNil(d.ImageURL),
		}
		if y, err := strconv.Atoi(d.Year); err == nil {
			item.PublishYear = &y
		}
		items = append(items, item)
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.Links.TotalItems,
			NextPage: nextPageFor(page, resp.Links.TotalItems),
		},
		Items: items,
	}, nil
}

type tvdbExtended struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Overview         string `json:"overview"`
	Image            string `json:"image"`
	FirstAired       string `json:"firstAired"`
	Year             string `json:"year"`
	Runtime          int    `json:"runtime"`
	OriginalLanguage string `json:"originalLanguage"`
	Status           struct {
		Name string `json:"name"`
	} `json:"status"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Artworks []struct {
		Image string `json:"image"`
	} `json:"artworks"`
	Characters []struct {
		PeopleID   int    `json:"peopleId"`
		PersonName string `json:"personName"`
		Name       string `json:"name"`
		PeopleType string `json:"peopleType"`
	} `json:"characters"`
	Seasons []struct {
		ID     int `json:"id"`
		Number int `json:"number"`
		Type   struct {
			Type string `json:"type"`
		} `json:"type"`
	} `json:"seasons"`
}

// MediaDetails fetches one title; shows get their official seasons
// resolved concurrently.
func (t *Tvdb) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	kind := "movies"
	if lot == models.MediaLotShow {
		kind = "series"
	}
	var resp struct {
		Data tvdbExtended `json:"data"`
	}
	err := t.get(ctx, fmt.Sprintf("/%s/%s/extended", kind, identifier), nil, &resp)
	if err != nil {
		return nil, err
	}
	d := resp.Data

	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              lot,
		Source:           models.MediaSourceTvdb,
		Title:            d.Name,
		Description:      emptyToNil(d.Overview),
		PublishDate:      parseDate(d.FirstAired),
		PublishYear:      yearOf(firstNonEmpty(d.FirstAired, d.Year)),
		SourceURL:        ptr(fmt.Sprintf("https://www.thetvdb.com/dereferrer/%s/%s", strings.TrimSuffix(kind, "s"), identifier)),
		OriginalLanguage: emptyToNil(d.OriginalLanguage),
		ProductionStatus: emptyToNil(d.Status.Name),
	}
	if tvdbID, err := strconv.Atoi(identifier); err == nil {
		details.ExternalIdentifiers = &models.ExternalIdentifiers{Tvdb: &tvdbID}
	}
	if d.Image != "" {
		details.Assets.RemoteImages = append(details.Assets.RemoteImages, d.Image)
	}
	for idx, a := range d.Artworks {
		if idx == 5 {
			break
		}
		if a.Image != "" {
			details.Assets.RemoteImages = append(details.Assets.RemoteImages, a.Image)
		}
	}
	for _, g := range d.Genres {
		details.Genres = append(details.Genres, g.Name)
	}
	for _, c := range d.Characters {
		role := c.PeopleType
		if role == "" {
			role = "Actor"
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:     models.MediaSourceTvdb,
			Identifier: strconv.Itoa(c.PeopleID),
			Name:       c.PersonName,
			Role:       role,
			Character:  emptyToNil(c.Name),
		})
	}

	if lot == models.MediaLotMovie {
		if d.Runtime > 0 {
			details.MovieSpecifics = &models.MovieSpecifics{Runtime: &d.Runtime}
		}
		return details, nil
	}

	type officialSeason struct {
		id     int
		number int
	}
	var official []officialSeason
	for _, s := range d.Seasons {
		if s.Type.Type == "official" {
			official = append(official, officialSeason{id: s.ID, number: s.Number})
		}
	}

	seasons := make([]models.ShowSeason, len(official))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(5)
	for idx, s := range official {
		group.Go(func() error {
			season, err := t.seasonDetails(groupCtx, s.id, s.number)
			if err != nil {
				return err
			}
			seasons[idx] = *season
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(seasons, func(a, b int) bool {
		return seasons[a].SeasonNumber < seasons[b].SeasonNumber
	})

	specifics := &models.ShowSpecifics{Seasons: seasons}
	totalRuntime := 0
	for _, s := range seasons {
		if s.SeasonNumber != 0 {
			specifics.TotalSeasons++
			specifics.TotalEpisodes += len(s.Episodes)
		}
		for _, e := range s.Episodes {
			if e.Runtime != nil {
				totalRuntime += *e.Runtime
			}
		}
	}
	if totalRuntime > 0 {
		specifics.Runtime = &totalRuntime
	}
	details.ShowSpecifics = specifics
	return details, nil
}

func (t *Tvdb) seasonDetails(ctx context.Context, seasonID, number int) (*models.ShowSeason, error) {
	var resp struct {
		Data struct {
			Name     string `json:"name"`
			Overview string `json:"overview"`
			Image    string `json:"image"`
			Episodes []struct {
				Number   int    `json:"number"`
				Name     string `json:"name"`
				Overview string `json:"overview"`
				Image    string `json:"image"`
				Aired    string `json:"aired"`
				Runtime  int    `json:"runtime"`
			} `json:"episodes"`
		} `json:"data"`
	}
	err := t.get(ctx, fmt.Sprintf("/seasons/%d/extended", seasonID), nil, &resp)
	if err != nil {
		return nil, err
	}
	season := &models.ShowSeason{
		SeasonNumber: number,
		Name:         resp.Data.Name,
		Overview:     emptyToNil(resp.Data.Overview),
	}
	if resp.Data.Image != "" {
		season.PosterImages = []string{resp.Data.Image}
	}
	for _, e := range resp.Data.Episodes {
		ep := models.ShowEpisode{
			EpisodeNumber: e.Number,
			Name:          e.Name,
			Overview:      emptyToNil(e.Overview),
			PublishDate:   parseDate(e.Aired),
		}
		if e.Runtime > 0 {
			ep.Runtime = &e.Runtime
		}
		if e.Image != "" {
			ep.PosterImages = []string{e.Image}
		}
		season.Episodes = append(season.Episodes, ep)
	}
	return season, nil
}
