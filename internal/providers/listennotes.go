// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const listennotesBaseURL = "https://listen-api.listennotes.com/api/v2"

// Listennotes serves podcasts. The episodes endpoint returns windows of
// ten, paged by the publish date cursor, so details loop until the feed
// is exhausted.
type Listennotes struct {
	client *Client
	genres map[int]string
}

// NewListennotes builds the adapter with the configured API token.
func NewListennotes(cfg *config.ProvidersConfig) *Listennotes {
	return &Listennotes{
		client: NewClient("listennotes", cfg.Timeout, 2).
			WithHeader("X-ListenAPI-Key", cfg.ListennotesToken),
	}
}

func (l *Listennotes) Source() models.MediaSource { return models.MediaSourceListennotes }

func (l *Listennotes) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotPodcast}
}

// genreNames lazily loads the id to name vocabulary.
func (l *Listennotes) genreNames(ctx context.Context) map[int]string {
	if l.genres != nil {
		return l.genres
	}
	var resp struct {
		Genres []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"genres"`
	}
	if err := l.client.GetJSON(ctx, listennotesBaseURL+"/genres", nil, &resp); err != nil {
		return map[int]string{}
	}
	l.genres = make(map[int]string, len(resp.Genres))
	for _, g := range resp.Genres {
		l.genres[g.ID] = g.Name
	}
	return l.genres
}

// SearchMedia searches podcasts. Listennotes pages by offset with ten
// results per call.
func (l *Listennotes) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp struct {
		Total      int `json:"total"`
		NextOffset int `json:"next_offset"`
		Results    []struct {
			ID            string `json:"id"`
			TitleOriginal string `json:"title_original"`
			Image         string `json:"image"`
			EarliestPubDateMs int64 `json:"earliest_pub_date_ms"`
		} `json:"results"`
	}
	err := l.client.GetJSON(ctx, listennotesBaseURL+"/search", url.Values{
		"q":        {query},
		"type":     {"podcast"},
		"offset":   {strconv.Itoa((page - 1) * 10)},
		"safe_mode": {map[bool]string{true: "0", false: "1"}[displayNsfw]},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := models.MetadataSearchItem{
			Identifier: r.ID,
			Title:      r.TitleOriginal,
			Image:      emptyToNil(r.Image),
		}
		if r.EarliestPubDateMs > 0 {
			item.PublishYear = ptr(time.UnixMilli(r.EarliestPubDateMs).UTC().Year())
		}
		items = append(items, item)
	}
	details := models.SearchDetails{Total: resp.Total}
	if resp.NextOffset > 0 && resp.NextOffset < resp.Total {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataSearchItem]{Details: details, Items: items}, nil
}

type listennotesPodcast struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	Publisher     string `json:"publisher"`
	ExplicitContent bool `json:"explicit_content"`
	ListennotesURL string `json:"listennotes_url"`
	TotalEpisodes int    `json:"total_episodes"`
	EarliestPubDateMs int64 `json:"earliest_pub_date_ms"`
	NextEpisodePubDate *int64 `json:"next_episode_pub_date"`
	GenreIDs      []int  `json:"genre_ids"`
	Episodes      []struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		Thumbnail     string `json:"thumbnail"`
		PubDateMs     int64  `json:"pub_date_ms"`
		AudioLengthSec int   `json:"audio_length_sec"`
	} `json:"episodes"`
}

// MediaDetails fetches the show and walks the episode windows oldest
// first, numbering by position.
func (l *Listennotes) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var p listennotesPodcast
	err := l.client.GetJSON(ctx, listennotesBaseURL+"/podcasts/"+identifier,
		url.Values{"sort": {"oldest_first"}}, &p)
	if err != nil {
		return nil, err
	}

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotPodcast,
		Source:      models.MediaSourceListennotes,
		Title:       p.Title,
		Description: emptyToNil(p.Description),
		IsNsfw:      p.ExplicitContent,
		SourceURL:   emptyToNil(p.ListennotesURL),
	}
	if p.EarliestPubDateMs > 0 {
		t := time.UnixMilli(p.EarliestPubDateMs).UTC()
		details.PublishDate = &t
		details.PublishYear = ptr(t.Year())
	}
	if p.Image != "" {
		details.Assets.RemoteImages = []string{p.Image}
	}
	if p.Publisher != "" {
		details.Creators = []models.MetadataFreeCreator{{Name: p.Publisher, Role: "Publisher"}}
	}
	names := l.genreNames(ctx)
	for _, id := range p.GenreIDs {
		if name, ok := names[id]; ok {
			details.Genres = append(details.Genres, name)
		}
	}

	specifics := &models.PodcastSpecifics{TotalEpisodes: p.TotalEpisodes}
	appendEpisodes := func(src listennotesPodcast) {
		for _, e := range src.Episodes {
			ep := models.PodcastEpisode{
				Number:    len(specifics.Episodes) + 1,
				ID:        e.ID,
				Title:     e.Title,
				Overview:  emptyToNil(e.Description),
				Thumbnail: emptyToNil(e.Thumbnail),
			}
			if e.PubDateMs > 0 {
				t := time.UnixMilli(e.PubDateMs).UTC()
				ep.PublishDate = &t
			}
			if e.AudioLengthSec > 0 {
				ep.Runtime = ptr(e.AudioLengthSec / 60)
			}
			specifics.Episodes = append(specifics.Episodes, ep)
		}
	}
	appendEpisodes(p)
	cursor := p.NextEpisodePubDate
	for cursor != nil && len(specifics.Episodes) < p.TotalEpisodes {
		var window listennotesPodcast
		err := l.client.GetJSON(ctx, listennotesBaseURL+"/podcasts/"+identifier, url.Values{
			"sort":                  {"oldest_first"},
			"next_episode_pub_date": {strconv.FormatInt(*cursor, 10)},
		}, &window)
		if err != nil {
			return nil, err
		}
		if len(window.Episodes) == 0 {
			break
		}
		appendEpisodes(window)
		cursor = window.NextEpisodePubDate
	}
	details.PodcastSpecifics = specifics
	return details, nil
}
