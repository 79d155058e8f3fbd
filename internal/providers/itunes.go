// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const itunesBaseURL = "https://itunes.apple.com"

// Itunes serves podcasts through the iTunes lookup API. Details need two
// calls: one for the show, one for its episodes. iTunes episodes carry no
// numbers, so they are synthesized by publish order, oldest first.
type Itunes struct {
	client *Client
}

// NewItunes builds the keyless adapter.
func NewItunes(cfg *config.ProvidersConfig) *Itunes {
	return &Itunes{client: NewClient("itunes", cfg.Timeout, 2)}
}

func (i *Itunes) Source() models.MediaSource { return models.MediaSourceItunes }

func (i *Itunes) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotPodcast}
}

type itunesResult struct {
	CollectionID     int    `json:"collectionId"`
	TrackID          int    `json:"trackId"`
	Kind             string `json:"kind"`
	CollectionName   string `json:"collectionName"`
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	ArtworkURL600    string `json:"artworkUrl600"`
	ArtworkURL100    string `json:"artworkUrl100"`
	ReleaseDate      string `json:"releaseDate"`
	CollectionViewURL string `json:"collectionViewUrl"`
	Description      string `json:"description"`
	Genres           []string `json:"genres"`
	TrackTimeMillis  *int   `json:"trackTimeMillis"`
	ContentAdvisoryRating string `json:"contentAdvisoryRating"`
	EpisodeGUID      string `json:"episodeGuid"`
	EpisodeURL       string `json:"episodeUrl"`
}

func itunesImage(r itunesResult) *string {
	return emptyToNil(firstNonEmpty(r.ArtworkURL600, r.ArtworkURL100))
}

type itunesResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []itunesResult `json:"results"`
}

// SearchMedia searches podcasts. iTunes has no page parameter; paging is
// simulated with limit and a client-side slice.
func (i *Itunes) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	var resp itunesResponse
	err := i.client.GetJSON(ctx, itunesBaseURL+"/search", url.Values{
		"term":   {query},
		"media":  {"podcast"},
		"entity": {"podcast"},
		"limit":  {strconv.Itoa(PageSize * page)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	results := resp.Results
	if !displayNsfw {
		filtered := results[:0]
		for _, r := range results {
			if r.ContentAdvisoryRating != "Explicit" {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	start := pageOffset(page)
	if start > len(results) {
		start = len(results)
	}
	pageResults := results[start:]
	items := make([]models.MetadataSearchItem, 0, len(pageResults))
	for _, r := range pageResults {
		items = append(items, models.MetadataSearchItem{
			Identifier:  strconv.Itoa(r.CollectionID),
			Title:       r.CollectionName,
			Image:       itunesImage(r),
			PublishYear: yearOf(r.ReleaseDate),
		})
	}
	details := models.SearchDetails{Total: len(results)}
	if len(resp.Results) == PageSize*page {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataSearchItem]{Details: details, Items: items}, nil
}

// MediaDetails looks up the show and then its episodes, merging both.
func (i *Itunes) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	var show itunesResponse
	err := i.client.GetJSON(ctx, itunesBaseURL+"/lookup", url.Values{
		"id": {identifier}, "media": {"podcast"}, "entity": {"podcast"},
	}, &show)
	if err != nil {
		return nil, err
	}
	if show.ResultCount == 0 {
		return nil, ErrNotFoundByProvider
	}
	s := show.Results[0]

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotPodcast,
		Source:      models.MediaSourceItunes,
		Title:       s.CollectionName,
		PublishDate: parseDate(s.ReleaseDate),
		PublishYear: yearOf(s.ReleaseDate),
		IsNsfw:      s.ContentAdvisoryRating == "Explicit",
		SourceURL:   emptyToNil(s.CollectionViewURL),
	}
	if img := itunesImage(s); img != nil {
		details.Assets.RemoteImages = []string{*img}
	}
	for _, g := range s.Genres {
		if g != "Podcasts" {
			details.Genres = append(details.Genres, g)
		}
	}
	if s.ArtistName != "" {
		details.Creators = []models.MetadataFreeCreator{{Name: s.ArtistName, Role: "Publisher"}}
	}

	var episodes itunesResponse
	err = i.client.GetJSON(ctx, itunesBaseURL+"/lookup", url.Values{
		"id": {identifier}, "media": {"podcast"}, "entity": {"podcastEpisode"},
		"limit": {"200"},
	}, &episodes)
	if err != nil {
		return nil, err
	}

	specifics := &models.PodcastSpecifics{}
	var descriptions []string
	for _, r := range episodes.Results {
		if r.Kind != "podcast-episode" {
			if r.Description != "" {
				descriptions = append(descriptions, r.Description)
			}
			continue
		}
		ep := models.PodcastEpisode{
			ID:          firstNonEmpty(r.EpisodeGUID, strconv.Itoa(r.TrackID)),
			Title:       r.TrackName,
			Overview:    emptyToNil(r.Description),
			Thumbnail:   itunesImage(r),
			PublishDate: parseDate(r.ReleaseDate),
		}
		if r.TrackTimeMillis != nil {
			ep.Runtime = ptr(*r.TrackTimeMillis / 60000)
		}
		specifics.Episodes = append(specifics.Episodes, ep)
	}
	// Oldest first, then number by position.
	sort.SliceStable(specifics.Episodes, func(a, b int) bool {
		pa, pb := specifics.Episodes[a].PublishDate, specifics.Episodes[b].PublishDate
		if pa == nil || pb == nil {
			return pb != nil
		}
		return pa.Before(*pb)
	})
	for idx := range specifics.Episodes {
		specifics.Episodes[idx].Number = idx + 1
	}
	specifics.TotalEpisodes = len(specifics.Episodes)
	details.PodcastSpecifics = specifics

	if len(descriptions) > 0 {
		details.Description = ptr(strings.Join(descriptions, "\n"))
	}
	return details, nil
}
