// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const (
	tmdbBaseURL  = "https://api.themoviedb.org/3"
	tmdbImageURL = "https://image.tmdb.org/t/p/original"
)

// Tmdb serves movies and shows. Identifiers are TMDB numeric ids; show
// details fan out one request per season to build the episode tree.
type Tmdb struct {
	client *Client
	locale string
	store  *cache.Cache
}

// NewTmdb builds the adapter with the configured read access token.
func NewTmdb(cfg *config.ProvidersConfig, store *cache.Cache) *Tmdb {
	return &Tmdb{
		client: NewClient("tmdb", cfg.Timeout, 8).
			WithHeader("Authorization", "Bearer "+cfg.TmdbAccessToken),
		locale: cfg.TmdbLocale,
		store:  store,
	}
}

func (t *Tmdb) Source() models.MediaSource { return models.MediaSourceTmdb }

func (t *Tmdb) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotMovie, models.MediaLotShow}
}

func tmdbImage(path string) *string {
	if path == "" {
		return nil
	}
	return ptr(tmdbImageURL + path)
}

type tmdbSearchResponse struct {
	Page         int `json:"page"`
	TotalResults int `json:"total_results"`
	Results      []struct {
		ID           int    `json:"id"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		PosterPath   string `json:"poster_path"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"results"`
}

// SearchMedia queries /search/movie or /search/tv. TMDB pages are already
// 20 items, matching PageSize.
func (t *Tmdb) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	kind := "movie"
	if lot == models.MediaLotShow {
		kind = "tv"
	}
	var resp tmdbSearchResponse
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/search/"+kind, url.Values{
		"query":         {query},
		"page":          {strconv.Itoa(page)},
		"language":      {t.locale},
		"include_adult": {strconv.FormatBool(displayNsfw)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.Name
		}
		date := r.ReleaseDate
		if date == "" {
			date = r.FirstAirDate
		}
		items = append(items, models.MetadataSearchItem{
			Identifier:  strconv.Itoa(r.ID),
			Title:       title,
			Image:       tmdbImage(r.PosterPath),
			PublishYear: yearOf(date),
		})
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.TotalResults,
			NextPage: nextPageFor(page, resp.TotalResults),
		},
		Items: items,
	}, nil
}

type tmdbTitleDetails struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	Runtime          int     `json:"runtime"`
	Status           string  `json:"status"`
	VoteAverage      float64 `json:"vote_average"`
	OriginalLanguage string  `json:"original_language"`
	Adult            bool    `json:"adult"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	BelongsToCollection *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"belongs_to_collection"`
	Seasons []struct {
		SeasonNumber int `json:"season_number"`
	} `json:"seasons"`
	ExternalIDs struct {
		ImdbID string `json:"imdb_id"`
		TvdbID int    `json:"tvdb_id"`
	} `json:"external_ids"`
	Credits struct {
		Cast []tmdbCredit `json:"cast"`
		Crew []tmdbCredit `json:"crew"`
	} `json:"credits"`
	Videos struct {
		Results []struct {
			Key  string `json:"key"`
			Site string `json:"site"`
		} `json:"results"`
	} `json:"videos"`
	WatchProviders struct {
		Results map[string]struct {
			Flatrate []tmdbWatchProvider `json:"flatrate"`
			Rent     []tmdbWatchProvider `json:"rent"`
			Buy      []tmdbWatchProvider `json:"buy"`
		} `json:"results"`
	} `json:"watch/providers"`
	Recommendations struct {
		Results []struct {
			ID         int    `json:"id"`
			Title      string `json:"title"`
			Name       string `json:"name"`
			PosterPath string `json:"poster_path"`
		} `json:"results"`
	} `json:"recommendations"`
}

type tmdbCredit struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Job       string `json:"job"`
}

type tmdbWatchProvider struct {
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path"`
}

type tmdbSeasonDetails struct {
	SeasonNumber int    `json:"season_number"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	AirDate      string `json:"air_date"`
	Episodes     []struct {
		EpisodeNumber int    `json:"episode_number"`
		Name          string `json:"name"`
		Overview      string `json:"overview"`
		StillPath     string `json:"still_path"`
		AirDate       string `json:"air_date"`
		Runtime       int    `json:"runtime"`
	} `json:"episodes"`
}

// MediaDetails fetches the full record. For shows every season is fetched
// to populate the episode tree finished-detection walks.
func (t *Tmdb) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	kind := "movie"
	if lot == models.MediaLotShow {
		kind = "tv"
	}
	var d tmdbTitleDetails
	err := t.client.GetJSON(ctx, fmt.Sprintf("%s/%s/%s", tmdbBaseURL, kind, identifier), url.Values{
		"language":           {t.locale},
		"append_to_response": {"external_ids,credits,videos,watch/providers,recommendations"},
	}, &d)
	if err != nil {
		return nil, err
	}

	title := d.Title
	if title == "" {
		title = d.Name
	}
	date := d.ReleaseDate
	if date == "" {
		date = d.FirstAirDate
	}

	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              lot,
		Source:           models.MediaSourceTmdb,
		Title:            title,
		Description:      emptyToNil(d.Overview),
		PublishDate:      parseDate(date),
		PublishYear:      yearOf(date),
		IsNsfw:           d.Adult,
		SourceURL:        ptr(fmt.Sprintf("https://www.themoviedb.org/%s/%s", kind, identifier)),
		OriginalLanguage: emptyToNil(d.OriginalLanguage),
		ProductionStatus: emptyToNil(d.Status),
	}
	if d.VoteAverage > 0 {
		// TMDB rates out of ten; normalize to the 0..100 scale.
		rating := decimal.NewFromFloat(d.VoteAverage).Mul(decimal.NewFromInt(10))
		details.ProviderRating = &rating
	}
	if img := tmdbImage(d.PosterPath); img != nil {
		details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
	}
	if img := tmdbImage(d.BackdropPath); img != nil {
		details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
	}
	for _, v := range d.Videos.Results {
		if v.Site == "YouTube" {
			details.Assets.RemoteVideos = append(details.Assets.RemoteVideos,
				"https://www.youtube.com/watch?v="+v.Key)
		}
	}
	for _, g := range d.Genres {
		details.Genres = append(details.Genres, g.Name)
	}
	if tmdbID, err := strconv.Atoi(identifier); err == nil {
		details.ExternalIdentifiers = &models.ExternalIdentifiers{Tmdb: &tmdbID}
	}
	if d.ExternalIDs.ImdbID != "" {
		if details.ExternalIdentifiers == nil {
			details.ExternalIdentifiers = &models.ExternalIdentifiers{}
		}
		details.ExternalIdentifiers.Imdb = &d.ExternalIDs.ImdbID
	}
	if d.ExternalIDs.TvdbID != 0 {
		if details.ExternalIdentifiers == nil {
			details.ExternalIdentifiers = &models.ExternalIdentifiers{}
		}
		details.ExternalIdentifiers.Tvdb = &d.ExternalIDs.TvdbID
	}

	for _, c := range d.Credits.Cast {
		details.People = append(details.People, models.PartialMetadataPerson{
			Source: models.MediaSourceTmdb, Identifier: strconv.Itoa(c.ID),
			Name: c.Name, Role: "Actor", Character: emptyToNil(c.Character),
		})
	}
	for _, c := range d.Credits.Crew {
		details.People = append(details.People, models.PartialMetadataPerson{
			Source: models.MediaSourceTmdb, Identifier: strconv.Itoa(c.ID),
			Name: c.Name, Role: c.Job,
		})
	}

	seen := map[string]bool{}
	for region, group := range d.WatchProviders.Results {
		for _, list := range [][]tmdbWatchProvider{group.Flatrate, group.Rent, group.Buy} {
			for _, p := range list {
				if seen[p.ProviderName] {
					continue
				}
				seen[p.ProviderName] = true
				wp := models.WatchProvider{Name: p.ProviderName, Languages: []string{region}}
				if img := tmdbImage(p.LogoPath); img != nil {
					wp.Image = *img
				}
				details.WatchProviders = append(details.WatchProviders, wp)
			}
		}
	}

	for _, rec := range d.Recommendations.Results {
		recTitle := rec.Title
		if recTitle == "" {
			recTitle = rec.Name
		}
		details.Suggestions = append(details.Suggestions, models.PartialMetadata{
			Lot: lot, Source: models.MediaSourceTmdb,
			Identifier: strconv.Itoa(rec.ID), Title: recTitle,
			Image: tmdbImage(rec.PosterPath),
		})
	}

	if lot == models.MediaLotMovie {
		if d.Runtime > 0 {
			details.MovieSpecifics = &models.MovieSpecifics{Runtime: &d.Runtime}
		}
		if d.BelongsToCollection != nil {
			details.Groups = append(details.Groups, models.PartialMetadataGroup{
				Lot: lot, Source: models.MediaSourceTmdb,
				Identifier: strconv.Itoa(d.BelongsToCollection.ID),
				Title:      d.BelongsToCollection.Name,
			})
		}
		return details, nil
	}

	show, err := t.showSeasons(ctx, identifier, d.Seasons)
	if err != nil {
		return nil, err
	}
	details.ShowSpecifics = show
	return details, nil
}

func (t *Tmdb) showSeasons(ctx context.Context, identifier string, seasons []struct {
	SeasonNumber int `json:"season_number"`
}) (*models.ShowSpecifics, error) {
	specifics := &models.ShowSpecifics{}
	totalRuntime := 0
	for _, s := range seasons {
		var season tmdbSeasonDetails
		err := t.client.GetJSON(ctx,
			fmt.Sprintf("%s/tv/%s/season/%d", tmdbBaseURL, identifier, s.SeasonNumber),
			url.Values{"language": {t.locale}}, &season)
		if err != nil {
			return nil, err
		}
		out := models.ShowSeason{
			SeasonNumber: season.SeasonNumber,
			Name:         season.Name,
			Overview:     emptyToNil(season.Overview),
			PublishDate:  parseDate(season.AirDate),
		}
		if img := tmdbImage(season.PosterPath); img != nil {
			out.PosterImages = []string{*img}
		}
		for _, e := range season.Episodes {
			ep := models.ShowEpisode{
				EpisodeNumber: e.EpisodeNumber,
				Name:          e.Name,
				Overview:      emptyToNil(e.Overview),
				PublishDate:   parseDate(e.AirDate),
			}
			if e.Runtime > 0 {
				ep.Runtime = ptr(e.Runtime)
				totalRuntime += e.Runtime
			}
			if img := tmdbImage(e.StillPath); img != nil {
				ep.PosterImages = []string{*img}
			}
			out.Episodes = append(out.Episodes, ep)
			// Specials (season 0) are carried but not counted.
			if season.SeasonNumber != 0 {
				specifics.TotalEpisodes++
			}
		}
		specifics.Seasons = append(specifics.Seasons, out)
		if season.SeasonNumber != 0 {
			specifics.TotalSeasons++
		}
	}
	if totalRuntime > 0 {
		specifics.Runtime = &totalRuntime
	}
	return specifics, nil
}

type tmdbPersonSearch struct {
	Page         int `json:"page"`
	TotalResults int `json:"total_results"`
	Results      []struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		ProfilePath string `json:"profile_path"`
		LogoPath    string `json:"logo_path"`
	} `json:"results"`
}

// SearchPeople searches people, or production companies when the
// specifics flag it.
func (t *Tmdb) SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	page = normalizePage(page)
	kind := "person"
	if specifics != nil && specifics.IsTmdbCompany {
		kind = "company"
	}
	var resp tmdbPersonSearch
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/search/"+kind, url.Values{
		"query": {query}, "page": {strconv.Itoa(page)}, "language": {t.locale},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.PeopleSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		img := r.ProfilePath
		if img == "" {
			img = r.LogoPath
		}
		items = append(items, models.PeopleSearchItem{
			Identifier: strconv.Itoa(r.ID), Name: r.Name, Image: tmdbImage(img),
		})
	}
	return &models.SearchResults[models.PeopleSearchItem]{
		Details: models.SearchDetails{Total: resp.TotalResults, NextPage: nextPageFor(page, resp.TotalResults)},
		Items:   items,
	}, nil
}

type tmdbPersonDetails struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Biography    string `json:"biography"`
	Description  string `json:"description"`
	Gender       int    `json:"gender"`
	Birthday     string `json:"birthday"`
	Deathday     string `json:"deathday"`
	PlaceOfBirth string `json:"place_of_birth"`
	Homepage     string `json:"homepage"`
	ProfilePath  string `json:"profile_path"`
	LogoPath     string `json:"logo_path"`
	HeadquartersCountry string `json:"origin_country"`
	CombinedCredits struct {
		Cast []tmdbPersonCredit `json:"cast"`
		Crew []tmdbPersonCredit `json:"crew"`
	} `json:"combined_credits"`
}

type tmdbPersonCredit struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Name       string `json:"name"`
	MediaType  string `json:"media_type"`
	Character  string `json:"character"`
	Job        string `json:"job"`
	PosterPath string `json:"poster_path"`
}

// PersonDetails fetches a person or company record with combined credits.
func (t *Tmdb) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	kind := "person"
	appended := url.Values{"language": {t.locale}, "append_to_response": {"combined_credits"}}
	if specifics != nil && specifics.IsTmdbCompany {
		kind = "company"
		appended = url.Values{"language": {t.locale}}
	}
	var d tmdbPersonDetails
	if err := t.client.GetJSON(ctx, fmt.Sprintf("%s/%s/%s", tmdbBaseURL, kind, identifier), appended, &d); err != nil {
		return nil, err
	}
	out := &models.PersonDetails{
		Identifier:      identifier,
		Source:          models.MediaSourceTmdb,
		SourceSpecifics: specifics,
		Name:            d.Name,
		Description:     emptyToNil(firstNonEmpty(d.Biography, d.Description)),
		BirthDate:       parseDate(d.Birthday),
		DeathDate:       parseDate(d.Deathday),
		Place:           emptyToNil(d.PlaceOfBirth),
		Website:         emptyToNil(d.Homepage),
		SourceURL:       ptr(fmt.Sprintf("https://www.themoviedb.org/%s/%s", kind, identifier)),
	}
	switch d.Gender {
	case 1:
		out.Gender = ptr("Female")
	case 2:
		out.Gender = ptr("Male")
	case 3:
		out.Gender = ptr("Non-Binary")
	}
	if img := tmdbImage(firstNonEmpty(d.ProfilePath, d.LogoPath)); img != nil {
		out.Assets.RemoteImages = []string{*img}
	}
	addCredit := func(c tmdbPersonCredit, role string) {
		lot := models.MediaLotMovie
		if c.MediaType == "tv" {
			lot = models.MediaLotShow
		}
		title := firstNonEmpty(c.Title, c.Name)
		out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
			Role:      role,
			Character: emptyToNil(c.Character),
			Metadata: models.PartialMetadata{
				Lot: lot, Source: models.MediaSourceTmdb,
				Identifier: strconv.Itoa(c.ID), Title: title,
				Image: tmdbImage(c.PosterPath),
			},
		})
	}
	for _, c := range d.CombinedCredits.Cast {
		addCredit(c, "Actor")
	}
	for _, c := range d.CombinedCredits.Crew {
		role := c.Job
		if role == "" {
			role = "Crew"
		}
		addCredit(c, role)
	}
	return out, nil
}

type tmdbCollectionDetails struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
	Parts        []struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		PosterPath  string `json:"poster_path"`
		ReleaseDate string `json:"release_date"`
	} `json:"parts"`
}

// SearchGroups searches movie collections.
func (t *Tmdb) SearchGroups(ctx context.Context, query string, lot models.MediaLot, page int) (*models.SearchResults[models.MetadataGroupSearchItem], error) {
	page = normalizePage(page)
	var resp tmdbPersonSearch
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/search/collection", url.Values{
		"query": {query}, "page": {strconv.Itoa(page)}, "language": {t.locale},
	}, &resp)
	if err != nil {
		return nil, err
	}
	items := make([]models.MetadataGroupSearchItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		items = append(items, models.MetadataGroupSearchItem{
			Identifier: strconv.Itoa(r.ID), Name: r.Name, Image: tmdbImage(r.ProfilePath),
		})
	}
	return &models.SearchResults[models.MetadataGroupSearchItem]{
		Details: models.SearchDetails{Total: resp.TotalResults, NextPage: nextPageFor(page, resp.TotalResults)},
		Items:   items,
	}, nil
}

// GroupDetails fetches a movie collection and its parts in release order.
func (t *Tmdb) GroupDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataGroupDetails, error) {
	var d tmdbCollectionDetails
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/collection/"+identifier,
		url.Values{"language": {t.locale}}, &d)
	if err != nil {
		return nil, err
	}
	group := models.MetadataGroup{
		Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
		Identifier: identifier, Title: d.Name,
		Description: emptyToNil(d.Overview),
		Parts:       len(d.Parts),
	}
	if img := tmdbImage(d.PosterPath); img != nil {
		group.Assets.RemoteImages = append(group.Assets.RemoteImages, *img)
	}
	parts := make([]models.PartialMetadata, 0, len(d.Parts))
	for _, p := range d.Parts {
		parts = append(parts, models.PartialMetadata{
			Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
			Identifier: strconv.Itoa(p.ID), Title: p.Title,
			Image: tmdbImage(p.PosterPath),
		})
	}
	return &models.MetadataGroupDetails{Group: group, Parts: parts}, nil
}

type tmdbGenreList struct {
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// ListGenres merges the movie and tv genre vocabularies, cached
// process-wide.
func (t *Tmdb) ListGenres(ctx context.Context) ([]string, error) {
	key := cache.ProviderGenresKey(models.MediaSourceTmdb)
	if cached, ok := t.store.GetValue(key); ok {
		return cached.([]string), nil
	}
	var names []string
	seen := map[string]bool{}
	for _, kind := range []string{"movie", "tv"} {
		var resp tmdbGenreList
		err := t.client.GetJSON(ctx, tmdbBaseURL+"/genre/"+kind+"/list",
			url.Values{"language": {t.locale}}, &resp)
		if err != nil {
			return nil, err
		}
		for _, g := range resp.Genres {
			if !seen[g.Name] {
				seen[g.Name] = true
				names = append(names, g.Name)
			}
		}
	}
	t.store.SetKeyWithTTL(key, names, 24*time.Hour)
	return names, nil
}

// TrendingMedia returns the daily trending feed.
func (t *Tmdb) TrendingMedia(ctx context.Context) ([]models.PartialMetadata, error) {
	var resp tmdbSearchResponse
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/trending/all/day",
		url.Values{"language": {t.locale}}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]models.PartialMetadata, 0, len(resp.Results))
	for _, r := range resp.Results {
		lot := models.MediaLotMovie
		title := r.Title
		if title == "" {
			lot = models.MediaLotShow
			title = r.Name
		}
		out = append(out, models.PartialMetadata{
			Lot: lot, Source: models.MediaSourceTmdb,
			Identifier: strconv.Itoa(r.ID), Title: title,
			Image: tmdbImage(r.PosterPath),
		})
	}
	return out, nil
}

// FindByImdbID resolves an IMDB "tt" identifier to a TMDB id and the lot
// it belongs to. Used by the IMDB CSV importer.
func (t *Tmdb) FindByImdbID(ctx context.Context, imdbID string) (string, models.MediaLot, error) {
	var resp struct {
		MovieResults []struct {
			ID int `json:"id"`
		} `json:"movie_results"`
		TvResults []struct {
			ID int `json:"id"`
		} `json:"tv_results"`
	}
	err := t.client.GetJSON(ctx, tmdbBaseURL+"/find/"+imdbID,
		url.Values{"external_source": {"imdb_id"}, "language": {t.locale}}, &resp)
	if err != nil {
		return "", "", err
	}
	switch {
	case len(resp.MovieResults) > 0:
		return strconv.Itoa(resp.MovieResults[0].ID), models.MediaLotMovie, nil
	case len(resp.TvResults) > 0:
		return strconv.Itoa(resp.TvResults[0].ID), models.MediaLotShow, nil
	}
	return "", "", ErrNotFoundByProvider
}

// Translate fetches the title and overview of an entity in the given
// language, bypassing the adapter's configured locale.
func (t *Tmdb) Translate(ctx context.Context, identifier string, lot models.MediaLot, locale string) (*models.TranslationResult, error) {
	kind := "movie"
	if lot == models.MediaLotShow {
		kind = "tv"
	}
	var resp struct {
		Title    string `json:"title"`
		Name     string `json:"name"`
		Overview string `json:"overview"`
	}
	err := t.client.GetJSON(ctx, fmt.Sprintf("%s/%s/%s", tmdbBaseURL, kind, identifier),
		url.Values{"language": {locale}}, &resp)
	if err != nil {
		return nil, err
	}
	return &models.TranslationResult{
		Title:       emptyToNil(firstNonEmpty(resp.Title, resp.Name)),
		Description: emptyToNil(resp.Overview),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
