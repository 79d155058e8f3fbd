// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const (
	igdbBaseURL       = "https://api.igdb.com/v4"
	twitchTokenURL    = "https://id.twitch.tv/oauth2/token"
	igdbTokenStoreKey = "igdb_twitch_token"

	igdbGameFields = `fields name, summary, cover.url, first_release_date,
		aggregated_rating, genres.name, platforms.name, videos.video_id,
		artworks.url, involved_companies.company.id,
		involved_companies.company.name, involved_companies.developer,
		involved_companies.publisher, collections.id, collections.name,
		similar_games.id, similar_games.name, similar_games.cover.url, url;`
)

// Igdb serves video games through the IGDB v4 API. Authentication is a
// Twitch client-credentials token, cached in memory and persisted through
// the TokenStore so restarts do not mint a fresh one.
type Igdb struct {
	client       *Client
	clientID     string
	clientSecret string
	store        *cache.Cache
	tokens       TokenStore

	mu sync.Mutex
}

type igdbToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewIgdb builds the adapter with the configured Twitch credentials.
func NewIgdb(cfg *config.ProvidersConfig, store *cache.Cache, tokens TokenStore) *Igdb {
	return &Igdb{
		client:       NewClient("igdb", cfg.Timeout, 4).WithHeader("Client-ID", cfg.TwitchClientID),
		clientID:     cfg.TwitchClientID,
		clientSecret: cfg.TwitchClientSecret,
		store:        store,
		tokens:       tokens,
	}
}

func (i *Igdb) Source() models.MediaSource { return models.MediaSourceIgdb }

func (i *Igdb) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotVideoGame}
}

// token returns a valid bearer token, minting one from Twitch only when
// neither the in-memory cache nor the persisted store has a live one.
func (i *Igdb) token(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if cached, ok := i.store.GetValue(cache.IgdbTokenKey()); ok {
		return cached.(string), nil
	}
	if raw, ok := i.tokens.GetToken(igdbTokenStoreKey); ok {
		var t igdbToken
		if err := json.Unmarshal(raw, &t); err == nil && time.Until(t.ExpiresAt) > time.Minute {
			i.store.SetKeyWithTTL(cache.IgdbTokenKey(), t.AccessToken, time.Until(t.ExpiresAt)-time.Minute)
			return t.AccessToken, nil
		}
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := i.client.PostForm(ctx, twitchTokenURL, url.Values{
		"client_id":     {i.clientID},
		"client_secret": {i.clientSecret},
		"grant_type":    {"client_credentials"},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("providers: mint igdb token: %w", err)
	}
	ttl := time.Duration(resp.ExpiresIn) * time.Second
	persisted, _ := json.Marshal(igdbToken{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(ttl),
	})
	i.tokens.SetToken(igdbTokenStoreKey, persisted)
	i.store.SetKeyWithTTL(cache.IgdbTokenKey(), resp.AccessToken, ttl-time.Minute)
	logging.Debug().Int("expires_in", resp.ExpiresIn).Msg("Minted IGDB access token")
	return resp.AccessToken, nil
}

// query runs an apicalypse body against one IGDB endpoint.
func (i *Igdb) query(ctx context.Context, endpoint, body string, out any) error {
	token, err := i.token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		igdbBaseURL+"/"+endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")
	return i.client.decode(req, out)
}

type igdbImage struct {
	URL string `json:"url"`
}

// igdbImageURL upgrades the protocol-relative thumb URL to the original
// size.
func igdbImageURL(img igdbImage) *string {
	if img.URL == "" {
		return nil
	}
	u := strings.Replace(img.URL, "t_thumb", "t_original", 1)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return &u
}

type igdbGame struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Summary           string    `json:"summary"`
	Cover             igdbImage `json:"cover"`
	FirstReleaseDate  int64     `json:"first_release_date"`
	AggregatedRating  float64   `json:"aggregated_rating"`
	URL               string    `json:"url"`
	Genres            []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Platforms []struct {
		Name string `json:"name"`
	} `json:"platforms"`
	Videos []struct {
		VideoID string `json:"video_id"`
	} `json:"videos"`
	Artworks          []igdbImage `json:"artworks"`
	InvolvedCompanies []struct {
		Company struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"company"`
		Developer bool `json:"developer"`
		Publisher bool `json:"publisher"`
	} `json:"involved_companies"`
	Collections []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"collections"`
	SimilarGames []struct {
		ID    int       `json:"id"`
		Name  string    `json:"name"`
		Cover igdbImage `json:"cover"`
	} `json:"similar_games"`
}

// SearchMedia searches games. IGDB has no total count on search, so the
// next page pointer is derived from whether a full page came back.
func (i *Igdb) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	body := fmt.Sprintf(
		`search %q; fields name, cover.url, first_release_date; limit %d; offset %d;`,
		query, PageSize, pageOffset(page))
	var games []igdbGame
	if err := i.query(ctx, "games", body, &games); err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(games))
	for _, g := range games {
		item := models.MetadataSearchItem{
			Identifier: strconv.Itoa(g.ID),
			Title:      g.Name,
			Image:      igdbImageURL(g.Cover),
		}
		if g.FirstReleaseDate > 0 {
			item.PublishYear = ptr(time.Unix(g.FirstReleaseDate, 0).UTC().Year())
		}
		items = append(items, item)
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if len(items) == PageSize {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataSearchItem]{Details: details, Items: items}, nil
}

// MediaDetails fetches one game with companies, collections and similar
// games attached.
func (i *Igdb) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	body := fmt.Sprintf("%s where id = %s;", igdbGameFields, identifier)
	var games []igdbGame
	if err := i.query(ctx, "games", body, &games); err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, ErrNotFoundByProvider
	}
	g := games[0]

	details := &models.MetadataDetails{
		Identifier:  identifier,
		Lot:         models.MediaLotVideoGame,
		Source:      models.MediaSourceIgdb,
		Title:       g.Name,
		Description: emptyToNil(g.Summary),
		SourceURL:   emptyToNil(g.URL),
	}
	if g.FirstReleaseDate > 0 {
		t := time.Unix(g.FirstReleaseDate, 0).UTC()
		details.PublishDate = &t
		details.PublishYear = ptr(t.Year())
	}
	if g.AggregatedRating > 0 {
		rating := decimal.NewFromFloat(g.AggregatedRating)
		details.ProviderRating = &rating
	}
	if img := igdbImageURL(g.Cover); img != nil {
		details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
	}
	for _, a := range g.Artworks {
		if img := igdbImageURL(a); img != nil {
			details.Assets.RemoteImages = append(details.Assets.RemoteImages, *img)
		}
	}
	for _, v := range g.Videos {
		details.Assets.RemoteVideos = append(details.Assets.RemoteVideos,
			"https://www.youtube.com/watch?v="+v.VideoID)
	}
	for _, gen := range g.Genres {
		details.Genres = append(details.Genres, gen.Name)
	}
	specifics := &models.VideoGameSpecifics{}
	for _, p := range g.Platforms {
		specifics.Platforms = append(specifics.Platforms, p.Name)
	}
	details.VideoGameSpecifics = specifics
	for _, ic := range g.InvolvedCompanies {
		role := "Company"
		switch {
		case ic.Developer:
			role = "Developer"
		case ic.Publisher:
			role = "Publisher"
		}
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:     models.MediaSourceIgdb,
			Identifier: strconv.Itoa(ic.Company.ID),
			Name:       ic.Company.Name,
			Role:       role,
		})
	}
	for _, c := range g.Collections {
		details.Groups = append(details.Groups, models.PartialMetadataGroup{
			Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
			Identifier: strconv.Itoa(c.ID), Title: c.Name,
		})
	}
	for _, s := range g.SimilarGames {
		details.Suggestions = append(details.Suggestions, models.PartialMetadata{
			Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
			Identifier: strconv.Itoa(s.ID), Title: s.Name,
			Image: igdbImageURL(s.Cover),
		})
	}
	return details, nil
}

type igdbCompany struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Country     int       `json:"country"`
	Logo        igdbImage `json:"logo"`
	URL         string    `json:"url"`
	StartDate   int64     `json:"start_date"`
	Developed   []struct {
		ID    int       `json:"id"`
		Name  string    `json:"name"`
		Cover igdbImage `json:"cover"`
	} `json:"developed"`
	Published []struct {
		ID    int       `json:"id"`
		Name  string    `json:"name"`
		Cover igdbImage `json:"cover"`
	} `json:"published"`
}

// SearchPeople searches companies.
func (i *Igdb) SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	page = normalizePage(page)
	body := fmt.Sprintf(
		`search %q; fields name, logo.url; limit %d; offset %d;`,
		query, PageSize, pageOffset(page))
	var companies []igdbCompany
	if err := i.query(ctx, "companies", body, &companies); err != nil {
		return nil, err
	}
	items := make([]models.PeopleSearchItem, 0, len(companies))
	for _, c := range companies {
		items = append(items, models.PeopleSearchItem{
			Identifier: strconv.Itoa(c.ID), Name: c.Name, Image: igdbImageURL(c.Logo),
		})
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if len(items) == PageSize {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.PeopleSearchItem]{Details: details, Items: items}, nil
}

// PersonDetails fetches one company and the games it developed or
// published.
func (i *Igdb) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	body := fmt.Sprintf(
		`fields name, description, country, logo.url, url, start_date,
			developed.id, developed.name, developed.cover.url,
			published.id, published.name, published.cover.url;
		where id = %s;`, identifier)
	var companies []igdbCompany
	if err := i.query(ctx, "companies", body, &companies); err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, ErrNotFoundByProvider
	}
	c := companies[0]
	out := &models.PersonDetails{
		Identifier:      identifier,
		Source:          models.MediaSourceIgdb,
		SourceSpecifics: specifics,
		Name:            c.Name,
		Description:     emptyToNil(c.Description),
		SourceURL:       emptyToNil(c.URL),
	}
	if c.StartDate > 0 {
		t := time.Unix(c.StartDate, 0).UTC()
		out.BirthDate = &t
	}
	if img := igdbImageURL(c.Logo); img != nil {
		out.Assets.RemoteImages = []string{*img}
	}
	for _, d := range c.Developed {
		out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
			Role: "Developer",
			Metadata: models.PartialMetadata{
				Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
				Identifier: strconv.Itoa(d.ID), Title: d.Name, Image: igdbImageURL(d.Cover),
			},
		})
	}
	for _, p := range c.Published {
		out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
			Role: "Publisher",
			Metadata: models.PartialMetadata{
				Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
				Identifier: strconv.Itoa(p.ID), Title: p.Name, Image: igdbImageURL(p.Cover),
			},
		})
	}
	return out, nil
}

type igdbCollection struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Games []struct {
		ID    int       `json:"id"`
		Name  string    `json:"name"`
		Cover igdbImage `json:"cover"`
	} `json:"games"`
}

// SearchGroups searches game collections (series).
func (i *Igdb) SearchGroups(ctx context.Context, query string, lot models.MediaLot, page int) (*models.SearchResults[models.MetadataGroupSearchItem], error) {
	page = normalizePage(page)
	body := fmt.Sprintf(
		`search %q; fields name, games; limit %d; offset %d;`,
		query, PageSize, pageOffset(page))
	var collections []igdbCollection
	if err := i.query(ctx, "collections", body, &collections); err != nil {
		return nil, err
	}
	items := make([]models.MetadataGroupSearchItem, 0, len(collections))
	for _, c := range collections {
		items = append(items, models.MetadataGroupSearchItem{
			Identifier: strconv.Itoa(c.ID), Name: c.Name, Parts: len(c.Games),
		})
	}
	details := models.SearchDetails{Total: pageOffset(page) + len(items)}
	if len(items) == PageSize {
		details.NextPage = ptr(page + 1)
	}
	return &models.SearchResults[models.MetadataGroupSearchItem]{Details: details, Items: items}, nil
}

// GroupDetails fetches one collection and its member games.
func (i *Igdb) GroupDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataGroupDetails, error) {
	body := fmt.Sprintf(
		`fields name, games.id, games.name, games.cover.url; where id = %s;`,
		identifier)
	var collections []igdbCollection
	if err := i.query(ctx, "collections", body, &collections); err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, ErrNotFoundByProvider
	}
	c := collections[0]
	group := models.MetadataGroup{
		Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
		Identifier: identifier, Title: c.Name, Parts: len(c.Games),
	}
	parts := make([]models.PartialMetadata, 0, len(c.Games))
	for _, g := range c.Games {
		parts = append(parts, models.PartialMetadata{
			Lot: models.MediaLotVideoGame, Source: models.MediaSourceIgdb,
			Identifier: strconv.Itoa(g.ID), Title: g.Name, Image: igdbImageURL(g.Cover),
		})
	}
	return &models.MetadataGroupDetails{Group: group, Parts: parts}, nil
}
