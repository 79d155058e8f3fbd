// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const anilistGraphqlURL = "https://graphql.anilist.co"

// Anilist serves anime and manga over the public GraphQL endpoint. No
// credentials are needed. Studios are modelled as people with the
// is_anilist_studio specifics flag, because studio and staff identifiers
// live in separate namespaces.
type Anilist struct {
	client *Client
}

// NewAnilist builds the keyless adapter.
func NewAnilist(cfg *config.ProvidersConfig) *Anilist {
	return &Anilist{client: NewClient("anilist", cfg.Timeout, 2)}
}

func (a *Anilist) Source() models.MediaSource { return models.MediaSourceAnilist }

func (a *Anilist) Lots() []models.MediaLot {
	return []models.MediaLot{models.MediaLotAnime, models.MediaLotManga}
}

type anilistRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (a *Anilist) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err := a.client.PostJSON(ctx, anilistGraphqlURL, anilistRequest{Query: query, Variables: variables}, &envelope)
	if err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		if envelope.Errors[0].Message == "Not Found." {
			return ErrNotFoundByProvider
		}
		return fmt.Errorf("providers: anilist: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

type anilistTitle struct {
	English string `json:"english"`
	Romaji  string `json:"romaji"`
	Native  string `json:"native"`
}

func (t anilistTitle) preferred() string {
	return firstNonEmpty(t.English, t.Romaji, t.Native)
}

type anilistDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

func (d anilistDate) time() *time.Time {
	if d.Year == nil {
		return nil
	}
	month, day := 1, 1
	if d.Month != nil {
		month = *d.Month
	}
	if d.Day != nil {
		day = *d.Day
	}
	t := time.Date(*d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

type anilistMedia struct {
	ID         int          `json:"id"`
	Title      anilistTitle `json:"title"`
	Description string      `json:"description"`
	CoverImage struct {
		ExtraLarge string `json:"extraLarge"`
	} `json:"coverImage"`
	BannerImage  string      `json:"bannerImage"`
	StartDate    anilistDate `json:"startDate"`
	Status       string      `json:"status"`
	AverageScore *int        `json:"averageScore"`
	IsAdult      bool        `json:"isAdult"`
	SiteURL      string      `json:"siteUrl"`
	Genres       []string    `json:"genres"`
	Episodes     *int        `json:"episodes"`
	Chapters     *int        `json:"chapters"`
	Volumes      *int        `json:"volumes"`
	Trailer      *struct {
		ID   string `json:"id"`
		Site string `json:"site"`
	} `json:"trailer"`
	Staff struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				ID   int `json:"id"`
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"staff"`
	Studios struct {
		Nodes []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	Recommendations struct {
		Nodes []struct {
			MediaRecommendation *struct {
				ID         int          `json:"id"`
				Title      anilistTitle `json:"title"`
				Type       string       `json:"type"`
				CoverImage struct {
					ExtraLarge string `json:"extraLarge"`
				} `json:"coverImage"`
			} `json:"mediaRecommendation"`
		} `json:"nodes"`
	} `json:"recommendations"`
}

const anilistSearchQuery = `
query ($search: String!, $type: MediaType!, $page: Int!, $perPage: Int!, $isAdult: Boolean) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total }
    media(search: $search, type: $type, isAdult: $isAdult, sort: SEARCH_MATCH) {
      id
      title { english romaji native }
      coverImage { extraLarge }
      startDate { year }
    }
  }
}`

func anilistMediaType(lot models.MediaLot) string {
	if lot == models.MediaLotManga {
		return "MANGA"
	}
	return "ANIME"
}

// SearchMedia searches anime or manga. NSFW titles are excluded unless
// the caller opts in.
func (a *Anilist) SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error) {
	page = normalizePage(page)
	variables := map[string]any{
		"search": query, "type": anilistMediaType(lot),
		"page": page, "perPage": PageSize,
	}
	if !displayNsfw {
		variables["isAdult"] = false
	}
	var resp struct {
		Page struct {
			PageInfo struct {
				Total int `json:"total"`
			} `json:"pageInfo"`
			Media []anilistMedia `json:"media"`
		} `json:"Page"`
	}
	if err := a.graphql(ctx, anilistSearchQuery, variables, &resp); err != nil {
		return nil, err
	}
	items := make([]models.MetadataSearchItem, 0, len(resp.Page.Media))
	for _, m := range resp.Page.Media {
		items = append(items, models.MetadataSearchItem{
			Identifier:  strconv.Itoa(m.ID),
			Title:       m.Title.preferred(),
			Image:       emptyToNil(m.CoverImage.ExtraLarge),
			PublishYear: m.StartDate.Year,
		})
	}
	return &models.SearchResults[models.MetadataSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.Page.PageInfo.Total,
			NextPage: nextPageFor(page, resp.Page.PageInfo.Total),
		},
		Items: items,
	}, nil
}

const anilistDetailsQuery = `
query ($id: Int!, $type: MediaType!) {
  Media(id: $id, type: $type) {
    id
    title { english romaji native }
    description(asHtml: false)
    coverImage { extraLarge }
    bannerImage
    startDate { year month day }
    status
    averageScore
    isAdult
    siteUrl
    genres
    episodes
    chapters
    volumes
    trailer { id site }
    staff { edges { role node { id name { full } } } }
    studios { nodes { id name } }
    recommendations {
      nodes {
        mediaRecommendation {
          id
          title { english romaji native }
          type
          coverImage { extraLarge }
        }
      }
    }
  }
}`

// MediaDetails fetches one title with staff, studios and recommendations.
func (a *Anilist) MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error) {
	id, err := strconv.Atoi(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid anilist identifier %q", ErrNotFoundByProvider, identifier)
	}
	var resp struct {
		Media anilistMedia `json:"Media"`
	}
	err = a.graphql(ctx, anilistDetailsQuery,
		map[string]any{"id": id, "type": anilistMediaType(lot)}, &resp)
	if err != nil {
		return nil, err
	}
	m := resp.Media

	details := &models.MetadataDetails{
		Identifier:       identifier,
		Lot:              lot,
		Source:           models.MediaSourceAnilist,
		Title:            m.Title.preferred(),
		Description:      emptyToNil(m.Description),
		PublishDate:      m.StartDate.time(),
		PublishYear:      m.StartDate.Year,
		IsNsfw:           m.IsAdult,
		SourceURL:        emptyToNil(m.SiteURL),
		ProductionStatus: emptyToNil(m.Status),
		Genres:           m.Genres,
	}
	if m.AverageScore != nil {
		rating := decimal.NewFromInt(int64(*m.AverageScore))
		details.ProviderRating = &rating
	}
	for _, img := range []string{m.CoverImage.ExtraLarge, m.BannerImage} {
		if img != "" {
			details.Assets.RemoteImages = append(details.Assets.RemoteImages, img)
		}
	}
	if m.Trailer != nil && m.Trailer.Site == "youtube" {
		details.Assets.RemoteVideos = append(details.Assets.RemoteVideos,
			"https://www.youtube.com/watch?v="+m.Trailer.ID)
	}
	for _, edge := range m.Staff.Edges {
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:     models.MediaSourceAnilist,
			Identifier: strconv.Itoa(edge.Node.ID),
			Name:       edge.Node.Name.Full,
			Role:       edge.Role,
		})
	}
	for _, studio := range m.Studios.Nodes {
		details.People = append(details.People, models.PartialMetadataPerson{
			Source:          models.MediaSourceAnilist,
			Identifier:      strconv.Itoa(studio.ID),
			Name:            studio.Name,
			Role:            "Production Studio",
			SourceSpecifics: &models.PersonSourceSpecifics{IsAnilistStudio: true},
		})
	}
	for _, rec := range m.Recommendations.Nodes {
		r := rec.MediaRecommendation
		if r == nil {
			continue
		}
		recLot := models.MediaLotAnime
		if r.Type == "MANGA" {
			recLot = models.MediaLotManga
		}
		details.Suggestions = append(details.Suggestions, models.PartialMetadata{
			Lot: recLot, Source: models.MediaSourceAnilist,
			Identifier: strconv.Itoa(r.ID), Title: r.Title.preferred(),
			Image: emptyToNil(r.CoverImage.ExtraLarge),
		})
	}
	if lot == models.MediaLotAnime {
		details.AnimeSpecifics = &models.AnimeSpecifics{Episodes: m.Episodes}
	} else {
		specifics := &models.MangaSpecifics{Volumes: m.Volumes}
		if m.Chapters != nil {
			c := decimal.NewFromInt(int64(*m.Chapters))
			specifics.Chapters = &c
		}
		details.MangaSpecifics = specifics
	}
	return details, nil
}

const anilistStaffSearchQuery = `
query ($search: String!, $page: Int!, $perPage: Int!) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total }
    staff(search: $search) {
      id
      name { full }
      image { large }
      dateOfBirth { year }
    }
  }
}`

const anilistStudioSearchQuery = `
query ($search: String!, $page: Int!, $perPage: Int!) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total }
    studios(search: $search) { id name }
  }
}`

// SearchPeople searches staff, or studios when the specifics flag it.
func (a *Anilist) SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error) {
	page = normalizePage(page)
	variables := map[string]any{"search": query, "page": page, "perPage": PageSize}

	if specifics != nil && specifics.IsAnilistStudio {
		var resp struct {
			Page struct {
				PageInfo struct {
					Total int `json:"total"`
				} `json:"pageInfo"`
				Studios []struct {
					ID   int    `json:"id"`
					Name string `json:"name"`
				} `json:"studios"`
			} `json:"Page"`
		}
		if err := a.graphql(ctx, anilistStudioSearchQuery, variables, &resp); err != nil {
			return nil, err
		}
		items := make([]models.PeopleSearchItem, 0, len(resp.Page.Studios))
		for _, s := range resp.Page.Studios {
			items = append(items, models.PeopleSearchItem{
				Identifier: strconv.Itoa(s.ID), Name: s.Name,
			})
		}
		return &models.SearchResults[models.PeopleSearchItem]{
			Details: models.SearchDetails{
				Total:    resp.Page.PageInfo.Total,
				NextPage: nextPageFor(page, resp.Page.PageInfo.Total),
			},
			Items: items,
		}, nil
	}

	var resp struct {
		Page struct {
			PageInfo struct {
				Total int `json:"total"`
			} `json:"pageInfo"`
			Staff []struct {
				ID   int `json:"id"`
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
				Image struct {
					Large string `json:"large"`
				} `json:"image"`
				DateOfBirth anilistDate `json:"dateOfBirth"`
			} `json:"staff"`
		} `json:"Page"`
	}
	if err := a.graphql(ctx, anilistStaffSearchQuery, variables, &resp); err != nil {
		return nil, err
	}
	items := make([]models.PeopleSearchItem, 0, len(resp.Page.Staff))
	for _, s := range resp.Page.Staff {
		items = append(items, models.PeopleSearchItem{
			Identifier: strconv.Itoa(s.ID),
			Name:       s.Name.Full,
			Image:      emptyToNil(s.Image.Large),
			BirthYear:  s.DateOfBirth.Year,
		})
	}
	return &models.SearchResults[models.PeopleSearchItem]{
		Details: models.SearchDetails{
			Total:    resp.Page.PageInfo.Total,
			NextPage: nextPageFor(page, resp.Page.PageInfo.Total),
		},
		Items: items,
	}, nil
}

const anilistStaffDetailsQuery = `
query ($id: Int!) {
  Staff(id: $id) {
    id
    name { full }
    description(asHtml: false)
    gender
    dateOfBirth { year month day }
    dateOfDeath { year month day }
    homeTown
    image { large }
    siteUrl
    staffMedia(sort: POPULARITY_DESC, perPage: 25) {
      edges {
        staffRole
        node {
          id
          title { english romaji native }
          type
          coverImage { extraLarge }
        }
      }
    }
  }
}`

const anilistStudioDetailsQuery = `
query ($id: Int!) {
  Studio(id: $id) {
    id
    name
    siteUrl
    media(sort: POPULARITY_DESC, perPage: 25) {
      nodes {
        id
        title { english romaji native }
        type
        coverImage { extraLarge }
      }
    }
  }
}`

// PersonDetails fetches a staff member or a studio depending on the
// specifics flag.
func (a *Anilist) PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error) {
	id, err := strconv.Atoi(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid anilist identifier %q", ErrNotFoundByProvider, identifier)
	}

	relatedLot := func(kind string) models.MediaLot {
		if kind == "MANGA" {
			return models.MediaLotManga
		}
		return models.MediaLotAnime
	}

	if specifics != nil && specifics.IsAnilistStudio {
		var resp struct {
			Studio struct {
				ID      int    `json:"id"`
				Name    string `json:"name"`
				SiteURL string `json:"siteUrl"`
				Media   struct {
					Nodes []struct {
						ID         int          `json:"id"`
						Title      anilistTitle `json:"title"`
						Type       string       `json:"type"`
						CoverImage struct {
							ExtraLarge string `json:"extraLarge"`
						} `json:"coverImage"`
					} `json:"nodes"`
				} `json:"media"`
			} `json:"Studio"`
		}
		if err := a.graphql(ctx, anilistStudioDetailsQuery, map[string]any{"id": id}, &resp); err != nil {
			return nil, err
		}
		out := &models.PersonDetails{
			Identifier:      identifier,
			Source:          models.MediaSourceAnilist,
			SourceSpecifics: specifics,
			Name:            resp.Studio.Name,
			SourceURL:       emptyToNil(resp.Studio.SiteURL),
		}
		for _, n := range resp.Studio.Media.Nodes {
			out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
				Role: "Production Studio",
				Metadata: models.PartialMetadata{
					Lot: relatedLot(n.Type), Source: models.MediaSourceAnilist,
					Identifier: strconv.Itoa(n.ID), Title: n.Title.preferred(),
					Image: emptyToNil(n.CoverImage.ExtraLarge),
				},
			})
		}
		return out, nil
	}

	var resp struct {
		Staff struct {
			ID   int `json:"id"`
			Name struct {
				Full string `json:"full"`
			} `json:"name"`
			Description string      `json:"description"`
			Gender      string      `json:"gender"`
			DateOfBirth anilistDate `json:"dateOfBirth"`
			DateOfDeath anilistDate `json:"dateOfDeath"`
			HomeTown    string      `json:"homeTown"`
			Image       struct {
				Large string `json:"large"`
			} `json:"image"`
			SiteURL    string `json:"siteUrl"`
			StaffMedia struct {
				Edges []struct {
					StaffRole string `json:"staffRole"`
					Node      struct {
						ID         int          `json:"id"`
						Title      anilistTitle `json:"title"`
						Type       string       `json:"type"`
						CoverImage struct {
							ExtraLarge string `json:"extraLarge"`
						} `json:"coverImage"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"staffMedia"`
		} `json:"Staff"`
	}
	if err := a.graphql(ctx, anilistStaffDetailsQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	s := resp.Staff
	out := &models.PersonDetails{
		Identifier:  identifier,
		Source:      models.MediaSourceAnilist,
		Name:        s.Name.Full,
		Description: emptyToNil(s.Description),
		Gender:      emptyToNil(s.Gender),
		BirthDate:   s.DateOfBirth.time(),
		DeathDate:   s.DateOfDeath.time(),
		Place:       emptyToNil(s.HomeTown),
		SourceURL:   emptyToNil(s.SiteURL),
	}
	if s.Image.Large != "" {
		out.Assets.RemoteImages = []string{s.Image.Large}
	}
	for _, edge := range s.StaffMedia.Edges {
		out.RelatedMetadata = append(out.RelatedMetadata, models.PersonDetailsRelatedMetadata{
			Role: edge.StaffRole,
			Metadata: models.PartialMetadata{
				Lot: relatedLot(edge.Node.Type), Source: models.MediaSourceAnilist,
				Identifier: strconv.Itoa(edge.Node.ID), Title: edge.Node.Title.preferred(),
				Image: emptyToNil(edge.Node.CoverImage.ExtraLarge),
			},
		})
	}
	return out, nil
}
