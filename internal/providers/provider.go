// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package providers implements the catalog provider adapters.
//
// Each external catalog (TMDB, IGDB, Anilist, ...) gets one adapter that
// normalizes its API into the shared search/details shapes. Adapters
// share a rate-limited, circuit-breaking HTTP client and are looked up
// through the Registry by (lot, source).
package providers

import (
	"context"
	"errors"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PageSize is the normalized page length every adapter returns,
// regardless of the upstream page size.
const PageSize = 20

var (
	// ErrProviderUnavailable means the adapter is not configured (missing
	// credentials) or its upstream is failing.
	ErrProviderUnavailable = errors.New("providers: provider unavailable")
	// ErrNotFoundByProvider means the upstream does not know the identifier.
	ErrNotFoundByProvider = errors.New("providers: entity not found")
	// ErrUnsupportedOperation means the provider has no such capability.
	ErrUnsupportedOperation = errors.New("providers: operation not supported")
)

// MediaProvider is the minimum capability every adapter has: media search
// and media details.
type MediaProvider interface {
	Source() models.MediaSource
	// Lots lists the media lots the adapter can serve.
	Lots() []models.MediaLot

	SearchMedia(ctx context.Context, query string, lot models.MediaLot, page int, displayNsfw bool) (*models.SearchResults[models.MetadataSearchItem], error)
	MediaDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataDetails, error)
}

// PeopleProvider is implemented by adapters that know creators.
type PeopleProvider interface {
	SearchPeople(ctx context.Context, query string, page int, specifics *models.PersonSourceSpecifics) (*models.SearchResults[models.PeopleSearchItem], error)
	PersonDetails(ctx context.Context, identifier string, specifics *models.PersonSourceSpecifics) (*models.PersonDetails, error)
}

// GroupProvider is implemented by adapters that know series/collections.
type GroupProvider interface {
	SearchGroups(ctx context.Context, query string, lot models.MediaLot, page int) (*models.SearchResults[models.MetadataGroupSearchItem], error)
	GroupDetails(ctx context.Context, identifier string, lot models.MediaLot) (*models.MetadataGroupDetails, error)
}

// GenreProvider is implemented by adapters with a genre vocabulary.
type GenreProvider interface {
	ListGenres(ctx context.Context) ([]string, error)
}

// TrendingProvider is implemented by adapters that expose a trending feed.
type TrendingProvider interface {
	TrendingMedia(ctx context.Context) ([]models.PartialMetadata, error)
}

// Translator is implemented by adapters that can serve a title and
// description in a requested language instead of their configured
// locale.
type Translator interface {
	Translate(ctx context.Context, identifier string, lot models.MediaLot, locale string) (*models.TranslationResult, error)
}
