// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// TokenStore persists provider OAuth tokens across restarts (the IGDB
// Twitch token). Implemented by the database's application cache.
type TokenStore interface {
	GetToken(key string) ([]byte, bool)
	SetToken(key string, value []byte)
}

// Registry resolves (source, lot) pairs to their adapter. Adapters whose
// credentials are missing are simply not registered; lookups then return
// ErrProviderUnavailable.
type Registry struct {
	providers map[models.MediaSource]MediaProvider
}

// NewRegistry wires every adapter the configuration has credentials for.
// Keyless providers (iTunes, Openlibrary, VNDB, Audible, MangaUpdates,
// Anilist) are always registered.
func NewRegistry(cfg *config.ProvidersConfig, store *cache.Cache, tokens TokenStore) *Registry {
	r := &Registry{providers: make(map[models.MediaSource]MediaProvider)}

	register := func(p MediaProvider) {
		r.providers[p.Source()] = p
	}

	register(NewAnilist(cfg))
	register(NewAudible(cfg))
	register(NewItunes(cfg))
	register(NewOpenlibrary(cfg))
	register(NewVndb(cfg))
	register(NewMangaUpdates(cfg))

	if cfg.TmdbAccessToken != "" {
		register(NewTmdb(cfg, store))
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		register(NewIgdb(cfg, store, tokens))
	}
	if cfg.MalClientID != "" {
		register(NewMal(cfg))
	}
	if cfg.ListennotesToken != "" {
		register(NewListennotes(cfg))
	}
	if cfg.TvdbAPIKey != "" {
		register(NewTvdb(cfg))
	}
	if cfg.GoogleBooksAPIKey != "" {
		register(NewGoogleBooks(cfg))
	}
	if cfg.HardcoverToken != "" {
		register(NewHardcover(cfg))
	}

	logging.Info().Int("count", len(r.providers)).Msg("Catalog providers registered")
	return r
}

// Get returns the adapter for a source, checking it serves the lot.
func (r *Registry) Get(source models.MediaSource, lot models.MediaLot) (MediaProvider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", ErrProviderUnavailable, source)
	}
	for _, l := range p.Lots() {
		if l == lot {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s does not serve lot %s", ErrProviderUnavailable, source, lot)
}

// GetAny returns the adapter for a source without a lot check, for
// people/group operations.
func (r *Registry) GetAny(source models.MediaSource) (MediaProvider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", ErrProviderUnavailable, source)
	}
	return p, nil
}

// Sources lists the registered sources, for the capability endpoint.
func (r *Registry) Sources() []models.MediaSource {
	out := make([]models.MediaSource, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	return out
}

// DefaultSourceForLot picks the canonical provider for a lot, the one
// imports fall back to when the source file names only a lot.
func DefaultSourceForLot(lot models.MediaLot) models.MediaSource {
	switch lot {
	case models.MediaLotMovie, models.MediaLotShow:
		return models.MediaSourceTmdb
	case models.MediaLotVideoGame:
		return models.MediaSourceIgdb
	case models.MediaLotAnime, models.MediaLotManga:
		return models.MediaSourceAnilist
	case models.MediaLotBook:
		return models.MediaSourceOpenlibrary
	case models.MediaLotAudioBook:
		return models.MediaSourceAudible
	case models.MediaLotPodcast:
		return models.MediaSourceListennotes
	case models.MediaLotVisualNovel:
		return models.MediaSourceVndb
	case models.MediaLotMusic:
		return models.MediaSourceYoutubeMusic
	default:
		return models.MediaSourceCustom
	}
}
