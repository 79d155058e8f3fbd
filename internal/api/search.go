// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"github.com/graphql-go/graphql"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// metadataSearchField is the provider search query. Results are cached
// per (user, lot, source, query, page); the cache expires on its default
// TTL, there is no invalidation trigger for upstream catalogs.
func (s *Server) metadataSearchField() *graphql.Field {
	itemType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MetadataSearchItem",
		Fields: graphql.Fields{
			"identifier":  &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(i models.MetadataSearchItem) any { return i.Identifier })},
			"title":       &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(i models.MetadataSearchItem) any { return i.Title })},
			"image":       &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(i models.MetadataSearchItem) any { return i.Image })},
			"publishYear": &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(i models.MetadataSearchItem) any { return i.PublishYear })},
		},
	})
	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MetadataSearchResults",
		Fields: graphql.Fields{
			"total":    &graphql.Field{Type: graphql.Int},
			"nextPage": &graphql.Field{Type: graphql.Int},
			"items":    &graphql.Field{Type: graphql.NewList(itemType)},
		},
	})

	return &graphql.Field{
		Type: resultType,
		Args: graphql.FieldConfigArgument{
			"lot":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"query":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"source": &graphql.ArgumentConfig{Type: graphql.String},
			"page":   &graphql.ArgumentConfig{Type: graphql.Int},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			userID, err := requireUserID(p.Context)
			if err != nil {
				return nil, err
			}
			lot := models.MediaLot(p.Args["lot"].(string))
			query := p.Args["query"].(string)
			source := providers.DefaultSourceForLot(lot)
			if v := optString(p.Args, "source"); v != nil {
				source = models.MediaSource(*v)
			}
			page := 1
			if v := optInt(p.Args, "page"); v != nil && *v > 0 {
				page = *v
			}

			key := cache.MetadataSearchKey(userID, lot, source, query, page)
			if cached, ok := s.memCache.GetValue(key); ok {
				return cached, nil
			}

			provider, err := s.catalog.Get(source, lot)
			if err != nil {
				return nil, gqlError(err)
			}
			user, err := s.store.GetUser(p.Context, userID)
			if err != nil {
				return nil, gqlError(err)
			}
			results, err := provider.SearchMedia(p.Context, query, lot, page, user.Preferences.General.DisplayNsfw)
			if err != nil {
				return nil, gqlError(err)
			}
			out := map[string]any{
				"total":    results.Details.Total,
				"nextPage": results.Details.NextPage,
				"items":    results.Items,
			}
			s.memCache.SetKey(key, out)
			return out, nil
		},
	}
}

// trendingMetadataField surfaces the default movie provider's trending
// feed. Providers without one yield an empty list, not an error.
func (s *Server) trendingMetadataField() *graphql.Field {
	stubType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PartialMetadata",
		Fields: graphql.Fields{
			"lot":        &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m models.PartialMetadata) any { return m.Lot })},
			"source":     &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m models.PartialMetadata) any { return m.Source })},
			"identifier": &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m models.PartialMetadata) any { return m.Identifier })},
			"title":      &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m models.PartialMetadata) any { return m.Title })},
			"image":      &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m models.PartialMetadata) any { return m.Image })},
		},
	})

	return &graphql.Field{
		Type: graphql.NewList(stubType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if _, err := requireUserID(p.Context); err != nil {
				return nil, err
			}
			provider, err := s.catalog.GetAny(models.MediaSourceTmdb)
			if err != nil {
				return nil, gqlError(err)
			}
			trending, ok := provider.(providers.TrendingProvider)
			if !ok {
				return []models.PartialMetadata{}, nil
			}
			items, err := trending.TrendingMedia(p.Context)
			if err != nil {
				return nil, gqlError(err)
			}
			return items, nil
		},
	}
}

// metadataTranslationField serves the title and description of a stored
// metadata row in a requested language, for providers that support it.
func (s *Server) metadataTranslationField() *graphql.Field {
	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MetadataTranslation",
		Fields: graphql.Fields{
			"title":       &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(r *models.TranslationResult) any { return r.Title })},
			"description": &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(r *models.TranslationResult) any { return r.Description })},
		},
	})

	return &graphql.Field{
		Type: resultType,
		Args: graphql.FieldConfigArgument{
			"metadataId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"locale":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if _, err := requireUserID(p.Context); err != nil {
				return nil, err
			}
			m, err := s.store.GetMetadata(p.Context, p.Args["metadataId"].(string))
			if err != nil {
				return nil, gqlError(err)
			}
			provider, err := s.catalog.GetAny(m.Source)
			if err != nil {
				return nil, gqlError(err)
			}
			translator, ok := provider.(providers.Translator)
			if !ok {
				return nil, gqlError(providers.ErrUnsupportedOperation)
			}
			result, err := translator.Translate(p.Context, m.Identifier, m.Lot, p.Args["locale"].(string))
			if err != nil {
				return nil, gqlError(err)
			}
			return result, nil
		},
	}
}

// genreListField returns a provider's genre vocabulary. Caching is owned
// by the adapter (the ProviderGenres key family), not the resolver.
func (s *Server) genreListField() *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewList(graphql.String),
		Args: graphql.FieldConfigArgument{
			"source": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if _, err := requireUserID(p.Context); err != nil {
				return nil, err
			}
			source := models.MediaSource(p.Args["source"].(string))
			provider, err := s.catalog.GetAny(source)
			if err != nil {
				return nil, gqlError(err)
			}
			vocab, ok := provider.(providers.GenreProvider)
			if !ok {
				return nil, gqlError(providers.ErrUnsupportedOperation)
			}
			genres, err := vocab.ListGenres(p.Context)
			if err != nil {
				return nil, gqlError(err)
			}
			return genres, nil
		},
	}
}
