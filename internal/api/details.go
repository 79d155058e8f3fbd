// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// metadataDetailsField serves a stored catalog row. The view is cached
// process-wide per metadata id; a provider refresh expires it.
func (s *Server) metadataDetailsField() *graphql.Field {
	metadataType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MetadataDetails",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return m.ID })},
			"lot":         &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return string(m.Lot) })},
			"source":      &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return string(m.Source) })},
			"identifier":  &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return m.Identifier })},
			"title":       &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return m.Title })},
			"description": &graphql.Field{Type: graphql.String, Resolve: fieldOf(func(m *models.Metadata) any { return m.Description })},
			"publishYear": &graphql.Field{Type: graphql.Int, Resolve: fieldOf(func(m *models.Metadata) any { return m.PublishYear })},
			"isPartial":   &graphql.Field{Type: graphql.Boolean, Resolve: fieldOf(func(m *models.Metadata) any { return m.IsPartial })},
		},
	})

	return &graphql.Field{
		Type: metadataType,
		Args: graphql.FieldConfigArgument{
			"metadataId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if _, err := requireUserID(p.Context); err != nil {
				return nil, err
			}
			metadataID := p.Args["metadataId"].(string)
			key := cache.MetadataDetailsKey(metadataID)
			if cached, ok := s.memCache.GetValue(key); ok {
				return cached, nil
			}
			m, err := s.store.GetMetadata(p.Context, metadataID)
			if err != nil {
				return nil, gqlError(err)
			}
			s.memCache.SetKey(key, m)
			return m, nil
		},
	}
}

// userMetadataDetailsField is the user-scoped view of a metadata row:
// current progress and finish history. Cached per (user, metadata);
// every seen write of the user expires the family.
func (s *Server) userMetadataDetailsField() *graphql.Field {
	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "UserMetadataDetails",
		Fields: graphql.Fields{
			"hasInProgress": &graphql.Field{Type: graphql.Boolean},
			"progress":      &graphql.Field{Type: graphql.Float},
			"timesFinished": &graphql.Field{Type: graphql.Int},
		},
	})

	return &graphql.Field{
		Type: resultType,
		Args: graphql.FieldConfigArgument{
			"metadataId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			userID, err := requireUserID(p.Context)
			if err != nil {
				return nil, err
			}
			metadataID := p.Args["metadataId"].(string)
			key := cache.UserMetadataDetailsKey(userID, metadataID)
			if cached, ok := s.memCache.GetValue(key); ok {
				return cached, nil
			}

			open, err := s.store.GetOpenSeen(p.Context, userID, metadataID)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return nil, gqlError(err)
			}
			finished, err := s.store.ListFinishedSeen(p.Context, userID, metadataID)
			if err != nil {
				return nil, gqlError(err)
			}

			out := map[string]any{
				"hasInProgress": open != nil,
				"timesFinished": len(finished),
			}
			if open != nil {
				out["progress"] = open.Progress.InexactFloat64()
			}
			s.memCache.SetKey(key, out)
			return out, nil
		},
	}
}
