// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/auth"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

type contextKey int

const claimsKey contextKey = iota

// authenticate resolves a Bearer token into claims on the request
// context. Requests without a token pass through anonymously; resolvers
// that need a user reject them individually.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			if claims, err := s.auth.VerifyToken(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects anonymous requests before the handler runs.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the verified claims of the request, if any.
func CurrentUser(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// currentUserID is the resolver-side accessor; the empty string means
// anonymous.
func currentUserID(ctx context.Context) string {
	if claims, ok := CurrentUser(ctx); ok {
		return claims.Subject
	}
	return ""
}

func isAdmin(ctx context.Context) bool {
	claims, ok := CurrentUser(ctx)
	return ok && claims.Lot == models.UserLotAdmin
}
