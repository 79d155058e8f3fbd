// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// BookResolver turns an ISBN into a canonical book identifier by chaining
// the book providers: Hardcover first, Google Books second, Openlibrary
// last. Providers the instance lacks credentials for are skipped.
type BookResolver struct {
	hardcover   func(ctx context.Context, isbn string) (string, error)
	googleBooks func(ctx context.Context, isbn string) (string, error)
	openlibrary func(ctx context.Context, isbn string) (string, error)
}

// NewBookResolver builds the chain. Any provider may be nil.
func NewBookResolver(h *providers.Hardcover, g *providers.GoogleBooks, o *providers.Openlibrary) *BookResolver {
	r := &BookResolver{}
	if h != nil {
		r.hardcover = h.BookByIsbn
	}
	if g != nil {
		r.googleBooks = g.VolumeByIsbn
	}
	if o != nil {
		r.openlibrary = o.MediaDetailsByIsbn
	}
	return r
}

// Resolve returns the first identifier the chain produces, with the
// source it came from.
func (r *BookResolver) Resolve(ctx context.Context, isbn string) (string, models.MediaSource, error) {
	isbn = cleanIsbn(isbn)
	if isbn == "" {
		return "", "", fmt.Errorf("empty isbn")
	}
	type hop struct {
		lookup func(ctx context.Context, isbn string) (string, error)
		source models.MediaSource
	}
	hops := []hop{
		{r.hardcover, models.MediaSourceHardcover},
		{r.googleBooks, models.MediaSourceGoogleBooks},
		{r.openlibrary, models.MediaSourceOpenlibrary},
	}
	for _, h := range hops {
		if h.lookup == nil {
			continue
		}
		identifier, err := h.lookup(ctx, isbn)
		if err == nil {
			return identifier, h.source, nil
		}
		if !errors.Is(err, providers.ErrNotFoundByProvider) {
			return "", "", err
		}
	}
	return "", "", fmt.Errorf("isbn %s: %w", isbn, providers.ErrNotFoundByProvider)
}

// cleanIsbn strips the ="..." wrapper goodreads exports use to keep
// spreadsheets from eating leading zeroes, plus hyphens.
func cleanIsbn(isbn string) string {
	isbn = strings.TrimPrefix(isbn, `="`)
	isbn = strings.TrimSuffix(isbn, `"`)
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.TrimSpace(isbn)
}
