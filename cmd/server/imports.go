// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/importer"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/storage"
)

// importDispatcher turns a queued import request into the matching source
// adapter and runs it. File-based sources read their uploads back from
// object storage; API-based sources connect with the supplied
// credentials.
type importDispatcher struct {
	cfg      *config.Config
	importer *importer.Importer
	storage  *storage.Client

	books    *importer.BookResolver
	episodes importer.PodcastEpisodeResolver
	imdb     importer.ImdbResolver
	lookup   importer.ExerciseLookup
}

// Run builds the source and executes the import. The report row and
// progress ticks are owned by the importer.
func (d *importDispatcher) Run(ctx context.Context, userID string, p jobs.ImportRequestPayload) error {
	source, err := d.buildSource(ctx, p)
	if err != nil {
		return fmt.Errorf("import %s: %w", p.Source, err)
	}
	_, err = d.importer.Run(ctx, userID, source)
	return err
}

func (d *importDispatcher) buildSource(ctx context.Context, p jobs.ImportRequestPayload) (importer.Source, error) {
	timeout := d.cfg.Providers.Timeout

	switch models.ImportSource(p.Source) {
	case models.ImportSourceAnilist:
		return importer.NewAnilist(p.Username, timeout), nil
	case models.ImportSourceAudiobookshelf:
		return importer.NewAudiobookshelf(p.BaseURL, p.Token, timeout, d.books, d.episodes), nil
	case models.ImportSourceGenericJson:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewGenericJson(files[0]), nil
	case models.ImportSourceGoodreads:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewGoodreads(d.cfg.Importer, files[0], d.books), nil
	case models.ImportSourceGrouvee:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewGrouvee(d.cfg.Importer, files[0]), nil
	case models.ImportSourceHevy:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewHevy(files[0], d.lookup), nil
	case models.ImportSourceIgdb:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewIgdbCsv(files[0], p.Collection), nil
	case models.ImportSourceImdb:
		if d.imdb == nil {
			return nil, errors.New("imdb import needs a configured TMDB provider")
		}
		// Ratings export first, watchlist second; either may be absent.
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewImdb(files[0], readerAt(files, 1), d.imdb), nil
	case models.ImportSourceJellyfin:
		return importer.NewJellyfin(p.BaseURL, p.Username, p.Password, timeout), nil
	case models.ImportSourceMediaTracker:
		return importer.NewMediaTracker(p.BaseURL, p.Token, timeout), nil
	case models.ImportSourceMovary:
		// History, ratings, watchlist, in that order.
		files, err := d.files(ctx, p.Files, 3)
		if err != nil {
			return nil, err
		}
		return importer.NewMovary(files[0], files[1], files[2]), nil
	case models.ImportSourceMyAnimeList:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewMyAnimeList(files[0]), nil
	case models.ImportSourceOpenScale:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewOpenScale(files[0]), nil
	case models.ImportSourcePlex:
		return importer.NewPlex(p.BaseURL, p.Token, timeout), nil
	case models.ImportSourceStoryGraph:
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewStoryGraph(d.cfg.Importer, files[0], d.books), nil
	case models.ImportSourceStrongApp:
		// Workouts CSV first, optional measurements CSV second.
		files, err := d.files(ctx, p.Files, 1)
		if err != nil {
			return nil, err
		}
		return importer.NewStrongApp(files[0], readerAt(files, 1), d.lookup), nil
	case models.ImportSourceTrakt:
		return importer.NewTrakt(p.ClientID, p.Username, timeout), nil
	default:
		return nil, fmt.Errorf("unknown import source %q", p.Source)
	}
}

// files reads every uploaded key into memory and checks the minimum
// count. Exports are small enough that buffering beats holding object
// storage streams open across a whole import run.
func (d *importDispatcher) files(ctx context.Context, keys []string, minimum int) ([]io.Reader, error) {
	if len(keys) < minimum {
		return nil, fmt.Errorf("needs %d uploaded file(s), got %d", minimum, len(keys))
	}
	if d.storage == nil {
		return nil, errors.New("object storage is not configured")
	}
	readers := make([]io.Reader, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, "uploads/") {
			return nil, fmt.Errorf("key %q is not an upload", key)
		}
		body, err := d.storage.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		readers = append(readers, bytes.NewReader(data))
	}
	return readers, nil
}

// readerAt returns the i-th reader or nil when the upload was omitted.
func readerAt(readers []io.Reader, i int) io.Reader {
	if i < len(readers) {
		return readers[i]
	}
	return nil
}
