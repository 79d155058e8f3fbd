// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package main is the entry point for the Shelfwatch server.
//
// Shelfwatch is a self-hosted media and fitness tracker: it catalogs
// what a user reads, watches, listens to and plays via external catalog
// providers (TMDB, IGDB, Openlibrary, ...), tracks consumption progress
// and workouts, imports history from other services, and notifies
// monitoring users about catalog changes.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config.yaml, SHELFWATCH_ env vars (Koanf v2)
//  2. Database: PostgreSQL via pgx with embedded migrations
//  3. Providers: catalog adapters for every configured credential
//  4. Services: progress, analytics, fitness, importer, exporter,
//     integrations, monitoring, refresh
//  5. Jobs: four watermill queues, handler mux, periodic scheduler
//  6. HTTP: GraphQL endpoint plus webhook/upload/log REST routes (chi)
//
// The job router and the scheduler run under a suture supervisor;
// failures restart the failed service, not the process.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables prefixed SHELFWATCH_ (keys split on __)
//   - Config file (config.yaml or /etc/shelfwatch/config.yaml)
//   - Built-in defaults
//
// Required settings:
//   - SHELFWATCH_DATABASE__URL: PostgreSQL connection string
//   - SHELFWATCH_SECURITY__JWT_SECRET: secret for session tokens
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Drains the job queues and closes the database pool
//
// # Example Usage
//
//	export SHELFWATCH_DATABASE__URL=postgres://shelfwatch@localhost/shelfwatch
//	export SHELFWATCH_SECURITY__JWT_SECRET=$(openssl rand -base64 32)
//	export SHELFWATCH_PROVIDERS__TMDB_ACCESS_TOKEN=your-tmdb-token
//	./shelfwatch
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/shelfwatch/shelfwatch/internal/analytics"
	"github.com/shelfwatch/shelfwatch/internal/api"
	"github.com/shelfwatch/shelfwatch/internal/auth"
	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/exporter"
	"github.com/shelfwatch/shelfwatch/internal/fitness"
	"github.com/shelfwatch/shelfwatch/internal/importer"
	"github.com/shelfwatch/shelfwatch/internal/integrations"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/monitoring"
	"github.com/shelfwatch/shelfwatch/internal/notifications"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/providers"
	"github.com/shelfwatch/shelfwatch/internal/refresh"
	"github.com/shelfwatch/shelfwatch/internal/storage"
)

const (
	cacheDefaultTTL   = 30 * time.Minute
	providerTokenTTL  = 30 * 24 * time.Hour
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config not yet available.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("Starting Shelfwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if cfg.Database.RunMigrations {
		if err := db.Migrate(); err != nil {
			logging.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}
	logging.Info().Msg("Database ready")

	memCache := cache.New(cacheDefaultTTL)
	defer memCache.Close()

	registry := providers.NewRegistry(&cfg.Providers, memCache, dbTokenStore{db: db})

	sender, err := notifications.New(ctx, cfg.Email, cfg.Providers.Timeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize notification sender")
	}
	monitor := monitoring.New(db, sender)

	busLogger := jobs.NewWatermillLogger()
	bus := jobs.NewBus(&cfg.Jobs, busLogger)

	engine := progress.NewEngine(db, memCache, progress.Hooks{
		OnSeenComplete: func(ctx context.Context, userID, seenID string) {
			err := bus.Enqueue(ctx, jobs.KindHandleOnSeenComplete, userID, jobs.SeenPayload{SeenID: seenID})
			if err != nil {
				logging.Err(err).Str("seen_id", seenID).Msg("Failed to enqueue seen-complete follow-up")
			}
		},
	})

	analyticsEngine := analytics.New(db, memCache)
	fitnessEngine := fitness.New(db)
	library := fitness.NewLibraryUpdater(db, cfg.Providers.Timeout)

	var objectStore *storage.Client
	if cfg.Storage.Bucket != "" {
		objectStore, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize object storage")
		}
		logging.Info().Str("bucket", cfg.Storage.Bucket).Msg("Object storage enabled")
	} else {
		logging.Info().Msg("Object storage not configured, uploads and exports disabled")
	}

	exp := exporter.New(db, objectStore)
	imp := importer.NewImporter(cfg.Importer, db, engine, memCache)

	// The ISBN chain and the episode resolver reuse whatever catalog
	// credentials the instance carries; missing links are skipped.
	var hardcover *providers.Hardcover
	if cfg.Providers.HardcoverToken != "" {
		hardcover = providers.NewHardcover(&cfg.Providers)
	}
	var googleBooks *providers.GoogleBooks
	if cfg.Providers.GoogleBooksAPIKey != "" {
		googleBooks = providers.NewGoogleBooks(&cfg.Providers)
	}
	books := importer.NewBookResolver(hardcover, googleBooks, providers.NewOpenlibrary(&cfg.Providers))
	episodes := podcastEpisodeResolver(registry)

	var imdbResolver importer.ImdbResolver
	if cfg.Providers.TmdbAccessToken != "" {
		imdbResolver = providers.NewTmdb(&cfg.Providers, memCache).FindByImdbID
	}

	serverKeyValidated := cfg.Security.ServerKey != ""
	if serverKeyValidated {
		logging.Info().Msg("Server key present, gated integrations unlocked")
	}
	manager := integrations.NewManager(cfg.Providers, db, imp, engine, books, episodes, serverKeyValidated)

	refresher := refresh.New(db, registry, monitor, memCache)

	dispatcher := &importDispatcher{
		cfg:      cfg,
		importer: imp,
		storage:  objectStore,
		books:    books,
		episodes: episodes,
		imdb:     imdbResolver,
		lookup:   exerciseLookup(db),
	}

	mux := jobs.NewMux()
	registerJobHandlers(mux, jobDeps{
		db:        db,
		bus:       bus,
		engine:    engine,
		manager:   manager,
		refresher: refresher,
		fitness:   fitnessEngine,
		library:   library,
		analytics: analyticsEngine,
		exporter:  exp,
		monitor:   monitor,
		imports:   dispatcher,
	})

	router, err := jobs.NewRouter(&cfg.Jobs, bus, mux, busLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build job router")
	}
	scheduler := jobs.NewScheduler(cfg.Scheduler, bus, db)

	supervisor := suture.NewSimple("shelfwatch")
	supervisor.Add(router)
	supervisor.Add(scheduler)
	supervisorErr := supervisor.ServeBackground(ctx)

	authSvc := auth.New(db, cfg.Security)

	var uploader api.Uploader
	if objectStore != nil {
		uploader = objectStore
	}
	apiServer, err := api.NewServer(cfg, authSvc, db, manager, uploader, bus,
		analyticsEngine, engine, fitnessEngine, registry, memCache, cfg.Logging.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build API server")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := bus.Close(); err != nil {
		logging.Err(err).Msg("Job queue close incomplete")
	}
	select {
	case err := <-supervisorErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor exited with error")
		}
	case <-shutdownCtx.Done():
		logging.Warn().Msg("Supervisor drain timed out")
	}
	logging.Info().Msg("Shutdown complete")
	os.Exit(0)
}

// dbTokenStore mirrors provider OAuth tokens (the IGDB Twitch token)
// into the durable application cache so restarts do not refetch them.
type dbTokenStore struct {
	db *database.DB
}

func (s dbTokenStore) GetToken(key string) ([]byte, bool) {
	value, err := s.db.GetCacheEntry(context.Background(), "provider_token:"+key)
	if err != nil {
		return nil, false
	}
	return value, true
}

func (s dbTokenStore) SetToken(key string, value []byte) {
	err := s.db.SetCacheEntry(context.Background(), "provider_token:"+key, value, providerTokenTTL)
	if err != nil {
		logging.Err(err).Str("key", key).Msg("Failed to persist provider token")
	}
}

// podcastEpisodeResolver matches an Audiobookshelf episode title against
// the iTunes episode list of the podcast.
func podcastEpisodeResolver(registry *providers.Registry) importer.PodcastEpisodeResolver {
	return func(ctx context.Context, itunesID, episodeTitle string) (int, error) {
		adapter, err := registry.Get(models.MediaSourceItunes, models.MediaLotPodcast)
		if err != nil {
			return 0, err
		}
		details, err := adapter.MediaDetails(ctx, itunesID, models.MediaLotPodcast)
		if err != nil {
			return 0, err
		}
		if details.PodcastSpecifics == nil {
			return 0, fmt.Errorf("itunes %s: no episode list", itunesID)
		}
		want := strings.TrimSpace(strings.ToLower(episodeTitle))
		for _, ep := range details.PodcastSpecifics.Episodes {
			if strings.TrimSpace(strings.ToLower(ep.Title)) == want {
				return ep.Number, nil
			}
		}
		return 0, providers.ErrNotFoundByProvider
	}
}

// exerciseLookup resolves an imported exercise name: catalog rows first
// via their deterministic id, then the trigram search as fallback.
func exerciseLookup(db *database.DB) importer.ExerciseLookup {
	return func(ctx context.Context, userID, name string) (*models.Exercise, error) {
		if e, err := db.GetExercise(ctx, models.DeterministicID(models.PrefixExercise, name)); err == nil {
			return e, nil
		}
		matches, err := db.SearchExercises(ctx, userID, name, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 || !strings.EqualFold(matches[0].Name, name) {
			return nil, database.ErrNotFound
		}
		return matches[0], nil
	}
}
