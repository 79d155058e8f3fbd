// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package api is the HTTP surface: the GraphQL endpoint plus the few
// REST routes that cannot be GraphQL (webhook intake, file upload, log
// download, config, health, metrics).
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/auth"
	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/fitness"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

// AuthService is the slice of *auth.Service the server uses.
type AuthService interface {
	Register(ctx context.Context, name, password string) (*models.User, error)
	Login(ctx context.Context, name, password string) (*auth.LoginResult, error)
	CompleteTwoFactor(ctx context.Context, userID, code string) (*auth.LoginResult, error)
	InitiateTwoFactor(ctx context.Context, userID string) (*auth.TwoFactorSetup, error)
	FinishTwoFactorSetup(ctx context.Context, userID, code string) error
	DisableTwoFactor(ctx context.Context, userID string) error
	VerifyToken(token string) (*auth.Claims, error)
	IssueLogDownloadToken(userID string) (string, error)
	VerifyLogDownloadToken(token string) (*auth.Claims, error)
}

// SinkProcessor handles inbound integration webhooks.
// *integrations.Manager satisfies it.
type SinkProcessor interface {
	ProcessSink(ctx context.Context, slug string, payload []byte) error
}

// Uploader is the slice of *storage.Client the upload route uses. A nil
// Uploader disables the route.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, metadata map[string]string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Catalog resolves provider adapters for the search queries.
// *providers.Registry satisfies it.
type Catalog interface {
	Get(source models.MediaSource, lot models.MediaLot) (providers.MediaProvider, error)
	GetAny(source models.MediaSource) (providers.MediaProvider, error)
}

// JobQueue enqueues background jobs. *jobs.Bus satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, kind jobs.Kind, userID string, payload any) error
}

// Store is the slice of *database.DB the resolvers read and write.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserPreferences(ctx context.Context, userID string, prefs models.UserPreferences) error
	ListUserCollections(ctx context.Context, userID string) ([]*models.Collection, error)
	GetCollectionByName(ctx context.Context, userID, name string) (*models.Collection, error)
	AddEntityToCollection(ctx context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error)
	RemoveEntityFromCollection(ctx context.Context, collectionID, entityID string) error
	NextCollectionRank(ctx context.Context, collectionID string) (decimal.Decimal, error)
	GetCollectionEntity(ctx context.Context, collectionID, entityID string) (*models.CollectionToEntity, error)
	UpdateCollectionEntityRank(ctx context.Context, edgeID string, rank decimal.Decimal) error
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)
	GetOpenSeen(ctx context.Context, userID, metadataID string) (*models.Seen, error)
	ListFinishedSeen(ctx context.Context, userID, metadataID string) ([]*models.Seen, error)
	InsertReview(ctx context.Context, r *models.Review) error
}

// ActivityEngine is the slice of *analytics.Engine the statistics
// resolvers use.
type ActivityEngine interface {
	DailyUserActivities(ctx context.Context, userID string, from, to time.Time, groupBy models.ActivityGroupBy) ([]*models.DailyUserActivity, error)
	LatestUserSummary(ctx context.Context, userID string) (*models.DailyUserActivity, error)
}

// ProgressEngine is the slice of *progress.Engine the tracking resolvers
// use.
type ProgressEngine interface {
	Update(ctx context.Context, userID string, in progress.UpdateInput) (*models.Seen, error)
	DeleteSeen(ctx context.Context, userID, seenID string) error
}

// FitnessEngine is the slice of *fitness.Engine the fitness resolvers
// use.
type FitnessEngine interface {
	CreateOrUpdateUserWorkout(ctx context.Context, userID string, input fitness.WorkoutInput) (*models.Workout, error)
	MergeExercise(ctx context.Context, userID, fromID, intoID string) error
}

// Server holds the wired dependencies and builds the router.
type Server struct {
	cfg       *config.Config
	auth      AuthService
	store     Store
	sink      SinkProcessor
	uploader  Uploader
	queue     JobQueue
	activity  ActivityEngine
	progress  ProgressEngine
	fitness   FitnessEngine
	catalog   Catalog
	memCache  *cache.Cache
	logDir    string
	schema    graphql.Schema
}

// NewServer builds the server and compiles the GraphQL schema.
func NewServer(cfg *config.Config, authSvc AuthService, store Store, sink SinkProcessor,
	uploader Uploader, queue JobQueue, activity ActivityEngine,
	progressEngine ProgressEngine, fitnessEngine FitnessEngine,
	catalog Catalog, memCache *cache.Cache, logDir string) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		auth:     authSvc,
		store:    store,
		sink:     sink,
		uploader: uploader,
		queue:    queue,
		activity: activity,
		progress: progressEngine,
		fitness:  fitnessEngine,
		catalog:  catalog,
		memCache: memCache,
		logDir:   logDir,
	}
	schema, err := s.buildSchema()
	if err != nil {
		return nil, fmt.Errorf("api: build schema: %w", err)
	}
	s.schema = schema
	return s, nil
}

// Routes assembles the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Handle("/metrics", promhttp.Handler())

	gql := handler.New(&handler.Config{Schema: &s.schema, Pretty: false})
	r.With(s.authenticate).Post("/graphql", gql.ServeHTTP)
	if s.cfg.Server.GraphiQLEnabled {
		playground := handler.New(&handler.Config{Schema: &s.schema, Playground: true})
		r.With(s.authenticate).Handle("/graphql/playground", playground)
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.Server.WebhookRateLimit, time.Minute))
		r.Post("/integrations/{slug}", s.handleIntegrationWebhook)
	})

	r.With(s.authenticate, s.requireUser).Post("/upload", s.handleUpload)
	r.Get("/logs/download/{token}", s.handleLogDownload)
	return r
}
