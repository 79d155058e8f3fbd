// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/auth"
	"github.com/shelfwatch/shelfwatch/internal/cache"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/fitness"
	"github.com/shelfwatch/shelfwatch/internal/integrations"
	"github.com/shelfwatch/shelfwatch/internal/jobs"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/progress"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

type fakeAuth struct{}

func (fakeAuth) Register(_ context.Context, name, _ string) (*models.User, error) {
	return &models.User{ID: "usr_new", Name: name, Lot: models.UserLotNormal}, nil
}

func (fakeAuth) Login(_ context.Context, name, password string) (*auth.LoginResult, error) {
	if name == "alice" && password == "password1" {
		return &auth.LoginResult{UserID: "usr_1", Token: "tok-usr_1"}, nil
	}
	return nil, auth.ErrInvalidCredentials
}

func (fakeAuth) CompleteTwoFactor(_ context.Context, userID, _ string) (*auth.LoginResult, error) {
	return &auth.LoginResult{UserID: userID, Token: "tok-" + userID}, nil
}

func (fakeAuth) VerifyToken(token string) (*auth.Claims, error) {
	switch token {
	case "tok-usr_1":
		return &auth.Claims{Lot: models.UserLotNormal, RegisteredClaims: claimsFor("usr_1")}, nil
	case "tok-admin":
		return &auth.Claims{Lot: models.UserLotAdmin, RegisteredClaims: claimsFor("usr_adm")}, nil
	}
	return nil, auth.ErrSessionExpired
}

func (fakeAuth) InitiateTwoFactor(_ context.Context, _ string) (*auth.TwoFactorSetup, error) {
	return &auth.TwoFactorSetup{Secret: "SECRET", OtpauthURL: "otpauth://totp/x", BackupCodes: []string{"code1"}}, nil
}

func (fakeAuth) FinishTwoFactorSetup(_ context.Context, _, code string) error {
	if code != "123456" {
		return auth.ErrTwoFactorInvalid
	}
	return nil
}

func (fakeAuth) DisableTwoFactor(_ context.Context, _ string) error { return nil }

func (fakeAuth) IssueLogDownloadToken(string) (string, error) { return "log-token", nil }

func (fakeAuth) VerifyLogDownloadToken(token string) (*auth.Claims, error) {
	if token == "log-token" {
		return &auth.Claims{RegisteredClaims: claimsFor("usr_adm")}, nil
	}
	return nil, auth.ErrSessionExpired
}

type fakeSink struct {
	slugs []string
	err   error
}

func (s *fakeSink) ProcessSink(_ context.Context, slug string, _ []byte) error {
	s.slugs = append(s.slugs, slug)
	return s.err
}

type fakeQueue struct {
	kinds []jobs.Kind
}

func (q *fakeQueue) Enqueue(_ context.Context, kind jobs.Kind, _ string, _ any) error {
	q.kinds = append(q.kinds, kind)
	return nil
}

type fakeStore struct {
	users       map[string]*models.User
	collections map[string]*models.Collection
	edges       []*models.CollectionToEntity
	reviews     []*models.Review
	metadata    map[string]*models.Metadata
	openSeen    map[string]*models.Seen
	doneSeen    map[string][]*models.Seen

	collectionLists int
	metadataGets    int
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpdateUserPreferences(_ context.Context, userID string, prefs models.UserPreferences) error {
	s.users[userID].Preferences = prefs
	return nil
}

func (s *fakeStore) ListUserCollections(_ context.Context, _ string) ([]*models.Collection, error) {
	s.collectionLists++
	var out []*models.Collection
	for _, c := range s.collections {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) GetCollectionByName(_ context.Context, _, name string) (*models.Collection, error) {
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) AddEntityToCollection(_ context.Context, e *models.CollectionToEntity) (*models.CollectionToEntity, error) {
	s.edges = append(s.edges, e)
	return e, nil
}

func (s *fakeStore) RemoveEntityFromCollection(_ context.Context, _, _ string) error { return nil }

func (s *fakeStore) NextCollectionRank(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (s *fakeStore) GetCollectionEntity(_ context.Context, _, _ string) (*models.CollectionToEntity, error) {
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpdateCollectionEntityRank(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}

func (s *fakeStore) GetMetadata(_ context.Context, id string) (*models.Metadata, error) {
	s.metadataGets++
	if m, ok := s.metadata[id]; ok {
		return m, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetOpenSeen(_ context.Context, userID, metadataID string) (*models.Seen, error) {
	if seen, ok := s.openSeen[userID+"/"+metadataID]; ok {
		return seen, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) ListFinishedSeen(_ context.Context, userID, metadataID string) ([]*models.Seen, error) {
	return s.doneSeen[userID+"/"+metadataID], nil
}

func (s *fakeStore) InsertReview(_ context.Context, r *models.Review) error {
	s.reviews = append(s.reviews, r)
	return nil
}

type fakeActivity struct{}

func (fakeActivity) DailyUserActivities(context.Context, string, time.Time, time.Time, models.ActivityGroupBy) ([]*models.DailyUserActivity, error) {
	return []*models.DailyUserActivity{{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), MovieCount: 2, TotalCount: 2}}, nil
}

func (fakeActivity) LatestUserSummary(context.Context, string) (*models.DailyUserActivity, error) {
	return &models.DailyUserActivity{TotalCount: 9}, nil
}

type fakeProgress struct{}

func (fakeProgress) Update(_ context.Context, userID string, in progress.UpdateInput) (*models.Seen, error) {
	return &models.Seen{ID: "see_1", UserID: userID, MetadataID: in.MetadataID, State: models.SeenStateInProgress}, nil
}

func (fakeProgress) DeleteSeen(_ context.Context, _, seenID string) error {
	if seenID != "see_1" {
		return database.ErrNotFound
	}
	return nil
}

type fakeFitness struct{}

func (fakeFitness) CreateOrUpdateUserWorkout(_ context.Context, userID string, input fitness.WorkoutInput) (*models.Workout, error) {
	return &models.Workout{ID: "wor_1", UserID: userID, Name: input.Name}, nil
}

func (fakeFitness) MergeExercise(context.Context, string, string, string) error { return nil }

func claimsFor(userID string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: userID}
}

func testServer(t *testing.T, sink *fakeSink, store *fakeStore, queue *fakeQueue) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Timeout = 5 * time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.WebhookRateLimit = 100
	cfg.Server.MaxUploadSizeMB = 1
	cfg.Security.JWTSecret = "secret"

	memCache := cache.New(time.Minute)
	t.Cleanup(memCache.Close)
	server, err := NewServer(cfg, fakeAuth{}, store, sink, nil, queue,
		fakeActivity{}, fakeProgress{}, fakeFitness{}, fakeCatalog{}, memCache, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return server
}

// fakeCatalog serves no providers; search queries fail as unavailable.
type fakeCatalog struct{}

func (fakeCatalog) Get(models.MediaSource, models.MediaLot) (providers.MediaProvider, error) {
	return nil, providers.ErrProviderUnavailable
}

func (fakeCatalog) GetAny(models.MediaSource) (providers.MediaProvider, error) {
	return nil, providers.ErrProviderUnavailable
}

func defaultStore() *fakeStore {
	return &fakeStore{
		users: map[string]*models.User{
			"usr_1": {ID: "usr_1", Name: "alice", Lot: models.UserLotNormal, Preferences: models.DefaultUserPreferences()},
		},
		collections: map[string]*models.Collection{
			"Watchlist": {ID: "col_1", UserID: "usr_1", Name: "Watchlist"},
		},
		metadata: map[string]*models.Metadata{},
		openSeen: map[string]*models.Seen{},
		doneSeen: map[string][]*models.Seen{},
	}
}

func postGraphQL(t *testing.T, handler http.Handler, token, query string) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealthAndMaskedConfig(t *testing.T) {
	server := testServer(t, &fakeSink{}, defaultStore(), &fakeQueue{})
	routes := server.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("config = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if strings.Contains(string(body), "secret") {
		t.Fatalf("config leaked the jwt secret: %s", body)
	}
	if !strings.Contains(string(body), config.MaskValue) {
		t.Fatalf("config not masked: %s", body)
	}
}

func TestWebhookStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"processed", nil, http.StatusOK},
		{"unknown integration", database.ErrNotFound, http.StatusNotFound},
		{"disabled integration", integrations.ErrIntegrationDisabled, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &fakeSink{err: tc.err}
			routes := testServer(t, sink, defaultStore(), &fakeQueue{}).Routes()

			req := httptest.NewRequest(http.MethodPost, "/webhooks/integrations/abc123", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if len(sink.slugs) != 1 || sink.slugs[0] != "abc123" {
				t.Fatalf("slugs: %v", sink.slugs)
			}
		})
	}
}

func TestGraphQLLogin(t *testing.T) {
	routes := testServer(t, &fakeSink{}, defaultStore(), &fakeQueue{}).Routes()

	out := postGraphQL(t, routes, "",
		`mutation { loginUser(username: "alice", password: "password1") { token twoFactorRequired } }`)
	data := out["data"].(map[string]any)["loginUser"].(map[string]any)
	if data["token"] != "tok-usr_1" || data["twoFactorRequired"] != false {
		t.Fatalf("login: %v", data)
	}

	out = postGraphQL(t, routes, "",
		`mutation { loginUser(username: "alice", password: "wrong") { token } }`)
	if _, hasErrors := out["errors"]; !hasErrors {
		t.Fatalf("bad login: %v", out)
	}
}

func TestGraphQLRequiresAuthentication(t *testing.T) {
	routes := testServer(t, &fakeSink{}, defaultStore(), &fakeQueue{}).Routes()

	out := postGraphQL(t, routes, "", `{ userDetails { id } }`)
	errs, _ := out["errors"].([]any)
	if len(errs) == 0 {
		t.Fatalf("anonymous userDetails: %v", out)
	}
	msg := errs[0].(map[string]any)["message"].(string)
	if !strings.HasPrefix(msg, "Unauthenticated") {
		t.Fatalf("message = %q", msg)
	}

	out = postGraphQL(t, routes, "tok-usr_1", `{ userDetails { id name } }`)
	data := out["data"].(map[string]any)["userDetails"].(map[string]any)
	if data["id"] != "usr_1" || data["name"] != "alice" {
		t.Fatalf("userDetails: %v", data)
	}
}

func TestGraphQLAddToCollectionEnqueues(t *testing.T) {
	store := defaultStore()
	queue := &fakeQueue{}
	routes := testServer(t, &fakeSink{}, store, queue).Routes()

	out := postGraphQL(t, routes, "tok-usr_1",
		`mutation { addEntityToCollection(collectionName: "Watchlist", entityId: "met_55") }`)
	if _, hasErrors := out["errors"]; hasErrors {
		t.Fatalf("mutation failed: %v", out)
	}
	if len(store.edges) != 1 || store.edges[0].MetadataID == nil || *store.edges[0].MetadataID != "met_55" {
		t.Fatalf("edges: %+v", store.edges)
	}
	if len(queue.kinds) != 1 || queue.kinds[0] != jobs.KindHandleEntityAddedToCollection {
		t.Fatalf("kinds: %v", queue.kinds)
	}
}

func TestGraphQLPostReviewNormalizesRating(t *testing.T) {
	store := defaultStore()
	// Five-star user: 4 stars must store as 80.
	store.users["usr_1"].Preferences.General.ReviewScale = models.ReviewScaleOutOfFive
	queue := &fakeQueue{}
	routes := testServer(t, &fakeSink{}, store, queue).Routes()

	out := postGraphQL(t, routes, "tok-usr_1",
		`mutation { postReview(entityId: "met_55", rating: 4) }`)
	if _, hasErrors := out["errors"]; hasErrors {
		t.Fatalf("mutation failed: %v", out)
	}
	if len(store.reviews) != 1 {
		t.Fatalf("reviews: %+v", store.reviews)
	}
	if !store.reviews[0].Rating.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("rating = %v", store.reviews[0].Rating)
	}
	if len(queue.kinds) != 1 || queue.kinds[0] != jobs.KindReviewPosted {
		t.Fatalf("kinds: %v", queue.kinds)
	}
}

func TestGraphQLDeleteSeenItem(t *testing.T) {
	routes := testServer(t, &fakeSink{}, defaultStore(), &fakeQueue{}).Routes()

	out := postGraphQL(t, routes, "tok-usr_1",
		`mutation { deleteSeenItem(seenId: "see_1") }`)
	if _, hasErrors := out["errors"]; hasErrors {
		t.Fatalf("mutation failed: %v", out)
	}
	if out["data"].(map[string]any)["deleteSeenItem"] != true {
		t.Fatalf("data: %v", out)
	}

	out = postGraphQL(t, routes, "tok-usr_1",
		`mutation { deleteSeenItem(seenId: "see_404") }`)
	errs, _ := out["errors"].([]any)
	if len(errs) == 0 || !strings.HasPrefix(errs[0].(map[string]any)["message"].(string), "NotFound") {
		t.Fatalf("missing row: %v", out)
	}
}

func TestGraphQLUserCollectionsMemoized(t *testing.T) {
	store := defaultStore()
	routes := testServer(t, &fakeSink{}, store, &fakeQueue{}).Routes()

	for i := 0; i < 2; i++ {
		out := postGraphQL(t, routes, "tok-usr_1", `{ userCollections { name } }`)
		list := out["data"].(map[string]any)["userCollections"].([]any)
		if len(list) != 1 || list[0].(map[string]any)["name"] != "Watchlist" {
			t.Fatalf("collections: %v", out)
		}
	}
	if store.collectionLists != 1 {
		t.Fatalf("store hit %d times, want 1", store.collectionLists)
	}
}

func TestGraphQLMetadataDetailsMemoized(t *testing.T) {
	store := defaultStore()
	store.metadata["met_1"] = &models.Metadata{
		ID: "met_1", Lot: models.MediaLotMovie, Source: models.MediaSourceTmdb,
		Identifier: "603", Title: "The Matrix",
	}
	routes := testServer(t, &fakeSink{}, store, &fakeQueue{}).Routes()

	for i := 0; i < 2; i++ {
		out := postGraphQL(t, routes, "tok-usr_1",
			`{ metadataDetails(metadataId: "met_1") { title lot } }`)
		data := out["data"].(map[string]any)["metadataDetails"].(map[string]any)
		if data["title"] != "The Matrix" || data["lot"] != "movie" {
			t.Fatalf("details: %v", out)
		}
	}
	if store.metadataGets != 1 {
		t.Fatalf("store hit %d times, want 1", store.metadataGets)
	}
}

func TestGraphQLUserMetadataDetails(t *testing.T) {
	store := defaultStore()
	store.openSeen["usr_1/met_1"] = &models.Seen{
		ID: "see_1", UserID: "usr_1", MetadataID: "met_1",
		State: models.SeenStateInProgress, Progress: decimal.NewFromInt(40),
	}
	store.doneSeen["usr_1/met_1"] = []*models.Seen{
		{ID: "see_0", State: models.SeenStateCompleted},
	}
	routes := testServer(t, &fakeSink{}, store, &fakeQueue{}).Routes()

	out := postGraphQL(t, routes, "tok-usr_1",
		`{ userMetadataDetails(metadataId: "met_1") { hasInProgress progress timesFinished } }`)
	data := out["data"].(map[string]any)["userMetadataDetails"].(map[string]any)
	if data["hasInProgress"] != true || data["progress"] != float64(40) || data["timesFinished"] != float64(1) {
		t.Fatalf("details: %v", data)
	}

	out = postGraphQL(t, routes, "tok-usr_1",
		`{ userMetadataDetails(metadataId: "met_9") { hasInProgress timesFinished } }`)
	data = out["data"].(map[string]any)["userMetadataDetails"].(map[string]any)
	if data["hasInProgress"] != false || data["timesFinished"] != float64(0) {
		t.Fatalf("untouched row: %v", data)
	}
}

func TestGraphQLDeployBackgroundJobGating(t *testing.T) {
	queue := &fakeQueue{}
	routes := testServer(t, &fakeSink{}, defaultStore(), queue).Routes()

	out := postGraphQL(t, routes, "tok-usr_1",
		`mutation { deployBackgroundJob(jobName: "sync_integrations_data") }`)
	errs, _ := out["errors"].([]any)
	if len(errs) == 0 || !strings.HasPrefix(errs[0].(map[string]any)["message"].(string), "AdminOnly") {
		t.Fatalf("normal user ran admin job: %v", out)
	}

	out = postGraphQL(t, routes, "tok-admin",
		`mutation { deployBackgroundJob(jobName: "sync_integrations_data") }`)
	if _, hasErrors := out["errors"]; hasErrors {
		t.Fatalf("admin job failed: %v", out)
	}
	if len(queue.kinds) != 1 || queue.kinds[0] != jobs.KindSyncIntegrationsData {
		t.Fatalf("kinds: %v", queue.kinds)
	}
}

func TestLogDownloadRejectsBadToken(t *testing.T) {
	routes := testServer(t, &fakeSink{}, defaultStore(), &fakeQueue{}).Routes()
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/download/bogus", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestValidateInputMapsToInvalidInput(t *testing.T) {
	err := validateInput(registerRequest{Username: "ab", Password: "password1"})
	if err == nil || !strings.HasPrefix(err.Error(), "InvalidInput:") {
		t.Fatalf("short username err = %v", err)
	}
	err = validateInput(reviewRequest{EntityID: "met_1", Visibility: "friends"})
	if err == nil || !strings.HasPrefix(err.Error(), "InvalidInput:") {
		t.Fatalf("bad visibility err = %v", err)
	}
	if err := validateInput(reviewRequest{EntityID: "met_1", Visibility: "private"}); err != nil {
		t.Fatalf("valid review err = %v", err)
	}
}
