// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

type fakeStore struct {
	users       map[string]*models.User
	collections []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*models.User{}}
}

func (s *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetUserByName(_ context.Context, name string) (*models.User, error) {
	for _, u := range s.users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) CountUsers(_ context.Context) (int, error) { return len(s.users), nil }

func (s *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	s.users[userID].PasswordHash = &hash
	return nil
}

func (s *fakeStore) SetUserTwoFactor(_ context.Context, userID string, info *models.TwoFactorInformation) error {
	s.users[userID].TwoFactorInformation = info
	return nil
}

func (s *fakeStore) SetUserDisabled(_ context.Context, userID string, disabled bool) error {
	s.users[userID].IsDisabled = disabled
	return nil
}

func (s *fakeStore) EnsureDefaultCollections(_ context.Context, userID string) error {
	s.collections = append(s.collections, userID)
	return nil
}

func testService(store *fakeStore) *Service {
	return New(store, config.SecurityConfig{
		JWTSecret:       "test-secret",
		SessionDuration: time.Hour,
	})
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword("hunter2!", hash) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("hunter3!", hash) {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("hunter2!", "$argon2id$garbage") {
		t.Fatal("malformed hash accepted")
	}
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	first, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Lot != models.UserLotAdmin {
		t.Fatalf("first user lot = %s", first.Lot)
	}

	second, err := service.Register(ctx, "bob", "password2")
	if err != nil {
		t.Fatal(err)
	}
	if second.Lot != models.UserLotNormal {
		t.Fatalf("second user lot = %s", second.Lot)
	}
	if len(store.collections) != 2 {
		t.Fatalf("default collections bootstrapped for %v", store.collections)
	}
}

func TestRegistrationDisabled(t *testing.T) {
	store := newFakeStore()
	service := New(store, config.SecurityConfig{
		JWTSecret: "k", SessionDuration: time.Hour, DisableRegistration: true,
	})
	ctx := context.Background()

	// The first user always gets through so the instance is bootstrappable.
	if _, err := service.Register(ctx, "admin", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := service.Register(ctx, "bob", "pw"); !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}

	result, err := service.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if result.TwoFactorRequired || result.Token == "" {
		t.Fatalf("result: %+v", result)
	}

	claims, err := service.VerifyToken(result.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != user.ID || claims.Lot != models.UserLotAdmin {
		t.Fatalf("claims: %+v", claims)
	}
	// A session token never passes the log-download gate.
	if _, err := service.VerifyLogDownloadToken(result.Token); err == nil {
		t.Fatal("session token accepted for log download")
	}
}

func TestLoginRejections(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := service.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := service.Login(ctx, "nobody", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}

	if err := service.SetDisabled(ctx, user.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := service.Login(ctx, "alice", "password1"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("disabled user: %v", err)
	}
}

func TestExpiredTokenSurfacesSessionExpired(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	token, err := service.IssueToken(user.ID, user.Lot)
	if err != nil {
		t.Fatal(err)
	}

	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := service.VerifyToken(token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestTwoFactorEnrollmentAndLogin(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	setup, err := service.InitiateTwoFactor(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(setup.BackupCodes) != backupCodeCount || setup.Secret == "" {
		t.Fatalf("setup: %+v", setup)
	}
	// The stored secret must not be the raw one.
	if stored := store.users[user.ID].TwoFactorInformation.ObfuscatedSecret; stored == setup.Secret {
		t.Fatal("secret stored raw")
	}
	if got := deobfuscateSecret(store.users[user.ID].TwoFactorInformation.ObfuscatedSecret, "test-secret"); got != setup.Secret {
		t.Fatalf("deobfuscated = %q", got)
	}

	// Pending enrollment does not yet gate login.
	result, err := service.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if result.TwoFactorRequired {
		t.Fatal("pending enrollment already enforced")
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := service.FinishTwoFactorSetup(ctx, user.ID, code); err != nil {
		t.Fatal(err)
	}

	result, err = service.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.TwoFactorRequired || result.Token != "" {
		t.Fatalf("result: %+v", result)
	}

	if _, err := service.CompleteTwoFactor(ctx, user.ID, "000000"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("bad code: %v", err)
	}
	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	finished, err := service.CompleteTwoFactor(ctx, user.ID, code)
	if err != nil {
		t.Fatal(err)
	}
	if finished.Token == "" {
		t.Fatal("no token after second factor")
	}
}

func TestBackupCodeIsConsumed(t *testing.T) {
	store := newFakeStore()
	service := testService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}
	setup, err := service.InitiateTwoFactor(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := service.FinishTwoFactorSetup(ctx, user.ID, code); err != nil {
		t.Fatal(err)
	}

	backup := setup.BackupCodes[3]
	if _, err := service.CompleteTwoFactor(ctx, user.ID, backup); err != nil {
		t.Fatal(err)
	}
	if got := len(store.users[user.ID].TwoFactorInformation.BackupCodeHashes); got != backupCodeCount-1 {
		t.Fatalf("remaining backup codes = %d", got)
	}
	// Replaying the same backup code must fail.
	if _, err := service.CompleteTwoFactor(ctx, user.ID, backup); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("replayed backup code: %v", err)
	}
}
