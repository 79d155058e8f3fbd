// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package auth owns credentials: argon2id password hashing, session and
// log-download JWTs, and TOTP two-factor with argon2-hashed backup
// codes. Raw TOTP secrets never leave this package.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

var (
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrRegistrationDisabled = errors.New("auth: registration is disabled")
	ErrUserDisabled         = errors.New("auth: user is disabled")
	ErrTwoFactorRequired    = errors.New("auth: two-factor code required")
	ErrTwoFactorInvalid     = errors.New("auth: two-factor code invalid")
	ErrSessionExpired       = errors.New("auth: session expired")
)

// argon2id parameters. Changing them only affects new hashes; the encoded
// form carries the parameters each hash was created with.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonSaltLen = 16
	argonKeyLen  = 32
)

// Store is the persistence surface the service needs. *database.DB
// satisfies it.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	SetUserTwoFactor(ctx context.Context, userID string, info *models.TwoFactorInformation) error
	SetUserDisabled(ctx context.Context, userID string, disabled bool) error
	EnsureDefaultCollections(ctx context.Context, userID string) error
}

// Service implements registration, login and token issuance.
type Service struct {
	store Store
	cfg   config.SecurityConfig
	now   func() time.Time
}

func New(store Store, cfg config.SecurityConfig) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// HashPassword produces an encoded argon2id hash:
// $argon2id$v=19$m=...,t=...,p=...$salt$digest (both base64, no padding).
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifyPassword checks a password against an encoded argon2id hash in
// constant time.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Register creates a user. The first user of the instance becomes admin;
// later registrations are normal users and can be disabled instance-wide.
func (s *Service) Register(ctx context.Context, name, password string) (*models.User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: count users: %w", err)
	}
	if count > 0 && s.cfg.DisableRegistration {
		return nil, ErrRegistrationDisabled
	}
	if name == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if _, err := s.store.GetUserByName(ctx, name); err == nil {
		return nil, fmt.Errorf("auth: user %q already exists", name)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	lot := models.UserLotNormal
	if count == 0 {
		lot = models.UserLotAdmin
	}
	now := s.now().UTC()
	user := &models.User{
		ID:            models.NewID("usr"),
		Name:          name,
		PasswordHash:  &hash,
		Lot:           lot,
		Preferences:   models.DefaultUserPreferences(),
		CreatedOn:     now,
		LastUpdatedOn: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	if err := s.store.EnsureDefaultCollections(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("auth: bootstrap collections: %w", err)
	}
	return user, nil
}

// LoginResult is the outcome of a password check. When TwoFactorRequired
// is set the token is empty and the client must follow up with
// CompleteTwoFactor.
type LoginResult struct {
	UserID            string
	Token             string
	TwoFactorRequired bool
}

// Login verifies the password and either issues a session token or
// demands the second factor.
func (s *Service) Login(ctx context.Context, name, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.IsDisabled {
		return nil, ErrUserDisabled
	}
	if user.PasswordHash == nil || !VerifyPassword(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorInformation != nil && user.TwoFactorInformation.ActivatedOn != nil {
		return &LoginResult{UserID: user.ID, TwoFactorRequired: true}, nil
	}
	token, err := s.IssueToken(user.ID, user.Lot)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: user.ID, Token: token}, nil
}

// CompleteTwoFactor finishes a login held on the second factor. The code
// may be a TOTP passcode or an unused backup code; a matched backup code
// is consumed.
func (s *Service) CompleteTwoFactor(ctx context.Context, userID, code string) (*LoginResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsDisabled {
		return nil, ErrUserDisabled
	}
	if user.TwoFactorInformation == nil || user.TwoFactorInformation.ActivatedOn == nil {
		return nil, ErrTwoFactorInvalid
	}
	if err := s.verifySecondFactor(ctx, user, code); err != nil {
		return nil, err
	}
	token, err := s.IssueToken(user.ID, user.Lot)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: user.ID, Token: token}, nil
}

// SetDisabled toggles a user's disabled flag. Disabled users fail login
// and are skipped by monitors and integration sweeps.
func (s *Service) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	return s.store.SetUserDisabled(ctx, userID, disabled)
}

// ChangePassword re-hashes and stores a new password.
func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdateUserPassword(ctx, userID, hash)
}

// Claims is the session token payload.
type Claims struct {
	Lot models.UserLot `json:"lot"`
	// Scope distinguishes session tokens from single-purpose ones.
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken mints a session JWT valid for the configured duration.
func (s *Service) IssueToken(userID string, lot models.UserLot) (string, error) {
	return s.issue(userID, lot, "", s.cfg.SessionDuration)
}

// IssueLogDownloadToken mints a short-lived token that only authorizes
// downloading rotated log files.
func (s *Service) IssueLogDownloadToken(userID string) (string, error) {
	return s.issue(userID, models.UserLotAdmin, "logs", 15*time.Minute)
}

func (s *Service) issue(userID string, lot models.UserLot, scope string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Lot:   lot,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// VerifyToken parses and validates a session token.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.verify(token, "")
}

// VerifyLogDownloadToken accepts only tokens minted by
// IssueLogDownloadToken.
func (s *Service) VerifyLogDownloadToken(token string) (*Claims, error) {
	return s.verify(token, "logs")
}

func (s *Service) verify(token, scope string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("auth: %w", err)
	}
	if claims.Scope != scope {
		return nil, errors.New("auth: token scope mismatch")
	}
	return claims, nil
}
