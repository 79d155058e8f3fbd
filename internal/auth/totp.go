// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/pquerna/otp/totp"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const (
	totpIssuer      = "Shelfwatch"
	backupCodeCount = 10
	backupCodeLen   = 8
)

// TwoFactorSetup carries the one-time secrets handed to the user during
// enrollment. Neither field is ever stored or returned again.
type TwoFactorSetup struct {
	Secret      string
	OtpauthURL  string
	BackupCodes []string
}

// InitiateTwoFactor enrolls a user: generates the TOTP secret and backup
// codes, stores them obfuscated respectively hashed, and returns the raw
// values for the user to save. The enrollment stays pending until
// FinishTwoFactorSetup sees a valid passcode.
func (s *Service) InitiateTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: user.Name})
	if err != nil {
		return nil, fmt.Errorf("auth: generate totp secret: %w", err)
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	info := &models.TwoFactorInformation{
		ObfuscatedSecret: obfuscateSecret(key.Secret(), s.cfg.JWTSecret),
		BackupCodeHashes: hashes,
	}
	if err := s.store.SetUserTwoFactor(ctx, userID, info); err != nil {
		return nil, fmt.Errorf("auth: store two-factor enrollment: %w", err)
	}
	return &TwoFactorSetup{Secret: key.Secret(), OtpauthURL: key.URL(), BackupCodes: codes}, nil
}

// FinishTwoFactorSetup activates a pending enrollment once the user
// proves they hold the secret.
func (s *Service) FinishTwoFactorSetup(ctx context.Context, userID, code string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	info := user.TwoFactorInformation
	if info == nil {
		return ErrTwoFactorInvalid
	}
	secret := deobfuscateSecret(info.ObfuscatedSecret, s.cfg.JWTSecret)
	if !totp.Validate(code, secret) {
		return ErrTwoFactorInvalid
	}
	now := s.now().UTC()
	info.ActivatedOn = &now
	return s.store.SetUserTwoFactor(ctx, userID, info)
}

// DisableTwoFactor clears the enrollment.
func (s *Service) DisableTwoFactor(ctx context.Context, userID string) error {
	return s.store.SetUserTwoFactor(ctx, userID, nil)
}

// verifySecondFactor accepts a TOTP passcode or consumes an unused backup
// code.
func (s *Service) verifySecondFactor(ctx context.Context, user *models.User, code string) error {
	info := user.TwoFactorInformation
	secret := deobfuscateSecret(info.ObfuscatedSecret, s.cfg.JWTSecret)
	if totp.Validate(code, secret) {
		return nil
	}
	for i, hash := range info.BackupCodeHashes {
		if VerifyPassword(code, hash) {
			info.BackupCodeHashes = append(info.BackupCodeHashes[:i], info.BackupCodeHashes[i+1:]...)
			return s.store.SetUserTwoFactor(ctx, user.ID, info)
		}
	}
	return ErrTwoFactorInvalid
}

func generateBackupCodes() (codes, hashes []string, err error) {
	for i := 0; i < backupCodeCount; i++ {
		code, err := randomDigits(backupCodeLen)
		if err != nil {
			return nil, nil, fmt.Errorf("auth: generate backup code: %w", err)
		}
		hash, err := HashPassword(code)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}
	return codes, hashes, nil
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}

// obfuscateSecret XORs the secret with the JWT secret and base64-encodes
// it. This keeps raw secrets out of database dumps and query results; it
// is obfuscation, not encryption, and the database role boundary is the
// actual protection.
func obfuscateSecret(secret, key string) string {
	if key == "" {
		return base64.StdEncoding.EncodeToString([]byte(secret))
	}
	out := make([]byte, len(secret))
	for i := 0; i < len(secret); i++ {
		out[i] = secret[i] ^ key[i%len(key)]
	}
	return base64.StdEncoding.EncodeToString(out)
}

func deobfuscateSecret(encoded, key string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	if key == "" {
		return string(raw)
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		out[i] = raw[i] ^ key[i%len(key)]
	}
	return string(out)
}
