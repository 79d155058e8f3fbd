// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const userColumns = `id, name, password_hash, oidc_issuer_id, lot,
	preferences, two_factor_information, is_disabled,
	timezone_offset_minutes, created_at, last_updated_on`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var prefs, twoFactor []byte
	err := row.Scan(
		&u.ID, &u.Name, &u.PasswordHash, &u.OidcIssuerID, &u.Lot,
		&prefs, &twoFactor, &u.IsDisabled,
		&u.TimezoneOffsetMinutes, &u.CreatedOn, &u.LastUpdatedOn,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(prefs, &u.Preferences); err != nil {
		return nil, err
	}
	if err := fromJSONB(twoFactor, &u.TwoFactorInformation); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new account. The first account of the server is
// created as an admin by the caller.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO app_user (id, name, password_hash, oidc_issuer_id, lot,
			preferences, is_disabled, timezone_offset_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.PasswordHash, u.OidcIssuerID, u.Lot,
		mustJSONB(u.Preferences), u.IsDisabled, u.TimezoneOffsetMinutes)
	if err != nil {
		return fmt.Errorf("database: create user: %w", err)
	}
	return nil
}

// GetUser fetches an account by id.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM app_user WHERE id = $1", id))
}

// GetUserByName fetches an account by its unique name.
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM app_user WHERE name = $1", name))
}

// GetUserByOidcIssuerID fetches an account by its OIDC subject.
func (db *DB) GetUserByOidcIssuerID(ctx context.Context, issuerID string) (*models.User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM app_user WHERE oidc_issuer_id = $1", issuerID))
}

// CountUsers returns the total account count, used to decide whether the
// next registration becomes the admin.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM app_user").Scan(&count)
	return count, err
}

// ListUserIDs returns every enabled account id, for scheduler fan-out.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, "SELECT id FROM app_user WHERE NOT is_disabled ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateUserPreferences replaces the preference tree.
func (db *DB) UpdateUserPreferences(ctx context.Context, userID string, prefs models.UserPreferences) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE app_user SET preferences = $2, last_updated_on = $3 WHERE id = $1",
		userID, mustJSONB(prefs), now())
	return err
}

// UpdateUserPassword replaces the password hash.
func (db *DB) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE app_user SET password_hash = $2, last_updated_on = $3 WHERE id = $1",
		userID, passwordHash, now())
	return err
}

// SetUserTwoFactor stores (or clears, with nil) the two-factor record.
func (db *DB) SetUserTwoFactor(ctx context.Context, userID string, info *models.TwoFactorInformation) error {
	param, err := jsonb(info)
	if err != nil {
		return err
	}
	if info == nil {
		param = nil
	}
	_, err = db.pool.Exec(ctx,
		"UPDATE app_user SET two_factor_information = $2, last_updated_on = $3 WHERE id = $1",
		userID, param, now())
	return err
}

// SetUserDisabled toggles the account lockout flag.
func (db *DB) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE app_user SET is_disabled = $2, last_updated_on = $3 WHERE id = $1",
		userID, disabled, now())
	return err
}

// DeleteUser removes the account; dependent rows cascade.
func (db *DB) DeleteUser(ctx context.Context, userID string) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM app_user WHERE id = $1", userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
