// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import "time"

// User is an account. Either PasswordHash or OidcIssuerID is set depending
// on how the account was created.
type User struct {
	ID                    string                 `json:"id"`
	Name                  string                 `json:"name"`
	PasswordHash          *string                `json:"-"`
	OidcIssuerID          *string                `json:"oidc_issuer_id,omitempty"`
	Lot                   UserLot                `json:"lot"`
	Preferences           UserPreferences        `json:"preferences"`
	TwoFactorInformation  *TwoFactorInformation  `json:"-"`
	IsDisabled            bool                   `json:"is_disabled"`
	TimezoneOffsetMinutes int                    `json:"timezone_offset_minutes"`
	CreatedOn             time.Time              `json:"created_on"`
	LastUpdatedOn         time.Time              `json:"last_updated_on"`
}

// UserPreferences is the nested preference structure. Only the knobs the
// core consults are modeled; the dashboard layout is opaque to the server.
type UserPreferences struct {
	Features      FeaturePreferences      `json:"features"`
	Notifications NotificationPreferences `json:"notifications"`
	Fitness       FitnessPreferences      `json:"fitness"`
	General       GeneralPreferences      `json:"general"`
}

// FeaturePreferences toggles entire subsystems per user.
type FeaturePreferences struct {
	Media       map[MediaLot]bool `json:"media"`
	Fitness     bool              `json:"fitness"`
	Measurements bool             `json:"measurements"`
	Analytics   bool              `json:"analytics"`
}

// NotificationPreferences controls which change kinds reach the user.
type NotificationPreferences struct {
	Enabled    bool                `json:"enabled"`
	ToSend     []MediaStateChanged `json:"to_send"`
}

// WantsChange reports whether the user subscribed to a change kind.
func (p NotificationPreferences) WantsChange(change MediaStateChanged) bool {
	if !p.Enabled {
		return false
	}
	for _, c := range p.ToSend {
		if c == change {
			return true
		}
	}
	return false
}

// FitnessUnitSystem selects display units for weights and distances.
type FitnessUnitSystem string

const (
	UnitSystemMetric   FitnessUnitSystem = "metric"
	UnitSystemImperial FitnessUnitSystem = "imperial"
)

// FitnessPreferences holds workout-related knobs.
type FitnessPreferences struct {
	UnitSystem          FitnessUnitSystem `json:"unit_system"`
	DefaultRestTimer    *int              `json:"default_rest_timer,omitempty"` // seconds
	PromptForRestTimer  bool              `json:"prompt_for_rest_timer"`
}

// GeneralPreferences holds display and provider knobs.
type GeneralPreferences struct {
	ReviewScale        UserReviewScale         `json:"review_scale"`
	DisplayNsfw        bool                    `json:"display_nsfw"`
	DisableReviews     bool                    `json:"disable_reviews"`
	ProviderLanguages  map[MediaSource]string  `json:"provider_languages,omitempty"`
	DashboardLayout    []string                `json:"dashboard_layout,omitempty"`
}

// DefaultUserPreferences returns the preference tree a new account starts
// with: every media lot enabled, metric units, hundred-point ratings.
func DefaultUserPreferences() UserPreferences {
	media := make(map[MediaLot]bool, len(AllMediaLots))
	for _, lot := range AllMediaLots {
		media[lot] = true
	}
	return UserPreferences{
		Features: FeaturePreferences{
			Media:        media,
			Fitness:      true,
			Measurements: true,
			Analytics:    true,
		},
		Notifications: NotificationPreferences{
			Enabled: true,
			ToSend: []MediaStateChanged{
				ChangeMetadataPublished,
				ChangeMetadataStatusChanged,
				ChangeMetadataReleaseDateChanged,
				ChangeMetadataNumberOfSeasonsChanged,
				ChangeMetadataEpisodeReleased,
				ChangeMetadataChaptersOrEpisodesChanged,
				ChangePersonMediaAssociated,
				ChangeReviewPosted,
			},
		},
		Fitness: FitnessPreferences{
			UnitSystem:         UnitSystemMetric,
			PromptForRestTimer: true,
		},
		General: GeneralPreferences{
			ReviewScale: ReviewScaleOutOfHundred,
		},
	}
}

// TwoFactorInformation holds the TOTP secret (obfuscated at rest) and the
// argon2 hashes of unused backup codes. Raw secrets never leave the auth
// package.
type TwoFactorInformation struct {
	ObfuscatedSecret string   `json:"secret"`
	BackupCodeHashes []string `json:"backup_codes"`
	ActivatedOn      *time.Time `json:"activated_on,omitempty"`
}

// NotificationPlatform is a configured delivery target for a user.
type NotificationPlatform struct {
	ID               string                   `json:"id"`
	UserID           string                   `json:"user_id"`
	Kind             NotificationPlatformKind `json:"kind"`
	Settings         NotificationPlatformSettings `json:"settings"`
	IsDisabled       bool                     `json:"is_disabled"`
	ConfiguredEvents []MediaStateChanged      `json:"configured_events"`
	CreatedOn        time.Time                `json:"created_on"`
}

// WantsEvent reports whether this platform subscribed to a change kind.
func (p *NotificationPlatform) WantsEvent(change MediaStateChanged) bool {
	if p.IsDisabled {
		return false
	}
	for _, e := range p.ConfiguredEvents {
		if e == change {
			return true
		}
	}
	return false
}

// NotificationPlatformSettings is the union of per-platform credentials.
// Only the fields for the platform's kind are populated.
type NotificationPlatformSettings struct {
	// apprise / generic webhook
	BaseURL string `json:"base_url,omitempty"`
	Key     string `json:"key,omitempty"`
	// discord
	WebhookURL string `json:"webhook_url,omitempty"`
	// gotify / ntfy
	Token    string `json:"token,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Topic    string `json:"topic,omitempty"`
	AuthHeader string `json:"auth_header,omitempty"`
	// pushbullet / pushover / pushsafer
	APIToken string `json:"api_token,omitempty"`
	UserKey  string `json:"user_key,omitempty"`
	// email
	ToEmail string `json:"to_email,omitempty"`
	// telegram
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}
