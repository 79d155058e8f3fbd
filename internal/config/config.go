// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package config loads and validates the Shelfwatch configuration.
//
// Configuration is merged in priority order: struct defaults, then the
// first config file found, then environment variables prefixed with
// SHELFWATCH_ (nested keys split on "__", e.g.
// SHELFWATCH_DATABASE__URL).
package config

import (
	"fmt"
	"time"
)

// Config is the complete application configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server" json:"server"`
	Database  DatabaseConfig  `koanf:"database" json:"database"`
	Security  SecurityConfig  `koanf:"security" json:"security"`
	Providers ProvidersConfig `koanf:"providers" json:"providers"`
	Jobs      JobsConfig      `koanf:"jobs" json:"jobs"`
	Scheduler SchedulerConfig `koanf:"scheduler" json:"scheduler"`
	Importer  ImporterConfig  `koanf:"importer" json:"importer"`
	Storage   StorageConfig   `koanf:"storage" json:"storage"`
	Email     EmailConfig     `koanf:"email" json:"email"`
	Logging   LoggingConfig   `koanf:"logging" json:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string        `koanf:"host" json:"host"`
	Port              int           `koanf:"port" json:"port"`
	Timeout           time.Duration `koanf:"timeout" json:"timeout"`
	CORSOrigins       []string      `koanf:"cors_origins" json:"cors_origins"`
	GraphiQLEnabled   bool          `koanf:"graphiql_enabled" json:"graphiql_enabled"`
	MaxUploadSizeMB   int           `koanf:"max_upload_size_mb" json:"max_upload_size_mb"`
	WebhookRateLimit  int           `koanf:"webhook_rate_limit" json:"webhook_rate_limit"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url"`
	MaxConns        int           `koanf:"max_conns" json:"max_conns"`
	MinConns        int           `koanf:"min_conns" json:"min_conns"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout"`
	RunMigrations   bool          `koanf:"run_migrations" json:"run_migrations"`
}

// SecurityConfig holds auth and token settings.
type SecurityConfig struct {
	JWTSecret        string        `koanf:"jwt_secret" json:"jwt_secret"`
	SessionDuration  time.Duration `koanf:"session_duration" json:"session_duration"`
	ServerKey        string        `koanf:"server_key" json:"server_key"`
	DisableRegistration bool       `koanf:"disable_registration" json:"disable_registration"`
	OidcEnabled      bool          `koanf:"oidc_enabled" json:"oidc_enabled"`
	OidcClientSecret string        `koanf:"oidc_client_secret" json:"oidc_client_secret"`
}

// ProvidersConfig holds per-provider credentials and knobs.
type ProvidersConfig struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout"`

	TmdbAccessToken    string `koanf:"tmdb_access_token" json:"tmdb_access_token"`
	TmdbLocale         string `koanf:"tmdb_locale" json:"tmdb_locale"`
	TwitchClientID     string `koanf:"twitch_client_id" json:"twitch_client_id"`
	TwitchClientSecret string `koanf:"twitch_client_secret" json:"twitch_client_secret"`
	ListennotesToken   string `koanf:"listennotes_token" json:"listennotes_token"`
	MalClientID        string `koanf:"mal_client_id" json:"mal_client_id"`
	TvdbAPIKey         string `koanf:"tvdb_api_key" json:"tvdb_api_key"`
	GoogleBooksAPIKey  string `koanf:"google_books_api_key" json:"google_books_api_key"`
	HardcoverToken     string `koanf:"hardcover_token" json:"hardcover_token"`
}

// JobsConfig tunes the background job pipeline.
type JobsConfig struct {
	LpWorkers     int           `koanf:"lp_workers" json:"lp_workers"`
	MpWorkers     int           `koanf:"mp_workers" json:"mp_workers"`
	HpWorkers     int           `koanf:"hp_workers" json:"hp_workers"`
	QueueDepth    int           `koanf:"queue_depth" json:"queue_depth"`
	MaxRetries    int           `koanf:"max_retries" json:"max_retries"`
	RetryInitial  time.Duration `koanf:"retry_initial" json:"retry_initial"`
	RetryMax      time.Duration `koanf:"retry_max" json:"retry_max"`
	CloseTimeout  time.Duration `koanf:"close_timeout" json:"close_timeout"`
}

// SchedulerConfig sets the periodic sweep cadences. The metadata refresh
// interval is deliberately configurable: the sweep has no inherent cadence.
type SchedulerConfig struct {
	Tick                    time.Duration `koanf:"tick" json:"tick"`
	IntegrationSyncInterval time.Duration `koanf:"integration_sync_interval" json:"integration_sync_interval"`
	MetadataRefreshInterval time.Duration `koanf:"metadata_refresh_interval" json:"metadata_refresh_interval"`
	CalendarRefreshInterval time.Duration `koanf:"calendar_refresh_interval" json:"calendar_refresh_interval"`
}

// ImporterConfig tunes import behavior.
type ImporterConfig struct {
	// StrictShelves surfaces unknown shelf/status names as failed items
	// instead of skipping them silently.
	StrictShelves bool `koanf:"strict_shelves" json:"strict_shelves"`
}

// StorageConfig holds the S3-compatible object store settings.
type StorageConfig struct {
	Endpoint     string `koanf:"endpoint" json:"endpoint"`
	Region       string `koanf:"region" json:"region"`
	Bucket       string `koanf:"bucket" json:"bucket"`
	AccessKeyID  string `koanf:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key" json:"secret_access_key"`
	UsePathStyle bool   `koanf:"use_path_style" json:"use_path_style"`
	PresignExpiry time.Duration `koanf:"presign_expiry" json:"presign_expiry"`
}

// EmailConfig holds outbound mail settings (SES).
type EmailConfig struct {
	Region    string `koanf:"region" json:"region"`
	FromEmail string `koanf:"from_email" json:"from_email"`
	AccessKeyID string `koanf:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key" json:"secret_access_key"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
	// Dir is where rotated log files live; the log download endpoint
	// archives this directory. Empty disables the download.
	Dir string `koanf:"dir" json:"dir"`
}

// defaultConfig returns a Config with all sensible default values; these
// are applied first and then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5000,
			Timeout:          30 * time.Second,
			CORSOrigins:      []string{"*"},
			GraphiQLEnabled:  false,
			MaxUploadSizeMB:  50,
			WebhookRateLimit: 60,
		},
		Database: DatabaseConfig{
			URL:            "",
			MaxConns:       10,
			MinConns:       2,
			ConnectTimeout: 10 * time.Second,
			RunMigrations:  true,
		},
		Security: SecurityConfig{
			SessionDuration: 90 * 24 * time.Hour,
		},
		Providers: ProvidersConfig{
			Timeout:    30 * time.Second,
			TmdbLocale: "en",
		},
		Jobs: JobsConfig{
			LpWorkers:    1,
			MpWorkers:    3,
			HpWorkers:    2,
			QueueDepth:   1000,
			MaxRetries:   5,
			RetryInitial: time.Second,
			RetryMax:     time.Minute,
			CloseTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Tick:                    time.Minute,
			IntegrationSyncInterval: 5 * time.Minute,
			MetadataRefreshInterval: 720 * time.Hour,
			CalendarRefreshInterval: 12 * time.Hour,
		},
		Storage: StorageConfig{
			Region:        "us-east-1",
			PresignExpiry: 90 * time.Minute,
		},
		Email: EmailConfig{
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the loaded configuration for fatal problems. A failure
// here exits the process with code 1.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("config: security.jwt_secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("config: jobs.queue_depth must be positive")
	}
	return nil
}
