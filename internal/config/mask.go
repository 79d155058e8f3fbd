// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package config

// MaskValue replaces sensitive config fields for display.
const MaskValue = "****"

// Masked returns a copy of the config with every sensitive field replaced
// by the mask; served at GET /config.
func (c *Config) Masked() Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = MaskValue
		}
	}
	mask(&out.Database.URL)
	mask(&out.Security.JWTSecret)
	mask(&out.Security.ServerKey)
	mask(&out.Security.OidcClientSecret)
	mask(&out.Providers.TmdbAccessToken)
	mask(&out.Providers.TwitchClientID)
	mask(&out.Providers.TwitchClientSecret)
	mask(&out.Providers.ListennotesToken)
	mask(&out.Providers.MalClientID)
	mask(&out.Providers.TvdbAPIKey)
	mask(&out.Providers.GoogleBooksAPIKey)
	mask(&out.Providers.HardcoverToken)
	mask(&out.Storage.AccessKeyID)
	mask(&out.Storage.SecretAccessKey)
	mask(&out.Email.AccessKeyID)
	mask(&out.Email.SecretAccessKey)
	return out
}
