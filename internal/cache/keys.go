// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package cache

import (
	"fmt"
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// KeyDiscriminant names a cache key family. Expiry by discriminant wipes
// every key of the family for one user in a single call.
type KeyDiscriminant string

const (
	DiscUserCollectionsList    KeyDiscriminant = "user_collections_list"
	DiscUserCollectionContents KeyDiscriminant = "user_collection_contents"
	DiscMetadataDetails        KeyDiscriminant = "metadata_details"
	DiscUserMetadataDetails    KeyDiscriminant = "user_metadata_details"
	DiscMetadataSearch         KeyDiscriminant = "metadata_search"
	DiscProviderGenres         KeyDiscriminant = "provider_genres"
	DiscUserAnalytics          KeyDiscriminant = "user_analytics"
	DiscIgdbToken              KeyDiscriminant = "igdb_token"
)

// Key is a closed sum of cache key shapes. UserID is empty for
// process-wide keys. The typed shape prevents stringly-typed cache misuse:
// a get with the wrong key shape cannot match.
type Key struct {
	Discriminant KeyDiscriminant
	UserID       string

	CollectionID string
	MetadataID   string
	Lot          models.MediaLot
	Source       models.MediaSource
	Query        string
	Page         int
}

// UserCollectionsListKey caches the list of a user's collections.
func UserCollectionsListKey(userID string) Key {
	return Key{Discriminant: DiscUserCollectionsList, UserID: userID}
}

// UserCollectionContentsKey caches one collection's contents page set.
func UserCollectionContentsKey(userID, collectionID string) Key {
	return Key{Discriminant: DiscUserCollectionContents, UserID: userID, CollectionID: collectionID}
}

// MetadataDetailsKey caches a metadata row's assembled details.
func MetadataDetailsKey(metadataID string) Key {
	return Key{Discriminant: DiscMetadataDetails, MetadataID: metadataID}
}

// UserMetadataDetailsKey caches the user-scoped view of a metadata row.
func UserMetadataDetailsKey(userID, metadataID string) Key {
	return Key{Discriminant: DiscUserMetadataDetails, UserID: userID, MetadataID: metadataID}
}

// UserAnalyticsKey caches the all-time summary row of one user.
func UserAnalyticsKey(userID string) Key {
	return Key{Discriminant: DiscUserAnalytics, UserID: userID}
}

// MetadataSearchKey caches one provider search page for one user.
func MetadataSearchKey(userID string, lot models.MediaLot, source models.MediaSource, query string, page int) Key {
	return Key{
		Discriminant: DiscMetadataSearch, UserID: userID,
		Lot: lot, Source: source, Query: query, Page: page,
	}
}

// ProviderGenresKey caches a provider's genre table, process-wide.
func ProviderGenresKey(source models.MediaSource) Key {
	return Key{Discriminant: DiscProviderGenres, Source: source}
}

// IgdbTokenKey caches the Twitch OAuth token used by the IGDB adapter.
func IgdbTokenKey() Key {
	return Key{Discriminant: DiscIgdbToken}
}

// String renders the canonical storage key.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d",
		k.Discriminant, k.UserID, k.CollectionID, k.MetadataID,
		k.Lot, k.Source, k.Query, k.Page)
}

// prefixForDiscriminant is what expire-by-discriminant matches against.
func prefixForDiscriminant(d KeyDiscriminant, userID string) string {
	return fmt.Sprintf("%s|%s|", d, userID)
}

// UserMetadataDetailsKeyMatches reports whether a rendered key belongs to
// the UserMetadataDetails family for the given metadata id, regardless of
// user. Used with ExpireWhere when a metadata row is refreshed.
func UserMetadataDetailsKeyMatches(rendered, metadataID string) bool {
	return strings.HasPrefix(rendered, string(DiscUserMetadataDetails)+"|") &&
		strings.Contains(rendered, "|"+metadataID+"|")
}
