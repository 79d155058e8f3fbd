// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package cache

import (
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

func TestSetAndGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := MetadataDetailsKey("met_abc123def456")
	c.SetKey(key, "value")

	got, ok := c.GetValue(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "value" {
		t.Errorf("got %v, want value", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.GetValue(MetadataDetailsKey("met_nothere00000")); ok {
		t.Error("expected miss for absent key")
	}

	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := UserCollectionsListKey("usr_abc123def456")
	c.SetKeyWithTTL(key, 42, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.GetValue(key); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0 after lazy eviction", c.Len())
	}
}

func TestKeyShapesDoNotCollide(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetKey(MetadataDetailsKey("met_abc123def456"), "details")
	c.SetKey(UserMetadataDetailsKey("usr_abc123def456", "met_abc123def456"), "user details")

	got, ok := c.GetValue(MetadataDetailsKey("met_abc123def456"))
	if !ok || got != "details" {
		t.Errorf("metadata details key returned %v", got)
	}
	got, ok = c.GetValue(UserMetadataDetailsKey("usr_abc123def456", "met_abc123def456"))
	if !ok || got != "user details" {
		t.Errorf("user metadata details key returned %v", got)
	}
}

func TestExpireByDiscriminant(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	user := "usr_abc123def456"
	other := "usr_other1234567"

	c.SetKey(UserCollectionContentsKey(user, "col_one123456789"), 1)
	c.SetKey(UserCollectionContentsKey(user, "col_two123456789"), 2)
	c.SetKey(UserCollectionContentsKey(other, "col_one123456789"), 3)
	c.SetKey(UserCollectionsListKey(user), 4)

	removed := c.ExpireByDiscriminant(DiscUserCollectionContents, user)
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := c.GetValue(UserCollectionContentsKey(other, "col_one123456789")); !ok {
		t.Error("other user's entry should survive")
	}
	if _, ok := c.GetValue(UserCollectionsListKey(user)); !ok {
		t.Error("other family for same user should survive")
	}
}

func TestExpireWhere(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	met := "met_abc123def456"
	c.SetKey(UserMetadataDetailsKey("usr_one123456789", met), 1)
	c.SetKey(UserMetadataDetailsKey("usr_two123456789", met), 2)
	c.SetKey(UserMetadataDetailsKey("usr_one123456789", "met_other1234567"), 3)

	removed := c.ExpireWhere(func(k string) bool {
		return UserMetadataDetailsKeyMatches(k, met)
	})
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestUserAnalyticsKeyExpiresByDiscriminant(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetKey(UserAnalyticsKey("usr_abc123def456"), "summary")
	c.SetKey(UserAnalyticsKey("usr_other1234567"), "other summary")

	if removed := c.ExpireByDiscriminant(DiscUserAnalytics, "usr_abc123def456"); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := c.GetValue(UserAnalyticsKey("usr_other1234567")); !ok {
		t.Error("other user's summary should survive")
	}
}

func TestSearchKeyIncludesPage(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	k1 := MetadataSearchKey("usr_abc123def456", models.MediaLotMovie, models.MediaSourceTmdb, "alien", 1)
	k2 := MetadataSearchKey("usr_abc123def456", models.MediaLotMovie, models.MediaSourceTmdb, "alien", 2)

	c.SetKey(k1, "page one")
	if _, ok := c.GetValue(k2); ok {
		t.Error("page 2 key must not hit page 1 entry")
	}
}

func TestStatsCounters(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := IgdbTokenKey()
	c.SetKey(key, "token")
	c.GetValue(key)
	c.GetValue(key)
	c.GetValue(ProviderGenresKey(models.MediaSourceTmdb))

	stats := c.GetStats()
	if stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}
