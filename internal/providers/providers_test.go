// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

func testProvidersConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{Timeout: 5 * time.Second}
}

func TestNormalizePage(t *testing.T) {
	if got := normalizePage(0); got != 1 {
		t.Errorf("normalizePage(0) = %d, want 1", got)
	}
	if got := normalizePage(-3); got != 1 {
		t.Errorf("normalizePage(-3) = %d, want 1", got)
	}
	if got := normalizePage(7); got != 7 {
		t.Errorf("normalizePage(7) = %d, want 7", got)
	}
}

func TestPageOffset(t *testing.T) {
	if got := pageOffset(1); got != 0 {
		t.Errorf("pageOffset(1) = %d, want 0", got)
	}
	if got := pageOffset(3); got != 2*PageSize {
		t.Errorf("pageOffset(3) = %d, want %d", got, 2*PageSize)
	}
}

func TestNextPageFor(t *testing.T) {
	if next := nextPageFor(1, PageSize); next != nil {
		t.Errorf("expected no next page for exactly one page of results, got %d", *next)
	}
	next := nextPageFor(1, PageSize+1)
	if next == nil || *next != 2 {
		t.Fatalf("expected next page 2, got %v", next)
	}
	if next := nextPageFor(2, PageSize+1); next != nil {
		t.Errorf("expected no next page on the last page, got %d", *next)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2021-03-14":           time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC),
		"1999":                 time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		"Jan 2, 2006":          time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC),
		"2021-03-14T10:30:00Z": time.Date(2021, 3, 14, 10, 30, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got := parseDate(input)
		if got == nil || !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", input, got, want)
		}
	}
	if got := parseDate(""); got != nil {
		t.Errorf("parseDate(\"\") = %v, want nil", got)
	}
	if got := parseDate("not a date"); got != nil {
		t.Errorf("parseDate(invalid) = %v, want nil", got)
	}
}

func TestYearOf(t *testing.T) {
	y := yearOf("2015-07-01")
	if y == nil || *y != 2015 {
		t.Fatalf("yearOf = %v, want 2015", y)
	}
	if yearOf("") != nil {
		t.Error("expected nil year for empty date")
	}
}

func TestDefaultSourceForLot(t *testing.T) {
	cases := map[models.MediaLot]models.MediaSource{
		models.MediaLotMovie:       models.MediaSourceTmdb,
		models.MediaLotShow:        models.MediaSourceTmdb,
		models.MediaLotVideoGame:   models.MediaSourceIgdb,
		models.MediaLotAnime:       models.MediaSourceAnilist,
		models.MediaLotManga:       models.MediaSourceAnilist,
		models.MediaLotBook:        models.MediaSourceOpenlibrary,
		models.MediaLotAudioBook:   models.MediaSourceAudible,
		models.MediaLotPodcast:     models.MediaSourceListennotes,
		models.MediaLotVisualNovel: models.MediaSourceVndb,
		models.MediaLotMusic:       models.MediaSourceYoutubeMusic,
	}
	for lot, want := range cases {
		if got := DefaultSourceForLot(lot); got != want {
			t.Errorf("DefaultSourceForLot(%s) = %s, want %s", lot, got, want)
		}
	}
}

func TestStripKey(t *testing.T) {
	if got := StripKey("/works/OL45883W"); got != "OL45883W" {
		t.Errorf("StripKey(/works/...) = %q", got)
	}
	if got := StripKey("/authors/OL23919A"); got != "OL23919A" {
		t.Errorf("StripKey(/authors/...) = %q", got)
	}
	if got := StripKey("OL45883W"); got != "OL45883W" {
		t.Errorf("StripKey(bare) = %q", got)
	}
}

func TestIgdbImageURL(t *testing.T) {
	got := igdbImageURL(igdbImage{URL: "//images.igdb.com/igdb/image/upload/t_thumb/co1wyy.jpg"})
	if got == nil {
		t.Fatal("expected an image url")
	}
	want := "https://images.igdb.com/igdb/image/upload/t_original/co1wyy.jpg"
	if *got != want {
		t.Errorf("igdbImageURL = %q, want %q", *got, want)
	}
	if igdbImageURL(igdbImage{}) != nil {
		t.Error("expected nil for empty image")
	}
}

func TestVndbProductionStatus(t *testing.T) {
	if got := vndbProductionStatus(0); got == nil || *got != "Finished" {
		t.Errorf("devstatus 0 = %v", got)
	}
	if got := vndbProductionStatus(1); got == nil || *got != "In development" {
		t.Errorf("devstatus 1 = %v", got)
	}
	if got := vndbProductionStatus(2); got == nil || *got != "Cancelled" {
		t.Errorf("devstatus 2 = %v", got)
	}
	if got := vndbProductionStatus(9); got != nil {
		t.Errorf("unknown devstatus = %v, want nil", got)
	}
}

func TestRegistryLotCheck(t *testing.T) {
	r := &Registry{providers: map[models.MediaSource]MediaProvider{}}
	r.providers[models.MediaSourceVndb] = NewVndb(testProvidersConfig())

	if _, err := r.Get(models.MediaSourceVndb, models.MediaLotVisualNovel); err != nil {
		t.Fatalf("expected vndb to serve visual novels: %v", err)
	}
	if _, err := r.Get(models.MediaSourceVndb, models.MediaLotMovie); err == nil {
		t.Fatal("expected an error for a lot vndb does not serve")
	}
	if _, err := r.Get(models.MediaSourceTmdb, models.MediaLotMovie); err == nil {
		t.Fatal("expected an error for an unregistered source")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want b", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}

func TestClientClassifiesStatusCodes(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := NewClient("test", 5*time.Second, 100)

	if err := client.GetJSON(context.Background(), srv.URL, nil, nil); !errors.Is(err, ErrNotFoundByProvider) {
		t.Fatalf("404 err = %v", err)
	}
	status = http.StatusUnauthorized
	if err := client.GetJSON(context.Background(), srv.URL, nil, nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("401 err = %v", err)
	}
}

func TestClientBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("flaky", 5*time.Second, 1000)
	for i := 0; i < 5; i++ {
		if err := client.GetJSON(context.Background(), srv.URL, nil, nil); err == nil {
			t.Fatalf("request %d: expected a server error", i)
		}
	}
	// Sixth call must short-circuit without reaching the upstream.
	err := client.GetJSON(context.Background(), srv.URL, nil, nil)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("open-circuit err = %v", err)
	}
}
