// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package importer

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// MyAnimeList imports the MAL XML list export (plain or gzipped). Both
// anime and manga lists share the envelope.
type MyAnimeList struct {
	reader io.Reader
}

// NewMyAnimeList builds the source over an export file.
func NewMyAnimeList(r io.Reader) *MyAnimeList {
	return &MyAnimeList{reader: r}
}

func (m *MyAnimeList) Source() models.ImportSource { return models.ImportSourceMyAnimeList }

type malExport struct {
	XMLName xml.Name   `xml:"myanimelist"`
	Anime   []malEntry `xml:"anime"`
	Manga   []malEntry `xml:"manga"`
}

type malEntry struct {
	AnimeID         string `xml:"series_animedb_id"`
	MangaID         string `xml:"series_mangadb_id"`
	Title           string `xml:"series_title"`
	WatchedEpisodes int    `xml:"my_watched_episodes"`
	ReadChapters    string `xml:"my_read_chapters"`
	ReadVolumes     int    `xml:"my_read_volumes"`
	Score           int    `xml:"my_score"`
	Status          string `xml:"my_status"`
	StartDate       string `xml:"my_start_date"`
	FinishDate      string `xml:"my_finish_date"`
}

func (m *MyAnimeList) Import(_ context.Context, _ string) (*models.ImportResult, error) {
	buffered := bufio.NewReader(m.reader)
	var reader io.Reader = buffered
	if magic, err := buffered.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("open gzipped mal export: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	var export malExport
	if err := xml.NewDecoder(reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode mal export: %w", err)
	}

	result := &models.ImportResult{}
	for _, entry := range export.Anime {
		result.Completed = append(result.Completed, models.ImportCompletedItem{
			Metadata: malItem(entry, models.MediaLotAnime),
		})
	}
	for _, entry := range export.Manga {
		result.Completed = append(result.Completed, models.ImportCompletedItem{
			Metadata: malItem(entry, models.MediaLotManga),
		})
	}
	return result, nil
}

func malItem(entry malEntry, lot models.MediaLot) *models.ImportOrExportMetadataItem {
	identifier := entry.AnimeID
	if lot == models.MediaLotManga {
		identifier = entry.MangaID
	}
	item := &models.ImportOrExportMetadataItem{
		Lot:        lot,
		Source:     models.MediaSourceMal,
		Identifier: identifier,
		SourceID:   entry.Title,
	}

	// MAL writes "0000-00-00" for unset dates.
	started := parseDateIn(entry.StartDate, "2006-01-02")
	finished := parseDateIn(entry.FinishDate, "2006-01-02")

	switch entry.Status {
	case "Completed":
		item.SeenHistory = append(item.SeenHistory, models.ImportOrExportMetadataItemSeen{
			StartedOn: started,
			EndedOn:   finished,
		})
	case "Watching", "Reading":
		seen := models.ImportOrExportMetadataItemSeen{StartedOn: started}
		if lot == models.MediaLotAnime && entry.WatchedEpisodes > 0 {
			seen.AnimeEpisodeNumber = &entry.WatchedEpisodes
		}
		if lot == models.MediaLotManga {
			if chapter := parseDecimal(entry.ReadChapters); chapter != nil && !chapter.IsZero() {
				seen.MangaChapterNumber = chapter
			}
			if entry.ReadVolumes > 0 {
				seen.MangaVolumeNumber = &entry.ReadVolumes
			}
		}
		item.SeenHistory = append(item.SeenHistory, seen)
	case "Plan to Watch", "Plan to Read":
		item.Collections = append(item.Collections, string(models.CollectionWatchlist))
	case "On-Hold", "Dropped":
		// State transitions cannot be replayed without timestamps; the
		// item still imports so ratings and identity survive.
	}

	if entry.Score > 0 {
		item.Reviews = append(item.Reviews, models.ImportOrExportItemRating{
			// MAL scores are 1..10.
			Rating: ptr(decimal.NewFromInt(int64(entry.Score) * 10)),
		})
	}
	return item
}
