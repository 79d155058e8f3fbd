// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package integrations

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/providers"
)

const youtubeMusicBrowseURL = "https://music.youtube.com/youtubei/v1/browse"

// youtubeMusicYank pulls the listening history shelf from YouTube Music
// and records everything played today (in the user's timezone) as a
// completed music listen. History entries are keyed by video id; the
// progress engine deduplicates repeat sweeps within the same day because
// the finished timestamp is pinned to the day boundary.
type youtubeMusicYank struct {
	client   *providers.Client
	location *time.Location
}

func newYoutubeMusicYank(specifics models.IntegrationProviderSpecifics, timeout time.Duration) *youtubeMusicYank {
	location, err := time.LoadLocation(specifics.YoutubeMusicTimezone)
	if err != nil {
		location = time.UTC
	}
	return &youtubeMusicYank{
		client: providers.NewClient("youtube_music", timeout, 1).
			WithHeader("Cookie", specifics.YoutubeMusicAuthCookie).
			WithHeader("Origin", "https://music.youtube.com"),
		location: location,
	}
}

// youtubeMusicBrowseRequest is the minimal innertube browse call for the
// history feed.
type youtubeMusicBrowseRequest struct {
	BrowseID string `json:"browseId"`
	Context  struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
			HL            string `json:"hl"`
		} `json:"client"`
	} `json:"context"`
}

func (y *youtubeMusicYank) YankProgress(ctx context.Context) (*models.ImportResult, error) {
	request := youtubeMusicBrowseRequest{BrowseID: "FEmusic_history"}
	request.Context.Client.ClientName = "WEB_REMIX"
	request.Context.Client.ClientVersion = "1.20240101.00.00"
	request.Context.Client.HL = "en"

	var response json.RawMessage
	if err := y.client.PostJSON(ctx, youtubeMusicBrowseURL, request, &response); err != nil {
		return nil, fmt.Errorf("youtube music history: %w", err)
	}

	songs, err := parseYoutubeMusicHistory(response)
	if err != nil {
		return nil, err
	}

	finished := startOfDay(time.Now().In(y.location))
	result := &models.ImportResult{}
	for _, song := range songs {
		result.Completed = append(result.Completed, models.ImportCompletedItem{
			Metadata: &models.ImportOrExportMetadataItem{
				Lot:        models.MediaLotMusic,
				Source:     models.MediaSourceYoutubeMusic,
				Identifier: song.videoID,
				SourceID:   song.title,
				SeenHistory: []models.ImportOrExportMetadataItemSeen{
					{EndedOn: &finished},
				},
			},
		})
	}
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location()).UTC()
}

type youtubeMusicSong struct {
	videoID string
	title   string
}

// parseYoutubeMusicHistory walks the innertube response tree and collects
// the songs under the "Today" shelf. The response nests renderers many
// levels deep with unstable shapes, so the walk is structural: find the
// shelf whose header reads Today, then every watch endpoint under it.
func parseYoutubeMusicHistory(raw json.RawMessage) ([]youtubeMusicSong, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("youtube music: decode history: %w", err)
	}

	var songs []youtubeMusicSong
	seen := map[string]bool{}
	for _, shelf := range findNodes(root, "musicShelfRenderer") {
		if shelfTitle(shelf) != "Today" {
			continue
		}
		for _, item := range findNodes(shelf, "musicResponsiveListItemRenderer") {
			song, ok := extractSong(item)
			if !ok || seen[song.videoID] {
				continue
			}
			seen[song.videoID] = true
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// findNodes returns every object found under the given key anywhere in
// the tree.
func findNodes(node any, key string) []map[string]any {
	var out []map[string]any
	switch value := node.(type) {
	case map[string]any:
		for k, child := range value {
			if k == key {
				if obj, ok := child.(map[string]any); ok {
					out = append(out, obj)
				}
			}
			out = append(out, findNodes(child, key)...)
		}
	case []any:
		for _, child := range value {
			out = append(out, findNodes(child, key)...)
		}
	}
	return out
}

// shelfTitle reads title.runs[0].text.
func shelfTitle(shelf map[string]any) string {
	title, _ := shelf["title"].(map[string]any)
	runs, _ := title["runs"].([]any)
	for _, run := range runs {
		if obj, ok := run.(map[string]any); ok {
			if text, ok := obj["text"].(string); ok {
				return text
			}
		}
	}
	return ""
}

func extractSong(item map[string]any) (youtubeMusicSong, bool) {
	endpoints := findNodes(item, "watchEndpoint")
	if len(endpoints) == 0 {
		return youtubeMusicSong{}, false
	}
	videoID, _ := endpoints[0]["videoId"].(string)
	if videoID == "" {
		return youtubeMusicSong{}, false
	}

	// The first flex column's first run is the song title.
	title := ""
	if columns, ok := item["flexColumns"].([]any); ok && len(columns) > 0 {
		for _, renderer := range findNodes(columns[0], "musicResponsiveListItemFlexColumnRenderer") {
			if text, ok := renderer["text"].(map[string]any); ok {
				if runs, ok := text["runs"].([]any); ok && len(runs) > 0 {
					if run, ok := runs[0].(map[string]any); ok {
						title, _ = run["text"].(string)
					}
				}
			}
		}
	}
	return youtubeMusicSong{videoID: videoID, title: title}, true
}
