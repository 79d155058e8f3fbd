// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const metadataColumns = `id, lot, source, identifier, title, description,
	publish_year, publish_date, original_language, production_status,
	provider_rating, source_url, is_nsfw, is_partial, assets,
	free_creators, watch_providers, external_identifiers,
	show_specifics, podcast_specifics, movie_specifics, book_specifics,
	anime_specifics, manga_specifics, audio_book_specifics,
	video_game_specifics, visual_novel_specifics, music_specifics,
	created_at, last_updated_on`

func scanMetadata(row pgx.Row) (*models.Metadata, error) {
	var m models.Metadata
	var assets, freeCreators, watchProviders, externalIDs []byte
	var show, podcast, movie, book, anime, manga, audioBook, videoGame, visualNovel, music []byte
	var isNsfw *bool

	err := row.Scan(
		&m.ID, &m.Lot, &m.Source, &m.Identifier, &m.Title, &m.Description,
		&m.PublishYear, &m.PublishDate, &m.OriginalLanguage, &m.ProductionStatus,
		&m.ProviderRating, &m.SourceURL, &isNsfw, &m.IsPartial, &assets,
		&freeCreators, &watchProviders, &externalIDs,
		&show, &podcast, &movie, &book,
		&anime, &manga, &audioBook,
		&videoGame, &visualNovel, &music,
		&m.CreatedOn, &m.LastUpdatedOn,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if isNsfw != nil {
		m.IsNsfw = *isNsfw
	}
	for raw, dst := range map[*[]byte]any{
		&assets: &m.Assets, &freeCreators: &m.FreeCreators,
		&watchProviders: &m.WatchProviders, &externalIDs: &m.ExternalIdentifiers,
		&show: &m.ShowSpecifics, &podcast: &m.PodcastSpecifics,
		&movie: &m.MovieSpecifics, &book: &m.BookSpecifics,
		&anime: &m.AnimeSpecifics, &manga: &m.MangaSpecifics,
		&audioBook: &m.AudioBookSpecifics, &videoGame: &m.VideoGameSpecifics,
		&visualNovel: &m.VisualNovelSpecifics, &music: &m.MusicSpecifics,
	} {
		if err := fromJSONB(*raw, dst); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// GetMetadata fetches one metadata row by id.
func (db *DB) GetMetadata(ctx context.Context, id string) (*models.Metadata, error) {
	return scanMetadata(db.pool.QueryRow(ctx,
		"SELECT "+metadataColumns+" FROM metadata WHERE id = $1", id))
}

// GetMetadataByIdentity fetches a row by its provider identity.
func (db *DB) GetMetadataByIdentity(ctx context.Context, lot models.MediaLot, source models.MediaSource, identifier string) (*models.Metadata, error) {
	return scanMetadata(db.pool.QueryRow(ctx,
		"SELECT "+metadataColumns+" FROM metadata WHERE lot = $1 AND source = $2 AND identifier = $3",
		lot, source, identifier))
}

// CommitMetadata resolves a partial reference to a metadata id, inserting
// an is_partial stub when the identity is new. The insert races with
// concurrent commits of the same identity, so conflicts re-read.
func (db *DB) CommitMetadata(ctx context.Context, p models.PartialMetadata) (string, error) {
	var id string
	err := db.pool.QueryRow(ctx,
		"SELECT id FROM metadata WHERE lot = $1 AND source = $2 AND identifier = $3",
		p.Lot, p.Source, p.Identifier).Scan(&id)
	if err == nil {
		return id, nil
	}
	if notFound(err) != ErrNotFound {
		return "", err
	}

	assets := models.EntityAssets{}
	if p.Image != nil {
		assets.RemoteImages = []string{*p.Image}
	}
	title := p.Title
	if title == "" {
		title = p.Identifier
	}
	id = models.NewID(models.PrefixMetadata)
	err = db.pool.QueryRow(ctx, `
		INSERT INTO metadata (id, lot, source, identifier, title, is_partial, assets)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (identifier, lot, source) DO UPDATE SET identifier = EXCLUDED.identifier
		RETURNING id`,
		id, p.Lot, p.Source, p.Identifier, title, mustJSONB(assets)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("database: commit metadata: %w", err)
	}
	return id, nil
}

// UpdateMetadataDetails replaces a row's provider-sourced fields with the
// freshly fetched details and clears is_partial.
func (db *DB) UpdateMetadataDetails(ctx context.Context, m *models.Metadata) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE metadata SET
			title = $2, description = $3, publish_year = $4, publish_date = $5,
			original_language = $6, production_status = $7, provider_rating = $8,
			source_url = $9, is_nsfw = $10, is_partial = FALSE, assets = $11,
			free_creators = $12, watch_providers = $13, external_identifiers = $14,
			show_specifics = $15, podcast_specifics = $16, movie_specifics = $17,
			book_specifics = $18, anime_specifics = $19, manga_specifics = $20,
			audio_book_specifics = $21, video_game_specifics = $22,
			visual_novel_specifics = $23, music_specifics = $24,
			last_updated_on = $25
		WHERE id = $1`,
		m.ID, m.Title, m.Description, m.PublishYear, m.PublishDate,
		m.OriginalLanguage, m.ProductionStatus, m.ProviderRating,
		m.SourceURL, m.IsNsfw, mustJSONB(m.Assets),
		mustJSONB(m.FreeCreators), mustJSONB(m.WatchProviders), mustJSONB(m.ExternalIdentifiers),
		mustJSONB(m.ShowSpecifics), mustJSONB(m.PodcastSpecifics), mustJSONB(m.MovieSpecifics),
		mustJSONB(m.BookSpecifics), mustJSONB(m.AnimeSpecifics), mustJSONB(m.MangaSpecifics),
		mustJSONB(m.AudioBookSpecifics), mustJSONB(m.VideoGameSpecifics),
		mustJSONB(m.VisualNovelSpecifics), mustJSONB(m.MusicSpecifics),
		now())
	if err != nil {
		return fmt.Errorf("database: update metadata details: %w", err)
	}
	return nil
}

// InsertCustomMetadata stores a user-created entity (source=custom).
func (db *DB) InsertCustomMetadata(ctx context.Context, m *models.Metadata) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO metadata (id, lot, source, identifier, title, description,
			publish_year, is_nsfw, is_partial, assets,
			show_specifics, podcast_specifics, movie_specifics, book_specifics,
			anime_specifics, manga_specifics, audio_book_specifics,
			video_game_specifics, visual_novel_specifics, music_specifics)
		VALUES ($1, $2, 'custom', $1, $3, $4, $5, $6, FALSE, $7,
			$8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		m.ID, m.Lot, m.Title, m.Description, m.PublishYear, m.IsNsfw,
		mustJSONB(m.Assets),
		mustJSONB(m.ShowSpecifics), mustJSONB(m.PodcastSpecifics), mustJSONB(m.MovieSpecifics),
		mustJSONB(m.BookSpecifics), mustJSONB(m.AnimeSpecifics), mustJSONB(m.MangaSpecifics),
		mustJSONB(m.AudioBookSpecifics), mustJSONB(m.VideoGameSpecifics),
		mustJSONB(m.VisualNovelSpecifics), mustJSONB(m.MusicSpecifics))
	if err != nil {
		return fmt.Errorf("database: insert custom metadata: %w", err)
	}
	return nil
}

// ListMetadataForRefresh returns ids of rows whose details are older than
// the cutoff, oldest first. Partial rows are included regardless of age.
func (db *DB) ListMetadataForRefresh(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id FROM metadata
		WHERE source <> 'custom' AND (is_partial OR last_updated_on < $1)
		ORDER BY last_updated_on ASC
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("database: list metadata for refresh: %w", err)
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

// UpsertGenre resolves a genre name to its id, inserting when new.
func (db *DB) UpsertGenre(ctx context.Context, name string) (string, error) {
	id := models.DeterministicID("gen", name)
	_, err := db.pool.Exec(ctx,
		"INSERT INTO genre (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING", id, name)
	if err != nil {
		return "", fmt.Errorf("database: upsert genre: %w", err)
	}
	err = db.pool.QueryRow(ctx, "SELECT id FROM genre WHERE name = $1", name).Scan(&id)
	return id, notFound(err)
}

// ReplaceMetadataGenres resets the genre edges of a metadata row.
func (db *DB) ReplaceMetadataGenres(ctx context.Context, metadataID string, genreIDs []string) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM metadata_to_genre WHERE metadata_id = $1", metadataID); err != nil {
			return err
		}
		for _, gid := range genreIDs {
			if _, err := tx.Exec(ctx,
				"INSERT INTO metadata_to_genre (metadata_id, genre_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				metadataID, gid); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceMetadataPeople resets the credited people edges.
func (db *DB) ReplaceMetadataPeople(ctx context.Context, metadataID string, edges []models.MetadataToPerson) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM metadata_to_person WHERE metadata_id = $1", metadataID); err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO metadata_to_person (metadata_id, person_id, role, character, index)
				VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				metadataID, e.PersonID, e.Role, e.Character, e.Index); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMetadataPeople returns the credited edges ordered by role then index.
func (db *DB) ListMetadataPeople(ctx context.Context, metadataID string) ([]models.MetadataToPerson, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT metadata_id, person_id, role, character, index
		FROM metadata_to_person WHERE metadata_id = $1
		ORDER BY role, index`, metadataID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []models.MetadataToPerson
	for rows.Next() {
		var e models.MetadataToPerson
		if err := rows.Scan(&e.MetadataID, &e.PersonID, &e.Role, &e.Character, &e.Index); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// AssociateMetadataGroup links a metadata row into a group at a part.
func (db *DB) AssociateMetadataGroup(ctx context.Context, metadataID, groupID string, part int) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO metadata_to_metadata_group (metadata_id, metadata_group_id, part)
		VALUES ($1, $2, $3)
		ON CONFLICT (metadata_id, metadata_group_id) DO UPDATE SET part = EXCLUDED.part`,
		metadataID, groupID, part)
	return err
}

// ListGroupMetadata returns the member metadata ids of a group, by part.
func (db *DB) ListGroupMetadata(ctx context.Context, groupID string) ([]models.MetadataToMetadataGroup, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT metadata_id, metadata_group_id, part
		FROM metadata_to_metadata_group WHERE metadata_group_id = $1 ORDER BY part`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MetadataToMetadataGroup
	for rows.Next() {
		var e models.MetadataToMetadataGroup
		if err := rows.Scan(&e.MetadataID, &e.MetadataGroupID, &e.Part); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceCalendarEvents rebuilds the derived calendar rows for one
// metadata row.
func (db *DB) ReplaceCalendarEvents(ctx context.Context, metadataID string, events []models.CalendarEvent) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM calendar_event WHERE metadata_id = $1", metadataID); err != nil {
			return err
		}
		for _, ev := range events {
			var showExtra, podcastExtra any
			if ev.ShowSeasonNumber != nil || ev.ShowEpisodeNumber != nil {
				showExtra = mustJSONB(map[string]*int{
					"season": ev.ShowSeasonNumber, "episode": ev.ShowEpisodeNumber,
				})
			}
			if ev.PodcastEpisodeNumber != nil {
				podcastExtra = mustJSONB(map[string]*int{"episode": ev.PodcastEpisodeNumber})
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO calendar_event (id, metadata_id, date,
					metadata_show_extra_information, metadata_podcast_extra_information)
				VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				ev.ID, metadataID, ev.Date, showExtra, podcastExtra); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCalendarEvents returns events in a date window, for the calendar
// feed and for the "episode released" sweep.
func (db *DB) ListCalendarEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, metadata_id, date,
			metadata_show_extra_information, metadata_podcast_extra_information
		FROM calendar_event WHERE date >= $1 AND date <= $2 ORDER BY date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.CalendarEvent
	for rows.Next() {
		var ev models.CalendarEvent
		var showExtra, podcastExtra []byte
		if err := rows.Scan(&ev.ID, &ev.MetadataID, &ev.Date, &showExtra, &podcastExtra); err != nil {
			return nil, err
		}
		var show struct {
			Season  *int `json:"season"`
			Episode *int `json:"episode"`
		}
		if err := fromJSONB(showExtra, &show); err != nil {
			return nil, err
		}
		ev.ShowSeasonNumber, ev.ShowEpisodeNumber = show.Season, show.Episode
		var podcast struct {
			Episode *int `json:"episode"`
		}
		if err := fromJSONB(podcastExtra, &podcast); err != nil {
			return nil, err
		}
		ev.PodcastEpisodeNumber = podcast.Episode
		out = append(out, ev)
	}
	return out, rows.Err()
}
