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
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

const importReportColumns = `id, user_id, source, started_on, finished_on,
	was_success, progress, estimated_finish_time, details`

func scanImportReport(row pgx.Row) (*models.ImportReport, error) {
	var r models.ImportReport
	var details []byte
	err := row.Scan(&r.ID, &r.UserID, &r.Source, &r.StartedOn, &r.FinishedOn,
		&r.WasSuccess, &r.Progress, &r.EstimatedFinishTime, &details)
	if err != nil {
		return nil, notFound(err)
	}
	if err := fromJSONB(details, &r.Details); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateImportReport opens the audit row for an import run.
func (db *DB) CreateImportReport(ctx context.Context, userID string, source models.ImportSource) (*models.ImportReport, error) {
	r := &models.ImportReport{
		ID:        models.NewID(models.PrefixImportReport),
		UserID:    userID,
		Source:    source,
		StartedOn: now(),
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO import_report (id, user_id, source, started_on)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.UserID, r.Source, r.StartedOn)
	if err != nil {
		return nil, fmt.Errorf("database: create import report: %w", err)
	}
	return r, nil
}

// UpdateImportReportProgress records processing progress and the estimated
// finish time.
func (db *DB) UpdateImportReportProgress(ctx context.Context, id string, progress decimal.Decimal, estimatedFinish time.Time) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE import_report SET progress = $2, estimated_finish_time = $3
		WHERE id = $1`, id, progress, estimatedFinish)
	return err
}

// FinishImportReport closes the audit row with its outcome and accounting.
func (db *DB) FinishImportReport(ctx context.Context, id string, success bool, details *models.ImportResultDetails) error {
	hundred := decimal.NewFromInt(100)
	_, err := db.pool.Exec(ctx, `
		UPDATE import_report SET finished_on = $2, was_success = $3,
			details = $4, progress = $5
		WHERE id = $1`,
		id, now(), success, mustJSONB(details), hundred)
	if err != nil {
		return fmt.Errorf("database: finish import report: %w", err)
	}
	return nil
}

// GetImportReport fetches one report by id.
func (db *DB) GetImportReport(ctx context.Context, id string) (*models.ImportReport, error) {
	return scanImportReport(db.pool.QueryRow(ctx,
		"SELECT "+importReportColumns+" FROM import_report WHERE id = $1", id))
}

// ListImportReports returns a user's reports, newest first.
func (db *DB) ListImportReports(ctx context.Context, userID string) ([]*models.ImportReport, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT "+importReportColumns+" FROM import_report WHERE user_id = $1 ORDER BY started_on DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ImportReport
	for rows.Next() {
		r, err := scanImportReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
