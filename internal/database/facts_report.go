// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/connectly/materializer/internal/models"
)

// BuildReportTable persists the build summary as the fifth output table.
// One row per store; skipped-shard counts become queryable alongside the
// facts they qualified instead of living only in logs.
func (db *DB) BuildReportTable(ctx context.Context, report *models.BuildReport) error {
	create := `
		CREATE OR REPLACE TABLE build_report (
			build_id        VARCHAR,
			started_at      TIMESTAMP,
			finished_at     TIMESTAMP,
			dispatch_shards INTEGER,
			activity_shards INTEGER,
			skipped_shards  INTEGER,
			dispatch_rows   BIGINT,
			activity_rows   BIGINT,
			map_present     BOOLEAN,
			user_columns    VARCHAR
		)`
	if _, err := db.conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create build_report: %w", err)
	}

	insert := `
		INSERT INTO build_report VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, insert,
		report.BuildID,
		report.StartTime,
		report.EndTime,
		report.DispatchShards,
		report.ActivityShards,
		report.SkippedCount(),
		report.DispatchRows,
		report.ActivityRows,
		report.MapPresent,
		strings.Join(report.UserColumns, ","),
	)
	if err != nil {
		return fmt.Errorf("insert build_report: %w", err)
	}
	return nil
}
