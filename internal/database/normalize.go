// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"fmt"

	"github.com/connectly/materializer/internal/ingest"
)

// BuildDispatchFacts normalizes staged dispatch events into one fact row
// per send attempt and resolves each to a product via the staged map.
//
// Normalization rules:
//   - month is the dispatch timestamp truncated to month start
//   - an unmapped business_id resolves to product 'Unknown'
//   - delivered means the delivery marker is non-null; NULL is "not yet
//     delivered", never an error
//   - clicks is null-safe: COALESCE both counters before adding, so a NULL
//     counter cannot poison the sum
func (db *DB) BuildDispatchFacts(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
			DATE_TRUNC('month', d.dispatched_at)::DATE            AS month,
			COALESCE(pm.product, 'Unknown')                       AS product,
			d.sendout_name,
			CAST(d.customer_external_id AS VARCHAR)               AS user_id,
			d.dispatched_at::DATE                                 AS dispatch_date,
			d.delivered IS NOT NULL                               AS delivered,
			COALESCE(d.button_responses, 0) + COALESCE(d.link_clicks, 0) AS clicks
		FROM %s d
		LEFT JOIN %s pm ON CAST(d.business_id AS VARCHAR) = pm.business_id`,
		tableDispatchFacts, tableDispatchRaw, tableProductMap)

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("build dispatch facts: %w", err)
	}
	return db.TableCount(ctx, tableDispatchFacts)
}

// BuildActivityFacts normalizes staged activity events into one fact row
// per (user, activity day) observation. The user identifier is the first
// non-null of the candidate columns resolved against this build's merged
// schema; userColumns must be non-empty and pre-validated.
//
// Duplicate (user, day) rows across shards survive here on purpose: they
// are collapsed by COUNT(DISTINCT activity_date) at aggregation time.
func (db *DB) BuildActivityFacts(ctx context.Context, userColumns []string) (int64, error) {
	userExpr := ingest.CoalesceExpr(userColumns)
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
			CAST(%s AS VARCHAR)                                   AS user_id,
			TRY_CAST(activity_date AS DATE)                       AS activity_date,
			DATE_TRUNC('month', TRY_CAST(activity_date AS DATE))::DATE AS month
		FROM %s
		WHERE %s IS NOT NULL
		  AND TRY_CAST(activity_date AS DATE) IS NOT NULL`,
		tableActivityFacts, userExpr, tableActivityRaw, userExpr)

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("build activity facts: %w", err)
	}
	return db.TableCount(ctx, tableActivityFacts)
}

// BuildEmptyActivityFacts creates an empty activity fact table for builds
// with no usable activity shards. Every nudged user then lands in the "0"
// activity bucket, which is the correct degraded reading.
func (db *DB) BuildEmptyActivityFacts(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s (user_id VARCHAR, activity_date DATE, month DATE)",
		tableActivityFacts)
	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("build empty activity facts: %w", err)
	}
	return nil
}
