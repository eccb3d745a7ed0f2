// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connectly/materializer/internal/models"
)

// BuildNudgeVsActivity materializes the nudge_vs_activity table: for each
// (month, product), the nudged user base segmented by how many distinct
// days they were active in that month.
//
// The left join is the load-bearing relational step: a nudged user with no
// activity record at all must land in bucket '0', not disappear. Buckets
// are closed intervals (exactly 0, 1..10 inclusive, above 10), and every
// group emits all three bucket rows zero-filled, so consumers always see
// the full distribution. 'Unknown' product groups are kept; segmentation
// does not require a funnel owner.
func (db *DB) BuildNudgeVsActivity(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE nudge_vs_activity AS
		WITH nudged AS (
			SELECT DISTINCT month, product, user_id FROM %s
		), act_days AS (
			SELECT user_id, month, COUNT(DISTINCT activity_date) AS days
			FROM %s
			GROUP BY user_id, month
		), dist AS (
			SELECT
				n.month,
				n.product,
				CASE
					WHEN COALESCE(a.days, 0) = 0     THEN '0'
					WHEN a.days BETWEEN 1 AND 10     THEN '1-10'
					ELSE                                  '>10'
				END      AS active_bucket,
				COUNT(*) AS users
			FROM nudged n
			LEFT JOIN act_days a ON n.user_id = a.user_id AND n.month = a.month
			GROUP BY 1, 2, 3
		), groups AS (
			SELECT DISTINCT month, product FROM nudged
		)
		SELECT
			g.month,
			g.product,
			b.active_bucket,
			COALESCE(d.users, 0) AS users
		FROM groups g
		CROSS JOIN (VALUES ('0'), ('1-10'), ('>10')) AS b(active_bucket)
		LEFT JOIN dist d
			ON d.month = g.month AND d.product = g.product AND d.active_bucket = b.active_bucket
		ORDER BY g.month, g.product, b.active_bucket`,
		tableDispatchFacts, tableActivityFacts)

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("build nudge_vs_activity: %w", err)
	}
	return db.TableCount(ctx, "nudge_vs_activity")
}

// NudgeVsActivity reads back the nudge_vs_activity table ordered by
// (month, product, bucket).
func (db *DB) NudgeVsActivity(ctx context.Context) ([]models.NudgeActivityRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var out []models.NudgeActivityRow
	err := db.queryAndScan(ctx,
		`SELECT month, product, active_bucket, users
		 FROM nudge_vs_activity ORDER BY month, product, active_bucket`,
		nil,
		func(rows *sql.Rows) error {
			var n models.NudgeActivityRow
			if err := rows.Scan(&n.Month, &n.Product, &n.ActiveBucket, &n.Users); err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read nudge_vs_activity: %w", err)
	}
	return out, nil
}
