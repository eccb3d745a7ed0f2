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

// BuildCampaignPerf materializes the campaign_perf table: delivery and
// click totals per (month, product, sendout), plus the activity
// segmentation of each campaign's own users.
//
// sent/delivered count distinct users at campaign grain, so the three
// segmentation percentages partition exactly the sent population and sum
// to 100 up to rounding. clicks is the raw click total (button responses
// plus link clicks) across the campaign's events. 'Unknown' product rows
// are excluded, matching funnel_by_product. The segmentation denominators
// are each campaign's own sent count, recomputed at this grain.
func (db *DB) BuildCampaignPerf(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE campaign_perf AS
		WITH base AS (
			SELECT
				month,
				product,
				sendout_name,
				COUNT(DISTINCT user_id)                                  AS sent,
				COUNT(DISTINCT CASE WHEN delivered THEN user_id END)     AS delivered,
				COALESCE(SUM(clicks), 0)                                 AS clicks
			FROM %[1]s
			WHERE product <> 'Unknown'
			GROUP BY month, product, sendout_name
		), members AS (
			SELECT DISTINCT month, product, sendout_name, user_id
			FROM %[1]s
			WHERE product <> 'Unknown'
		), act_days AS (
			SELECT user_id, month, COUNT(DISTINCT activity_date) AS days
			FROM %[2]s
			GROUP BY user_id, month
		), seg AS (
			SELECT
				m.month,
				m.product,
				m.sendout_name,
				SUM(CASE WHEN COALESCE(a.days, 0) = 0                THEN 1 ELSE 0 END) AS inactive_users,
				SUM(CASE WHEN COALESCE(a.days, 0) BETWEEN 1 AND 10   THEN 1 ELSE 0 END) AS active_users,
				SUM(CASE WHEN COALESCE(a.days, 0) > 10               THEN 1 ELSE 0 END) AS high_users
			FROM members m
			LEFT JOIN act_days a ON m.user_id = a.user_id AND m.month = a.month
			GROUP BY 1, 2, 3
		)
		SELECT
			b.month,
			b.product,
			b.sendout_name,
			b.sent,
			b.delivered,
			b.clicks,
			CASE WHEN b.sent = 0 THEN 0.0 ELSE ROUND(s.inactive_users * 100.0 / b.sent, 1) END AS inactive_pct,
			CASE WHEN b.sent = 0 THEN 0.0 ELSE ROUND(s.active_users * 100.0 / b.sent, 1) END   AS active_pct,
			CASE WHEN b.sent = 0 THEN 0.0 ELSE ROUND(s.high_users * 100.0 / b.sent, 1) END     AS high_pct
		FROM base b
		JOIN seg s
			ON s.month = b.month AND s.product = b.product AND s.sendout_name = b.sendout_name
		ORDER BY b.month, b.product, b.sendout_name`,
		tableDispatchFacts, tableActivityFacts)

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("build campaign_perf: %w", err)
	}
	return db.TableCount(ctx, "campaign_perf")
}

// CampaignPerf reads back the campaign_perf table ordered by
// (month, product, sendout_name).
func (db *DB) CampaignPerf(ctx context.Context) ([]models.CampaignPerfRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var out []models.CampaignPerfRow
	err := db.queryAndScan(ctx,
		`SELECT month, product, sendout_name, sent, delivered, clicks,
		        inactive_pct, active_pct, high_pct
		 FROM campaign_perf ORDER BY month, product, sendout_name`,
		nil,
		func(rows *sql.Rows) error {
			var c models.CampaignPerfRow
			if err := rows.Scan(&c.Month, &c.Product, &c.SendoutName, &c.Sent, &c.Delivered, &c.Clicks,
				&c.InactivePct, &c.ActivePct, &c.HighPct); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read campaign_perf: %w", err)
	}
	return out, nil
}
