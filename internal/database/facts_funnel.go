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

// BuildFunnelByProduct materializes the funnel_by_product table: the
// sent -> delivered -> clicked progression per (month, product).
//
// sent/delivered use the same distinct (user, day) identity as the monthly
// table; clicked counts distinct users with at least one click. Product
// 'Unknown' is excluded: unmapped traffic has no funnel owner. Both rates
// divide by their own group's sent count, never a coarser total.
func (db *DB) BuildFunnelByProduct(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE funnel_by_product AS
		WITH agg AS (
			SELECT
				month,
				product,
				COUNT(DISTINCT user_id || '_' || CAST(dispatch_date AS VARCHAR)) AS sent,
				COUNT(DISTINCT CASE WHEN delivered
					THEN user_id || '_' || CAST(dispatch_date AS VARCHAR) END)   AS delivered,
				COUNT(DISTINCT CASE WHEN clicks > 0 THEN user_id END)            AS clicked
			FROM %s
			WHERE product <> 'Unknown'
			GROUP BY month, product
		)
		SELECT
			month,
			product,
			sent,
			delivered,
			clicked,
			CASE WHEN sent = 0 THEN 0.0 ELSE ROUND(delivered * 100.0 / sent, 1) END AS delivery_rate,
			CASE WHEN sent = 0 THEN 0.0 ELSE ROUND(clicked * 100.0 / sent, 1) END   AS click_rate
		FROM agg
		ORDER BY month, product`,
		tableDispatchFacts)

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("build funnel_by_product: %w", err)
	}
	return db.TableCount(ctx, "funnel_by_product")
}

// FunnelByProduct reads back the funnel_by_product table ordered by
// (month, product).
func (db *DB) FunnelByProduct(ctx context.Context) ([]models.FunnelRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var out []models.FunnelRow
	err := db.queryAndScan(ctx,
		`SELECT month, product, sent, delivered, clicked, delivery_rate, click_rate
		 FROM funnel_by_product ORDER BY month, product`,
		nil,
		func(rows *sql.Rows) error {
			var f models.FunnelRow
			if err := rows.Scan(&f.Month, &f.Product, &f.Sent, &f.Delivered, &f.Clicked, &f.DeliveryRate, &f.ClickRate); err != nil {
				return err
			}
			out = append(out, f)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read funnel_by_product: %w", err)
	}
	return out, nil
}
