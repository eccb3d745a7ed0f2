// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connectly/materializer/internal/config"
	"github.com/connectly/materializer/internal/models"
)

// BuildMonthlyMetrics materializes the monthly_metrics table.
//
// sent and delivered count distinct (user, dispatch day) identities rather
// than raw rows: a user hit by two campaigns the same day was still
// "messaged once this day". delivery_rate divides by the month's own sent
// count; a zero denominator yields 0.0. Costs apply the configured unit
// costs to the delivered count, plus the flat platform fee.
func (db *DB) BuildMonthlyMetrics(ctx context.Context, costs config.CostsConfig) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE monthly_metrics AS
		WITH ids AS (
			SELECT
				month,
				user_id || '_' || CAST(dispatch_date AS VARCHAR) AS dispatch_id,
				delivered
			FROM %s
		), agg AS (
			SELECT
				month,
				COUNT(DISTINCT dispatch_id)                                 AS sent,
				COUNT(DISTINCT CASE WHEN delivered THEN dispatch_id END)    AS delivered
			FROM ids
			GROUP BY month
		)
		SELECT
			month,
			sent,
			delivered,
			CASE WHEN sent = 0 THEN 0.0
			     ELSE ROUND(delivered * 100.0 / sent, 1) END               AS delivery_rate,
			ROUND(delivered * CAST(? AS DOUBLE), 2)                        AS meta_cost,
			ROUND(delivered * CAST(? AS DOUBLE) + CAST(? AS DOUBLE), 2)    AS connectly_cost
		FROM agg
		ORDER BY month`,
		tableDispatchFacts)

	_, err := db.conn.ExecContext(ctx, query,
		costs.MetaUnitCost, costs.ConnectlyUnitCost, costs.ConnectlyFlatFee)
	if err != nil {
		return 0, fmt.Errorf("build monthly_metrics: %w", err)
	}
	return db.TableCount(ctx, "monthly_metrics")
}

// MonthlyMetrics reads back the monthly_metrics table ordered by month.
func (db *DB) MonthlyMetrics(ctx context.Context) ([]models.MonthlyMetric, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var out []models.MonthlyMetric
	err := db.queryAndScan(ctx,
		`SELECT month, sent, delivered, delivery_rate, meta_cost, connectly_cost
		 FROM monthly_metrics ORDER BY month`,
		nil,
		func(rows *sql.Rows) error {
			var m models.MonthlyMetric
			if err := rows.Scan(&m.Month, &m.Sent, &m.Delivered, &m.DeliveryRate, &m.MetaCost, &m.ConnectlyCost); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read monthly_metrics: %w", err)
	}
	return out, nil
}
