// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// queryAndScan executes a query and scans all rows using the provided
// scanner function. Reduces repetitive query-scan-collect patterns.
func (db *DB) queryAndScan(ctx context.Context, query string, args []interface{}, scanner func(*sql.Rows) error) error {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		if err := scanner(rows); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}

	return nil
}

// TableCount returns the row count of a table. The name must come from
// the fixed set of tables this package creates, never from input.
func (db *DB) TableCount(ctx context.Context, table string) (int64, error) {
	var count int64
	//nolint:gosec // table names are package-internal constants
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// tableColumns returns the column names of a staged table in schema order.
func (db *DB) tableColumns(ctx context.Context, table string) ([]string, error) {
	var columns []string
	err := db.queryAndScan(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_name = ? ORDER BY ordinal_position`,
		[]interface{}{table},
		func(rows *sql.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			columns = append(columns, name)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	return columns, nil
}

// quoteLiteral renders a string as a single-quoted SQL literal.
// read_parquet takes file paths as literals, not bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// parquetListExpr renders a shard list as a DuckDB read_parquet call with
// union_by_name so shards with drifted schemas merge by column name.
func parquetListExpr(shards []string) string {
	quoted := make([]string, len(shards))
	for i, s := range shards {
		quoted[i] = quoteLiteral(s)
	}
	return fmt.Sprintf("read_parquet([%s], union_by_name=true)", strings.Join(quoted, ", "))
}
