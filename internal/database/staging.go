// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package database

import (
	"context"
	"fmt"

	"github.com/connectly/materializer/internal/ingest"
	"github.com/connectly/materializer/internal/logging"
)

// Staging and intermediate table names. These exist only for the duration
// of a build; DropIntermediates removes them before the store is published.
const (
	tableDispatchRaw   = "dispatch_raw"
	tableActivityRaw   = "activity_raw"
	tableProductMap    = "product_map"
	tableDispatchFacts = "dispatch_facts"
	tableActivityFacts = "activity_facts"
)

// ValidateShard verifies that a shard is readable Parquet by scanning its
// row count. Returns a ShardError for corrupt or unreadable files so the
// caller can skip them and record the exclusion.
func (db *DB) ValidateShard(ctx context.Context, path string) error {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM read_parquet(%s)", quoteLiteral(path))
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return &ingest.ShardError{Path: path, Reason: "failed to parse", Err: err}
	}
	return nil
}

// LoadDispatchShards stages raw dispatch events from the given shards.
// union_by_name merges shards whose column sets drifted apart; columns
// absent from a shard surface as NULL. Rows without a dispatch timestamp
// cannot be bucketed into a month and are discarded here.
func (db *DB) LoadDispatchShards(ctx context.Context, shards []string) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
			business_id,
			customer_external_id,
			sendout_name,
			TRY_CAST(dispatched_at AS TIMESTAMP) AS dispatched_at,
			delivered,
			TRY_CAST(button_responses AS BIGINT) AS button_responses,
			TRY_CAST(link_clicks AS BIGINT) AS link_clicks
		FROM %s
		WHERE TRY_CAST(dispatched_at AS TIMESTAMP) IS NOT NULL`,
		tableDispatchRaw, parquetListExpr(shards))

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("stage dispatch shards: %w", err)
	}
	return db.TableCount(ctx, tableDispatchRaw)
}

// LoadActivityShards stages raw activity events from the given shards with
// the full drifted column set intact. Identifier resolution happens later,
// once the merged schema is known.
func (db *DB) LoadActivityShards(ctx context.Context, shards []string) (int64, error) {
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT * FROM %s`,
		tableActivityRaw, parquetListExpr(shards))

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("stage activity shards: %w", err)
	}
	return db.TableCount(ctx, tableActivityRaw)
}

// ActivityColumns returns the merged activity schema's column names, used
// to resolve which user identifier candidates are present this build.
func (db *DB) ActivityColumns(ctx context.Context) ([]string, error) {
	return db.tableColumns(ctx, tableActivityRaw)
}

// LoadProductMap stages the business -> product mapping. A missing map
// file is expected degradation, not an error: an empty map is staged, every
// dispatch resolves to "Unknown", and the caller is told via the return
// value so it can surface a warning.
func (db *DB) LoadProductMap(ctx context.Context, path string, present bool) error {
	if !present {
		query := fmt.Sprintf(
			"CREATE OR REPLACE TABLE %s (business_id VARCHAR, product VARCHAR)",
			tableProductMap)
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("stage empty product map: %w", err)
		}
		return nil
	}

	// business_id is VARCHAR on both sides of the resolver join; shards
	// and map files disagree on the physical type.
	query := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
			CAST(business_id AS VARCHAR) AS business_id,
			CAST(product AS VARCHAR)     AS product
		FROM read_parquet(%s)`,
		tableProductMap, quoteLiteral(path))

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("stage product map %s: %w", path, err)
	}
	return nil
}

// DropIntermediates removes staging and fact tables once the output
// aggregations are materialized, bounding the published file to the five
// output tables.
func (db *DB) DropIntermediates(ctx context.Context) error {
	for _, table := range []string{
		tableDispatchRaw,
		tableActivityRaw,
		tableProductMap,
		tableDispatchFacts,
		tableActivityFacts,
	} {
		if _, err := db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
		logging.Debug().Str("table", table).Msg("Dropped intermediate table")
	}
	return nil
}
