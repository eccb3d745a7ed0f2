// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package build

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	json "github.com/goccy/go-json"

	"github.com/connectly/materializer/internal/config"
	"github.com/connectly/materializer/internal/database"
	"github.com/connectly/materializer/internal/logging"
	"github.com/connectly/materializer/internal/models"
	"github.com/connectly/materializer/internal/store"
)

func TestMain(m *testing.M) {
	logging.SetLevelString("error")
	os.Exit(m.Run())
}

// fixtureConn opens a throwaway in-memory DuckDB used only to write
// Parquet fixtures.
func fixtureConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open fixture connection: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("close fixture connection: %v", err)
		}
	})
	return conn
}

func writeParquet(t *testing.T, conn *sql.DB, path, selectSQL string) {
	t.Helper()
	query := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", selectSQL, path)
	if _, err := conn.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("write parquet fixture %s: %v", path, err)
	}
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Sources: config.SourcesConfig{
			DispatchPatterns: []string{filepath.Join(dir, "dispatch_*.parquet")},
			ActivityPatterns: []string{filepath.Join(dir, "activity_*.parquet")},
			ProductMapPath:   filepath.Join(dir, "business_product_map.parquet"),
			MinShardBytes:    64,
			UserColumns:      []string{"guardian_phone", "moderator_phone", "user_phone"},
		},
		Database: config.DatabaseConfig{
			OutputPath:             filepath.Join(dir, "out", "facts.duckdb"),
			MaxMemory:              "512MB",
			Threads:                2,
			PreserveInsertionOrder: true,
		},
		Costs: config.CostsConfig{
			MetaUnitCost:      0.010328,
			ConnectlyUnitCost: 0.01107,
			ConnectlyFlatFee:  500,
		},
	}
}

// seedInputs writes a dispatch shard, an activity shard, and the product
// map: two users messaged in January, one delivered with clicks, one user
// active three days.
func seedInputs(t *testing.T, conn *sql.DB, dir string) {
	t.Helper()
	writeParquet(t, conn, filepath.Join(dir, "dispatch_001.parquet"), `
		SELECT * FROM (VALUES
			(1, 'u1', 'jan_promo', TIMESTAMP '2025-01-10 08:00:00', 'delivered', 2, CAST(NULL AS BIGINT)),
			(1, 'u2', 'jan_promo', TIMESTAMP '2025-01-11 09:30:00', CAST(NULL AS VARCHAR), CAST(NULL AS BIGINT), CAST(NULL AS BIGINT))
		) AS t(business_id, customer_external_id, sendout_name, dispatched_at, delivered, button_responses, link_clicks)`)
	writeParquet(t, conn, filepath.Join(dir, "activity_001.parquet"), `
		SELECT * FROM (VALUES
			('u1', DATE '2025-01-02'),
			('u1', DATE '2025-01-03'),
			('u1', DATE '2025-01-04')
		) AS t(guardian_phone, activity_date)`)
	writeParquet(t, conn, filepath.Join(dir, "business_product_map.parquet"), `
		SELECT * FROM (VALUES (1, 'Tutoring')) AS t(business_id, product)`)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	conn := fixtureConn(t)
	seedInputs(t, conn, dir)

	// Decoys the discovery and validation stages must skip: a truncated
	// shard below the size floor and a full-size file of garbage.
	if err := os.WriteFile(filepath.Join(dir, "dispatch_trunc.parquet"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write truncated shard: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dispatch_corrupt.parquet"), bytes.Repeat([]byte("garbage "), 64), 0o600); err != nil {
		t.Fatalf("write corrupt shard: %v", err)
	}

	cfg := testConfig(dir)
	report, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if report.DispatchShards != 1 || report.ActivityShards != 1 {
		t.Errorf("shards = %d/%d, want 1/1", report.DispatchShards, report.ActivityShards)
	}
	if report.SkippedCount() != 2 {
		t.Errorf("skipped = %d, want 2 (truncated + corrupt)", report.SkippedCount())
	}
	if !report.MapPresent {
		t.Error("MapPresent = false, want true")
	}
	if got := report.TableCounts["monthly_metrics"]; got != 1 {
		t.Errorf("monthly_metrics count = %d, want 1", got)
	}
	if got := report.TableCounts["nudge_vs_activity"]; got != 3 {
		t.Errorf("nudge_vs_activity count = %d, want 3", got)
	}

	// Staging must be gone, only the published store remains.
	if _, err := os.Stat(store.StagingPath(cfg.Database.OutputPath)); !os.IsNotExist(err) {
		t.Error("staging file still exists after publish")
	}

	db, err := database.New(cfg.Database.OutputPath, &cfg.Database)
	if err != nil {
		t.Fatalf("open published store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("close published store: %v", err)
		}
	}()

	metrics, err := db.MonthlyMetrics(context.Background())
	if err != nil {
		t.Fatalf("MonthlyMetrics() failed: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Sent != 2 || metrics[0].Delivered != 1 {
		t.Errorf("monthly metrics = %+v, want one row with sent=2 delivered=1", metrics)
	}

	// Intermediates must not leak into the published store.
	if _, err := db.TableCount(context.Background(), "dispatch_raw"); err == nil {
		t.Error("dispatch_raw leaked into the published store")
	}

	// The sidecar JSON report round-trips.
	data, err := os.ReadFile(ReportPath(cfg.Database.OutputPath))
	if err != nil {
		t.Fatalf("read report file: %v", err)
	}
	var fromDisk models.BuildReport
	if err := json.Unmarshal(data, &fromDisk); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if fromDisk.BuildID != report.BuildID {
		t.Errorf("report build_id = %q, want %q", fromDisk.BuildID, report.BuildID)
	}
}

func TestRunFailsWithoutDispatchShards(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	_, err := New(cfg).Run(context.Background())
	if err == nil {
		t.Fatal("Run() with no dispatch shards should fail")
	}

	if _, statErr := os.Stat(cfg.Database.OutputPath); !os.IsNotExist(statErr) {
		t.Error("output store was created despite build failure")
	}
	if _, statErr := os.Stat(store.StagingPath(cfg.Database.OutputPath)); !os.IsNotExist(statErr) {
		t.Error("staging store was not discarded after build failure")
	}
}

func TestRunDegradesWithoutActivityShards(t *testing.T) {
	dir := t.TempDir()
	conn := fixtureConn(t)
	seedInputs(t, conn, dir)
	if err := os.Remove(filepath.Join(dir, "activity_001.parquet")); err != nil {
		t.Fatalf("remove activity shard: %v", err)
	}

	cfg := testConfig(dir)
	report, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.ActivityShards != 0 || report.ActivityRows != 0 {
		t.Errorf("activity shards/rows = %d/%d, want 0/0", report.ActivityShards, report.ActivityRows)
	}

	// With no activity data every nudged user buckets as inactive.
	db, err := database.New(cfg.Database.OutputPath, &cfg.Database)
	if err != nil {
		t.Fatalf("open published store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("close published store: %v", err)
		}
	}()

	rows, err := db.NudgeVsActivity(context.Background())
	if err != nil {
		t.Fatalf("NudgeVsActivity() failed: %v", err)
	}
	for _, row := range rows {
		if row.ActiveBucket != models.BucketInactive && row.Users != 0 {
			t.Errorf("bucket %q users = %d, want 0 without activity data", row.ActiveBucket, row.Users)
		}
		if row.ActiveBucket == models.BucketInactive && row.Users != 2 {
			t.Errorf("inactive bucket users = %d, want 2", row.Users)
		}
	}
}

func TestRunFailsWhenNoUserColumnResolves(t *testing.T) {
	dir := t.TempDir()
	conn := fixtureConn(t)
	seedInputs(t, conn, dir)
	// Activity shard whose schema has none of the identifier candidates.
	writeParquet(t, conn, filepath.Join(dir, "activity_001.parquet"), `
		SELECT * FROM (VALUES ('x', DATE '2025-01-02')) AS t(device_id, activity_date)`)

	cfg := testConfig(dir)
	_, err := New(cfg).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when no identifier column resolves")
	}
	if _, statErr := os.Stat(cfg.Database.OutputPath); !os.IsNotExist(statErr) {
		t.Error("output store was created despite schema failure")
	}
}

func TestRunReplacesPreviousStore(t *testing.T) {
	dir := t.TempDir()
	conn := fixtureConn(t)
	seedInputs(t, conn, dir)

	cfg := testConfig(dir)
	first, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	second, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if first.BuildID == second.BuildID {
		t.Error("both runs share one build ID")
	}

	// Same inputs, same facts: the rebuild replaces rather than appends.
	db, err := database.New(cfg.Database.OutputPath, &cfg.Database)
	if err != nil {
		t.Fatalf("open published store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("close published store: %v", err)
		}
	}()

	metrics, err := db.MonthlyMetrics(context.Background())
	if err != nil {
		t.Fatalf("MonthlyMetrics() failed: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Sent != 2 {
		t.Errorf("monthly metrics after rebuild = %+v, want one row with sent=2", metrics)
	}
}
