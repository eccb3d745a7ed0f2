// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package main is the entry point for the materializer batch job.
//
// The materializer consolidates partitioned Parquet exports of messaging
// dispatch events and user activity events into a single pre-aggregated
// DuckDB fact store for the analytics dashboard. One invocation is one
// complete rebuild:
//
//  1. Configuration: load settings from defaults, config.yaml, and
//     environment variables (Koanf v2)
//  2. Discovery: expand shard glob patterns, skip truncated or corrupt
//     files, record every exclusion
//  3. Staging: merge drifted shard schemas with union_by_name into raw
//     tables inside a staging database
//  4. Normalization: resolve products, user identities, months, delivery
//     markers, and null-safe click counts into fact tables
//  5. Aggregation: materialize monthly_metrics, funnel_by_product,
//     nudge_vs_activity, campaign_perf, and build_report
//  6. Publish: checkpoint, then atomically rename the staging database
//     over the previous store
//
// A failed run leaves the previously published store untouched, so the
// dashboard never sees a partial rebuild.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (DISPATCH_PATTERNS, DUCKDB_PATH, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Example Usage
//
// Default layout, shards under the working directory:
//
//	./materializer
//
// Explicit paths:
//
//	export DISPATCH_PATTERNS='exports/parquet_trim/dispatch_date=*/data_0.parquet'
//	export ACTIVITY_PATTERNS='exports/activity_chunks/activity_data_*.parquet'
//	export PRODUCT_MAP_PATH=exports/business_product_map.parquet
//	export DUCKDB_PATH=/srv/dashboards/connectly_slim.duckdb
//	./materializer
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/connectly/materializer/internal/build"
	"github.com/connectly/materializer/internal/config"
	"github.com/connectly/materializer/internal/logging"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	logging.Info().
		Strs("dispatch_patterns", cfg.Sources.DispatchPatterns).
		Strs("activity_patterns", cfg.Sources.ActivityPatterns).
		Str("product_map", cfg.Sources.ProductMapPath).
		Str("output", cfg.Database.OutputPath).
		Msg("Starting materializer build")

	// A signal during the build cancels in-flight queries; the previous
	// store stays published and staging is discarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := build.New(cfg).Run(ctx)
	if err != nil {
		logging.Error().Err(err).Str("build_id", report.BuildID).Msg("Build failed")
		stop()
		os.Exit(1)
	}

	for table, count := range report.TableCounts {
		logging.Info().Str("table", table).Int64("rows", count).Msg("Table published")
	}
	logging.Info().
		Str("build_id", report.BuildID).
		Dur("duration", report.Duration()).
		Int("dispatch_shards", report.DispatchShards).
		Int("activity_shards", report.ActivityShards).
		Int("skipped_shards", report.SkippedCount()).
		Str("output", cfg.Database.OutputPath).
		Msg("Build complete")
}
