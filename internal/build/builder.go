// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package build sequences one full materializer run.
//
// The pipeline is strictly one-directional and run-to-completion:
// discover shards -> stage raw tables -> normalize facts -> run the five
// aggregations -> drop intermediates -> checkpoint -> publish. There is no
// incremental mode; every run fully replaces the fact store or leaves the
// previous one untouched.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/connectly/materializer/internal/config"
	"github.com/connectly/materializer/internal/database"
	"github.com/connectly/materializer/internal/ingest"
	"github.com/connectly/materializer/internal/logging"
	"github.com/connectly/materializer/internal/models"
	"github.com/connectly/materializer/internal/store"
)

// Builder runs the consolidation and aggregation pipeline.
type Builder struct {
	cfg *config.Config
}

// New creates a Builder for the given configuration.
func New(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Run executes one full build and atomically publishes the result. On any
// error the previous fact store is left untouched and the staging file is
// discarded. The returned report is non-nil whenever the build got far
// enough to start, even on failure.
func (b *Builder) Run(ctx context.Context) (*models.BuildReport, error) {
	report := &models.BuildReport{
		BuildID:     uuid.NewString(),
		StartTime:   time.Now().UTC(),
		TableCounts: make(map[string]int64),
	}

	outputPath := b.cfg.Database.OutputPath
	if err := store.Prepare(outputPath); err != nil {
		return report, fmt.Errorf("prepare staging: %w", err)
	}

	db, err := database.New(store.StagingPath(outputPath), &b.cfg.Database)
	if err != nil {
		return report, fmt.Errorf("open staging store: %w", err)
	}

	published := false
	defer func() {
		if !published {
			if discardErr := store.Discard(outputPath); discardErr != nil {
				logging.Warn().Err(discardErr).Msg("Failed to discard staging store")
			}
		}
	}()

	if err := b.runPipeline(ctx, db, report); err != nil {
		closeQuietly(db)
		return report, err
	}

	// Close checkpoints the WAL into the staging file; publishing before a
	// clean close would expose a store that still needs WAL replay.
	if err := db.Close(); err != nil {
		return report, fmt.Errorf("close staging store: %w", err)
	}

	if err := store.Publish(outputPath); err != nil {
		return report, err
	}
	published = true

	report.EndTime = time.Now().UTC()

	// Best effort: the sidecar report failing to write does not invalidate
	// an already published store.
	if err := WriteReport(outputPath, report); err != nil {
		logging.Warn().Err(err).Msg("Failed to write build report file")
	}

	return report, nil
}

// runPipeline executes the staging, normalization, and aggregation steps
// against an open staging database.
func (b *Builder) runPipeline(ctx context.Context, db *database.DB, report *models.BuildReport) error {
	if err := b.stageProductMap(ctx, db, report); err != nil {
		return err
	}
	if err := b.stageDispatch(ctx, db, report); err != nil {
		return err
	}
	if err := b.stageActivity(ctx, db, report); err != nil {
		return err
	}

	rows, err := db.BuildDispatchFacts(ctx)
	if err != nil {
		return err
	}
	report.DispatchRows = rows
	logging.Info().Int64("rows", rows).Msg("Normalized dispatch facts")

	if err := b.aggregate(ctx, db, report); err != nil {
		return err
	}

	report.EndTime = time.Now().UTC()
	if err := db.BuildReportTable(ctx, report); err != nil {
		return err
	}
	report.TableCounts["build_report"] = 1

	// Intermediates are dropped before the checkpoint so the published
	// file carries only the five output tables.
	if err := db.DropIntermediates(ctx); err != nil {
		return err
	}

	return nil
}

// stageProductMap stages the business -> product map, degrading to an
// empty map with a warning when the file is absent.
func (b *Builder) stageProductMap(ctx context.Context, db *database.DB, report *models.BuildReport) error {
	path := b.cfg.Sources.ProductMapPath
	present := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			present = true
		}
	}
	report.MapPresent = present

	if !present {
		logging.Warn().Str("path", path).
			Msg("Business->product map missing; all products resolve to Unknown")
	}

	return db.LoadProductMap(ctx, path, present)
}

// stageDispatch discovers, validates, and stages dispatch shards. At least
// one valid shard is required: without dispatch events there is nothing to
// aggregate and the previous store should stay published.
func (b *Builder) stageDispatch(ctx context.Context, db *database.DB, report *models.BuildReport) error {
	shards, err := b.discoverShards(ctx, db, "dispatch", b.cfg.Sources.DispatchPatterns, report)
	if err != nil {
		return err
	}
	if len(shards) == 0 {
		return fmt.Errorf("no valid dispatch shards matched %v", b.cfg.Sources.DispatchPatterns)
	}
	report.DispatchShards = len(shards)

	rows, err := db.LoadDispatchShards(ctx, shards)
	if err != nil {
		return err
	}
	logging.Info().Int("shards", len(shards)).Int64("rows", rows).Msg("Staged dispatch shards")
	return nil
}

// stageActivity discovers, validates, and stages activity shards, then
// resolves the user identifier chain against the merged schema and builds
// the activity facts. No activity shards at all is a degraded build, not
// an error; no identifier column in present shards is fatal.
func (b *Builder) stageActivity(ctx context.Context, db *database.DB, report *models.BuildReport) error {
	shards, err := b.discoverShards(ctx, db, "activity", b.cfg.Sources.ActivityPatterns, report)
	if err != nil {
		return err
	}
	report.ActivityShards = len(shards)

	if len(shards) == 0 {
		logging.Warn().Msg("No valid activity shards; all nudged users will bucket as inactive")
		return db.BuildEmptyActivityFacts(ctx)
	}

	if _, err := db.LoadActivityShards(ctx, shards); err != nil {
		return err
	}

	available, err := db.ActivityColumns(ctx)
	if err != nil {
		return err
	}
	resolved, err := ingest.ResolveColumns("activity", b.cfg.Sources.UserColumns, available)
	if err != nil {
		// SchemaError: no identity resolution is possible, abort.
		return err
	}
	report.UserColumns = resolved

	rows, err := db.BuildActivityFacts(ctx, resolved)
	if err != nil {
		return err
	}
	report.ActivityRows = rows
	logging.Info().Int("shards", len(shards)).Int64("rows", rows).
		Strs("user_columns", resolved).Msg("Staged activity shards")
	return nil
}

// discoverShards expands glob patterns, filters undersized files, and
// validates that each survivor parses as Parquet. Every exclusion lands in
// the report with its reason.
func (b *Builder) discoverShards(ctx context.Context, db *database.DB, source string, patterns []string, report *models.BuildReport) ([]string, error) {
	discovery, err := ingest.Discover(patterns, b.cfg.Sources.MinShardBytes)
	if err != nil {
		return nil, err
	}

	for _, skip := range discovery.Skipped {
		b.recordSkip(report, source, skip)
	}

	valid := discovery.Shards[:0]
	for _, shard := range discovery.Shards {
		if err := db.ValidateShard(ctx, shard); err != nil {
			var shardErr *ingest.ShardError
			if errors.As(err, &shardErr) {
				b.recordSkip(report, source, shardErr)
				continue
			}
			return nil, err
		}
		valid = append(valid, shard)
	}
	return valid, nil
}

// recordSkip adds a skipped shard to the report and logs it.
func (b *Builder) recordSkip(report *models.BuildReport, source string, skip *ingest.ShardError) {
	report.Skipped = append(report.Skipped, models.SkippedShard{
		Path:   skip.Path,
		Source: source,
		Reason: skip.Reason,
	})
	logging.Warn().Str("shard", skip.Path).Str("source", source).
		Str("reason", skip.Reason).Msg("Skipping shard")
}

// aggregate runs the five output aggregations and records row counts.
func (b *Builder) aggregate(ctx context.Context, db *database.DB, report *models.BuildReport) error {
	steps := []struct {
		table string
		run   func(context.Context) (int64, error)
	}{
		{"monthly_metrics", func(ctx context.Context) (int64, error) {
			return db.BuildMonthlyMetrics(ctx, b.cfg.Costs)
		}},
		{"funnel_by_product", db.BuildFunnelByProduct},
		{"nudge_vs_activity", db.BuildNudgeVsActivity},
		{"campaign_perf", db.BuildCampaignPerf},
	}

	for _, step := range steps {
		rows, err := step.run(ctx)
		if err != nil {
			return err
		}
		report.TableCounts[step.table] = rows
		logging.Info().Str("table", step.table).Int64("rows", rows).Msg("Materialized table")
	}
	return nil
}

// closeQuietly closes the staging database, logging failures.
func closeQuietly(db *database.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing staging store")
	}
}
