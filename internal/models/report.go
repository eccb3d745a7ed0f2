// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package models

import "time"

// SkippedShard records one input file that was excluded from the build.
type SkippedShard struct {
	// Path is the shard file path as matched by the glob pattern.
	Path string `json:"path"`

	// Source is "dispatch" or "activity".
	Source string `json:"source"`

	// Reason is a short human-readable skip reason.
	Reason string `json:"reason"`
}

// BuildReport summarizes one materializer run. It is persisted as the
// build_report table inside the fact store (minus the per-shard detail)
// and written in full as a JSON file next to the published database, so
// skipped-shard counts are observable rather than merely logged.
type BuildReport struct {
	// BuildID uniquely identifies this build.
	BuildID string `json:"build_id"`

	// StartTime is when the build started.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the build completed.
	EndTime time.Time `json:"end_time"`

	// DispatchShards is the number of dispatch shards ingested.
	DispatchShards int `json:"dispatch_shards"`

	// ActivityShards is the number of activity shards ingested.
	ActivityShards int `json:"activity_shards"`

	// Skipped lists shards excluded from the build with reasons.
	Skipped []SkippedShard `json:"skipped_shards"`

	// DispatchRows is the number of normalized dispatch facts.
	DispatchRows int64 `json:"dispatch_rows"`

	// ActivityRows is the number of normalized activity facts.
	ActivityRows int64 `json:"activity_rows"`

	// MapPresent is false when the business->product map file was
	// missing and every product degraded to "Unknown".
	MapPresent bool `json:"map_present"`

	// UserColumn is the activity identifier column chain selected for
	// this build, in COALESCE order.
	UserColumns []string `json:"user_columns"`

	// TableCounts holds row counts per published table.
	TableCounts map[string]int64 `json:"table_counts"`
}

// Duration returns how long the build took.
func (r *BuildReport) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// SkippedCount returns the number of shards excluded from the build.
func (r *BuildReport) SkippedCount() int {
	return len(r.Skipped)
}
