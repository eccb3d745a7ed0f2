// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package config loads and validates materializer configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

// Config holds all materializer configuration loaded from defaults, an
// optional YAML file, and environment variables.
type Config struct {
	Sources  SourcesConfig  `koanf:"sources"`
	Database DatabaseConfig `koanf:"database"`
	Costs    CostsConfig    `koanf:"costs"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SourcesConfig describes where raw event shards and the product map live.
type SourcesConfig struct {
	// DispatchPatterns are glob patterns matching dispatch event shards.
	DispatchPatterns []string `koanf:"dispatch_patterns"`

	// ActivityPatterns are glob patterns matching activity event shards.
	ActivityPatterns []string `koanf:"activity_patterns"`

	// ProductMapPath is the business_id -> product mapping file.
	// Optional: when absent every dispatch resolves to product "Unknown".
	ProductMapPath string `koanf:"product_map_path"`

	// MinShardBytes is the minimum shard file size. Smaller files are
	// treated as truncated or corrupt and skipped.
	MinShardBytes int64 `koanf:"min_shard_bytes"`

	// UserColumns is the ordered list of candidate user identifier
	// columns in activity shards. The first column present in the loaded
	// schema wins; shards drift between these over time.
	UserColumns []string `koanf:"user_columns"`
}

// DatabaseConfig holds DuckDB settings for the output fact store.
type DatabaseConfig struct {
	// OutputPath is the published fact store location. The build writes
	// to a staging file next to it and renames on success.
	OutputPath string `koanf:"output_path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads sets DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// PreserveInsertionOrder keeps DuckDB's default result ordering.
	// Disabling reduces memory usage on large scans.
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// CostsConfig holds the per-message cost constants applied to delivered
// counts in monthly_metrics. The carrier mix is folded into the effective
// unit costs; the flat fee is the platform subscription.
type CostsConfig struct {
	MetaUnitCost      float64 `koanf:"meta_unit_cost"`
	ConnectlyUnitCost float64 `koanf:"connectly_unit_cost"`
	ConnectlyFlatFee  float64 `koanf:"connectly_flat_fee"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
