// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/materializer/config.yaml",
	"/etc/materializer/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			DispatchPatterns: []string{
				"parquet_trim/dispatch_date=*/data_0.parquet",
			},
			ActivityPatterns: []string{
				"activity_chunks/activity_data_*.parquet",
			},
			ProductMapPath: "business_product_map.parquet",
			MinShardBytes:  1024,
			// Activity shards drifted between these identifier columns
			// over time; first present in the loaded schema wins.
			UserColumns: []string{
				"guardian_phone",
				"moderator_phone",
				"user_phone",
			},
		},
		Database: DatabaseConfig{
			OutputPath:             "connectly_slim.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Costs: CostsConfig{
			// Effective Meta unit cost: 96% marketing at 0.0107 plus
			// 4% utility at 0.0014.
			MetaUnitCost: 0.010328,
			// Effective Connectly unit cost: 90% billable at 0.0123.
			ConnectlyUnitCost: 0.01107,
			ConnectlyFlatFee:  500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; known slice fields are comma-separated.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when sourced from env vars.
var sliceConfigPaths = []string{
	"sources.dispatch_patterns",
	"sources.activity_patterns",
	"sources.user_columns",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables are ignored to avoid polluting the config tree.
//
// Examples:
//   - DISPATCH_PATTERNS -> sources.dispatch_patterns
//   - DUCKDB_PATH -> database.output_path
//   - CONNECTLY_FLAT_FEE -> costs.connectly_flat_fee
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"dispatch_patterns": "sources.dispatch_patterns",
		"activity_patterns": "sources.activity_patterns",
		"product_map_path":  "sources.product_map_path",
		"min_shard_bytes":   "sources.min_shard_bytes",
		"user_columns":      "sources.user_columns",

		"duckdb_path":           "database.output_path",
		"duckdb_max_memory":     "database.max_memory",
		"duckdb_threads":        "database.threads",
		"duckdb_preserve_order": "database.preserve_insertion_order",

		"meta_unit_cost":      "costs.meta_unit_cost",
		"connectly_unit_cost": "costs.connectly_unit_cost",
		"connectly_flat_fee":  "costs.connectly_flat_fee",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return "" // ignore unmapped variables
}
