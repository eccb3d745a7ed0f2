// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Database.OutputPath != "connectly_slim.duckdb" {
		t.Errorf("default output path = %q, want connectly_slim.duckdb", cfg.Database.OutputPath)
	}
	if cfg.Sources.MinShardBytes != 1024 {
		t.Errorf("default min shard bytes = %d, want 1024", cfg.Sources.MinShardBytes)
	}
	if len(cfg.Sources.UserColumns) != 3 || cfg.Sources.UserColumns[0] != "guardian_phone" {
		t.Errorf("unexpected default user columns: %v", cfg.Sources.UserColumns)
	}
	if cfg.Costs.ConnectlyFlatFee != 500 {
		t.Errorf("default flat fee = %g, want 500", cfg.Costs.ConnectlyFlatFee)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "/tmp/facts.duckdb")
	t.Setenv("CONNECTLY_FLAT_FEE", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.OutputPath != "/tmp/facts.duckdb" {
		t.Errorf("output path = %q, want env override /tmp/facts.duckdb", cfg.Database.OutputPath)
	}
	if cfg.Costs.ConnectlyFlatFee != 0 {
		t.Errorf("flat fee = %g, want env override 0", cfg.Costs.ConnectlyFlatFee)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadEnvSliceFields(t *testing.T) {
	t.Setenv("USER_COLUMNS", "member_phone, user_phone")
	t.Setenv("DISPATCH_PATTERNS", "shards/*.parquet")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := []string{"member_phone", "user_phone"}
	if len(cfg.Sources.UserColumns) != len(want) {
		t.Fatalf("user columns = %v, want %v", cfg.Sources.UserColumns, want)
	}
	for i, col := range want {
		if cfg.Sources.UserColumns[i] != col {
			t.Errorf("user column[%d] = %q, want %q", i, cfg.Sources.UserColumns[i], col)
		}
	}
	if len(cfg.Sources.DispatchPatterns) != 1 || cfg.Sources.DispatchPatterns[0] != "shards/*.parquet" {
		t.Errorf("dispatch patterns = %v, want [shards/*.parquet]", cfg.Sources.DispatchPatterns)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
sources:
  product_map_path: maps/products.parquet
  min_shard_bytes: 2048
database:
  output_path: out/facts.duckdb
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Sources.ProductMapPath != "maps/products.parquet" {
		t.Errorf("map path = %q, want maps/products.parquet", cfg.Sources.ProductMapPath)
	}
	if cfg.Sources.MinShardBytes != 2048 {
		t.Errorf("min shard bytes = %d, want 2048", cfg.Sources.MinShardBytes)
	}
	if cfg.Database.OutputPath != "out/facts.duckdb" {
		t.Errorf("output path = %q, want out/facts.duckdb", cfg.Database.OutputPath)
	}
	// Untouched sections keep defaults
	if cfg.Costs.ConnectlyFlatFee != 500 {
		t.Errorf("flat fee = %g, want default 500", cfg.Costs.ConnectlyFlatFee)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "empty dispatch patterns",
			mutate:  func(c *Config) { c.Sources.DispatchPatterns = nil },
			wantErr: "DISPATCH_PATTERNS",
		},
		{
			name:    "empty user columns",
			mutate:  func(c *Config) { c.Sources.UserColumns = nil },
			wantErr: "USER_COLUMNS",
		},
		{
			name:    "malicious user column",
			mutate:  func(c *Config) { c.Sources.UserColumns = []string{"x); DROP TABLE act--"} },
			wantErr: "not a valid column identifier",
		},
		{
			name:    "column starting with digit",
			mutate:  func(c *Config) { c.Sources.UserColumns = []string{"1phone"} },
			wantErr: "not a valid column identifier",
		},
		{
			name:    "negative min shard bytes",
			mutate:  func(c *Config) { c.Sources.MinShardBytes = -1 },
			wantErr: "MIN_SHARD_BYTES",
		},
		{
			name:    "empty output path",
			mutate:  func(c *Config) { c.Database.OutputPath = "" },
			wantErr: "DUCKDB_PATH",
		},
		{
			name:    "negative unit cost",
			mutate:  func(c *Config) { c.Costs.MetaUnitCost = -0.1 },
			wantErr: "META_UNIT_COST",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"user_phone", "guardian_phone", "Phone2", "_col"}
	invalid := []string{"", "2col", "col name", "col-name", "col'"}

	for _, s := range valid {
		if !isValidIdentifier(s) {
			t.Errorf("isValidIdentifier(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if isValidIdentifier(s) {
			t.Errorf("isValidIdentifier(%q) = true, want false", s)
		}
	}
}
