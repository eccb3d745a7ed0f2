// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateSources(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateCosts(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateSources validates shard discovery and schema settings.
func (c *Config) validateSources() error {
	if len(c.Sources.DispatchPatterns) == 0 {
		return fmt.Errorf("DISPATCH_PATTERNS must list at least one glob pattern")
	}

	if len(c.Sources.UserColumns) == 0 {
		return fmt.Errorf("USER_COLUMNS must list at least one candidate identifier column")
	}

	for _, col := range c.Sources.UserColumns {
		if !isValidIdentifier(col) {
			return fmt.Errorf("USER_COLUMNS entry %q is not a valid column identifier", col)
		}
	}

	if c.Sources.MinShardBytes < 0 {
		return fmt.Errorf("MIN_SHARD_BYTES must be non-negative, got %d", c.Sources.MinShardBytes)
	}

	return nil
}

// validateDatabase validates DuckDB output settings.
func (c *Config) validateDatabase() error {
	if c.Database.OutputPath == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}

	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative, got %d", c.Database.Threads)
	}

	return nil
}

// validateCosts validates the cost constants applied in monthly_metrics.
func (c *Config) validateCosts() error {
	if c.Costs.MetaUnitCost < 0 {
		return fmt.Errorf("META_UNIT_COST must be non-negative, got %g", c.Costs.MetaUnitCost)
	}
	if c.Costs.ConnectlyUnitCost < 0 {
		return fmt.Errorf("CONNECTLY_UNIT_COST must be non-negative, got %g", c.Costs.ConnectlyUnitCost)
	}
	if c.Costs.ConnectlyFlatFee < 0 {
		return fmt.Errorf("CONNECTLY_FLAT_FEE must be non-negative, got %g", c.Costs.ConnectlyFlatFee)
	}
	return nil
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid log level", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not valid (use json or console)", c.Logging.Format)
	}

	return nil
}

// isValidIdentifier reports whether s is a plain SQL column identifier.
// Candidate columns are interpolated into COALESCE expressions, so anything
// that is not a bare identifier is rejected outright.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
