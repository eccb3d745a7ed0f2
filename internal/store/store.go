// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package store publishes a finished build atomically.
//
// The dashboard may be querying the current fact store while a rebuild
// runs, so the build never mutates the published file: it writes a fresh
// staging database next to it and renames over the old one only after the
// build completed and checkpointed. A failed build leaves the previous
// store fully intact and queryable.
package store

import (
	"fmt"
	"os"

	"github.com/connectly/materializer/internal/logging"
)

// stagingSuffix marks the in-progress build file next to the output path.
const stagingSuffix = ".building"

// StagingPath returns the staging database path for an output path.
// Staging lives in the same directory so the final rename stays within one
// filesystem and therefore atomic.
func StagingPath(outputPath string) string {
	return outputPath + stagingSuffix
}

// Prepare removes any stale staging files left by a previous failed or
// interrupted build.
func Prepare(outputPath string) error {
	return Discard(outputPath)
}

// Publish renames the staging database over the output path. The rename is
// the single visible step of the build: readers see either the old store
// or the complete new one, never a partial state.
func Publish(outputPath string) error {
	staging := StagingPath(outputPath)

	if _, err := os.Stat(staging); err != nil {
		return fmt.Errorf("staging store missing: %w", err)
	}

	if err := os.Rename(staging, outputPath); err != nil {
		return fmt.Errorf("publish store: %w", err)
	}

	logging.Info().Str("path", outputPath).Msg("Fact store published")
	return nil
}

// Discard removes the staging database and its WAL, ignoring files that do
// not exist. Called on build failure so the next run starts clean.
func Discard(outputPath string) error {
	staging := StagingPath(outputPath)
	for _, path := range []string{staging, staging + ".wal"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("discard %s: %w", path, err)
		}
	}
	return nil
}
