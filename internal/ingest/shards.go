// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

// Package ingest discovers and validates raw Parquet event shards.
//
// Shards are partitioned exports that accumulated over many months of
// schema drift: files can be zero-length, truncated mid-write, or carry a
// different column set than their neighbours. Discovery filters out what
// is cheap to detect on the filesystem (missing, too small); deeper
// corruption is caught per shard by the database layer before the shard
// list is handed to read_parquet.
package ingest

import (
	"os"
	"path/filepath"
	"sort"
)

// Discovery is the outcome of scanning one source's glob patterns.
type Discovery struct {
	// Shards are the files that passed the size filter, sorted for
	// deterministic build order.
	Shards []string

	// Skipped are the files excluded with their reasons.
	Skipped []*ShardError
}

// Discover expands the glob patterns and filters out files smaller than
// minBytes. Undersized files are almost always truncated or zero-byte
// exports; they are skipped, never fatal. Duplicate matches across
// overlapping patterns are collapsed.
func Discover(patterns []string, minBytes int64) (*Discovery, error) {
	d := &Discovery{}
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			// Only malformed patterns error here; that is a
			// configuration bug, not a data problem.
			return nil, &ShardError{Path: pattern, Reason: "bad glob pattern", Err: err}
		}

		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true

			info, err := os.Stat(path)
			if err != nil {
				d.Skipped = append(d.Skipped, &ShardError{Path: path, Reason: "unreadable", Err: err})
				continue
			}
			if info.IsDir() {
				continue
			}
			if info.Size() < minBytes {
				d.Skipped = append(d.Skipped, &ShardError{Path: path, Reason: "below minimum size"})
				continue
			}

			d.Shards = append(d.Shards, path)
		}
	}

	sort.Strings(d.Shards)
	return d, nil
}
