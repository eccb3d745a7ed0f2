// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package ingest

import (
	"fmt"
	"strings"
)

// SchemaError is fatal: an input source exposes none of the candidate
// identifier columns, so no event can be attributed to a user. Partial
// attribution would be worse than no output, so the whole build aborts.
type SchemaError struct {
	// Source names the offending input ("activity").
	Source string

	// Candidates is the ordered candidate column list that was probed.
	Candidates []string

	// Available is the column set actually present in the loaded schema.
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no usable identifier column in %s source: none of [%s] present in schema [%s]",
		e.Source, strings.Join(e.Candidates, ", "), strings.Join(e.Available, ", "))
}

// ShardError is recovered locally: one input file is corrupt, truncated,
// or unreadable. The shard is excluded and the build proceeds with the
// rest; the exclusion is recorded in the build report.
type ShardError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ShardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shard %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("shard %s: %s", e.Path, e.Reason)
}

func (e *ShardError) Unwrap() error {
	return e.Err
}
