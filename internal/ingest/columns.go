// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package ingest

import (
	"fmt"
	"strings"
)

// ResolveColumns intersects the ordered candidate list with the columns
// actually present in a loaded schema, preserving candidate order. The
// activity export drifted between identifier columns over time, so the
// usable chain is only known after the shards are read.
//
// Returns a SchemaError when none of the candidates is present: with no
// identifier column there is no way to attribute events to users.
func ResolveColumns(source string, candidates, available []string) ([]string, error) {
	present := make(map[string]bool, len(available))
	for _, col := range available {
		present[strings.ToLower(col)] = true
	}

	var resolved []string
	for _, cand := range candidates {
		if present[strings.ToLower(cand)] {
			resolved = append(resolved, cand)
		}
	}

	if len(resolved) == 0 {
		return nil, &SchemaError{Source: source, Candidates: candidates, Available: available}
	}
	return resolved, nil
}

// CoalesceExpr renders the resolved column chain as a SQL COALESCE
// expression, or the bare column when only one is present. Columns must
// already be validated as plain identifiers by the config layer.
func CoalesceExpr(columns []string) string {
	if len(columns) == 1 {
		return columns[0]
	}
	return fmt.Sprintf("COALESCE(%s)", strings.Join(columns, ", "))
}
