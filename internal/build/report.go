// Materializer - Connectly Messaging Analytics Fact Builder
// Copyright 2026 Connectly
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/connectly/materializer

package build

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/connectly/materializer/internal/models"
)

// ReportPath returns where the JSON build report is written for a given
// output path.
func ReportPath(outputPath string) string {
	return outputPath + ".report.json"
}

// WriteReport writes the build report as indented JSON next to the fact
// store. The same summary lives in the build_report table; the sidecar file
// is for CI logs and operators without a DuckDB client at hand.
func WriteReport(outputPath string, report *models.BuildReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build report: %w", err)
	}
	if err := os.WriteFile(ReportPath(outputPath), data, 0o640); err != nil {
		return fmt.Errorf("write build report: %w", err)
	}
	return nil
}
