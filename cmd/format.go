// File: cmd/format.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/store"
)

// formatStep renders a step as one line of `logs` output.
func formatStep(step schemas.StepLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d  %-9s", step.Step, step.ResultHint)
	if step.Action != nil {
		fmt.Fprintf(&b, "  %s", step.Action)
	}
	if plan := strings.Join(strings.Fields(step.Plan), " "); plan != "" {
		fmt.Fprintf(&b, "  %q", truncate(plan, 120))
	}
	if step.Approval != nil && !step.Approval.Granted {
		fmt.Fprintf(&b, "  denied: %s", step.Approval.Reason)
	}
	if step.Error != "" {
		fmt.Fprintf(&b, "  error: %s", step.Error)
	}
	return b.String()
}

// formatSummary renders the outcome of a run.
func formatSummary(report *schemas.RunReport) string {
	var b strings.Builder
	elapsed := time.Duration(report.Metrics.ElapsedMs) * time.Millisecond
	fmt.Fprintf(&b, "Run %s finished: %s (%d steps, %s)\n",
		report.RunID, report.Status, report.Metrics.Steps, elapsed.Round(time.Millisecond))
	if report.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", report.Message)
	}
	if report.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", report.Error)
	}
	if report.LastSnapshot != nil && report.LastSnapshot.URL != "" {
		fmt.Fprintf(&b, "Last page: %s\n", report.LastSnapshot.URL)
	}
	return b.String()
}

// writeReport writes the report as indented JSON to path, or to stdout when
// path is "-". The screenshot payload is left out.
func writeReport(stdout io.Writer, path string, report *schemas.RunReport) error {
	raw, err := json.MarshalIndent(store.WithoutImage(*report), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	raw = append(raw, '\n')

	if path == "-" {
		_, err := stdout.Write(raw)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
