// File: cmd/batch.go
package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/observability"
)

// batchResult is the outcome of one goal of a batch. Report is nil when the
// run could not complete its lifecycle.
type batchResult struct {
	Spec   GoalSpec
	Report *schemas.RunReport
	Err    error
}

func (r batchResult) succeeded() bool {
	return r.Err == nil && r.Report != nil && r.Report.Status == schemas.StatusSuccess
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var reportDir string

	batchCmd := &cobra.Command{
		Use:   "batch <goal-file>",
		Short: "Runs every goal in a YAML goal file, several at a time",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.bindFlags(cmd, map[string]string{
				"concurrency": "agent.concurrency",
				"max-steps":   "agent.max_steps",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			specs, err := LoadGoalFile(args[0])
			if err != nil {
				return err
			}

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			logger.Info("Starting batch.",
				zap.String("file", args[0]),
				zap.Int("goals", len(specs)),
				zap.Int("concurrency", cfg.Agent().Concurrency))

			// A failed goal does not cancel its siblings, so the group never
			// sees an error; each outcome lands in its own slot.
			results := make([]batchResult, len(specs))
			var g errgroup.Group
			g.SetLimit(cfg.Agent().Concurrency)
			for i, spec := range specs {
				g.Go(func() error {
					report, err := components.Execute(ctx, spec.Goal(cfg.Agent().RunTimeout), spec.URL)
					results[i] = batchResult{Spec: spec, Report: report, Err: err}
					if err != nil {
						logger.Error("Goal failed.", zap.String("goal", spec.Name), zap.Error(err))
						return nil
					}
					if reportDir != "" {
						path := filepath.Join(reportDir, report.RunID+".json")
						if werr := writeReport(cmd.OutOrStdout(), path, report); werr != nil {
							logger.Warn("Failed to write report.", zap.String("goal", spec.Name), zap.Error(werr))
						}
					}
					return nil
				})
			}
			_ = g.Wait()

			if err := writeBatchTable(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.succeeded() {
					failed++
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d goals did not succeed", failed, len(results))
			}
			return nil
		},
	}

	f := batchCmd.Flags()
	f.StringVar(&reportDir, "report-dir", "", "write one JSON report per run into this directory")
	f.Int("concurrency", 0, "parallel runs (default agent.concurrency)")
	f.Int("max-steps", 0, "step budget per run (default agent.max_steps)")
	return batchCmd
}

// writeBatchTable prints one row per goal, in file order.
func writeBatchTable(out io.Writer, results []batchResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GOAL\tRUN\tSTATUS\tSTEPS\tDETAIL")
	for _, r := range results {
		switch {
		case r.Report == nil:
			detail := "not started"
			if r.Err != nil {
				detail = r.Err.Error()
			}
			fmt.Fprintf(tw, "%s\t-\tfailed\t-\t%s\n", r.Spec.Name, truncate(detail, 80))
		default:
			detail := r.Report.Message
			if r.Report.Error != "" {
				detail = r.Report.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				r.Spec.Name, r.Report.RunID, r.Report.Status, r.Report.Metrics.Steps, truncate(detail, 80))
		}
	}
	return tw.Flush()
}
