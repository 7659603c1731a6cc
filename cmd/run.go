// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/observability"
)

// runFlags are the goal fields that can be given on the command line.
type runFlags struct {
	url         string
	constraints []string
	success     []string
	timeout     time.Duration
	goalFile    string
	report      string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags

	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Runs one goal in a fresh browser",
		Example: `  autopilot run "find the pricing page" --url https://example.com
  autopilot run --goal-file goal.yaml --report report.json`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.bindFlags(cmd, map[string]string{
				"max-steps":    "agent.max_steps",
				"step-timeout": "agent.step_timeout",
				"scope":        "agent.scopes",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// 1. Re-resolve so the bound flags take effect.
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			spec, err := flags.goalSpec(args)
			if err != nil {
				return err
			}

			// 2. Shared components.
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			// 3. Run.
			report, err := components.Execute(ctx, spec.Goal(cfg.Agent().RunTimeout), spec.URL)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted.", zap.String("task", spec.Task))
				}
				return fmt.Errorf("run failed: %w", err)
			}

			// 4. Output.
			if flags.report != "" {
				if err := writeReport(cmd.OutOrStdout(), flags.report, report); err != nil {
					return err
				}
			}
			if flags.report != "-" {
				fmt.Fprint(cmd.OutOrStdout(), formatSummary(report))
			}
			if report.Status != schemas.StatusSuccess {
				return fmt.Errorf("run %s finished with status %s", report.RunID, report.Status)
			}
			return nil
		},
	}

	f := runCmd.Flags()
	f.StringVarP(&flags.url, "url", "u", "", "start URL")
	f.StringArrayVar(&flags.constraints, "constraint", nil, "constraint the agent must respect (repeatable)")
	f.StringArrayVar(&flags.success, "success", nil, "success criterion (repeatable)")
	f.DurationVar(&flags.timeout, "timeout", 0, "wall-clock budget for the run (default agent.run_timeout)")
	f.StringVarP(&flags.goalFile, "goal-file", "g", "", "read the goal from a YAML file")
	f.StringVarP(&flags.report, "report", "o", "", "write the JSON report to this path (\"-\" for stdout)")
	f.Int("max-steps", 0, "step budget (default agent.max_steps)")
	f.Duration("step-timeout", 0, "per-action timeout (default agent.step_timeout)")
	f.StringSlice("scope", nil, "scopes granted to the run (default agent.scopes)")
	return runCmd
}

// goalSpec assembles the goal from the goal file and the positional task,
// with explicit flags taking precedence over the file.
func (f runFlags) goalSpec(args []string) (GoalSpec, error) {
	var spec GoalSpec
	if f.goalFile != "" {
		specs, err := LoadGoalFile(f.goalFile)
		if err != nil {
			return spec, err
		}
		if len(specs) != 1 {
			return spec, fmt.Errorf("%s defines %d goals; use `autopilot batch` for more than one", f.goalFile, len(specs))
		}
		spec = specs[0]
	}

	if task := strings.TrimSpace(strings.Join(args, " ")); task != "" {
		spec.Task = task
	}
	if spec.Task == "" {
		return spec, fmt.Errorf("a task is required, either as an argument or via --goal-file")
	}
	if f.url != "" {
		spec.URL = f.url
	}
	spec.Constraints = append(spec.Constraints, f.constraints...)
	spec.SuccessCriteria = append(spec.SuccessCriteria, f.success...)
	if f.timeout < 0 {
		return spec, fmt.Errorf("--timeout must not be negative")
	}
	if f.timeout > 0 {
		spec.Timeout = f.timeout
	}
	return spec, nil
}
