// File: cmd/logs.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/config"
	"github.com/xkilldash9x/autopilot/internal/observability"
	"github.com/xkilldash9x/autopilot/internal/store"
)

var (
	// followPoll is how often a followed run is checked for its report.
	followPoll = 500 * time.Millisecond
	// followDrain is how long to keep reading once the report exists.
	followDrain = 250 * time.Millisecond
)

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var (
		follow bool
		asJSON bool
	)

	logsCmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Prints the step log of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			runID := args[0]

			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			if cfg.Store().Type == config.StoreNone {
				return fmt.Errorf("runs are not recorded when store.type is %q", config.StoreNone)
			}

			backend, err := store.NewMemoryStore(ctx, cfg.Store(), logger)
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer backend.Close()

			emit := stepPrinter(cmd.OutOrStdout(), asJSON)

			if follow {
				fs, ok := backend.(*store.FileStore)
				if !ok {
					return fmt.Errorf("--follow needs the file store, not %q", cfg.Store().Type)
				}
				return followSteps(ctx, fs, runID, emit, logger)
			}

			steps, err := backend.Steps(ctx, runID)
			if errors.Is(err, store.ErrRunNotFound) {
				return fmt.Errorf("no steps recorded for run %s", runID)
			}
			if err != nil {
				return err
			}
			for _, step := range steps {
				if err := emit(step); err != nil {
					return err
				}
			}
			return nil
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing steps until the run finishes")
	logsCmd.Flags().BoolVar(&asJSON, "json", false, "print steps as JSON lines")
	return logsCmd
}

func stepPrinter(out io.Writer, asJSON bool) func(schemas.StepLog) error {
	if asJSON {
		enc := json.NewEncoder(out)
		return func(step schemas.StepLog) error { return enc.Encode(step) }
	}
	return func(step schemas.StepLog) error {
		_, err := fmt.Fprintln(out, formatStep(step))
		return err
	}
}

// followSteps tails the step log of runID and returns once the run has a
// report and no further lines arrive, or when ctx ends.
func followSteps(ctx context.Context, fs *store.FileStore, runID string, emit func(schemas.StepLog) error, logger *zap.Logger) error {
	path, err := fs.StepsPath(runID)
	if err != nil {
		return err
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow step log: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	poll := time.NewTicker(followPoll)
	defer poll.Stop()
	// Armed once the report shows up; fires when the log has gone quiet.
	drain := time.NewTimer(followDrain)
	if !drain.Stop() {
		<-drain.C
	}
	finished := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error reading step log.", zap.Error(line.Err))
				continue
			}
			step, err := store.DecodeStepLine([]byte(line.Text))
			if err != nil {
				return err
			}
			if err := emit(step); err != nil {
				return err
			}
			if finished {
				drain.Reset(followDrain)
			}

		case <-poll.C:
			if finished {
				continue
			}
			if _, err := fs.Report(runID); err == nil {
				finished = true
				poll.Stop()
				drain.Reset(followDrain)
			}

		case <-drain.C:
			return nil
		}
	}
}
