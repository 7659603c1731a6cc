package store

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// stepColumns is the column order shared by the SQL backends.
var stepColumns = []string{"run_id", "step", "plan", "action", "approval", "result_hint", "snapshot_id", "error", "timestamp_ms"}

// stepArgs flattens a step into stepColumns order. Optional objects become
// NULL.
func stepArgs(runID string, step schemas.StepLog) ([]any, error) {
	action, err := optionalJSON(step.Action)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action: %w", err)
	}
	approval, err := optionalJSON(step.Approval)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval: %w", err)
	}
	return []any{
		runID, step.Step, step.Plan, action, approval,
		string(step.ResultHint), step.SnapshotID, step.Error, step.TimestampMs,
	}, nil
}

func optionalJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanStep reads the columns after run_id.
func scanStep(rows rowScanner) (schemas.StepLog, error) {
	var (
		step             schemas.StepLog
		hint             string
		action, approval []byte
	)
	if err := rows.Scan(&step.Step, &step.Plan, &action, &approval, &hint, &step.SnapshotID, &step.Error, &step.TimestampMs); err != nil {
		return step, fmt.Errorf("failed to scan step row: %w", err)
	}
	step.ResultHint = schemas.ResultHint(hint)

	if len(action) > 0 {
		step.Action = new(schemas.Action)
		if err := json.Unmarshal(action, step.Action); err != nil {
			return step, fmt.Errorf("failed to decode action of step %d: %w", step.Step, err)
		}
	}
	if len(approval) > 0 {
		step.Approval = new(schemas.Approval)
		if err := json.Unmarshal(approval, step.Approval); err != nil {
			return step, fmt.Errorf("failed to decode approval of step %d: %w", step.Step, err)
		}
	}
	return step, nil
}
