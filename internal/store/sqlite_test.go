package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "autopilot.db"), true, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	nav := schemas.Navigate("https://example.com")
	steps := []schemas.StepLog{
		{Step: 0, Action: &nav, Approval: &schemas.Approval{Granted: true, Scope: schemas.ScopeNavigate}, ResultHint: schemas.ResultChanged, SnapshotID: "s1", TimestampMs: 5},
		{Step: 1, Plan: "All done.", ResultHint: schemas.ResultMessage, SnapshotID: "s1", TimestampMs: 9},
	}

	require.NoError(t, s.OnRunStart(ctx, "run-1", schemas.NewGoal("check example")))
	for _, step := range steps {
		require.NoError(t, s.OnStep(ctx, "run-1", step))
	}
	require.NoError(t, s.OnRunEnd(ctx, "run-1", schemas.RunReport{
		RunID:   "run-1",
		Status:  schemas.StatusSuccess,
		Metrics: schemas.RunMetrics{Steps: 2, ElapsedMs: 10, Success: true},
		Steps:   steps,
		Message: "Goal met",
	}))

	got, err := s.Steps(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, steps, got)

	var status string
	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT status, steps FROM runs WHERE run_id = ?`, "run-1").Scan(&status, &count))
	assert.Equal(t, "success", status)
	assert.Equal(t, 2, count)
}

func TestSQLiteStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	_, err := s.Steps(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.OnRunEnd(ctx, "missing", schemas.RunReport{Status: schemas.StatusError})
	assert.ErrorIs(t, err, ErrRunNotFound)

	require.NoError(t, s.OnRunStart(ctx, "dup", schemas.NewGoal("x")))
	assert.Error(t, s.OnRunStart(ctx, "dup", schemas.NewGoal("x")), "run ids are unique")

	require.NoError(t, s.OnStep(ctx, "dup", schemas.StepLog{Step: 0, ResultHint: schemas.ResultUnchanged}))
	assert.Error(t, s.OnStep(ctx, "dup", schemas.StepLog{Step: 0, ResultHint: schemas.ResultUnchanged}), "step indexes are unique")
}

func TestSQLiteStore_ConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			runID := fmt.Sprintf("run-%d", r)
			assert.NoError(t, s.OnRunStart(ctx, runID, schemas.NewGoal(runID)))
			for i := 0; i < 5; i++ {
				assert.NoError(t, s.OnStep(ctx, runID, schemas.StepLog{Step: i, ResultHint: schemas.ResultUnchanged}))
			}
		}(r)
	}
	wg.Wait()

	for r := 0; r < 4; r++ {
		got, err := s.Steps(ctx, fmt.Sprintf("run-%d", r))
		require.NoError(t, err)
		assert.Len(t, got, 5)
	}
}
