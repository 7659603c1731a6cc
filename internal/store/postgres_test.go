package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool { return f(v) }

var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
})

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectPing()
	s, err := NewPostgresStore(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestNewPostgresStore_PingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	pingErr := errors.New("database unavailable")
	mock.ExpectPing().WillReturnError(pingErr)

	_, err = NewPostgresStore(context.Background(), mock, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(flexibleSQLMatcher(postgresSchema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	goal := schemas.Goal{Task: "find pricing"}
	click := schemas.Click(schemas.Coordinates(4, 2))
	step := schemas.StepLog{
		Step:        0,
		Action:      &click,
		Approval:    &schemas.Approval{Granted: true, Reason: "allow-all"},
		ResultHint:  schemas.ResultChanged,
		SnapshotID:  "snap-1",
		TimestampMs: 42,
	}

	mock.ExpectExec(flexibleSQLMatcher(pgInsertRun)).
		WithArgs("run-1", "find pricing", []byte(`{"task":"find pricing"}`), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(flexibleSQLMatcher(pgInsertStep)).
		WithArgs("run-1", 0, "",
			[]byte(`{"type":"click","target":{"by":"coordinates","x":4,"y":2},"click_count":1}`),
			[]byte(`{"granted":true,"reason":"allow-all"}`),
			"changed", "snap-1", "", int64(42)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(flexibleSQLMatcher(pgFinishRun)).
		WithArgs("run-1", "success", "Goal met", "", 1, int64(900), pgxmock.AnyArg(), anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.OnRunStart(ctx, "run-1", goal))
	require.NoError(t, s.OnStep(ctx, "run-1", step))
	require.NoError(t, s.OnRunEnd(ctx, "run-1", schemas.RunReport{
		RunID:        "run-1",
		Goal:         goal,
		Status:       schemas.StatusSuccess,
		Metrics:      schemas.RunMetrics{Steps: 1, ElapsedMs: 900, Success: true},
		Steps:        []schemas.StepLog{step},
		LastSnapshot: &schemas.Snapshot{ID: "snap-1", ImageBase64: "AAAA"},
		Message:      "Goal met",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishUnknownRun(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(flexibleSQLMatcher(pgFinishRun)).
		WithArgs("ghost", "error", "Run cancelled", "Run cancelled", 0, int64(0), pgxmock.AnyArg(), anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.OnRunEnd(context.Background(), "ghost", schemas.RunReport{
		Status:  schemas.StatusError,
		Message: "Run cancelled",
		Error:   "Run cancelled",
	})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestPostgresStore_StepFailure(t *testing.T) {
	s, mock := newMockStore(t)
	dbErr := errors.New("disk full")
	mock.ExpectExec(flexibleSQLMatcher(pgInsertStep)).WillReturnError(dbErr)

	err := s.OnStep(context.Background(), "run-1", schemas.StepLog{ResultHint: schemas.ResultMessage, Plan: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "step 0 of run run-1")
}

func TestPostgresStore_Steps(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"step", "plan", "action", "approval", "result_hint", "snapshot_id", "error", "timestamp_ms"}).
		AddRow(0, "", []byte(`{"type":"navigate","url":"https://example.com"}`), []byte(`{"granted":false,"scope":"navigate"}`), "denied", "", "policy denied: navigate", int64(10)).
		AddRow(1, "done", []byte(nil), []byte(nil), "message", "snap-2", "", int64(20))
	mock.ExpectQuery(flexibleSQLMatcher(pgSelectSteps)).WithArgs("run-1").WillReturnRows(rows)

	steps, err := s.Steps(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)

	require.NotNil(t, steps[0].Action)
	assert.Equal(t, schemas.Navigate("https://example.com"), *steps[0].Action)
	assert.Equal(t, &schemas.Approval{Granted: false, Scope: schemas.ScopeNavigate}, steps[0].Approval)
	assert.Equal(t, schemas.ResultDenied, steps[0].ResultHint)

	assert.Nil(t, steps[1].Action)
	assert.Nil(t, steps[1].Approval)
	assert.Equal(t, "done", steps[1].Plan)
	assert.Equal(t, int64(20), steps[1].TimestampMs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StepsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(flexibleSQLMatcher(pgSelectSteps)).WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"step", "plan", "action", "approval", "result_hint", "snapshot_id", "error", "timestamp_ms"}))

	_, err := s.Steps(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestWithoutImage(t *testing.T) {
	snap := &schemas.Snapshot{ID: "s", ImageBase64: "AAAA"}
	report := schemas.RunReport{LastSnapshot: snap}

	stripped := WithoutImage(report)
	assert.Empty(t, stripped.LastSnapshot.ImageBase64)
	assert.Equal(t, "AAAA", snap.ImageBase64, "original is untouched")
}
