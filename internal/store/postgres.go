// File: internal/store/postgres.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    task        TEXT NOT NULL,
    goal        JSONB NOT NULL,
    status      TEXT,
    message     TEXT,
    error       TEXT,
    steps       INTEGER,
    elapsed_ms  BIGINT,
    report      JSONB,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS run_steps (
    run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    step         INTEGER NOT NULL,
    plan         TEXT NOT NULL DEFAULT '',
    action       JSONB,
    approval     JSONB,
    result_hint  TEXT NOT NULL,
    snapshot_id  TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    timestamp_ms BIGINT NOT NULL,
    PRIMARY KEY (run_id, step)
);
`

const (
	pgInsertRun = `
        INSERT INTO runs (run_id, task, goal, started_at)
        VALUES ($1, $2, $3, $4);
    `
	pgInsertStep = `
        INSERT INTO run_steps (run_id, step, plan, action, approval, result_hint, snapshot_id, error, timestamp_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	pgFinishRun = `
        UPDATE runs
        SET status = $2, message = $3, error = $4, steps = $5, elapsed_ms = $6, report = $7, finished_at = $8
        WHERE run_id = $1;
    `
	pgSelectSteps = `
        SELECT step, plan, action, approval, result_hint, snapshot_id, error, timestamp_ms
        FROM run_steps
        WHERE run_id = $1
        ORDER BY step ASC;
    `
)

// PostgresStore records runs in PostgreSQL.
type PostgresStore struct {
	pool  DBPool
	log   *zap.Logger
	now   func() time.Time
	close func()
}

// NewPostgresStore verifies the connection and wraps pool.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
		now:  time.Now,
	}, nil
}

// OpenPostgres connects to url and optionally creates the tables.
func OpenPostgres(ctx context.Context, url string, migrate bool, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close

	if migrate {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// EnsureSchema creates the runs and run_steps tables if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.log.Debug("Schema is up to date.")
	return nil
}

// OnRunStart implements agent.MemoryStore.
func (s *PostgresStore) OnRunStart(ctx context.Context, runID string, goal schemas.Goal) error {
	goalJSON, err := json.Marshal(goal)
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}
	if _, err := s.pool.Exec(ctx, pgInsertRun, runID, goal.Task, goalJSON, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// OnStep implements agent.MemoryStore.
func (s *PostgresStore) OnStep(ctx context.Context, runID string, step schemas.StepLog) error {
	args, err := stepArgs(runID, step)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, pgInsertStep, args...); err != nil {
		return fmt.Errorf("failed to insert step %d of run %s: %w", step.Step, runID, err)
	}
	return nil
}

// OnRunEnd implements agent.MemoryStore.
func (s *PostgresStore) OnRunEnd(ctx context.Context, runID string, report schemas.RunReport) error {
	reportJSON, err := json.Marshal(WithoutImage(report))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	tag, err := s.pool.Exec(ctx, pgFinishRun,
		runID, string(report.Status), report.Message, report.Error,
		report.Metrics.Steps, report.Metrics.ElapsedMs, reportJSON, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Steps implements StepReader.
func (s *PostgresStore) Steps(ctx context.Context, runID string) ([]schemas.StepLog, error) {
	rows, err := s.pool.Query(ctx, pgSelectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.StepLog
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(steps) == 0 {
		return nil, ErrRunNotFound
	}
	return steps, nil
}

// Close releases the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

