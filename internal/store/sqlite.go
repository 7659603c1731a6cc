// File: internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        run_id      TEXT PRIMARY KEY,
        task        TEXT NOT NULL,
        goal        TEXT NOT NULL,
        status      TEXT,
        message     TEXT,
        error       TEXT,
        steps       INTEGER,
        elapsed_ms  INTEGER,
        report      TEXT,
        started_at  TEXT NOT NULL,
        finished_at TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS run_steps (
        run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
        step         INTEGER NOT NULL,
        plan         TEXT NOT NULL DEFAULT '',
        action       TEXT,
        approval     TEXT,
        result_hint  TEXT NOT NULL,
        snapshot_id  TEXT NOT NULL DEFAULT '',
        error        TEXT NOT NULL DEFAULT '',
        timestamp_ms INTEGER NOT NULL,
        PRIMARY KEY (run_id, step)
    )`,
}

const (
	sqliteInsertRun   = `INSERT INTO runs (run_id, task, goal, started_at) VALUES (?, ?, ?, ?)`
	sqliteInsertStep  = `INSERT INTO run_steps (run_id, step, plan, action, approval, result_hint, snapshot_id, error, timestamp_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqliteFinishRun   = `UPDATE runs SET status = ?, message = ?, error = ?, steps = ?, elapsed_ms = ?, report = ?, finished_at = ? WHERE run_id = ?`
	sqliteSelectSteps = `SELECT step, plan, action, approval, result_hint, snapshot_id, error, timestamp_ms FROM run_steps WHERE run_id = ? ORDER BY step ASC`
)

// SQLiteStore records runs in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, migrate bool, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger.Named("store.sqlite"), now: time.Now}
	if migrate {
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// EnsureSchema creates the tables if they are missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// OnRunStart implements agent.MemoryStore.
func (s *SQLiteStore) OnRunStart(ctx context.Context, runID string, goal schemas.Goal) error {
	goalJSON, err := json.MarshalToString(goal)
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertRun, runID, goal.Task, goalJSON, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// OnStep implements agent.MemoryStore.
func (s *SQLiteStore) OnStep(ctx context.Context, runID string, step schemas.StepLog) error {
	args, err := stepArgs(runID, step)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertStep, args...); err != nil {
		return fmt.Errorf("failed to insert step %d of run %s: %w", step.Step, runID, err)
	}
	return nil
}

// OnRunEnd implements agent.MemoryStore.
func (s *SQLiteStore) OnRunEnd(ctx context.Context, runID string, report schemas.RunReport) error {
	reportJSON, err := json.MarshalToString(WithoutImage(report))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqliteFinishRun,
		string(report.Status), report.Message, report.Error,
		report.Metrics.Steps, report.Metrics.ElapsedMs, reportJSON,
		s.now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Steps implements StepReader.
func (s *SQLiteStore) Steps(ctx context.Context, runID string) ([]schemas.StepLog, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectSteps, runID)
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

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
