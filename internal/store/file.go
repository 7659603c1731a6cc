// File: internal/store/file.go
package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

const (
	runFile    = "run.json"
	stepsFile  = "steps.jsonl"
	reportFile = "report.json"
)

// FileStore writes each run to its own directory under root:
// run.json when it starts, one JSON line per step in steps.jsonl, and
// report.json when it ends.
type FileStore struct {
	root string
	log  *zap.Logger
	now  func() time.Time
	mu   sync.Mutex
}

type runRecord struct {
	RunID     string       `json:"run_id"`
	Goal      schemas.Goal `json:"goal"`
	StartedAt time.Time    `json:"started_at"`
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root, log: logger.Named("store.file"), now: time.Now}, nil
}

// RunDir is the directory holding the files of runID.
func (s *FileStore) RunDir(runID string) (string, error) {
	if runID == "" || runID == "." || runID == ".." || filepath.Base(runID) != runID {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.root, runID), nil
}

// StepsPath is the JSONL step log of runID.
func (s *FileStore) StepsPath(runID string) (string, error) {
	dir, err := s.RunDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stepsFile), nil
}

// OnRunStart implements agent.MemoryStore.
func (s *FileStore) OnRunStart(_ context.Context, runID string, goal schemas.Goal) error {
	dir, err := s.RunDir(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return writeJSON(filepath.Join(dir, runFile), runRecord{RunID: runID, Goal: goal, StartedAt: s.now().UTC()})
}

// OnStep implements agent.MemoryStore.
func (s *FileStore) OnStep(_ context.Context, runID string, step schemas.StepLog) error {
	path, err := s.StepsPath(runID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("failed to encode step: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open step log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append step %d: %w", step.Step, err)
	}
	return f.Close()
}

// OnRunEnd implements agent.MemoryStore.
func (s *FileStore) OnRunEnd(_ context.Context, runID string, report schemas.RunReport) error {
	dir, err := s.RunDir(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return writeJSON(filepath.Join(dir, reportFile), WithoutImage(report))
}

// Steps implements StepReader.
func (s *FileStore) Steps(_ context.Context, runID string) ([]schemas.StepLog, error) {
	path, err := s.StepsPath(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open step log: %w", err)
	}
	defer f.Close()

	var steps []schemas.StepLog
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		step, err := DecodeStepLine(scanner.Bytes())
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read step log: %w", err)
	}
	return steps, nil
}

// Report reads back the report of a finished run.
func (s *FileStore) Report(runID string) (schemas.RunReport, error) {
	var report schemas.RunReport
	dir, err := s.RunDir(runID)
	if err != nil {
		return report, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, reportFile))
	if errors.Is(err, os.ErrNotExist) {
		return report, ErrRunNotFound
	}
	if err != nil {
		return report, fmt.Errorf("failed to read report: %w", err)
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return report, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}

// Close implements Backend.
func (s *FileStore) Close() error { return nil }

// DecodeStepLine parses one line of a steps.jsonl file.
func DecodeStepLine(line []byte) (schemas.StepLog, error) {
	var step schemas.StepLog
	if err := json.Unmarshal(line, &step); err != nil {
		return step, fmt.Errorf("failed to decode step line: %w", err)
	}
	return step, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
