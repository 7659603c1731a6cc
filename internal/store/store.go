// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/config"
)

// ErrRunNotFound is returned when a run has no recorded steps or record.
var ErrRunNotFound = errors.New("run not found")

// StepReader reads back the step log of a recorded run.
type StepReader interface {
	Steps(ctx context.Context, runID string) ([]schemas.StepLog, error)
}

// Backend is a MemoryStore that can also be read back and closed.
type Backend interface {
	agent.MemoryStore
	StepReader
	Close() error
}

// NewMemoryStore opens the backend selected by cfg.Type.
func NewMemoryStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Type {
	case config.StoreNone, "":
		return nullBackend{}, nil
	case config.StoreFile:
		return NewFileStore(cfg.Dir, logger)
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.AutoMigrate, logger)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.PostgresURL, cfg.AutoMigrate, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

type nullBackend struct {
	agent.NullMemoryStore
}

func (nullBackend) Steps(context.Context, string) ([]schemas.StepLog, error) {
	return nil, ErrRunNotFound
}

func (nullBackend) Close() error { return nil }

// WithoutImage drops the screenshot payload of the last snapshot, which is
// archived separately.
func WithoutImage(report schemas.RunReport) schemas.RunReport {
	if report.LastSnapshot != nil {
		snap := *report.LastSnapshot
		snap.ImageBase64 = ""
		report.LastSnapshot = &snap
	}
	return report
}
