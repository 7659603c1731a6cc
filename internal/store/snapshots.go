// File: internal/store/snapshots.go
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
)

// DiskSnapshotStore writes observation images as PNG files under
// <root>/<run_id>/.
type DiskSnapshotStore struct {
	root string
	log  *zap.Logger
}

var _ agent.SnapshotStore = (*DiskSnapshotStore)(nil)

// NewDiskSnapshotStore creates root if needed.
func NewDiskSnapshotStore(root string, logger *zap.Logger) (*DiskSnapshotStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &DiskSnapshotStore{root: root, log: logger.Named("store.snapshots")}, nil
}

// SnapshotFileName is start.png for the initial observation and
// step_NNN.png afterwards.
func SnapshotFileName(step int) string {
	if step == agent.InitialStep {
		return "start.png"
	}
	return fmt.Sprintf("step_%03d.png", step)
}

// Save implements agent.SnapshotStore. Snapshots without an image are skipped.
func (s *DiskSnapshotStore) Save(ctx context.Context, runID string, step int, snapshot schemas.Snapshot) error {
	if !snapshot.HasImage() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" || filepath.Base(runID) != runID || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run id %q", runID)
	}

	img, err := base64.StdEncoding.DecodeString(snapshot.ImageBase64)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", snapshot.ID, err)
	}

	dir := filepath.Join(s.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run snapshot directory: %w", err)
	}
	path := filepath.Join(dir, SnapshotFileName(step))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	s.log.Debug("Snapshot archived.", zap.String("run_id", runID), zap.String("path", path))
	return nil
}
