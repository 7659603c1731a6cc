// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/config"
	"github.com/xkilldash9x/autopilot/internal/llmclient"
)

// loopMarker makes fakeService keep issuing computer calls instead of
// finishing with a message.
const loopMarker = "loop"

type fakeDevice struct {
	agent.NoopComputer
	closed *atomic.Int32
}

func (d *fakeDevice) Close() error {
	d.closed.Add(1)
	return nil
}

// fakeService finishes every goal with a message unless the goal text
// contains loopMarker. It holds no state, so concurrent runs may share it.
type fakeService struct {
	turns atomic.Int32
}

func (s *fakeService) Turn(_ context.Context, in llmclient.TurnInput, _ string) (llmclient.Output, error) {
	n := s.turns.Add(1)
	if strings.Contains(in.Instructions, loopMarker) {
		return llmclient.Output{
			Kind:       llmclient.OutputComputerCall,
			ResponseID: fmt.Sprintf("resp-%d", n),
			Call: &llmclient.ComputerCall{
				CallID: fmt.Sprintf("call-%d", n),
				Action: llmclient.ComputerAction{Kind: llmclient.ActionWait, WaitMs: 10},
			},
		}, nil
	}
	return llmclient.Output{
		Kind:       llmclient.OutputMessage,
		ResponseID: fmt.Sprintf("resp-%d", n),
		Text:       "All done",
	}, nil
}

func (s *fakeService) SendObservation(context.Context, llmclient.ObservationReply, string) (llmclient.Output, error) {
	return llmclient.Output{}, fmt.Errorf("unexpected observation")
}

// harness swaps the browser and the reasoning service for fakes and writes a
// config file rooted in a temp dir.
type harness struct {
	dir        string
	configPath string
	service    *fakeService
	closed     *atomic.Int32
	opened     *atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:     t.TempDir(),
		service: &fakeService{},
		closed:  &atomic.Int32{},
		opened:  &atomic.Int32{},
	}

	origDevice, origService := newDevice, newService
	t.Cleanup(func() { newDevice, newService = origDevice, origService })

	newDevice = func(context.Context, config.BrowserConfig, *zap.Logger) (device, error) {
		h.opened.Add(1)
		return &fakeDevice{closed: h.closed}, nil
	}
	newService = func(config.ReasonerConfig, *zap.Logger, llmclient.TurnRecorder) (llmclient.Service, error) {
		return h.service, nil
	}

	h.configPath = filepath.Join(h.dir, "autopilot.yaml")
	cfg := fmt.Sprintf(`
logger:
  level: error
  log_file: ""
agent:
  max_steps: 5
  concurrency: 2
policy:
  mode: allow_all
store:
  type: file
  dir: %s
snapshots:
  enabled: false
`, filepath.Join(h.dir, "runs"))
	require.NoError(t, os.WriteFile(h.configPath, []byte(cfg), 0o644))
	return h
}

// execute runs the command line args against the harness config.
func (h *harness) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", h.configPath))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}
