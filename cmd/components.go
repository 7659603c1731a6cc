// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/browser"
	"github.com/xkilldash9x/autopilot/internal/config"
	"github.com/xkilldash9x/autopilot/internal/llmclient"
	"github.com/xkilldash9x/autopilot/internal/observability"
	"github.com/xkilldash9x/autopilot/internal/policy"
	"github.com/xkilldash9x/autopilot/internal/reasoner"
	"github.com/xkilldash9x/autopilot/internal/store"
)

// device is a Computer the command layer has to release.
type device interface {
	agent.Computer
	Close() error
}

// Constructors for the two external dependencies, replaceable in tests.
var (
	newDevice = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (device, error) {
		c, err := browser.NewChromeComputer(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	newService = func(cfg config.ReasonerConfig, logger *zap.Logger, recorder llmclient.TurnRecorder) (llmclient.Service, error) {
		return llmclient.NewService(cfg, logger, llmclient.WithTurnRecorder(recorder))
	}
)

// Components holds everything shared by the runs of one command. Browsers and
// reasoning sessions are per run and are created by Execute.
type Components struct {
	cfg       *config.Config
	logger    *zap.Logger
	Store     store.Backend
	Snapshots agent.SnapshotStore
	Policy    agent.PolicyEngine
	Service   llmclient.Service
	Metrics   *observability.Metrics
	scopes    []schemas.Scope

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// initializeComponents wires the shared components. On error, anything
// already opened is released.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (c *Components, err error) {
	c = &Components{
		cfg:     cfg,
		logger:  logger,
		Metrics: observability.NewMetrics(),
	}
	defer func() {
		if err != nil {
			c.Shutdown()
			c = nil
		}
	}()

	// 1. Scopes granted to every run.
	if c.scopes, err = cfg.Agent().GrantedScopes(); err != nil {
		return c, fmt.Errorf("invalid agent scopes: %w", err)
	}

	// 2. Run and step persistence.
	backend, err := store.NewMemoryStore(ctx, cfg.Store(), logger)
	if err != nil {
		return c, fmt.Errorf("failed to open run store: %w", err)
	}
	c.Store = backend

	// 3. Snapshot archive.
	if cfg.Snapshots().Enabled {
		snaps, err := store.NewDiskSnapshotStore(cfg.Snapshots().Dir, logger)
		if err != nil {
			return c, fmt.Errorf("failed to open snapshot archive: %w", err)
		}
		c.Snapshots = snaps
	}

	// 4. Action policy.
	if c.Policy, err = policy.New(ctx, cfg.Policy(), logger); err != nil {
		return c, fmt.Errorf("failed to load action policy: %w", err)
	}

	// 5. Reasoning service client.
	if c.Service, err = newService(cfg.Reasoner(), logger, c.Metrics); err != nil {
		return c, fmt.Errorf("failed to create reasoning client: %w", err)
	}

	// 6. Metrics endpoint.
	if mc := cfg.Metrics(); mc.Enabled {
		metricsCtx, cancel := context.WithCancel(ctx)
		c.stopMetrics = cancel
		c.metricsDone = make(chan struct{})
		go func() {
			defer close(c.metricsDone)
			if err := c.Metrics.Serve(metricsCtx, mc.ListenAddr, mc.Path, logger); err != nil {
				logger.Error("Metrics endpoint failed.", zap.Error(err))
			}
		}()
	}
	return c, nil
}

// Execute drives one goal to completion on its own browser with a fresh
// reasoning session.
func (c *Components) Execute(ctx context.Context, goal schemas.Goal, startURL string) (*schemas.RunReport, error) {
	defer c.Metrics.TrackRun()()

	dev, err := newDevice(ctx, c.cfg.Browser(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			c.logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}()

	rsn := reasoner.New(c.Service, reasoner.ConfigFrom(c.cfg.Reasoner()), c.logger)

	opts := []agent.Option{
		agent.WithLogger(c.logger),
		agent.WithRecorder(c.Metrics),
	}
	if c.Snapshots != nil {
		opts = append(opts, agent.WithSnapshotStore(c.Snapshots))
	}
	ac := c.cfg.Agent()
	a := agent.New(dev, rsn, c.Store, c.Policy, agent.Config{
		MaxSteps:    ac.MaxSteps,
		StepTimeout: ac.StepTimeout,
		Scopes:      c.scopes,
	}, opts...)

	return a.RunGoal(ctx, goal, startURL)
}

// Shutdown stops the metrics endpoint and closes the store.
func (c *Components) Shutdown() {
	if c.stopMetrics != nil {
		c.stopMetrics()
		<-c.metricsDone
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warn("Failed to close run store.", zap.Error(err))
		}
	}
}
