// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/llmclient"
)

// Metrics records run, step and reasoning outcomes on its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	runsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runSteps     prometheus.Histogram
	runsInFlight prometheus.Gauge
	turnsTotal   *prometheus.CounterVec
}

var (
	_ agent.Recorder         = (*Metrics)(nil)
	_ llmclient.TurnRecorder = (*Metrics)(nil)
)

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_runs_total",
				Help: "Finished runs by terminal status.",
			},
			[]string{"status"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_steps_total",
				Help: "Controller steps by result.",
			},
			[]string{"result"},
		),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopilot_run_duration_seconds",
			Help:    "Wall-clock duration of runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		runSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopilot_run_steps",
			Help:    "Steps taken per run.",
			Buckets: prometheus.LinearBuckets(5, 5, 10),
		}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autopilot_runs_in_flight",
			Help: "Runs currently executing.",
		}),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_reasoning_turns_total",
				Help: "Calls to the reasoning service by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// RecordStep implements agent.Recorder.
func (m *Metrics) RecordStep(result schemas.ResultHint) {
	m.stepsTotal.WithLabelValues(string(result)).Inc()
}

// RecordRun implements agent.Recorder.
func (m *Metrics) RecordRun(status schemas.RunStatus, steps int, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runSteps.Observe(float64(steps))
	m.runDuration.Observe(elapsed.Seconds())
}

// RecordTurn implements llmclient.TurnRecorder.
func (m *Metrics) RecordTurn(kind, outcome string) {
	m.turnsTotal.WithLabelValues(kind, outcome).Inc()
}

// TrackRun marks a run as in flight until the returned func is called.
func (m *Metrics) TrackRun() func() {
	m.runsInFlight.Inc()
	return m.runsInFlight.Dec
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics.", zap.String("addr", addr), zap.String("path", path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
