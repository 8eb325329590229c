// Package supervisor deploys a provisioned run, waits for readiness,
// monitors the workers until they finish or the deadline passes and always
// tears the deployment down.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/arena/internal/provision"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/internal/workspace"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

var (
	// ErrDeploymentFailed wraps runtime deploy errors.
	ErrDeploymentFailed = errors.New("deployment failed")

	// ErrDeploymentTimeout is returned when services never became ready.
	ErrDeploymentTimeout = errors.New("deployment timed out waiting for services")
)

// Config holds the supervisor configuration.
type Config struct {
	// ReadyInterval is the polling interval of the readiness wait.
	ReadyInterval time.Duration

	// ReadyMaxWait bounds the readiness wait.
	ReadyMaxWait time.Duration

	// TeardownTimeout bounds teardown, which runs even after cancellation.
	TeardownTimeout time.Duration
}

// DefaultConfig returns a default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		ReadyInterval:   2 * time.Second,
		ReadyMaxWait:    60 * time.Second,
		TeardownTimeout: 2 * time.Minute,
	}
}

// LiveHook runs after monitoring and before teardown, while worker ports
// are still reachable.
type LiveHook func(ctx context.Context, rc *types.RunContext, result *types.RunResult)

// Supervisor owns the deploy, readiness, monitor and teardown sequence.
type Supervisor struct {
	cfg     Config
	rt      runtime.ContainerRuntime
	ws      *workspace.Manager
	monitor *Monitor
	clock   clockwork.Clock
	log     *zap.Logger
}

// New creates a supervisor.
func New(cfg Config, rt runtime.ContainerRuntime, ws *workspace.Manager, monitor *Monitor, clock clockwork.Clock, log *zap.Logger) *Supervisor {
	def := DefaultConfig()
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = def.ReadyInterval
	}
	if cfg.ReadyMaxWait <= 0 {
		cfg.ReadyMaxWait = def.ReadyMaxWait
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = def.TeardownTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Supervisor{cfg: cfg, rt: rt, ws: ws, monitor: monitor, clock: clock, log: logger.Or(log, "supervisor")}
}

// Execute runs the supervised phase of a run. Deployment failures are
// reported in RunResult.Error with an empty container map and no
// monitoring; every other outcome is represented in worker statuses.
// Teardown always runs before Execute returns.
func (s *Supervisor) Execute(ctx context.Context, rc *types.RunContext, plan *provision.Plan, whileLive LiveHook) (*types.RunContext, *types.RunResult) {
	if err := s.ws.Ensure(rc.Roster); err != nil {
		return rc, s.failed(rc, fmt.Errorf("%w: prepare workspace: %v", ErrDeploymentFailed, err))
	}

	defer s.ws.Teardown(ctx, s.rt, s.cfg.TeardownTimeout)

	s.log.Info("deploying workers", zap.Int("services", len(plan.ServiceNames())))
	if err := s.rt.Deploy(ctx, plan); err != nil {
		s.log.Error("deployment failed", zap.Error(err))
		return rc, s.failed(rc, fmt.Errorf("%w: %w", ErrDeploymentFailed, err))
	}

	if err := s.waitReady(ctx, plan.ServiceNames()); err != nil {
		s.log.Error("services not ready", zap.Error(err))
		return rc, s.failed(rc, fmt.Errorf("%w: %w", ErrDeploymentFailed, err))
	}

	if w, err := s.ws.OpenLog(workspace.MonitorLogName); err == nil {
		s.monitor.SetRecorder(w)
		defer func() {
			s.monitor.SetRecorder(nil)
			_ = w.Close()
		}()
	}

	rc = s.monitor.Run(ctx, rc)
	result := &types.RunResult{
		Elapsed:    s.clock.Since(rc.StartedAt),
		Containers: rc.Snapshot(),
	}

	if whileLive != nil {
		whileLive(ctx, rc, result)
	}
	return rc, result
}

func (s *Supervisor) failed(rc *types.RunContext, err error) *types.RunResult {
	rc.Note(err.Error())
	return &types.RunResult{
		Elapsed:    s.clock.Since(rc.StartedAt),
		Containers: map[string]types.WorkerInstance{},
		Error:      err,
	}
}

// waitReady polls the runtime until every service runs or ReadyMaxWait elapses.
func (s *Supervisor) waitReady(ctx context.Context, services []string) error {
	deadline := s.clock.Now().Add(s.cfg.ReadyMaxWait)
	var lastErr error
	for attempt := 1; ; attempt++ {
		live, err := s.status(ctx, deadline)
		if err == nil && live.AllRunning(services) {
			s.log.Info("services ready", zap.Int("attempts", attempt))
			return nil
		}
		lastErr = err

		if !s.clock.Now().Add(s.cfg.ReadyInterval).Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrDeploymentTimeout, ctx.Err())
		case <-s.clock.After(s.cfg.ReadyInterval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %s: %w", ErrDeploymentTimeout, s.cfg.ReadyMaxWait, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrDeploymentTimeout, s.cfg.ReadyMaxWait)
}

// status queries the runtime bounded by the time left until deadline, so a
// stuck query cannot stretch the readiness wait.
func (s *Supervisor) status(ctx context.Context, deadline time.Time) (runtime.Liveness, error) {
	remaining := deadline.Sub(s.clock.Now())
	if remaining <= 0 {
		remaining = s.cfg.ReadyInterval
	}
	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	return s.rt.Status(ctx)
}
