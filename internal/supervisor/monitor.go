package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/arena/internal/coordination"
	"yqhp/arena/internal/health"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// MonitorConfig holds the execution monitor configuration.
type MonitorConfig struct {
	// Interval is the time between ticks.
	Interval time.Duration

	// TickTimeout bounds every runtime query and health probe of a tick.
	TickTimeout time.Duration

	// Concurrency is the maximum number of workers probed at once.
	Concurrency int

	// Host is where worker ports are reachable from the orchestrator.
	Host string
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:    5 * time.Second,
		TickTimeout: 3 * time.Second,
		Concurrency: 4,
		Host:        "127.0.0.1",
	}
}

// Monitor polls workers and folds their reports into the run context.
type Monitor struct {
	cfg     MonitorConfig
	rt      runtime.ContainerRuntime
	prober  health.Prober
	signals coordination.Reader
	clock   clockwork.Clock
	log     *zap.Logger

	recMu    sync.Mutex
	recorder io.Writer
}

// NewMonitor creates a monitor. signals may be nil.
func NewMonitor(cfg MonitorConfig, rt runtime.ContainerRuntime, prober health.Prober, signals coordination.Reader, clock clockwork.Clock, log *zap.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = def.TickTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if signals == nil {
		signals = coordination.Noop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		cfg:     cfg,
		rt:      rt,
		prober:  prober,
		signals: signals,
		clock:   clock,
		log:     logger.Or(log, "monitor"),
	}
}

// SetRecorder makes every tick append a JSON snapshot line to w.
func (m *Monitor) SetRecorder(w io.Writer) {
	m.recMu.Lock()
	m.recorder = w
	m.recMu.Unlock()
}

type observation struct {
	payload *health.Payload
	err     error
}

// Tick polls the runtime, the coordination store and every worker once and
// returns an updated copy of rc. All workers are updated before Tick
// returns. When now is at or past the deadline every non-terminal worker is
// marked timeout. The boolean reports whether every worker is terminal.
func (m *Monitor) Tick(ctx context.Context, rc *types.RunContext, now time.Time) (*types.RunContext, bool) {
	next := rc.Clone()
	ids := next.WorkerIDs()

	live, liveOK := m.liveness(ctx)
	signals := m.readSignals(ctx, ids)

	obs := make([]observation, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, id := range ids {
		w := next.Workers[id]
		if w.Status.IsTerminal() {
			continue
		}
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, m.cfg.TickTimeout)
			defer cancel()
			p, err := m.prober.Probe(pctx, net.JoinHostPort(m.cfg.Host, strconv.Itoa(w.Port)))
			obs[i] = observation{payload: p, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		w := next.Workers[id]
		if w.Status.IsTerminal() {
			continue
		}
		prev := w.Status
		if o := obs[i]; o.err == nil && o.payload != nil {
			applyHealth(w, o.payload, now)
		} else {
			if sig, ok := signals[id]; ok {
				if s := types.ParseWorkerStatus(sig.Status); s.IsTerminal() {
					w.Status = w.Status.Advance(s)
				}
			}
			if liveOK {
				w.Status = w.Status.Advance(inferFromLiveness(w.Status, live.Get(id)))
			}
		}
		if w.Status != prev {
			m.log.Info("worker status changed",
				zap.String("worker", id),
				zap.String("from", string(prev)),
				zap.String("to", string(w.Status)))
		}
	}

	if !now.Before(next.Deadline) {
		expire(next, m.log)
	}

	m.record(now, next)
	return next, next.AllTerminal()
}

// Run ticks until every worker is terminal or the deadline passes, then
// returns the final context. Cancelling ctx ends the loop like the deadline.
func (m *Monitor) Run(ctx context.Context, rc *types.RunContext) *types.RunContext {
	ticker := m.clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	deadline := m.clock.NewTimer(m.clock.Until(rc.Deadline))
	defer deadline.Stop()

	m.log.Info("monitoring started",
		zap.Int("workers", len(rc.Workers)),
		zap.Duration("interval", m.cfg.Interval),
		zap.Time("deadline", rc.Deadline))

	for {
		var done bool
		rc, done = m.Tick(ctx, rc, m.clock.Now())
		if done {
			m.log.Info("all workers finished")
			return rc
		}

		select {
		case <-ctx.Done():
			rc = rc.Clone()
			expire(rc, m.log)
			rc.Note("monitoring cancelled before every worker finished")
			return rc
		case <-deadline.Chan():
			rc, _ = m.Tick(ctx, rc, rc.Deadline)
			m.log.Warn("execution deadline reached")
			return rc
		case <-ticker.Chan():
		}
	}
}

func (m *Monitor) liveness(ctx context.Context) (runtime.Liveness, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	defer cancel()
	live, err := m.rt.Status(ctx)
	if err != nil {
		m.log.Debug("runtime status unavailable", zap.Error(err))
		return nil, false
	}
	return live, true
}

func (m *Monitor) readSignals(ctx context.Context, ids []string) map[string]coordination.Signal {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	defer cancel()
	sig, err := m.signals.Signals(ctx, ids)
	if err != nil {
		m.log.Debug("coordination signals unavailable", zap.Error(err))
		return nil
	}
	return sig
}

func (m *Monitor) record(now time.Time, rc *types.RunContext) {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	if m.recorder == nil {
		return
	}
	line, err := json.Marshal(struct {
		Time    time.Time                       `json:"time"`
		Workers map[string]types.WorkerInstance `json:"workers"`
	}{now, rc.Snapshot()})
	if err != nil {
		return
	}
	_, _ = m.recorder.Write(append(line, '\n'))
}

// applyHealth overwrites metrics, phase and status from a reachable worker.
// A successful response moves a starting worker to running.
func applyHealth(w *types.WorkerInstance, p *health.Payload, now time.Time) {
	reported := p.WorkerStatus()
	if reported == types.WorkerStarting {
		reported = types.WorkerRunning
	}
	w.Status = w.Status.Advance(reported)
	w.Phase = w.Phase.Advance(p.WorkerPhase())
	w.Metrics = p.Metrics
	w.LastActivity = now
	if ts, ok := p.ReportedAt(); ok {
		w.LastActivity = ts
	}
}

// inferFromLiveness derives a status from container state alone. It never
// touches metrics.
func inferFromLiveness(cur types.WorkerStatus, s runtime.ServiceStatus) types.WorkerStatus {
	switch {
	case s.Exited() && s.ExitCode == 0:
		return types.WorkerCompleted
	case s.Exited(), s.State == runtime.StateMissing:
		return types.WorkerFailed
	}
	return cur
}

// expire marks every non-terminal worker as timed out.
func expire(rc *types.RunContext, log *zap.Logger) {
	for id, w := range rc.Workers {
		if w.Status.IsTerminal() {
			continue
		}
		w.Status = w.Status.Advance(types.WorkerTimeout)
		log.Warn("worker timed out", zap.String("worker", id), zap.String("phase", string(w.Phase)))
	}
}
