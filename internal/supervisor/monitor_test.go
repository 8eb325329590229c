package supervisor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"yqhp/arena/internal/health"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/pkg/types"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestMonitor(rt runtime.ContainerRuntime, p health.Prober, clock clockwork.Clock) *Monitor {
	return NewMonitor(MonitorConfig{
		Interval:    10 * time.Millisecond,
		TickTimeout: 50 * time.Millisecond,
		Concurrency: 2,
	}, rt, p, nil, clock, zap.NewNop())
}

func TestTickAppliesHealthAndLiveness(t *testing.T) {
	rt := &fakeRuntime{}
	rt.set("worker-1", runtime.StateRunning, 0)
	rt.set("worker-2", runtime.StateExited, 1)
	rt.set("worker-3", runtime.StateRunning, 0)
	rt.set("worker-4", runtime.StateExited, 0)

	prober := newFakeProber()
	prober.answer(addr(3001), &health.Payload{
		Status:  "running",
		Phase:   "coding",
		Metrics: types.WorkerMetrics{LinesAdded: 40, TestsPassed: 3},
	})

	rc := newRunContext(t0, time.Hour, "worker-1", "worker-2", "worker-3", "worker-4", "worker-5")
	next, done := newTestMonitor(rt, prober, nil).Tick(context.Background(), rc, t0.Add(time.Second))

	assert.False(t, done)
	w1 := next.Workers["worker-1"]
	assert.Equal(t, types.WorkerRunning, w1.Status)
	assert.Equal(t, types.PhaseCoding, w1.Phase)
	assert.Equal(t, 40, w1.Metrics.LinesAdded)
	assert.Equal(t, t0.Add(time.Second), w1.LastActivity)

	assert.Equal(t, types.WorkerFailed, next.Workers["worker-2"].Status)
	assert.Equal(t, types.WorkerStarting, next.Workers["worker-3"].Status)
	assert.Equal(t, types.WorkerCompleted, next.Workers["worker-4"].Status)
	assert.Equal(t, types.WorkerFailed, next.Workers["worker-5"].Status, "missing container")

	assert.Zero(t, next.Workers["worker-2"].Metrics, "liveness never writes metrics")
	assert.Equal(t, types.WorkerStarting, rc.Workers["worker-1"].Status, "input context is not mutated")
}

func TestTickFirstResponseMeansRunning(t *testing.T) {
	prober := newFakeProber()
	prober.answer(addr(3001), &health.Payload{Status: "starting"})

	rc := newRunContext(t0, time.Hour, "worker-1")
	next, _ := newTestMonitor(&fakeRuntime{}, prober, nil).Tick(context.Background(), rc, t0)

	assert.Equal(t, types.WorkerRunning, next.Workers["worker-1"].Status)
}

func TestTickKeepsStatusWhenRuntimeQueryFails(t *testing.T) {
	rt := &fakeRuntime{statusErr: assert.AnError}
	rc := newRunContext(t0, time.Hour, "worker-1")
	rc.Workers["worker-1"].Status = types.WorkerRunning

	next, _ := newTestMonitor(rt, newFakeProber(), nil).Tick(context.Background(), rc, t0)
	assert.Equal(t, types.WorkerRunning, next.Workers["worker-1"].Status)
}

func TestTickAtDeadlineMarksTimeout(t *testing.T) {
	rt := &fakeRuntime{}
	rt.set("worker-1", runtime.StateRunning, 0)
	rt.set("worker-2", runtime.StateRunning, 0)

	prober := newFakeProber()
	prober.answer(addr(3002), &health.Payload{Status: "completed"})

	rc := newRunContext(t0, time.Minute, "worker-1", "worker-2")
	rc.Workers["worker-1"].Status = types.WorkerRunning

	next, done := newTestMonitor(rt, prober, nil).Tick(context.Background(), rc, t0.Add(time.Minute))

	assert.True(t, done)
	assert.Equal(t, types.WorkerTimeout, next.Workers["worker-1"].Status)
	assert.Equal(t, types.WorkerCompleted, next.Workers["worker-2"].Status)
}

func TestTickBoundedBySlowWorker(t *testing.T) {
	prober := newFakeProber()
	prober.block[addr(3001)] = true
	prober.answer(addr(3002), &health.Payload{Status: "completed"})

	rt := &fakeRuntime{}
	rt.set("worker-1", runtime.StateRunning, 0)
	rc := newRunContext(t0, time.Hour, "worker-1", "worker-2")
	start := time.Now()
	next, _ := newTestMonitor(rt, prober, nil).Tick(context.Background(), rc, t0)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, types.WorkerCompleted, next.Workers["worker-2"].Status)
	assert.Equal(t, types.WorkerStarting, next.Workers["worker-1"].Status)
}

func TestTickRecordsSnapshot(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMonitor(&fakeRuntime{}, newFakeProber(), nil)
	m.SetRecorder(&buf)

	m.Tick(context.Background(), newRunContext(t0, time.Hour, "worker-1"), t0)
	assert.Contains(t, buf.String(), `"worker-1"`)
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
}

// A worker observed terminal never becomes starting or running again, and
// its status rank never decreases, whatever the workers and runtime report.
func TestTickMonotonicProperty(t *testing.T) {
	reports := []string{"starting", "running", "completed", "failed", "error", "busy", ""}
	states := []runtime.State{runtime.StateRunning, runtime.StateExited, runtime.StateMissing, runtime.StateRestarting}

	rapid.Check(t, func(t *rapid.T) {
		rt := &fakeRuntime{}
		prober := newFakeProber()
		m := newTestMonitor(rt, prober, nil)
		rc := newRunContext(t0, time.Hour, "worker-1", "worker-2")

		ticks := rapid.IntRange(1, 12).Draw(t, "ticks")
		for i := 0; i < ticks; i++ {
			for j, id := range []string{"worker-1", "worker-2"} {
				a := addr(3001 + j)
				if rapid.Bool().Draw(t, "reachable") {
					prober.answer(a, &health.Payload{Status: rapid.SampledFrom(reports).Draw(t, "report")})
				} else {
					prober.mu.Lock()
					delete(prober.answers, a)
					prober.mu.Unlock()
				}
				rt.set(id, rapid.SampledFrom(states).Draw(t, "state"), rapid.IntRange(0, 2).Draw(t, "code"))
			}

			prev := rc
			rc, _ = m.Tick(context.Background(), rc, t0.Add(time.Duration(i)*time.Second))
			for id, w := range rc.Workers {
				before := prev.Workers[id].Status
				if before.IsTerminal() && w.Status != before {
					t.Fatalf("%s left terminal %s for %s", id, before, w.Status)
				}
				if before == types.WorkerRunning && w.Status == types.WorkerStarting {
					t.Fatalf("%s went back to starting", id)
				}
			}
		}
	})
}

func TestMonitorRunStopsWhenAllTerminal(t *testing.T) {
	prober := newFakeProber()
	prober.answer(addr(3001), &health.Payload{Status: "completed"})
	prober.answer(addr(3002), &health.Payload{Status: "running"})

	m := newTestMonitor(&fakeRuntime{}, prober, nil)
	rc := newRunContext(time.Now(), time.Minute, "worker-1", "worker-2")

	go func() {
		time.Sleep(30 * time.Millisecond)
		prober.answer(addr(3002), &health.Payload{Status: "done"})
	}()

	start := time.Now()
	final := m.Run(context.Background(), rc)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, types.WorkerCompleted, final.Workers["worker-1"].Status)
	assert.Equal(t, types.WorkerCompleted, final.Workers["worker-2"].Status)
}

func TestMonitorRunDeadlineWithFakeClock(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	rt := &fakeRuntime{}
	rt.set("worker-1", runtime.StateRunning, 0)
	rt.set("worker-2", runtime.StateRunning, 0)
	prober := newFakeProber()
	prober.answer(addr(3001), &health.Payload{Status: "running", Phase: "testing"})

	m := NewMonitor(MonitorConfig{Interval: time.Minute, TickTimeout: time.Second}, rt, prober, nil, fc, zap.NewNop())
	rc := newRunContext(t0, 10*time.Minute, "worker-1", "worker-2")

	out := make(chan *types.RunContext, 1)
	go func() { out <- m.Run(context.Background(), rc) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 2))
	fc.Advance(10 * time.Minute)

	select {
	case final := <-out:
		assert.Equal(t, types.WorkerTimeout, final.Workers["worker-1"].Status)
		assert.Equal(t, types.PhaseTesting, final.Workers["worker-1"].Phase)
		assert.Equal(t, types.WorkerTimeout, final.Workers["worker-2"].Status)
	case <-ctx.Done():
		t.Fatal("monitor did not stop at the deadline")
	}
}

func TestMonitorRunCancelled(t *testing.T) {
	rt := &fakeRuntime{}
	rt.set("worker-1", runtime.StateRunning, 0)
	m := newTestMonitor(rt, newFakeProber(), nil)
	rc := newRunContext(time.Now(), time.Hour, "worker-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final := m.Run(ctx, rc)
	assert.Equal(t, types.WorkerTimeout, final.Workers["worker-1"].Status)
	assert.NotEmpty(t, final.Notes)
}
