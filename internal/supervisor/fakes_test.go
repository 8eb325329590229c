package supervisor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"yqhp/arena/internal/health"
	"yqhp/arena/internal/provision"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/pkg/types"
)

var errUnreachable = errors.New("connection refused")

type fakeRuntime struct {
	mu        sync.Mutex
	deployErr error
	live      runtime.Liveness
	statusErr error
	// stall makes Status block this long unless its context ends first.
	stall     time.Duration
	deployed  atomic.Int32
	teardowns atomic.Int32
}

func (f *fakeRuntime) Deploy(context.Context, *provision.Plan) error {
	f.deployed.Add(1)
	return f.deployErr
}

func (f *fakeRuntime) Status(ctx context.Context) (runtime.Liveness, error) {
	if f.stall > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.stall):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	out := make(runtime.Liveness, len(f.live))
	for k, v := range f.live {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRuntime) Teardown(context.Context) error {
	f.teardowns.Add(1)
	return nil
}

func (f *fakeRuntime) set(service string, state runtime.State, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live == nil {
		f.live = make(runtime.Liveness)
	}
	f.live[service] = runtime.ServiceStatus{Service: service, State: state, ExitCode: code}
}

// fakeProber answers per address; addresses without an answer are unreachable.
type fakeProber struct {
	mu      sync.Mutex
	answers map[string]*health.Payload
	block   map[string]bool
	calls   atomic.Int32
}

func newFakeProber() *fakeProber {
	return &fakeProber{answers: make(map[string]*health.Payload), block: make(map[string]bool)}
}

func (f *fakeProber) answer(addr string, p *health.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[addr] = p
}

func (f *fakeProber) Probe(ctx context.Context, addr string) (*health.Payload, error) {
	f.calls.Add(1)
	f.mu.Lock()
	p, ok := f.answers[addr]
	blocked := f.block[addr]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errUnreachable
	}
	c := *p
	return &c, nil
}

func newRunContext(start time.Time, budget time.Duration, ids ...string) *types.RunContext {
	rc := types.NewRunContext("run-test", types.Task{MaxExecutionSeconds: int(budget / time.Second)}, start)
	rc.Deadline = start.Add(budget)
	rc.Roster = ids
	for i, id := range ids {
		rc.Workers[id] = &types.WorkerInstance{
			ID:     id,
			Port:   3001 + i,
			Status: types.WorkerStarting,
			Phase:  types.PhaseAnalysis,
		}
	}
	return rc
}

func addr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
