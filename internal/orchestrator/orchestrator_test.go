package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/arena/internal/catalog"
	"yqhp/arena/internal/health"
	"yqhp/arena/internal/history"
	"yqhp/arena/internal/provision"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/internal/supervisor"
	"yqhp/arena/internal/validation"
	"yqhp/arena/internal/workspace"
	"yqhp/arena/pkg/types"
)

type fakeRuntime struct {
	deployErr error
	teardowns atomic.Int32
	mu        sync.Mutex
	services  []string
}

func (f *fakeRuntime) Deploy(_ context.Context, plan *provision.Plan) error {
	if f.deployErr != nil {
		return f.deployErr
	}
	f.mu.Lock()
	f.services = plan.ServiceNames()
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Status(context.Context) (runtime.Liveness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := make(runtime.Liveness)
	for _, s := range f.services {
		live[s] = runtime.ServiceStatus{Service: s, State: runtime.StateRunning}
	}
	return live, nil
}

func (f *fakeRuntime) Teardown(context.Context) error {
	f.teardowns.Add(1)
	return nil
}

type completedProber struct{}

func (completedProber) Probe(context.Context, string) (*health.Payload, error) {
	return &health.Payload{Status: "completed", Phase: "assessment", Metrics: types.WorkerMetrics{TestsPassed: 3}}, nil
}

// judge answers every prompt. The synthesis names the worker with the
// highest overall score found in its prompt.
type judge struct {
	calls     atomic.Int32
	failPlans bool
}

var overallRe = regexp.MustCompile(`- (worker-\d+) .*overall=([\d.]+)`)

func (j *judge) Reason(_ context.Context, prompt, _ string) (string, error) {
	j.calls.Add(1)
	switch {
	case strings.HasPrefix(prompt, "Decompose"):
		if j.failPlans {
			return "", errors.New("reasoning backend down")
		}
		return "Complexity: low\n1. Build the page\n2. Add an API\n", nil
	case strings.Contains(prompt, "Name the single best worker"):
		best, top := "", -1.0
		for _, m := range overallRe.FindAllStringSubmatch(prompt, -1) {
			if v, _ := strconv.ParseFloat(m[2], 64); v > top {
				best, top = m[1], v
			}
		}
		return "Winner: " + best + " is the strongest.\nImprovements:\n1. Add more tests\n", nil
	}
	return "notes", nil
}

type fixedHarness map[string]types.CategoryScores

func (h fixedHarness) Validate(_ context.Context, targets []validation.Target) map[string]*types.AssessmentReport {
	out := make(map[string]*types.AssessmentReport)
	for _, t := range targets {
		out[t.WorkerID] = types.NewAssessmentReport(t.WorkerID, h[t.WorkerID], nil, types.DefaultScoreWeights())
	}
	return out
}

func testOptions(root string) Options {
	return Options{
		WorkspaceRoot: root,
		Supervisor:    supervisor.Config{ReadyInterval: 5 * time.Millisecond, ReadyMaxWait: 200 * time.Millisecond, TeardownTimeout: time.Second},
		Monitor:       supervisor.MonitorConfig{Interval: 10 * time.Millisecond, TickTimeout: 100 * time.Millisecond},
	}
}

func lightTask() types.Task {
	return types.Task{Prompt: "build a todo app", Tier: "light", MaxExecutionSeconds: 60, PartialAssessmentInterval: 10}
}

func TestRunDeploymentFailureEndToEnd(t *testing.T) {
	root := t.TempDir()
	rt := &fakeRuntime{deployErr: errors.New("docker daemon not running")}
	brain := &judge{failPlans: true}
	store, err := history.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	o := New(testOptions(root), Deps{
		Reasoning:    brain,
		Runtime:      rt,
		Prober:       completedProber{},
		Harness:      fixedHarness{},
		History:      store,
		Availability: catalog.NewAllowList(),
	}, zap.NewNop())

	report, err := o.Run(context.Background(), lightTask())

	require.Error(t, err)
	assert.ErrorIs(t, err, supervisor.ErrDeploymentFailed)
	assert.False(t, IsConfigurationError(err))
	require.NotNil(t, report)
	assert.Empty(t, report.Result.Containers)
	assert.Equal(t, StatusFailed, report.Status)
	assert.EqualValues(t, 1, brain.calls.Load(), "only the decomposition call")
	assert.EqualValues(t, 1, rt.teardowns.Load())
	assert.Nil(t, report.Synthesis)

	require.Len(t, report.Roster, 2)
	for _, rw := range report.Roster {
		assert.Equal(t, catalog.BaselineCapability, rw.Capability)
	}
	assert.Equal(t, types.DecompositionFromFallback, report.Plan.Source)

	raw, err := os.ReadFile(filepath.Join(root, workspace.DecompositionFileName))
	require.NoError(t, err)
	var dec types.Decomposition
	require.NoError(t, json.Unmarshal(raw, &dec))
	assert.NotEqual(t, dec.PortMap["worker-1"], dec.PortMap["worker-2"])

	assert.FileExists(t, filepath.Join(root, workspace.ComposeFileName))
	assert.FileExists(t, workspace.Layout{Root: root}.ReportFile())
	assert.Contains(t, report.Summary, "docker daemon not running")

	rec, err := store.Get(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
}

func runCompetition(t *testing.T, scores fixedHarness) (*Report, *judge) {
	t.Helper()
	brain := &judge{}
	o := New(testOptions(t.TempDir()), Deps{
		Reasoning: brain,
		Runtime:   &fakeRuntime{},
		Prober:    completedProber{},
		Harness:   scores,
	}, zap.NewNop())

	report, err := o.Run(context.Background(), lightTask())
	require.NoError(t, err)
	return report, brain
}

func TestRunPicksHigherScoringWorker(t *testing.T) {
	report, brain := runCompetition(t, fixedHarness{
		"worker-1": {Quality: 90, Performance: 85, Browser: 95, API: 80},
		"worker-2": {Quality: 60, Performance: 55, Browser: 70, API: 40},
	})

	assert.Equal(t, StatusCompleted, report.Status)
	require.Len(t, report.Result.Containers, 2)
	for _, w := range report.Result.Containers {
		assert.Equal(t, types.WorkerCompleted, w.Status)
	}
	assert.Equal(t, "worker-1", report.Winner())
	assert.False(t, report.Synthesis.WinnerDefaulted)
	assert.Equal(t, []string{"Add more tests"}, report.Synthesis.Improvements)
	assert.EqualValues(t, 5, brain.calls.Load(), "one decomposition and four assessment calls")
	assert.Equal(t, 87.5, report.Reports["worker-1"].Overall)
	assert.Contains(t, report.Summary, "Winner: worker-1")
}

func TestRunWinnerFollowsScores(t *testing.T) {
	report, _ := runCompetition(t, fixedHarness{
		"worker-1": {Quality: 20, Performance: 20, Browser: 20, API: 20},
		"worker-2": {Quality: 90, Performance: 90, Browser: 90, API: 90},
	})
	assert.Equal(t, "worker-2", report.Winner())
}

func TestRunRejectsBadTasksWithoutSideEffects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "run")
	brain := &judge{}
	o := New(testOptions(root), Deps{Reasoning: brain}, zap.NewNop())

	for name, task := range map[string]types.Task{
		"unknown tier":  {Prompt: "x", Tier: "galactic", MaxExecutionSeconds: 60},
		"empty prompt":  {Prompt: "  ", Tier: "light", MaxExecutionSeconds: 60},
		"no budget":     {Prompt: "x", Tier: "light"},
		"long interval": {Prompt: "x", Tier: "light", MaxExecutionSeconds: 60, PartialAssessmentInterval: 120},
	} {
		t.Run(name, func(t *testing.T) {
			report, err := o.Run(context.Background(), task)
			assert.Nil(t, report)
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Field)
		})
	}
	assert.NoDirExists(t, root)
	assert.Zero(t, brain.calls.Load())
}

func TestRunRejectsNegativeBudget(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.WorkerBudget = -1
	_, err := New(opts, Deps{}, zap.NewNop()).Run(context.Background(), lightTask())
	assert.True(t, IsConfigurationError(err))
}

func TestRunWithoutRuntimeDegrades(t *testing.T) {
	o := New(testOptions(t.TempDir()), Deps{}, zap.NewNop())
	report, err := o.Run(context.Background(), lightTask())

	assert.ErrorIs(t, err, runtime.ErrRuntimeAbsent)
	require.NotNil(t, report)
	assert.Empty(t, report.Result.Containers)
	assert.NotEmpty(t, report.Notes)
}

func TestRunWithRelativeWorkspaceUsesAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	o := New(testOptions(filepath.Join(".arena", "run")), Deps{
		Runtime:      &fakeRuntime{deployErr: errors.New("stop here")},
		Availability: catalog.NewAllowList(),
	}, zap.NewNop())
	report, err := o.Run(context.Background(), lightTask())
	require.Error(t, err)

	root := filepath.Join(dir, ".arena", "run")
	assert.Equal(t, root, report.Run.Workspace)
	assert.Equal(t, filepath.Join(root, workspace.ComposeFileName), report.Artifacts["descriptor"])

	raw, err := os.ReadFile(report.Artifacts["descriptor"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), filepath.Join(root, "workers", "worker-1")+":/workspace")
}
