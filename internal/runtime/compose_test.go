package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/arena/internal/provision"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	dirs  []string
	files []string
	out   map[string][]byte
	fail  map[string]error
}

func (r *recordingRunner) Run(_ context.Context, dir string, _ string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// args: compose -p <project> -f <file> <verb> ...
	verb := args[5]
	r.calls = append(r.calls, strings.Join(args[5:], " "))
	r.dirs = append(r.dirs, dir)
	r.files = append(r.files, args[4])
	if err := r.fail[verb]; err != nil {
		return nil, err
	}
	return r.out[verb], nil
}

func foundDocker(string) (string, error) { return "/usr/bin/docker", nil }

func testPlan(t *testing.T) *provision.Plan {
	return &provision.Plan{
		Workers:      []provision.Descriptor{{ID: "worker-1"}, {ID: "worker-2"}},
		Coordination: provision.CoordinationDescriptor{Name: "coordination"},
		ComposeFile:  filepath.Join(t.TempDir(), "docker-compose.yml"),
	}
}

func TestComposeLifecycle(t *testing.T) {
	runner := &recordingRunner{out: map[string][]byte{
		"ps": []byte(`{"Service":"worker-1","State":"running","ExitCode":0}
{"Service":"worker-2","State":"exited","ExitCode":1}
{"Service":"coordination","State":"running","ExitCode":0}`),
	}}
	rt := NewComposeRuntime(ComposeConfig{Project: "p", Build: true, LookPath: foundDocker, Runner: runner}, zap.NewNop())

	_, err := rt.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotDeployed)

	require.NoError(t, rt.Deploy(context.Background(), testPlan(t)))
	live, err := rt.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, live.Get("worker-1").Running())
	assert.True(t, live.Get("worker-2").Exited())
	assert.Equal(t, 1, live.Get("worker-2").ExitCode)
	assert.Equal(t, StateMissing, live.Get("worker-3").State)
	assert.False(t, live.AllRunning([]string{"worker-1", "worker-2"}))

	require.NoError(t, rt.Teardown(context.Background()))
	require.NoError(t, rt.Teardown(context.Background()))

	assert.Equal(t, []string{
		"build",
		"up -d --remove-orphans",
		"ps --all --format json",
		"down --remove-orphans -v",
	}, runner.calls)
}

func TestComposeWithoutDocker(t *testing.T) {
	rt := NewComposeRuntime(ComposeConfig{
		LookPath: func(string) (string, error) { return "", errors.New("executable file not found in $PATH") },
		Runner:   &recordingRunner{},
	}, zap.NewNop())

	err := rt.Deploy(context.Background(), testPlan(t))
	assert.ErrorIs(t, err, ErrRuntimeAbsent)
	assert.NoError(t, rt.Teardown(context.Background()))
}

func TestComposeDeployFailure(t *testing.T) {
	runner := &recordingRunner{fail: map[string]error{"up": errors.New("port is already allocated")}}
	rt := NewComposeRuntime(ComposeConfig{LookPath: foundDocker, Runner: runner}, zap.NewNop())

	err := rt.Deploy(context.Background(), testPlan(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is already allocated")

	// Services started before up failed are still removed.
	require.NoError(t, rt.Teardown(context.Background()))
	assert.Equal(t, []string{"up -d --remove-orphans", "down --remove-orphans -v"}, runner.calls)

	_, err = rt.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotDeployed)
}

func TestComposeBuildFailureStillTearsDown(t *testing.T) {
	runner := &recordingRunner{fail: map[string]error{"build": errors.New("image build failed")}}
	rt := NewComposeRuntime(ComposeConfig{Build: true, LookPath: foundDocker, Runner: runner}, zap.NewNop())

	require.Error(t, rt.Deploy(context.Background(), testPlan(t)))
	require.NoError(t, rt.Teardown(context.Background()))
	assert.Equal(t, []string{"build", "down --remove-orphans -v"}, runner.calls)
}

func TestComposeResolvesRelativeDescriptor(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	runner := &recordingRunner{}
	rt := NewComposeRuntime(ComposeConfig{LookPath: foundDocker, Runner: runner}, zap.NewNop())
	plan := &provision.Plan{ComposeFile: filepath.Join(".arena", "run", "docker-compose.yml")}

	require.NoError(t, rt.Deploy(context.Background(), plan))
	require.NoError(t, rt.Teardown(context.Background()))

	want := filepath.Join(dir, ".arena", "run", "docker-compose.yml")
	for i := range runner.calls {
		assert.Equal(t, want, runner.files[i])
		assert.Equal(t, filepath.Dir(want), runner.dirs[i])
	}
}

func TestParsePSArrayForm(t *testing.T) {
	live, err := ParsePS([]byte(`[{"Service":"worker-1","State":"Running"},{"Service":"","State":"running"}]`))
	require.NoError(t, err)
	assert.Len(t, live, 1)
	assert.True(t, live.Get("worker-1").Running())

	live, err = ParsePS(nil)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = ParsePS([]byte(`{not json`))
	assert.Error(t, err)
}

func TestAbsentRuntime(t *testing.T) {
	var rt ContainerRuntime = Absent{}
	assert.ErrorIs(t, rt.Deploy(context.Background(), &provision.Plan{}), ErrRuntimeAbsent)
	live, err := rt.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live)
	assert.NoError(t, rt.Teardown(context.Background()))
}
