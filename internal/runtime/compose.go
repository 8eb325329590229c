package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/arena/internal/provision"
	"yqhp/arena/pkg/logger"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// ComposeConfig configures ComposeRuntime.
type ComposeConfig struct {
	Project string
	Build   bool
	Binary  string
	// CommandTimeout bounds each compose invocation; zero means no bound.
	CommandTimeout time.Duration
	LookPath       func(string) (string, error)
	Runner         Runner
}

// ComposeRuntime drives `docker compose`.
type ComposeRuntime struct {
	cfg ComposeConfig
	log *zap.Logger

	mu   sync.Mutex
	file string
}

// NewComposeRuntime creates a compose-backed runtime.
func NewComposeRuntime(cfg ComposeConfig, log *zap.Logger) *ComposeRuntime {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Project == "" {
		cfg.Project = "arena"
	}
	return &ComposeRuntime{cfg: cfg, log: logger.Or(log, "runtime")}
}

func (r *ComposeRuntime) compose(ctx context.Context, file string, args ...string) ([]byte, error) {
	bin, err := r.cfg.LookPath(r.cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeAbsent, err)
	}
	if r.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CommandTimeout)
		defer cancel()
	}
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	full := append([]string{"compose", "-p", r.cfg.Project, "-f", file}, args...)
	return r.cfg.Runner.Run(ctx, filepath.Dir(file), bin, full...)
}

// Deploy implements ContainerRuntime.
func (r *ComposeRuntime) Deploy(ctx context.Context, plan *provision.Plan) error {
	if _, err := r.cfg.LookPath(r.cfg.Binary); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeAbsent, err)
	}

	// Recorded before build so that Teardown also removes whatever a
	// partially failed up started.
	r.mu.Lock()
	r.file = plan.ComposeFile
	r.mu.Unlock()

	if r.cfg.Build {
		if _, err := r.compose(ctx, plan.ComposeFile, "build"); err != nil {
			return fmt.Errorf("build images: %w", err)
		}
	}
	if _, err := r.compose(ctx, plan.ComposeFile, "up", "-d", "--remove-orphans"); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	r.log.Info("services started", zap.Strings("services", plan.ServiceNames()))
	return nil
}

func (r *ComposeRuntime) deployedFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file
}

// Status implements ContainerRuntime.
func (r *ComposeRuntime) Status(ctx context.Context) (Liveness, error) {
	file := r.deployedFile()
	if file == "" {
		return nil, ErrNotDeployed
	}
	out, err := r.compose(ctx, file, "ps", "--all", "--format", "json")
	if err != nil {
		return nil, err
	}
	return ParsePS(out)
}

// Teardown implements ContainerRuntime.
func (r *ComposeRuntime) Teardown(ctx context.Context) error {
	file := r.deployedFile()
	if file == "" {
		return nil
	}
	if _, err := r.compose(ctx, file, "down", "--remove-orphans", "-v"); err != nil {
		return fmt.Errorf("stop services: %w", err)
	}
	r.mu.Lock()
	r.file = ""
	r.mu.Unlock()
	return nil
}

type psEntry struct {
	Service  string `json:"Service"`
	State    string `json:"State"`
	ExitCode int    `json:"ExitCode"`
}

// ParsePS parses `compose ps --format json`, which is a JSON array in older
// compose releases and one object per line in newer ones.
func ParsePS(out []byte) (Liveness, error) {
	out = bytes.TrimSpace(out)
	live := make(Liveness)
	if len(out) == 0 {
		return live, nil
	}

	var entries []psEntry
	if out[0] == '[' {
		if err := json.Unmarshal(out, &entries); err != nil {
			return nil, fmt.Errorf("parse compose ps: %w", err)
		}
	} else {
		for _, line := range bytes.Split(out, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var e psEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("parse compose ps line: %w", err)
			}
			entries = append(entries, e)
		}
	}

	for _, e := range entries {
		if e.Service == "" {
			continue
		}
		live[e.Service] = ServiceStatus{
			Service:  e.Service,
			State:    State(strings.ToLower(e.State)),
			ExitCode: e.ExitCode,
		}
	}
	return live, nil
}
