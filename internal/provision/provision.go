// Package provision turns verified worker specs and a decomposition into
// deployable descriptors and writes them as a compose file. It makes no
// network calls.
package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"yqhp/arena/internal/coordination"
	"yqhp/arena/internal/workspace"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

var (
	// ErrRosterMismatch is returned when ids and resolved specs differ in length.
	ErrRosterMismatch = errors.New("worker ids and resolved specs differ in length")

	// ErrPortConflict is returned when two endpoints share a port.
	ErrPortConflict = errors.New("port assignment conflict")
)

// Container paths seen by every worker.
const (
	ContainerWorkspace = "/workspace"
)

// Config holds provisioner settings.
type Config struct {
	Project      string
	Image        string
	BuildContext string
	Coordination CoordinationConfig
}

// CoordinationConfig describes the coordination store service.
type CoordinationConfig struct {
	ServiceName string
	Image       string
	Port        int
}

// Descriptor is one deployable worker.
type Descriptor struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Capability     string            `json:"capability"`
	Specialization string            `json:"specialization"`
	Memory         string            `json:"memory"`
	Port           int               `json:"port"`
	Workspace      string            `json:"workspace"`
	Env            map[string]string `json:"env"`
}

// CoordinationDescriptor is the shared coordination store.
type CoordinationDescriptor struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	Port  int    `json:"port"`
	URL   string `json:"url"`
}

// Plan is the complete provisioning output.
type Plan struct {
	Workers      []Descriptor           `json:"workers"`
	Coordination CoordinationDescriptor `json:"coordination"`
	ComposeFile  string                 `json:"compose_file"`
}

// ServiceNames returns every service the runtime must report running.
func (p *Plan) ServiceNames() []string {
	names := make([]string, 0, len(p.Workers)+1)
	for _, w := range p.Workers {
		names = append(names, w.ID)
	}
	if p.Coordination.Name != "" {
		names = append(names, p.Coordination.Name)
	}
	return names
}

// Instances creates the starting WorkerInstance of every descriptor.
func (p *Plan) Instances(resolved []types.ResolvedWorker) map[string]*types.WorkerInstance {
	out := make(map[string]*types.WorkerInstance, len(p.Workers))
	for i, d := range p.Workers {
		out[d.ID] = types.NewWorkerInstance(d.ID, resolved[i], d.Port, d.Workspace)
	}
	return out
}

// Provisioner builds and writes plans.
type Provisioner struct {
	cfg    Config
	layout workspace.Layout
	log    *zap.Logger
}

// New creates a provisioner writing under layout.
func New(cfg Config, layout workspace.Layout, log *zap.Logger) *Provisioner {
	if cfg.Coordination.ServiceName == "" {
		cfg.Coordination.ServiceName = "coordination"
	}
	if cfg.Coordination.Image == "" {
		cfg.Coordination.Image = "redis:7-alpine"
	}
	if cfg.Coordination.Port == 0 {
		cfg.Coordination.Port = 6379
	}
	return &Provisioner{cfg: cfg, layout: layout, log: logger.Or(log, "provision")}
}

// Build creates the plan for ids/resolved without touching the filesystem.
func (p *Provisioner) Build(task types.Task, ids []string, resolved []types.ResolvedWorker, dec *types.Decomposition) (*Plan, error) {
	if len(ids) != len(resolved) {
		return nil, fmt.Errorf("%w: %d ids, %d specs", ErrRosterMismatch, len(ids), len(resolved))
	}

	coord := CoordinationDescriptor{
		Name:  p.cfg.Coordination.ServiceName,
		Image: p.cfg.Coordination.Image,
		Port:  p.cfg.Coordination.Port,
		URL:   fmt.Sprintf("redis://%s:%d", p.cfg.Coordination.ServiceName, p.cfg.Coordination.Port),
	}

	plan := &Plan{Coordination: coord, ComposeFile: p.layout.ComposeFile()}
	for i, id := range ids {
		rw := resolved[i]
		port, ok := dec.WorkerPort(id)
		if !ok {
			port = dec.PortMap[types.PortKeyDiscussion] + 1 + i
		}
		plan.Workers = append(plan.Workers, Descriptor{
			ID:             id,
			Name:           rw.Spec.Name,
			Capability:     rw.Capability,
			Specialization: rw.Spec.Specialization,
			Memory:         rw.Spec.Memory,
			Port:           port,
			Workspace:      p.layout.WorkerDir(id),
			Env:            workerEnv(task, id, rw, port, coord.URL),
		})
	}

	if err := ValidatePorts(plan, dec.PortMap); err != nil {
		return nil, err
	}
	return plan, nil
}

// Provision builds the plan and writes the compose file and the
// decomposition into the run root.
func (p *Provisioner) Provision(task types.Task, ids []string, resolved []types.ResolvedWorker, dec *types.Decomposition) (*Plan, error) {
	plan, err := p.Build(task, ids, resolved, dec)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.layout.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create run root: %w", err)
	}
	for _, w := range plan.Workers {
		if err := os.MkdirAll(w.Workspace, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace for %s: %w", w.ID, err)
		}
	}

	data, err := RenderCompose(p.cfg, plan)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(plan.ComposeFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("write compose file: %w", err)
	}
	if err := writeDecomposition(p.layout.DecompositionFile(), dec); err != nil {
		return nil, err
	}

	p.log.Info("workers provisioned",
		zap.Int("workers", len(plan.Workers)),
		zap.String("compose_file", filepath.Base(plan.ComposeFile)))
	return plan, nil
}

// ValidatePorts checks that worker ports are unique and distinct from the
// discussion and winner ports.
func ValidatePorts(plan *Plan, ports map[string]int) error {
	used := make(map[int]string, len(plan.Workers)+2)
	claim := func(owner string, port int) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s has invalid port %d", ErrPortConflict, owner, port)
		}
		if prev, ok := used[port]; ok {
			return fmt.Errorf("%w: %s and %s both use port %d", ErrPortConflict, prev, owner, port)
		}
		used[port] = owner
		return nil
	}

	for _, key := range []string{types.PortKeyDiscussion, types.PortKeyWinner} {
		if port, ok := ports[key]; ok {
			if err := claim(key, port); err != nil {
				return err
			}
		}
	}
	for _, w := range plan.Workers {
		if err := claim(w.ID, w.Port); err != nil {
			return err
		}
	}
	return nil
}

func workerEnv(task types.Task, id string, rw types.ResolvedWorker, port int, coordURL string) map[string]string {
	return map[string]string{
		"TASK_PROMPT":                 task.Prompt,
		"TECHNOLOGIES":                task.TechnologyList(),
		"WORKER_ID":                   id,
		"SPECIALIZATION":              rw.Spec.Specialization,
		"MODEL":                       rw.Capability,
		"COORDINATION_URL":            coordURL,
		"COORDINATION_KEY":            coordination.Key(id),
		"PORT":                        strconv.Itoa(port),
		"WORKSPACE":                   ContainerWorkspace,
		"PARTIAL_ASSESSMENT_INTERVAL": strconv.Itoa(task.PartialAssessmentInterval),
		"MAX_EXECUTION_TIME":          strconv.Itoa(task.MaxExecutionSeconds),
	}
}
