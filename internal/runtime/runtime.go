// Package runtime deploys worker descriptors onto a container runtime and
// reports their liveness.
package runtime

import (
	"context"
	"errors"

	"yqhp/arena/internal/provision"
)

var (
	// ErrRuntimeAbsent is returned when no container runtime is installed.
	ErrRuntimeAbsent = errors.New("container runtime not available")

	// ErrNotDeployed is returned by Status before a successful Deploy.
	ErrNotDeployed = errors.New("nothing deployed")
)

// State is the runtime-reported state of a service.
type State string

const (
	StateRunning    State = "running"
	StateCreated    State = "created"
	StateRestarting State = "restarting"
	StateExited     State = "exited"
	StateDead       State = "dead"
	StateMissing    State = "missing"
)

// ServiceStatus is the liveness of one service.
type ServiceStatus struct {
	Service  string
	State    State
	ExitCode int
}

// Running reports whether the service is up.
func (s ServiceStatus) Running() bool {
	return s.State == StateRunning
}

// Exited reports whether the service stopped, successfully or not.
func (s ServiceStatus) Exited() bool {
	return s.State == StateExited || s.State == StateDead
}

// Liveness maps service names to their status.
type Liveness map[string]ServiceStatus

// Get returns the status of service, reporting StateMissing if absent.
func (l Liveness) Get(service string) ServiceStatus {
	if s, ok := l[service]; ok {
		return s
	}
	return ServiceStatus{Service: service, State: StateMissing, ExitCode: -1}
}

// AllRunning reports whether every named service is running.
func (l Liveness) AllRunning(services []string) bool {
	for _, name := range services {
		if !l.Get(name).Running() {
			return false
		}
	}
	return true
}

// ContainerRuntime is the collaborator that runs workers.
type ContainerRuntime interface {
	// Deploy builds images if needed and starts every service of plan.
	Deploy(ctx context.Context, plan *provision.Plan) error

	// Status returns the liveness of the deployed services.
	Status(ctx context.Context) (Liveness, error)

	// Teardown stops and removes everything Deploy started.
	Teardown(ctx context.Context) error
}

// Absent stands in when no runtime is installed: deployment always fails.
type Absent struct{}

func (Absent) Deploy(context.Context, *provision.Plan) error { return ErrRuntimeAbsent }

func (Absent) Status(context.Context) (Liveness, error) { return Liveness{}, nil }

func (Absent) Teardown(context.Context) error { return nil }
