package types

import "time"

// WorkerStatus is the lifecycle state of a worker.
// Transitions only move forward: starting -> running -> {completed | failed | timeout}.
type WorkerStatus string

const (
	WorkerStarting  WorkerStatus = "starting"
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
	WorkerTimeout   WorkerStatus = "timeout"
)

func (s WorkerStatus) rank() int {
	switch s {
	case WorkerStarting:
		return 0
	case WorkerRunning:
		return 1
	case WorkerCompleted, WorkerFailed, WorkerTimeout:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status.
func (s WorkerStatus) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal reports whether no further transition is possible.
func (s WorkerStatus) IsTerminal() bool {
	return s.rank() == 2
}

// CanTransition reports whether moving from s to next is a forward move.
func (s WorkerStatus) CanTransition(next WorkerStatus) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Advance returns next when the transition is allowed and s otherwise.
func (s WorkerStatus) Advance(next WorkerStatus) WorkerStatus {
	if s.CanTransition(next) {
		return next
	}
	return s
}

// ParseWorkerStatus maps a self-reported status string onto a WorkerStatus.
// Unknown values map to running: a worker that answers is alive.
func ParseWorkerStatus(v string) WorkerStatus {
	switch v {
	case "starting", "initializing", "booting":
		return WorkerStarting
	case "completed", "complete", "done", "finished", "success":
		return WorkerCompleted
	case "failed", "error", "crashed":
		return WorkerFailed
	case "timeout", "timed_out":
		return WorkerTimeout
	}
	return WorkerRunning
}

// WorkerPhase tracks progress inside the running state.
type WorkerPhase string

const (
	PhaseAnalysis   WorkerPhase = "analysis"
	PhaseCoding     WorkerPhase = "coding"
	PhaseTesting    WorkerPhase = "testing"
	PhaseAssessment WorkerPhase = "assessment"
)

func (p WorkerPhase) rank() int {
	switch p {
	case PhaseAnalysis:
		return 0
	case PhaseCoding:
		return 1
	case PhaseTesting:
		return 2
	case PhaseAssessment:
		return 3
	}
	return -1
}

// Advance returns next if it is later than p, keeping phases monotonic.
func (p WorkerPhase) Advance(next WorkerPhase) WorkerPhase {
	if next.rank() > p.rank() {
		return next
	}
	return p
}

// WorkerMetrics are cumulative counters reported by a worker.
type WorkerMetrics struct {
	LinesAdded         int `json:"lines_added"`
	LinesDeleted       int `json:"lines_deleted"`
	TestsPassed        int `json:"tests_passed"`
	TestsFailed        int `json:"tests_failed"`
	PartialAssessments int `json:"partial_assessments"`
}

// WorkerInstance is one runtime unit of a run.
type WorkerInstance struct {
	ID             string        `json:"id"`
	Capability     string        `json:"capability"`
	Specialization string        `json:"specialization"`
	Memory         string        `json:"memory"`
	Port           int           `json:"port"`
	Workspace      string        `json:"workspace"`
	Status         WorkerStatus  `json:"status"`
	Phase          WorkerPhase   `json:"phase"`
	Metrics        WorkerMetrics `json:"metrics"`
	LastActivity   time.Time     `json:"last_activity"`
}

// NewWorkerInstance creates an instance in the starting state.
func NewWorkerInstance(id string, rw ResolvedWorker, port int, workspace string) *WorkerInstance {
	return &WorkerInstance{
		ID:             id,
		Capability:     rw.Capability,
		Specialization: rw.Spec.Specialization,
		Memory:         rw.Spec.Memory,
		Port:           port,
		Workspace:      workspace,
		Status:         WorkerStarting,
		Phase:          PhaseAnalysis,
	}
}

// Clone returns an independent copy.
func (w *WorkerInstance) Clone() *WorkerInstance {
	c := *w
	return &c
}
