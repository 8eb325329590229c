package types

import (
	"sort"
	"time"
)

// RunContext carries the state of one run through every stage. Stages
// receive it explicitly; nothing about a run lives in package globals.
type RunContext struct {
	RunID         string
	Task          Task
	StartedAt     time.Time
	Deadline      time.Time
	Workspace     string
	Roster        []string
	Resolved      []ResolvedWorker
	Decomposition *Decomposition
	Workers       map[string]*WorkerInstance
	Reports       map[string]*AssessmentReport
	Synthesis     *EvaluationSynthesis
	Notes         []string
}

// NewRunContext creates a context for task starting at now.
func NewRunContext(runID string, task Task, now time.Time) *RunContext {
	return &RunContext{
		RunID:     runID,
		Task:      task,
		StartedAt: now,
		Deadline:  now.Add(task.MaxExecution()),
		Workers:   make(map[string]*WorkerInstance),
		Reports:   make(map[string]*AssessmentReport),
	}
}

// Note records a degradation or informational message for the summary.
func (rc *RunContext) Note(msg string) {
	rc.Notes = append(rc.Notes, msg)
}

// WorkerIDs returns the provisioned worker ids in roster order. Workers not
// present in the roster follow in lexical order.
func (rc *RunContext) WorkerIDs() []string {
	ids := make([]string, 0, len(rc.Workers))
	seen := make(map[string]struct{}, len(rc.Workers))
	for _, id := range rc.Roster {
		if _, ok := rc.Workers[id]; ok {
			ids = append(ids, id)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id := range rc.Workers {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// AllTerminal reports whether every worker reached a terminal status.
func (rc *RunContext) AllTerminal() bool {
	if len(rc.Workers) == 0 {
		return false
	}
	for _, w := range rc.Workers {
		if !w.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Snapshot copies the worker instances into a value map.
func (rc *RunContext) Snapshot() map[string]WorkerInstance {
	out := make(map[string]WorkerInstance, len(rc.Workers))
	for id, w := range rc.Workers {
		out[id] = *w
	}
	return out
}

// Clone returns a copy whose worker map and instances are independent of rc.
func (rc *RunContext) Clone() *RunContext {
	c := *rc
	c.Workers = make(map[string]*WorkerInstance, len(rc.Workers))
	for id, w := range rc.Workers {
		c.Workers[id] = w.Clone()
	}
	c.Roster = append([]string(nil), rc.Roster...)
	c.Notes = append([]string(nil), rc.Notes...)
	return &c
}
