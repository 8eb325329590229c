package orchestrator

import (
	"encoding/json"
	"time"

	"yqhp/arena/internal/deploy"
	"yqhp/arena/pkg/types"
)

// Run statuses recorded in reports and history.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report is the complete outcome of one run.
type Report struct {
	RunID     string                             `json:"run_id"`
	Status    string                             `json:"status"`
	StartedAt time.Time                          `json:"started_at"`
	Task      types.Task                         `json:"task"`
	Roster    []types.ResolvedWorker             `json:"roster"`
	Plan      *types.Decomposition               `json:"decomposition,omitempty"`
	Result    *types.RunResult                   `json:"result"`
	Error     string                             `json:"error,omitempty"`
	Reports   map[string]*types.AssessmentReport `json:"reports"`
	Synthesis *types.EvaluationSynthesis         `json:"synthesis,omitempty"`
	Stages    map[string]string                  `json:"stages,omitempty"`
	Endpoints []deploy.Endpoint                  `json:"endpoints,omitempty"`
	Artifacts map[string]string                  `json:"artifacts"`
	Notes     []string                           `json:"notes,omitempty"`

	// Summary is the rendered human-readable report.
	Summary string `json:"-"`
	// Publication keeps published endpoints alive until shut down.
	Publication *deploy.Publication `json:"-"`
	// Run is the final run context.
	Run *types.RunContext `json:"-"`
}

// Winner returns the chosen worker id, or "" when no synthesis was made.
func (r *Report) Winner() string {
	if r == nil || r.Synthesis == nil {
		return ""
	}
	return r.Synthesis.Winner
}

func marshalReport(r *Report) (json.RawMessage, error) {
	return json.Marshal(r)
}
