package types

// Complexity is the estimated difficulty label of a decomposed task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Port map keys that are not worker ids.
const (
	PortKeyDiscussion = "discussion"
	PortKeyWinner     = "winner"
)

// DecompositionSource tells whether a decomposition came from the reasoning
// service or from the canned fallback.
type DecompositionSource string

const (
	DecompositionFromReasoning DecompositionSource = "reasoning"
	DecompositionFromFallback  DecompositionSource = "fallback"
)

// Subtask is one unit of the decomposed task.
type Subtask struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	TestSpecs          []string `json:"test_specs"`
	AssignedWorkers    []string `json:"assigned_workers"`
	Scaffolding        []string `json:"scaffolding"`
	EvaluationCriteria []string `json:"evaluation_criteria"`
}

// Decomposition is the structured breakdown of a task. It is created once
// per run and never mutated afterwards.
type Decomposition struct {
	MainTask     string              `json:"main_task"`
	Technologies []string            `json:"technologies"`
	Subtasks     []Subtask           `json:"subtasks"`
	PortMap      map[string]int      `json:"port_map"`
	Complexity   Complexity          `json:"complexity"`
	Source       DecompositionSource `json:"source"`
	Raw          string              `json:"raw,omitempty"`
}

// WorkerPort returns the port assigned to a worker id.
func (d *Decomposition) WorkerPort(id string) (int, bool) {
	p, ok := d.PortMap[id]
	return p, ok
}

// HostingPlan derives the hosting plan from the port map.
func (d *Decomposition) HostingPlan() HostingPlan {
	plan := HostingPlan{Workers: make(map[string]int, len(d.PortMap))}
	for k, v := range d.PortMap {
		switch k {
		case PortKeyDiscussion:
			plan.DiscussionPort = v
		case PortKeyWinner:
			plan.WinnerPort = v
		default:
			plan.Workers[k] = v
		}
	}
	return plan
}

// TestSpecs returns the union of all subtask test specs in order of appearance.
func (d *Decomposition) TestSpecs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, st := range d.Subtasks {
		for _, spec := range st.TestSpecs {
			if _, ok := seen[spec]; ok {
				continue
			}
			seen[spec] = struct{}{}
			out = append(out, spec)
		}
	}
	return out
}

// HostingPlan lists the published endpoints of a run.
type HostingPlan struct {
	Workers        map[string]int `json:"workers"`
	DiscussionPort int            `json:"discussion_port"`
	WinnerPort     int            `json:"winner_port"`
}
