// Package decompose turns a task prompt into a Decomposition. The reasoning
// service is asked once; its free-text answer is read with lossy heuristics
// and any failure yields a fully populated fallback.
package decompose

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"yqhp/arena/internal/reasoning"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Default ports of the hosting plan.
const (
	DiscussionPort = 3000
	WorkerBasePort = 3001
	WinnerPort     = 3100
)

// Decomposer produces decompositions.
type Decomposer struct {
	svc        reasoning.Service
	capability string
	log        *zap.Logger
}

// New creates a decomposer that asks svc with the given capability.
func New(svc reasoning.Service, capability string, log *zap.Logger) *Decomposer {
	if svc == nil {
		svc = reasoning.Unavailable{}
	}
	return &Decomposer{svc: svc, capability: capability, log: logger.Or(log, "decompose")}
}

// Decompose never fails: reasoning errors, timeouts and unusable answers all
// produce Fallback(task, roster).
func (d *Decomposer) Decompose(ctx context.Context, task types.Task, roster []string) *types.Decomposition {
	resp, err := d.svc.Reason(ctx, BuildPrompt(task, roster), d.capability)
	if err != nil {
		d.log.Warn("decomposition call failed, using fallback", zap.Error(err))
		return Fallback(task, roster)
	}

	dec, err := Parse(resp, task, roster)
	if err != nil {
		d.log.Warn("decomposition response unusable, using fallback", zap.Error(err))
		return Fallback(task, roster)
	}

	d.log.Info("task decomposed",
		zap.Int("subtasks", len(dec.Subtasks)),
		zap.String("complexity", string(dec.Complexity)))
	return dec
}

// BuildPrompt renders the structured decomposition instruction.
func BuildPrompt(task types.Task, roster []string) string {
	var sb strings.Builder
	sb.WriteString("Decompose the following development task for a competition between independent workers.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.Prompt)
	fmt.Fprintf(&sb, "Technologies: %s\n", orDefault(task.TechnologyList(), "unspecified"))
	fmt.Fprintf(&sb, "Workers: %s\n\n", strings.Join(roster, ", "))
	sb.WriteString(`Provide:
1. A numbered breakdown of subtasks.
2. The tests each implementation must pass (unit, integration, end-to-end).
3. Scaffolding recommendations per technology.
4. Evaluation criteria used to compare implementations.
5. A hosting strategy: every worker serves its result on its own port.
Also state whether the overall complexity is low, medium or high.`)
	return sb.String()
}

// Fallback returns the canned single-subtask decomposition.
func Fallback(task types.Task, roster []string) *types.Decomposition {
	techs := technologies(task)
	return &types.Decomposition{
		MainTask:     mainTask(task),
		Technologies: techs,
		Subtasks: []types.Subtask{{
			ID:                 "subtask-1",
			Description:        mainTask(task),
			TestSpecs:          append([]string(nil), baseTestSpecs...),
			AssignedWorkers:    append([]string(nil), roster...),
			Scaffolding:        ScaffoldingHints(techs),
			EvaluationCriteria: append([]string(nil), evaluationCriteria...),
		}},
		PortMap:    PortMap(roster),
		Complexity: types.ComplexityMedium,
		Source:     types.DecompositionFromFallback,
	}
}

// PortMap assigns one sequential port per worker plus the discussion and winner ports.
func PortMap(roster []string) map[string]int {
	ports := make(map[string]int, len(roster)+2)
	for i, id := range roster {
		ports[id] = WorkerBasePort + i
	}
	ports[types.PortKeyDiscussion] = DiscussionPort
	ports[types.PortKeyWinner] = WinnerPort
	return ports
}

func mainTask(task types.Task) string {
	if p := strings.TrimSpace(task.Prompt); p != "" {
		return p
	}
	return "Build the requested application"
}

func technologies(task types.Task) []string {
	if len(task.Technologies) == 0 {
		return []string{"html", "javascript"}
	}
	return append([]string(nil), task.Technologies...)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
