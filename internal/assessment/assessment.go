// Package assessment runs the sequential reasoning stages that turn a run
// result and its validation reports into an EvaluationSynthesis.
package assessment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"yqhp/arena/internal/reasoning"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Stage names, in execution order.
const (
	StageAnalysis  = "analysis"
	StageDebug     = "debug"
	StageReview    = "review"
	StageSynthesis = "synthesis"
)

// Stages lists the reasoning stages in order.
var Stages = []string{StageAnalysis, StageDebug, StageReview, StageSynthesis}

// Input is everything the pipeline reads.
type Input struct {
	Task          types.Task
	Decomposition *types.Decomposition
	Result        *types.RunResult
	Reports       map[string]*types.AssessmentReport
	// WorkerIDs are the provisioned ids in roster order. The first is the
	// default winner.
	WorkerIDs []string
}

// Outcome is the pipeline output.
type Outcome struct {
	// Stages holds each stage's text or its placeholder.
	Stages    map[string]string
	Failed    []string
	Synthesis *types.EvaluationSynthesis
}

// Pipeline runs the stages against a reasoning service.
type Pipeline struct {
	svc        reasoning.Service
	capability string
	log        *zap.Logger
}

// New creates a pipeline.
func New(svc reasoning.Service, capability string, log *zap.Logger) *Pipeline {
	if svc == nil {
		svc = reasoning.Unavailable{}
	}
	return &Pipeline{svc: svc, capability: capability, log: logger.Or(log, "assessment")}
}

// Placeholder is the text substituted for a failed stage.
func Placeholder(stage string, err error) string {
	return fmt.Sprintf("[%s unavailable: %v]", stage, err)
}

// Assess runs analysis, debug, review and synthesis in order. Each prompt
// embeds the previous stage's output. A failed stage is replaced by its
// placeholder and the pipeline continues; the synthesis is always usable.
func (p *Pipeline) Assess(ctx context.Context, in Input) *Outcome {
	out := &Outcome{Stages: make(map[string]string, len(Stages))}
	summary := describeWorkers(in)

	prev := ""
	for _, stage := range Stages {
		prompt := buildPrompt(stage, in, summary, prev, out.Stages)
		text, err := p.svc.Reason(ctx, prompt, p.capability)
		if err != nil {
			p.log.Warn("assessment stage failed", zap.String("stage", stage), zap.Error(err))
			text = Placeholder(stage, err)
			out.Failed = append(out.Failed, stage)
		} else {
			p.log.Info("assessment stage finished", zap.String("stage", stage), zap.Int("chars", len(text)))
		}
		out.Stages[stage] = text
		prev = text
	}

	out.Synthesis = Synthesize(out.Stages[StageSynthesis], in)
	if len(out.Failed) == len(Stages) {
		out.Synthesis.Narrative = ""
	}

	for id, report := range in.Reports {
		if report == nil {
			continue
		}
		if report.Stages == nil {
			report.Stages = make(map[string]string, len(out.Stages))
		}
		for stage, text := range out.Stages {
			report.Stages[stage] = excerptFor(text, id)
		}
	}
	return out
}

// Synthesize builds the EvaluationSynthesis from synthesis text. Unusable
// text yields the default winner and no improvements.
func Synthesize(text string, in Input) *types.EvaluationSynthesis {
	syn := &types.EvaluationSynthesis{Narrative: text}
	if in.Decomposition != nil {
		syn.Hosting = in.Decomposition.HostingPlan()
	}
	if isPlaceholder(text) {
		text = ""
	}
	syn.Winner, syn.WinnerDefaulted = ExtractWinner(text, in.WorkerIDs)
	syn.Improvements = ExtractImprovements(text)
	return syn
}

func isPlaceholder(text string) bool {
	return strings.HasPrefix(text, "[") && strings.Contains(text, " unavailable: ")
}

func buildPrompt(stage string, in Input, workers, prev string, done map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", in.Task.Prompt)
	sb.WriteString(workers)
	sb.WriteString("\n")

	switch stage {
	case StageAnalysis:
		sb.WriteString("Analyze the architecture and maintainability of each worker's implementation. ")
		sb.WriteString("Refer to workers by id.\n")
	case StageDebug:
		fmt.Fprintf(&sb, "Previous analysis:\n%s\n\n", prev)
		sb.WriteString("Failing validation findings:\n")
		sb.WriteString(failingFindings(in))
		sb.WriteString("\nIdentify the root causes of the failing checks for each worker.\n")
	case StageReview:
		fmt.Fprintf(&sb, "Debugging notes:\n%s\n\n", prev)
		sb.WriteString("Give a quality verdict for each worker.\n")
	case StageSynthesis:
		for _, s := range []string{StageAnalysis, StageDebug, StageReview} {
			fmt.Fprintf(&sb, "%s:\n%s\n\n", strings.ToUpper(s[:1])+s[1:], done[s])
		}
		if in.Decomposition != nil {
			plan := in.Decomposition.HostingPlan()
			fmt.Fprintf(&sb, "Hosting: discussion on %d, winner on %d.\n", plan.DiscussionPort, plan.WinnerPort)
		}
		sb.WriteString("Name the single best worker by id in a sentence starting with \"Winner:\", ")
		sb.WriteString("then list numbered improvements under the heading \"Improvements\".\n")
	}
	return sb.String()
}

// describeWorkers renders raw metrics and validation scores per worker.
func describeWorkers(in Input) string {
	var sb strings.Builder
	sb.WriteString("Workers:\n")
	for _, id := range in.WorkerIDs {
		fmt.Fprintf(&sb, "- %s", id)
		if in.Result != nil {
			if w, ok := in.Result.Containers[id]; ok {
				fmt.Fprintf(&sb, " status=%s phase=%s lines+%d/-%d tests %d passed %d failed",
					w.Status, w.Phase, w.Metrics.LinesAdded, w.Metrics.LinesDeleted,
					w.Metrics.TestsPassed, w.Metrics.TestsFailed)
			}
		}
		if r := in.Reports[id]; r != nil {
			fmt.Fprintf(&sb, " scores quality=%.0f performance=%.0f browser=%.0f api=%.0f overall=%.1f",
				r.Scores.Quality, r.Scores.Performance, r.Scores.Browser, r.Scores.API, r.Overall)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func failingFindings(in Input) string {
	var sb strings.Builder
	for _, id := range in.WorkerIDs {
		r := in.Reports[id]
		if r == nil {
			continue
		}
		categories := make([]string, 0, len(r.Findings))
		for c := range r.Findings {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			if r.Scores.Get(c) >= 100 {
				continue
			}
			for _, f := range r.Findings[c] {
				fmt.Fprintf(&sb, "- %s [%s] %s\n", id, c, f)
			}
		}
	}
	if sb.Len() == 0 {
		return "- none\n"
	}
	return sb.String()
}

// excerptFor keeps the sentences of text that mention id, or all of it when
// none do.
func excerptFor(text, id string) string {
	var kept []string
	for _, s := range sentences(text) {
		if mentions(s, id) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, " ")
}
