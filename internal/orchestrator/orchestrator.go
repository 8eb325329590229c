// Package orchestrator wires the run pipeline: decompose, verify
// capabilities, provision, supervise, validate, assess, publish and
// summarize. Every stage receives the run context explicitly.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/arena/internal/assessment"
	"yqhp/arena/internal/catalog"
	"yqhp/arena/internal/coordination"
	"yqhp/arena/internal/decompose"
	"yqhp/arena/internal/deploy"
	"yqhp/arena/internal/health"
	"yqhp/arena/internal/history"
	"yqhp/arena/internal/provision"
	"yqhp/arena/internal/reasoning"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/internal/summary"
	"yqhp/arena/internal/supervisor"
	"yqhp/arena/internal/validation"
	"yqhp/arena/internal/workspace"
	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Publisher publishes candidates after assessment.
type Publisher interface {
	Publish(ctx context.Context, in deploy.Input) *deploy.Publication
}

// HistoryStore records finished runs.
type HistoryStore interface {
	Save(ctx context.Context, r history.Record) error
}

// Deps are the collaborators of a run. Nil optional fields disable their
// stage: Publisher, History and Signals.
type Deps struct {
	Reasoning    reasoning.Service
	Runtime      runtime.ContainerRuntime
	Prober       health.Prober
	Signals      coordination.Reader
	Harness      validation.Harness
	Publisher    Publisher
	History      HistoryStore
	Availability catalog.AvailabilitySet
	Clock        clockwork.Clock
}

// Options are the non-collaborator settings of the orchestrator.
type Options struct {
	WorkspaceRoot string
	// WorkerBudget caps the roster; zero selects the full tier roster.
	WorkerBudget int
	// PlannerCapability and ReviewerCapability are passed to the reasoning
	// service for decomposition and assessment.
	PlannerCapability  string
	ReviewerCapability string
	Provision          provision.Config
	Supervisor         supervisor.Config
	Monitor            supervisor.MonitorConfig
}

// Orchestrator runs tasks one at a time.
type Orchestrator struct {
	opts Options
	deps Deps
	log  *zap.Logger
}

// New creates an orchestrator. Missing required collaborators get their
// no-op implementations.
func New(opts Options, deps Deps, log *zap.Logger) *Orchestrator {
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = ".arena/run"
	}
	if deps.Reasoning == nil {
		deps.Reasoning = reasoning.Unavailable{}
	}
	if deps.Runtime == nil {
		deps.Runtime = runtime.Absent{}
	}
	if deps.Prober == nil {
		deps.Prober = health.NewClient(opts.Monitor.TickTimeout)
	}
	if deps.Harness == nil {
		deps.Harness = validation.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Orchestrator{opts: opts, deps: deps, log: logger.Or(log, "orchestrator")}
}

// ValidateTask checks task against the catalog and the configured budget.
func (o *Orchestrator) ValidateTask(task types.Task) error {
	if strings.TrimSpace(task.Prompt) == "" {
		return configErr("prompt", "must not be empty")
	}
	if _, err := catalog.Lookup(task.Tier); err != nil {
		return configErr("tier", "%v", err)
	}
	if task.MaxExecutionSeconds <= 0 {
		return configErr("max_execution_seconds", "must be positive, got %d", task.MaxExecutionSeconds)
	}
	if task.PartialAssessmentInterval < 0 {
		return configErr("partial_assessment_interval", "must not be negative, got %d", task.PartialAssessmentInterval)
	}
	if task.PartialAssessmentInterval > task.MaxExecutionSeconds {
		return configErr("partial_assessment_interval", "%ds exceeds the execution budget of %ds",
			task.PartialAssessmentInterval, task.MaxExecutionSeconds)
	}
	if o.opts.WorkerBudget < 0 {
		return configErr("workers", "budget must be at least 1, got %d", o.opts.WorkerBudget)
	}
	return nil
}

// Run executes task end to end. A ConfigurationError is returned alone,
// before any side effect. A deployment failure returns a complete Report
// together with the error. Every other failure is absorbed into the report.
func (o *Orchestrator) Run(ctx context.Context, task types.Task) (*Report, error) {
	if err := o.ValidateTask(task); err != nil {
		return nil, err
	}
	tier, _ := catalog.Lookup(task.Tier)
	task.Tier = tier.Name

	rc := types.NewRunContext(uuid.NewString(), task, o.deps.Clock.Now())
	specs := tier.Select(o.opts.WorkerBudget)
	rc.Roster = catalog.RosterIDs(len(specs))
	log := o.log.With(zap.String("run", rc.RunID))
	log.Info("run started",
		zap.String("tier", tier.Name),
		zap.Int("workers", len(specs)),
		zap.Duration("budget", task.MaxExecution()))

	ws := workspace.NewManager(o.opts.WorkspaceRoot, log)
	rc.Workspace = ws.Layout().Root

	// Decompose and verify.
	rc.Decomposition = decompose.New(o.deps.Reasoning, o.opts.PlannerCapability, log).Decompose(ctx, task, rc.Roster)
	if rc.Decomposition.Source == types.DecompositionFromFallback {
		rc.Note("decomposition fell back to the canned plan")
	}
	rc.Resolved = catalog.NewVerifier(o.deps.Availability, log).VerifyAll(specs)
	for i, rw := range rc.Resolved {
		if rw.Degraded() {
			rc.Note(fmt.Sprintf("%s runs %s (%s) instead of %s", rc.Roster[i], rw.Capability, rw.Source, rw.Spec.Capability))
		}
	}

	// Provision.
	prov := provision.New(o.opts.Provision, ws.Layout(), log)
	if _, err := prov.Build(task, rc.Roster, rc.Resolved, rc.Decomposition); err != nil {
		return nil, configErr("ports", "%v", err)
	}
	if err := ws.Reset(rc.Roster); err != nil {
		return o.abort(ctx, rc, ws, fmt.Errorf("%w: reset workspace: %w", supervisor.ErrDeploymentFailed, err))
	}
	plan, err := prov.Provision(task, rc.Roster, rc.Resolved, rc.Decomposition)
	if err != nil {
		return o.abort(ctx, rc, ws, fmt.Errorf("%w: provision: %w", supervisor.ErrDeploymentFailed, err))
	}
	rc.Workers = plan.Instances(rc.Resolved)

	// Deploy, monitor and validate while workers are live.
	monitor := supervisor.NewMonitor(o.opts.Monitor, o.deps.Runtime, o.deps.Prober, o.deps.Signals, o.deps.Clock, log)
	sup := supervisor.New(o.opts.Supervisor, o.deps.Runtime, ws, monitor, o.deps.Clock, log)
	rc, result := sup.Execute(ctx, rc, plan, o.validate(ws.Layout()))

	report := o.newReport(rc, result, ws)
	if result.Failed() {
		report.Status = StatusFailed
		report.Error = result.ErrorMessage()
		o.finish(ctx, report, ws, result.Error)
		log.Error("run failed", zap.Error(result.Error))
		return report, result.Error
	}

	// Assess.
	out := assessment.New(o.deps.Reasoning, o.opts.ReviewerCapability, log).Assess(ctx, assessment.Input{
		Task:          task,
		Decomposition: rc.Decomposition,
		Result:        result,
		Reports:       rc.Reports,
		WorkerIDs:     rc.WorkerIDs(),
	})
	rc.Synthesis = out.Synthesis
	for _, stage := range out.Failed {
		rc.Note(fmt.Sprintf("assessment stage %s unavailable", stage))
	}
	report.Synthesis = out.Synthesis
	report.Stages = out.Stages

	// Publish.
	if o.deps.Publisher != nil {
		pub := o.deps.Publisher.Publish(ctx, deploy.Input{
			Layout:     ws.Layout(),
			Hosting:    rc.Decomposition.HostingPlan(),
			Comparison: deploy.NewComparison(rc),
		})
		report.Publication = pub
		report.Endpoints = pub.Endpoints
		for _, e := range pub.Failed() {
			rc.Note(fmt.Sprintf("%s %s not published: %s", e.Role, e.WorkerID, e.Error))
		}
	}

	report.Status = StatusCompleted
	o.finish(ctx, report, ws, nil)
	log.Info("run finished",
		zap.String("winner", out.Synthesis.Winner),
		zap.Bool("defaulted", out.Synthesis.WinnerDefaulted),
		zap.Duration("elapsed", result.Elapsed))
	return report, nil
}

// validate returns the hook that runs the harness against live workers.
func (o *Orchestrator) validate(layout workspace.Layout) supervisor.LiveHook {
	host := o.opts.Monitor.Host
	if host == "" {
		host = supervisor.DefaultMonitorConfig().Host
	}
	return func(ctx context.Context, rc *types.RunContext, _ *types.RunResult) {
		var targets []validation.Target
		for _, id := range rc.WorkerIDs() {
			w := rc.Workers[id]
			targets = append(targets, validation.Target{
				WorkerID:  id,
				Addr:      fmt.Sprintf("%s:%d", host, w.Port),
				Workspace: layout.WorkerDir(id),
				Status:    w.Status,
			})
		}
		for id, r := range o.deps.Harness.Validate(ctx, targets) {
			rc.Reports[id] = r
		}
	}
}

// abort ends a run that failed before deployment with the same shape as a
// deployment failure.
func (o *Orchestrator) abort(ctx context.Context, rc *types.RunContext, ws *workspace.Manager, err error) (*Report, error) {
	rc.Note(err.Error())
	result := &types.RunResult{
		Elapsed:    o.deps.Clock.Since(rc.StartedAt),
		Containers: map[string]types.WorkerInstance{},
		Error:      err,
	}
	report := o.newReport(rc, result, ws)
	report.Status = StatusFailed
	report.Error = err.Error()
	o.finish(ctx, report, ws, err)
	o.log.Error("run aborted", zap.String("run", rc.RunID), zap.Error(err))
	return report, err
}

func (o *Orchestrator) newReport(rc *types.RunContext, result *types.RunResult, ws *workspace.Manager) *Report {
	layout := ws.Layout()
	return &Report{
		RunID:     rc.RunID,
		StartedAt: rc.StartedAt,
		Task:      rc.Task,
		Roster:    rc.Resolved,
		Plan:      rc.Decomposition,
		Result:    result,
		Reports:   rc.Reports,
		Run:       rc,
		Artifacts: map[string]string{
			"workspace":     layout.Root,
			"descriptor":    layout.ComposeFile(),
			"decomposition": layout.DecompositionFile(),
			"report":        layout.ReportFile(),
			"logs":          layout.LogsDir(),
		},
	}
}

// finish writes report.json, renders the summary and records history. None
// of it can fail the run.
func (o *Orchestrator) finish(ctx context.Context, report *Report, ws *workspace.Manager, runErr error) {
	report.Notes = report.Run.Notes
	if err := ws.WriteJSON(ws.Layout().ReportFile(), report); err != nil {
		o.log.Warn("report not written", zap.Error(err))
		delete(report.Artifacts, "report")
	}

	report.Summary = summary.Render(summary.Input{
		Run:       report.Run,
		Result:    report.Result,
		Endpoints: report.Endpoints,
		Artifacts: report.Artifacts,
		Err:       runErr,
	})

	if o.deps.History == nil {
		return
	}
	rec := history.Record{
		ID:        report.RunID,
		StartedAt: report.StartedAt,
		Tier:      report.Task.Tier,
		Prompt:    report.Task.Prompt,
		Winner:    report.Winner(),
		Status:    report.Status,
		Elapsed:   report.Result.Elapsed,
		Error:     report.Error,
	}
	if data, err := marshalReport(report); err == nil {
		rec.Report = data
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.History.Save(hctx, rec); err != nil {
		o.log.Warn("history not saved", zap.Error(err))
	}
}

// IsConfigurationError reports whether err rejects the task itself.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
