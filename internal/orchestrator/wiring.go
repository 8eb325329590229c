package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"yqhp/arena/internal/catalog"
	"yqhp/arena/internal/config"
	"yqhp/arena/internal/coordination"
	"yqhp/arena/internal/deploy"
	"yqhp/arena/internal/health"
	"yqhp/arena/internal/history"
	"yqhp/arena/internal/provision"
	"yqhp/arena/internal/reasoning"
	"yqhp/arena/internal/runtime"
	"yqhp/arena/internal/supervisor"
	"yqhp/arena/internal/validation"
	"yqhp/arena/pkg/types"
)

// Capability ids looked up in the reasoning model map for the orchestrator's
// own reasoning calls.
const (
	PlannerCapability  = "planner"
	ReviewerCapability = "reviewer"
)

// TaskFromConfig builds a task for prompt from the run defaults.
func TaskFromConfig(prompt string, run config.RunConfig) types.Task {
	return types.Task{
		Prompt:                    prompt,
		Tier:                      run.Tier,
		MaxExecutionSeconds:       int(run.MaxExecution / time.Second),
		PartialAssessmentInterval: int(run.PartialInterval / time.Second),
	}.WithTechnologies(run.Technologies)
}

// OptionsFromConfig maps configuration onto orchestrator options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		WorkspaceRoot: cfg.Run.WorkspaceRoot,
		WorkerBudget:  cfg.Run.Workers,
		Provision: provision.Config{
			Project:      cfg.Runtime.Project,
			Image:        cfg.Runtime.Image,
			BuildContext: cfg.Runtime.BuildContext,
			Coordination: provision.CoordinationConfig{
				ServiceName: cfg.Coordination.ServiceName,
				Image:       cfg.Coordination.Image,
				Port:        cfg.Coordination.Port,
			},
		},
		Supervisor: supervisor.Config{
			ReadyInterval: cfg.Runtime.ReadyInterval,
			ReadyMaxWait:  cfg.Runtime.ReadyMaxWait,
		},
		Monitor: supervisor.MonitorConfig{
			Interval:    cfg.Monitor.Interval,
			TickTimeout: cfg.Monitor.TickTimeout,
			Concurrency: cfg.Monitor.Concurrency,
			Host:        cfg.Monitor.Host,
		},
	}
	if _, ok := cfg.Reasoning.Models[PlannerCapability]; ok {
		opts.PlannerCapability = PlannerCapability
	}
	if _, ok := cfg.Reasoning.Models[ReviewerCapability]; ok {
		opts.ReviewerCapability = ReviewerCapability
	}
	return opts
}

// AvailabilityFromConfig builds the static capability set the verifier
// checks. run.available lists the capabilities that can be served; when it is
// empty the capability keys of reasoning.models are used. run.unavailable is
// removed from either. With no allow list at all only run.unavailable is
// denied and every other capability runs on the default model.
func AvailabilityFromConfig(cfg *config.Config) catalog.AvailabilitySet {
	allow := cfg.Run.Available
	if len(allow) == 0 {
		for capability := range cfg.Reasoning.Models {
			if capability != PlannerCapability && capability != ReviewerCapability {
				allow = append(allow, capability)
			}
		}
	}
	if len(allow) == 0 {
		return catalog.NewDenyList(cfg.Run.Unavailable...)
	}
	denied := catalog.NewDenyList(cfg.Run.Unavailable...)
	kept := make([]string, 0, len(allow))
	for _, capability := range allow {
		if denied.Available(capability) {
			kept = append(kept, capability)
		}
	}
	return catalog.NewAllowList(kept...)
}

// FromConfig builds an orchestrator with the real collaborators selected by
// cfg. The returned close function releases the coordination client and the
// history store.
func FromConfig(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Orchestrator, func() error, error) {
	deps := Deps{
		Reasoning: reasoning.New(cfg.Reasoning, log),
		Prober:    health.NewClient(cfg.Monitor.TickTimeout),
		Harness: validation.New(validation.Config{
			Concurrency:     cfg.Validation.Concurrency,
			CheckTimeout:    cfg.Validation.CheckTimeout,
			LoadRequests:    cfg.Validation.LoadRequests,
			LoadConcurrency: cfg.Validation.LoadConcurrency,
			APIPaths:        cfg.Validation.APIPaths,
			Scripts:         cfg.Validation.Scripts,
			Weights:         cfg.Validation.Weights,
		}, log),
	}
	var closers []func() error

	switch cfg.Runtime.Kind {
	case "compose":
		deps.Runtime = runtime.NewComposeRuntime(runtime.ComposeConfig{
			Project:        cfg.Runtime.Project,
			Build:          cfg.Runtime.BuildContext != "",
			CommandTimeout: cfg.Runtime.CommandTimeout,
		}, log)
	default:
		deps.Runtime = runtime.Absent{}
	}

	deps.Availability = AvailabilityFromConfig(cfg)

	if cfg.Coordination.Enabled && cfg.Coordination.Addr != "" {
		reader := coordination.NewRedisReader(coordination.Options{
			Addr:     cfg.Coordination.Addr,
			Password: cfg.Coordination.Password,
			DB:       cfg.Coordination.DB,
		})
		deps.Signals = reader
		closers = append(closers, reader.Close)
	}

	if cfg.Deploy.Enabled {
		deps.Publisher = deploy.NewPublisher(deploy.Config{Host: cfg.Deploy.Host}, log)
	}

	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, nil, err
		}
		deps.History = store
		closers = append(closers, store.Close)
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return New(OptionsFromConfig(cfg), deps, log), closeAll, nil
}
