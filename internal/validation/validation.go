// Package validation scores worker outputs with scripted, non-reasoning
// checks. Every check is normalized to 0-100 and the four categories are
// combined into an AssessmentReport.
package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Target is one worker under validation.
type Target struct {
	WorkerID string
	// Addr is host:port of the worker's published port.
	Addr string
	// Workspace is the worker's directory on the host.
	Workspace string
	Status    types.WorkerStatus
}

// Result is the outcome of one check.
type Result struct {
	Score    float64  `json:"score"`
	Findings []string `json:"findings"`
}

func (r *Result) addf(format string, args ...any) {
	r.Findings = append(r.Findings, fmt.Sprintf(format, args...))
}

// Check scores one category for one target. Implementations must not share
// mutable state across targets.
type Check interface {
	Category() string
	Run(ctx context.Context, t Target) Result
}

// Harness validates a set of workers.
type Harness interface {
	Validate(ctx context.Context, targets []Target) map[string]*types.AssessmentReport
}

// Config holds the harness configuration.
type Config struct {
	Concurrency     int
	CheckTimeout    time.Duration
	LoadRequests    int
	LoadConcurrency int
	APIPaths        []string
	// Scripts maps a category to an external command replacing the built-in check.
	Scripts map[string]string
	Weights types.ScoreWeights
}

// DefaultConfig returns the default harness configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		CheckTimeout:    30 * time.Second,
		LoadRequests:    200,
		LoadConcurrency: 8,
		APIPaths:        []string{"/health", "/api"},
		Weights:         types.DefaultScoreWeights(),
	}
}

// Suite is the default Harness: one Check per category.
type Suite struct {
	cfg    Config
	mu     sync.RWMutex
	checks map[string]Check
	log    *zap.Logger
}

// New creates a suite with the built-in checks, replaced by external scripts
// where configured.
func New(cfg Config, log *zap.Logger) *Suite {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	if cfg.LoadRequests <= 0 {
		cfg.LoadRequests = def.LoadRequests
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = def.LoadConcurrency
	}
	if len(cfg.APIPaths) == 0 {
		cfg.APIPaths = def.APIPaths
	}
	if cfg.Weights == (types.ScoreWeights{}) {
		cfg.Weights = def.Weights
	}

	s := &Suite{cfg: cfg, checks: make(map[string]Check), log: logger.Or(log, "validation")}
	s.WithCheck(NewQualityCheck())
	s.WithCheck(NewPerformanceCheck(cfg.LoadRequests, cfg.LoadConcurrency, cfg.CheckTimeout))
	s.WithCheck(NewBrowserCheck(cfg.CheckTimeout))
	s.WithCheck(NewAPICheck(cfg.APIPaths, cfg.CheckTimeout))
	for category, command := range cfg.Scripts {
		if command == "" {
			continue
		}
		s.WithCheck(NewScriptCheck(category, command))
	}
	return s
}

// WithCheck registers c for its category, replacing any previous check.
func (s *Suite) WithCheck(c Check) *Suite {
	s.mu.Lock()
	s.checks[c.Category()] = c
	s.mu.Unlock()
	return s
}

// Validate runs every category for every target. Targets are validated
// concurrently up to the configured limit; categories of one target run in
// order. The returned map has one report per target.
func (s *Suite) Validate(ctx context.Context, targets []Target) map[string]*types.AssessmentReport {
	reports := make([]*types.AssessmentReport, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			reports[i] = s.validateOne(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*types.AssessmentReport, len(targets))
	for i, t := range targets {
		out[t.WorkerID] = reports[i]
	}
	return out
}

func (s *Suite) validateOne(ctx context.Context, t Target) *types.AssessmentReport {
	var scores types.CategoryScores
	findings := make(map[string][]string, len(types.Categories))

	for _, category := range types.Categories {
		s.mu.RLock()
		check, ok := s.checks[category]
		s.mu.RUnlock()
		if !ok {
			findings[category] = []string{"no check configured"}
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
		start := time.Now()
		r := check.Run(cctx, t)
		cancel()

		scores.Set(category, types.ClampScore(r.Score))
		findings[category] = r.Findings
		s.log.Debug("check finished",
			zap.String("worker", t.WorkerID),
			zap.String("category", category),
			zap.Float64("score", r.Score),
			zap.Duration("took", time.Since(start)))
	}

	report := types.NewAssessmentReport(t.WorkerID, scores, findings, s.cfg.Weights)
	s.log.Info("worker validated",
		zap.String("worker", t.WorkerID),
		zap.Float64("overall", report.Overall),
		zap.Float64("weighted", report.Weighted))
	return report
}

// Noop scores every category zero. It satisfies Harness where validation is
// disabled.
type Noop struct{}

// Validate implements Harness.
func (Noop) Validate(_ context.Context, targets []Target) map[string]*types.AssessmentReport {
	out := make(map[string]*types.AssessmentReport, len(targets))
	for _, t := range targets {
		out[t.WorkerID] = types.NewAssessmentReport(t.WorkerID, types.CategoryScores{}, map[string][]string{
			types.CategoryQuality: {"validation disabled"},
		}, types.DefaultScoreWeights())
	}
	return out
}
