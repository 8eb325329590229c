package types

import (
	"math"
	"time"
)

// RunResult is the outcome of supervision.
type RunResult struct {
	Elapsed    time.Duration             `json:"elapsed"`
	Containers map[string]WorkerInstance `json:"containers"`
	Error      error                     `json:"-"`
}

// ErrorMessage returns the error text or an empty string.
func (r *RunResult) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// Failed reports whether the run aborted.
func (r *RunResult) Failed() bool {
	return r != nil && r.Error != nil
}

// Category names used for scores and findings.
const (
	CategoryQuality     = "quality"
	CategoryPerformance = "performance"
	CategoryBrowser     = "browser"
	CategoryAPI         = "api"
)

// Categories lists the validation categories in report order.
var Categories = []string{CategoryQuality, CategoryPerformance, CategoryBrowser, CategoryAPI}

// ScoreWeights are the category weights of the weighted score.
type ScoreWeights struct {
	Quality     float64 `json:"quality" yaml:"quality"`
	Performance float64 `json:"performance" yaml:"performance"`
	Browser     float64 `json:"browser" yaml:"browser"`
	API         float64 `json:"api" yaml:"api"`
}

// DefaultScoreWeights returns the fixed 30/25/25/20 split.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Quality: 0.30, Performance: 0.25, Browser: 0.25, API: 0.20}
}

// CategoryScores holds one score per validation category.
type CategoryScores struct {
	Quality     float64 `json:"quality"`
	Performance float64 `json:"performance"`
	Browser     float64 `json:"browser"`
	API         float64 `json:"api"`
}

// ClampScore bounds v to [0,100]. NaN maps to 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Clamped returns a copy with every score bounded to [0,100].
func (s CategoryScores) Clamped() CategoryScores {
	return CategoryScores{
		Quality:     ClampScore(s.Quality),
		Performance: ClampScore(s.Performance),
		Browser:     ClampScore(s.Browser),
		API:         ClampScore(s.API),
	}
}

// Mean is the arithmetic mean of the four categories.
func (s CategoryScores) Mean() float64 {
	return (s.Quality + s.Performance + s.Browser + s.API) / 4
}

// Weighted applies w. Weights that do not sum to a positive value fall back
// to the mean.
func (s CategoryScores) Weighted(w ScoreWeights) float64 {
	total := w.Quality + w.Performance + w.Browser + w.API
	if total <= 0 {
		return s.Mean()
	}
	sum := s.Quality*w.Quality + s.Performance*w.Performance + s.Browser*w.Browser + s.API*w.API
	return sum / total
}

// Get returns the score of a category by name.
func (s CategoryScores) Get(category string) float64 {
	switch category {
	case CategoryQuality:
		return s.Quality
	case CategoryPerformance:
		return s.Performance
	case CategoryBrowser:
		return s.Browser
	case CategoryAPI:
		return s.API
	}
	return 0
}

// Set assigns the score of a category by name.
func (s *CategoryScores) Set(category string, v float64) {
	switch category {
	case CategoryQuality:
		s.Quality = v
	case CategoryPerformance:
		s.Performance = v
	case CategoryBrowser:
		s.Browser = v
	case CategoryAPI:
		s.API = v
	}
}

// AssessmentReport is the per-worker result of validation and assessment.
type AssessmentReport struct {
	WorkerID string              `json:"worker_id"`
	Scores   CategoryScores      `json:"scores"`
	Overall  float64             `json:"overall"`
	Weighted float64             `json:"weighted"`
	Findings map[string][]string `json:"findings"`
	Stages   map[string]string   `json:"stages,omitempty"`
}

// NewAssessmentReport clamps the scores and derives the overall and weighted
// scores from them.
func NewAssessmentReport(workerID string, scores CategoryScores, findings map[string][]string, w ScoreWeights) *AssessmentReport {
	clamped := scores.Clamped()
	if findings == nil {
		findings = make(map[string][]string)
	}
	return &AssessmentReport{
		WorkerID: workerID,
		Scores:   clamped,
		Overall:  clamped.Mean(),
		Weighted: clamped.Weighted(w),
		Findings: findings,
		Stages:   make(map[string]string),
	}
}

// EvaluationSynthesis is the final verdict of a run.
type EvaluationSynthesis struct {
	Winner          string      `json:"winner"`
	WinnerDefaulted bool        `json:"winner_defaulted"`
	Improvements    []string    `json:"improvements"`
	Hosting         HostingPlan `json:"hosting"`
	Narrative       string      `json:"narrative"`
}
