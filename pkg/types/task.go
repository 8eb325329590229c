package types

import (
	"strings"
	"time"
)

// Task is the immutable input of one orchestrator invocation.
type Task struct {
	Prompt                    string   `json:"prompt" yaml:"prompt"`
	Tier                      string   `json:"tier" yaml:"tier"`
	MaxExecutionSeconds       int      `json:"max_execution_seconds" yaml:"max_execution_seconds"`
	PartialAssessmentInterval int      `json:"partial_assessment_interval" yaml:"partial_assessment_interval"`
	Technologies              []string `json:"technologies" yaml:"technologies"`
}

// MaxExecution returns the wall-clock budget of the run.
func (t Task) MaxExecution() time.Duration {
	return time.Duration(t.MaxExecutionSeconds) * time.Second
}

// PartialInterval returns the interval at which workers self-assess.
func (t Task) PartialInterval() time.Duration {
	return time.Duration(t.PartialAssessmentInterval) * time.Second
}

// TechnologyList returns the technologies joined for prompts and env vars.
func (t Task) TechnologyList() string {
	return strings.Join(t.Technologies, ", ")
}

// WithTechnologies returns a copy of the task carrying its own technology slice.
func (t Task) WithTechnologies(techs []string) Task {
	t.Technologies = append([]string(nil), techs...)
	return t
}
