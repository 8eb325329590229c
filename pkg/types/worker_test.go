package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allStatuses = []WorkerStatus{WorkerStarting, WorkerRunning, WorkerCompleted, WorkerFailed, WorkerTimeout}

func TestWorkerStatusTransitions(t *testing.T) {
	assert.True(t, WorkerStarting.CanTransition(WorkerRunning))
	assert.True(t, WorkerRunning.CanTransition(WorkerCompleted))
	assert.True(t, WorkerRunning.CanTransition(WorkerFailed))
	assert.True(t, WorkerRunning.CanTransition(WorkerTimeout))
	assert.True(t, WorkerStarting.CanTransition(WorkerFailed))

	assert.False(t, WorkerRunning.CanTransition(WorkerStarting))
	assert.False(t, WorkerRunning.CanTransition(WorkerRunning))
	assert.False(t, WorkerCompleted.CanTransition(WorkerFailed))
	assert.False(t, WorkerTimeout.CanTransition(WorkerRunning))
	assert.False(t, WorkerStarting.CanTransition(WorkerStatus("bogus")))
}

func TestParseWorkerStatus(t *testing.T) {
	assert.Equal(t, WorkerCompleted, ParseWorkerStatus("done"))
	assert.Equal(t, WorkerFailed, ParseWorkerStatus("error"))
	assert.Equal(t, WorkerStarting, ParseWorkerStatus("initializing"))
	assert.Equal(t, WorkerRunning, ParseWorkerStatus("busy"))
}

// Any sequence of observed statuses folded through Advance never leaves a
// terminal state and never moves backwards.
func TestWorkerStatusAdvanceMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOf(rapid.SampledFrom(allStatuses)).Draw(t, "seq")
		cur := WorkerStarting
		for _, next := range seq {
			prev := cur
			cur = cur.Advance(next)
			if prev.IsTerminal() && cur != prev {
				t.Fatalf("left terminal state %s for %s", prev, cur)
			}
			if cur.rank() < prev.rank() {
				t.Fatalf("moved backwards %s -> %s", prev, cur)
			}
		}
	})
}

func TestWorkerPhaseAdvance(t *testing.T) {
	assert.Equal(t, PhaseCoding, PhaseAnalysis.Advance(PhaseCoding))
	assert.Equal(t, PhaseTesting, PhaseTesting.Advance(PhaseCoding))
	assert.Equal(t, PhaseAssessment, PhaseAssessment.Advance(WorkerPhase("unknown")))
	assert.Equal(t, PhaseAnalysis, WorkerPhase("").Advance(PhaseAnalysis))
}
