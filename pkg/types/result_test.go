package types

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallIsArithmeticMean(t *testing.T) {
	r := NewAssessmentReport("worker-1", CategoryScores{Quality: 80, Performance: 60, Browser: 100, API: 40}, nil, DefaultScoreWeights())
	assert.Equal(t, 70.0, r.Overall)
	assert.InDelta(t, 0.30*80+0.25*60+0.25*100+0.20*40, r.Weighted, 1e-9)
	require.NotNil(t, r.Findings)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-5))
	assert.Equal(t, 100.0, ClampScore(140))
	assert.Equal(t, 0.0, ClampScore(math.NaN()))
	assert.Equal(t, 42.5, ClampScore(42.5))
}

func TestWeightedFallsBackToMean(t *testing.T) {
	s := CategoryScores{Quality: 10, Performance: 20, Browser: 30, API: 40}
	assert.Equal(t, s.Mean(), s.Weighted(ScoreWeights{}))
}

func TestAssessmentScoresBoundedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	score := gen.Float64Range(-500, 500)
	properties.Property("scores clamp to [0,100] and overall is their mean", prop.ForAll(
		func(q, p, b, a float64) bool {
			r := NewAssessmentReport("w", CategoryScores{Quality: q, Performance: p, Browser: b, API: a}, nil, DefaultScoreWeights())
			for _, c := range Categories {
				v := r.Scores.Get(c)
				if v < 0 || v > 100 {
					return false
				}
			}
			mean := (r.Scores.Quality + r.Scores.Performance + r.Scores.Browser + r.Scores.API) / 4
			return math.Abs(r.Overall-mean) < 1e-9 && r.Overall >= 0 && r.Overall <= 100
		},
		score, score, score, score,
	))

	properties.TestingRun(t)
}
