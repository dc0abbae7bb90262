package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardize(t *testing.T) {
	out := Standardize([][]float64{{1, 5}, {2, 5}, {3, 5}})

	require.Len(t, out, 3)
	assert.InDelta(t, -math.Sqrt(1.5), out[0][0], 1e-9)
	assert.InDelta(t, 0, out[1][0], 1e-9)
	assert.InDelta(t, math.Sqrt(1.5), out[2][0], 1e-9)
	for _, row := range out {
		assert.Zero(t, row[1])
	}
}

func TestPCA_CorrelatedFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	features := make([][]float64, 60)
	for i := range features {
		x := rng.NormFloat64()
		features[i] = []float64{x, 2 * x, rng.NormFloat64() * 0.01, 1990 + float64(i%20)}
	}

	res, err := PCA(Standardize(features), 2)
	require.NoError(t, err)

	require.Len(t, res.Scores, 60)
	require.Len(t, res.Components, 2)
	require.Len(t, res.ExplainedVarianceRatio, 2)
	for _, row := range res.Scores {
		require.Len(t, row, 2)
		assert.False(t, math.IsNaN(row[0]) || math.IsInf(row[0], 0))
		assert.False(t, math.IsNaN(row[1]) || math.IsInf(row[1], 0))
	}
	for _, c := range res.Components {
		assert.Len(t, c, 4)
	}
	assert.GreaterOrEqual(t, res.ExplainedVarianceRatio[0], res.ExplainedVarianceRatio[1])
	assert.LessOrEqual(t, res.ExplainedVarianceRatio[0]+res.ExplainedVarianceRatio[1], 1+1e-9)
}

func TestPCA_RejectsTooManyComponents(t *testing.T) {
	_, err := PCA([][]float64{{1, 2}, {3, 4}, {5, 7}}, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
