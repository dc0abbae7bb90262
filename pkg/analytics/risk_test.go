package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreRegions_TwoRegions(t *testing.T) {
	risks, err := ScoreRegions([]RegionMetrics{
		{FireCount: 10, AvgSize: 50, MaxSize: 200},
		{FireCount: 2, AvgSize: 10, MaxSize: 20},
	})
	require.NoError(t, err)
	require.Len(t, risks, 2)

	a, b := risks[0], risks[1]
	assert.Equal(t, 10.0, a.Score)
	assert.Equal(t, 4.0, a.FrequencyTerm)
	assert.True(t, a.HighFrequency)
	assert.True(t, a.LargeAverageSize)
	assert.True(t, a.ExtremeEvents)

	// 4*0.2 + 3*0.2 + 3*0.1
	assert.InDelta(t, 1.7, b.Score, 1e-9)
	assert.False(t, b.HighFrequency)
	assert.False(t, b.LargeAverageSize)
	assert.False(t, b.ExtremeEvents)
}

func TestScoreRegions_Bounds(t *testing.T) {
	regions := []RegionMetrics{
		{FireCount: 1, AvgSize: 0.1, MaxSize: 0.1},
		{FireCount: 7, AvgSize: 300, MaxSize: 9000},
		{FireCount: 3, AvgSize: 12, MaxSize: 40},
		{FireCount: 7, AvgSize: 1, MaxSize: 2},
	}
	risks, err := ScoreRegions(regions)
	require.NoError(t, err)

	for _, r := range risks {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, MaxRiskScore)
	}
	assert.Equal(t, 4.0, risks[1].FrequencyTerm)
	assert.Equal(t, 4.0, risks[3].FrequencyTerm)
}

func TestScoreRegions_ZeroMaximum(t *testing.T) {
	risks, err := ScoreRegions([]RegionMetrics{
		{FireCount: 3, AvgSize: 0, MaxSize: 0},
		{FireCount: 1, AvgSize: 0, MaxSize: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, risks[0].Score)
	assert.Zero(t, risks[0].AvgSizeTerm)
	assert.Zero(t, risks[0].MaxSizeTerm)
}

func TestScoreRegions_Empty(t *testing.T) {
	risks, err := ScoreRegions(nil)
	assert.NoError(t, err)
	assert.Empty(t, risks)
}

func TestPercentile(t *testing.T) {
	values := []float64{20, 200}
	assert.Equal(t, 110.0, Percentile(values, 0.5))
	assert.InDelta(t, 182.0, Percentile(values, 0.9), 1e-9)
	assert.Equal(t, 3.0, Percentile([]float64{5, 1, 3}, 0.5))
	assert.Equal(t, []float64{20, 200}, values)
}
