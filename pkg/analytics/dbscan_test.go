package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blob(cx, cy float64) [][2]float64 {
	return [][2]float64{
		{cx, cy}, {cx + 0.1, cy}, {cx, cy + 0.1}, {cx - 0.1, cy}, {cx, cy - 0.1},
	}
}

func TestDBSCAN_TwoClustersAndNoise(t *testing.T) {
	points := append(blob(34.0, -118.0), blob(40.0, -120.0)...)
	points = append(points, [2]float64{45.0, -100.0})

	labels, err := DBSCAN(points, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, labels, len(points))

	for i := 1; i < 5; i++ {
		assert.Equal(t, labels[0], labels[i])
		assert.Equal(t, labels[5], labels[5+i])
	}
	assert.NotEqual(t, labels[0], labels[5])
	assert.Equal(t, Noise, labels[10])

	clusters, noise := ClusterCounts(labels)
	assert.Equal(t, 2, clusters)
	assert.Equal(t, 1, noise)
}

func TestDBSCAN_BorderPointJoinsCluster(t *testing.T) {
	points := blob(0, 0)
	// within eps of the edge point (0.1, 0) only
	points = append(points, [2]float64{0.55, 0})

	labels, err := DBSCAN(points, 0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[5])
}

func TestDBSCAN_AllNoiseWhenSparse(t *testing.T) {
	points := [][2]float64{{0, 0}, {10, 10}, {20, 20}}

	labels, err := DBSCAN(points, 0.5, 2)
	require.NoError(t, err)
	clusters, noise := ClusterCounts(labels)
	assert.Zero(t, clusters)
	assert.Equal(t, 3, noise)
}

func TestDBSCAN_InvalidInput(t *testing.T) {
	_, err := DBSCAN(blob(0, 0), 0, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = DBSCAN(blob(0, 0), 0.5, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
