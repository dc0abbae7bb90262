// Package analytics holds the pure numeric routines behind the wildfire
// analytics jobs: density clustering, principal components, ARIMA
// forecasting and regional risk scoring. Nothing here touches storage.
package analytics

import (
	"errors"
	"fmt"
	"math"
)

// Noise is the DBSCAN label of points that belong to no cluster.
const Noise = -1

const unvisited = -2

var ErrInvalidInput = errors.New("invalid analytics input")

// DBSCAN assigns each point a cluster label (0, 1, ...) or Noise.
// A point is a core point when at least minSamples points, itself included,
// lie within eps (euclidean distance, inclusive).
func DBSCAN(points [][2]float64, eps float64, minSamples int) ([]int, error) {
	if eps <= 0 || math.IsNaN(eps) {
		return nil, fmt.Errorf("%w: eps must be positive, got %v", ErrInvalidInput, eps)
	}
	if minSamples < 1 {
		return nil, fmt.Errorf("%w: min_samples must be >= 1, got %d", ErrInvalidInput, minSamples)
	}
	for i, p := range points {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrInvalidInput, i)
		}
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	eps2 := eps * eps
	region := func(i int) []int {
		var out []int
		for j, q := range points {
			dx := points[i][0] - q[0]
			dy := points[i][1] - q[1]
			if dx*dx+dy*dy <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbours := region(i)
		if len(neighbours) < minSamples {
			labels[i] = Noise
			continue
		}

		labels[i] = cluster
		queue := neighbours
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == Noise {
				// border point
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if jn := region(j); len(jn) >= minSamples {
				queue = append(queue, jn...)
			}
		}
		cluster++
	}

	return labels, nil
}

// ClusterCounts returns the number of clusters and noise points in labels.
func ClusterCounts(labels []int) (clusters, noise int) {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l == Noise {
			noise++
			continue
		}
		seen[l] = struct{}{}
	}
	return len(seen), noise
}
