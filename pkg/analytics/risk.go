package analytics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// RegionMetrics are the per-region aggregates the risk score is built from.
type RegionMetrics struct {
	FireCount float64
	AvgSize   float64
	MaxSize   float64
}

// RegionRisk is the scored form of one RegionMetrics entry.
type RegionRisk struct {
	Score            float64
	FrequencyTerm    float64
	AvgSizeTerm      float64
	MaxSizeTerm      float64
	HighFrequency    bool
	LargeAverageSize bool
	ExtremeEvents    bool
}

const (
	frequencyWeight = 0.4
	avgSizeWeight   = 0.3
	maxSizeWeight   = 0.3

	MaxRiskScore = 10.0
)

// ScoreRegions normalises each metric against its maximum across regions and
// combines them into a score on [0, 10]. Results are returned in input order.
//
// Factor flags compare a region to the cross-region median (count, average)
// and to the 90th percentile (maximum), strictly greater in each case.
func ScoreRegions(regions []RegionMetrics) ([]RegionRisk, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	counts := make([]float64, len(regions))
	avgs := make([]float64, len(regions))
	maxes := make([]float64, len(regions))
	for i, r := range regions {
		for _, v := range []float64{r.FireCount, r.AvgSize, r.MaxSize} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%w: region %d has invalid metric %v", ErrInvalidInput, i, v)
			}
		}
		counts[i], avgs[i], maxes[i] = r.FireCount, r.AvgSize, r.MaxSize
	}

	maxCount, maxAvg, maxMax := floats.Max(counts), floats.Max(avgs), floats.Max(maxes)
	medCount := Percentile(counts, 0.5)
	medAvg := Percentile(avgs, 0.5)
	p90Max := Percentile(maxes, 0.9)

	out := make([]RegionRisk, len(regions))
	for i, r := range regions {
		rr := RegionRisk{
			FrequencyTerm: MaxRiskScore * frequencyWeight * ratio(r.FireCount, maxCount),
			AvgSizeTerm:   MaxRiskScore * avgSizeWeight * ratio(r.AvgSize, maxAvg),
			MaxSizeTerm:   MaxRiskScore * maxSizeWeight * ratio(r.MaxSize, maxMax),

			HighFrequency:    r.FireCount > medCount,
			LargeAverageSize: r.AvgSize > medAvg,
			ExtremeEvents:    r.MaxSize > p90Max,
		}
		rr.Score = math.Min(MaxRiskScore, math.Max(0, rr.FrequencyTerm+rr.AvgSizeTerm+rr.MaxSizeTerm))
		out[i] = rr
	}
	return out, nil
}

// ratio is v/max with a zero maximum contributing nothing.
func ratio(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max
}

// Percentile returns the q-quantile of values using linear interpolation
// between closest ranks, h = (n-1)q. The input is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
