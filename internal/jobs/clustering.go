package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
	"wildfire-analytics/pkg/analytics"
)

// Clustering labels every geolocated incident with its DBSCAN cluster.
func (a *Analytics) Clustering(ctx context.Context, args domain.Arguments) Outcome {
	eps := DefaultEps
	if args.Eps != nil {
		eps = *args.Eps
	}
	minSamples := DefaultMinSamples
	if args.MinSamples != nil {
		minSamples = *args.MinSamples
	}

	fires, err := a.incidents.ListIncidents(ctx, domain.IncidentFilter{RequireCoordinates: true}, 0, 0)
	if err != nil {
		return Failed(err)
	}
	if len(fires) < minSamples {
		return Insufficient("Not enough data points for clustering")
	}

	points := make([][2]float64, len(fires))
	for i, f := range fires {
		points[i] = [2]float64{*f.Latitude, *f.Longitude}
	}
	labels, err := analytics.DBSCAN(points, eps, minSamples)
	if err != nil {
		return Failed(fmt.Errorf("clustering failed: %w", err))
	}

	createdAt := a.now().UTC()
	rows := make([]domain.AnalysisResult, len(fires))
	for i, f := range fires {
		label := labels[i]
		rows[i] = domain.AnalysisResult{
			FireIncidentID: f.ID,
			AnalysisType:   domain.AnalysisDBSCAN,
			ClusterID:      &label,
			Metadata: map[string]any{
				"eps":             eps,
				"min_samples":     minSamples,
				"fire_size_acres": f.FireSizeAcres,
			},
			CreatedAt: createdAt,
		}
	}
	if err := a.results.AppendAnalysis(ctx, rows); err != nil {
		return Failed(err)
	}

	clusters, noise := analytics.ClusterCounts(labels)
	a.logger.Info("Clustering completed",
		zap.Int("points", len(fires)),
		zap.Int("clusters", clusters),
		zap.Int("noise", noise))

	return Completed(map[string]any{
		"n_clusters":     clusters,
		"n_noise_points": noise,
		"total_points":   len(fires),
	})
}
