package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
	"wildfire-analytics/pkg/analytics"
)

var pcaFeatures = []string{"latitude", "longitude", "fire_size_acres", "fire_year"}

// PCA projects standardised (latitude, longitude, size, year) features onto
// two principal components.
func (a *Analytics) PCA(ctx context.Context, _ domain.Arguments) Outcome {
	filter := domain.IncidentFilter{RequireCoordinates: true, RequireSize: true}
	fires, err := a.incidents.ListIncidents(ctx, filter, 0, 0)
	if err != nil {
		return Failed(err)
	}
	if len(fires) < MinPCARows {
		return Insufficient(fmt.Sprintf("Need at least %d data points for PCA", MinPCARows))
	}

	features := make([][]float64, len(fires))
	for i, f := range fires {
		features[i] = []float64{*f.Latitude, *f.Longitude, *f.FireSizeAcres, float64(f.FireYear)}
	}
	result, err := analytics.PCA(analytics.Standardize(features), 2)
	if err != nil {
		return Failed(fmt.Errorf("pca failed: %w", err))
	}

	importance := make(map[string]any, len(pcaFeatures))
	for j, name := range pcaFeatures {
		importance[name] = result.Components[0][j]
	}

	createdAt := a.now().UTC()
	rows := make([]domain.AnalysisResult, len(fires))
	for i, f := range fires {
		rows[i] = domain.AnalysisResult{
			FireIncidentID: f.ID,
			AnalysisType:   domain.AnalysisPCA,
			Metadata: map[string]any{
				"pc1":                      result.Scores[i][0],
				"pc2":                      result.Scores[i][1],
				"explained_variance_ratio": result.ExplainedVarianceRatio,
				"feature_importance":       importance,
			},
			CreatedAt: createdAt,
		}
	}
	if err := a.results.AppendAnalysis(ctx, rows); err != nil {
		return Failed(err)
	}

	a.logger.Info("PCA completed",
		zap.Int("points", len(fires)),
		zap.Float64s("explained_variance_ratio", result.ExplainedVarianceRatio))

	return Completed(map[string]any{
		"explained_variance_ratio": result.ExplainedVarianceRatio,
		"n_components":             2,
		"total_points":             len(fires),
	})
}
