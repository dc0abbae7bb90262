package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
	"wildfire-analytics/pkg/analytics"
)

// Forecast fits ARIMA(2,1,2) to yearly incident counts and writes one row
// per forecast year.
func (a *Analytics) Forecast(ctx context.Context, args domain.Arguments) Outcome {
	periods := DefaultForecastPeriods
	if args.ForecastPeriods != nil {
		periods = *args.ForecastPeriods
	}

	counts, err := a.incidents.YearlyCounts(ctx)
	if err != nil {
		return Failed(err)
	}
	if len(counts) < MinForecastYears {
		return Insufficient(fmt.Sprintf("Need at least %d years of data for forecasting", MinForecastYears))
	}

	series := make([]float64, len(counts))
	for i, c := range counts {
		series[i] = float64(c.Count)
	}
	fc, err := analytics.FitForecast(series, analytics.DefaultOrder, periods, ForecastConfidence)
	if err != nil {
		return Failed(fmt.Errorf("forecast failed: %w", err))
	}

	lastYear := counts[len(counts)-1].Year
	modelParams := map[string]any{
		"order": fc.Order.Slice(),
		"aic":   fc.AIC,
		"bic":   fc.BIC,
	}
	createdAt := a.now().UTC()
	confidence := ForecastConfidence
	rows := make([]domain.AnalysisResult, periods)
	for i := range rows {
		value := fc.Values[i]
		rows[i] = domain.AnalysisResult{
			AnalysisType:    domain.AnalysisForecast,
			PredictionValue: &value,
			ConfidenceScore: &confidence,
			Metadata: map[string]any{
				"forecast_year": lastYear + i + 1,
				"lower_ci":      fc.Lower[i],
				"upper_ci":      fc.Upper[i],
				"model_params":  modelParams,
			},
			CreatedAt: createdAt,
		}
	}
	if err := a.results.AppendAnalysis(ctx, rows); err != nil {
		return Failed(err)
	}

	a.logger.Info("Forecast completed",
		zap.Int("years", len(counts)),
		zap.Int("periods", periods),
		zap.Float64("aic", fc.AIC))

	return Completed(map[string]any{
		"forecast_periods": periods,
		"model_aic":        fc.AIC,
		"forecast_values":  fc.Values,
	})
}
