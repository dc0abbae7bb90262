package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
	"wildfire-analytics/pkg/analytics"
)

// Risk scores every (state, county) region with incidents in the trailing
// window, optionally limited to args.State.
func (a *Analytics) Risk(ctx context.Context, args domain.Arguments) Outcome {
	now := a.now().UTC()
	filter := domain.IncidentFilter{
		State:     args.State,
		SinceYear: now.Year() - RiskWindowYears,
	}

	regions, err := a.incidents.RegionStats(ctx, filter)
	if err != nil {
		return Failed(err)
	}
	if len(regions) == 0 {
		return Insufficient(fmt.Sprintf("No fire incidents since %d to assess", filter.SinceYear))
	}

	metrics := make([]analytics.RegionMetrics, len(regions))
	for i, r := range regions {
		metrics[i] = analytics.RegionMetrics{
			FireCount: float64(r.FireCount),
			AvgSize:   r.AvgSize,
			MaxSize:   r.MaxSize,
		}
	}
	scores, err := analytics.ScoreRegions(metrics)
	if err != nil {
		return Failed(fmt.Errorf("risk scoring failed: %w", err))
	}

	assessed := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	validUntil := assessed.AddDate(0, 0, domain.RiskValidityDays)
	rows := make([]domain.RiskAssessment, len(regions))
	highRisk := 0
	for i, r := range regions {
		s := scores[i]
		level := domain.RiskLevelForScore(s.Score)
		if level == domain.RiskHigh || level == domain.RiskExtreme {
			highRisk++
		}

		factors := []string{}
		if s.HighFrequency {
			factors = append(factors, domain.FactorHighFireFrequency)
		}
		if s.LargeAverageSize {
			factors = append(factors, domain.FactorLargeAverageSize)
		}
		if s.ExtremeEvents {
			factors = append(factors, domain.FactorExtremeFireEvents)
		}

		rows[i] = domain.RiskAssessment{
			RegionID:           domain.RegionID(r.State, r.County),
			State:              r.State,
			County:             r.County,
			RiskLevel:          level,
			RiskScore:          s.Score,
			PrimaryRiskFactors: factors,
			AssessmentDate:     assessed,
			ValidUntil:         validUntil,
			CreatedBy:          domain.RiskCreatedBy,
		}
	}
	if err := a.results.AppendRisk(ctx, rows); err != nil {
		return Failed(err)
	}

	a.logger.Info("Risk assessment completed",
		zap.String("state", args.State),
		zap.Int("regions", len(rows)),
		zap.Int("high_risk", highRisk))

	return Completed(map[string]any{
		"assessments_created": len(rows),
		"high_risk_counties":  highRisk,
	})
}
