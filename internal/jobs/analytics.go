package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

const (
	DefaultEps             = 0.5
	DefaultMinSamples      = 5
	DefaultForecastPeriods = 12

	MinPCARows         = 50
	MinForecastYears   = 10
	ForecastConfidence = 0.95
	RiskWindowYears    = 5
)

// IncidentReader is the read side of the operational store the jobs need.
type IncidentReader interface {
	ListIncidents(ctx context.Context, filter domain.IncidentFilter, offset, limit int) ([]domain.FireIncident, error)
	YearlyCounts(ctx context.Context) ([]domain.YearCount, error)
	RegionStats(ctx context.Context, filter domain.IncidentFilter) ([]domain.RegionStats, error)
}

// ResultWriter is the fan-out writer jobs hand their rows to.
type ResultWriter interface {
	AppendAnalysis(ctx context.Context, rows []domain.AnalysisResult) error
	AppendRisk(ctx context.Context, rows []domain.RiskAssessment) error
}

// Analytics owns the collaborators shared by the four jobs.
type Analytics struct {
	incidents IncidentReader
	results   ResultWriter
	logger    *zap.Logger
	now       func() time.Time
}

func New(incidents IncidentReader, results ResultWriter, logger *zap.Logger) *Analytics {
	return &Analytics{
		incidents: incidents,
		results:   results,
		logger:    logger.Named("jobs"),
		now:       time.Now,
	}
}

// Registry returns the closed job table used by the executor.
func (a *Analytics) Registry() Registry {
	return Registry{
		domain.JobClustering: a.Clustering,
		domain.JobPCA:        a.PCA,
		domain.JobForecast:   a.Forecast,
		domain.JobRisk:       a.Risk,
	}
}
