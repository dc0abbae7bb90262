package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

const DefaultBatchSize = 500

// PartialWriteError reports a write that stopped after some batches were
// stored. Retrying the whole job may duplicate the first Written rows.
type PartialWriteError struct {
	Table   string
	Written int
	Total   int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write to %s: %d of %d rows stored: %v", e.Table, e.Written, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

type AnalysisWriter interface {
	InsertAnalysisResults(ctx context.Context, rows []domain.AnalysisResult) error
}

type RiskWriter interface {
	InsertAssessments(ctx context.Context, rows []domain.RiskAssessment) error
}

// ResultStore fans analytic output out to the operational store (analysis
// rows) and the historical store (risk rows), in batches.
type ResultStore struct {
	analysis  AnalysisWriter
	risk      RiskWriter
	batchSize int
	logger    *zap.Logger
}

func NewResultStore(analysis AnalysisWriter, risk RiskWriter, batchSize int, logger *zap.Logger) *ResultStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ResultStore{
		analysis:  analysis,
		risk:      risk,
		batchSize: batchSize,
		logger:    logger.Named("result-store"),
	}
}

func (s *ResultStore) AppendAnalysis(ctx context.Context, rows []domain.AnalysisResult) error {
	return appendBatches(ctx, s, "analysis_results", rows, s.analysis.InsertAnalysisResults)
}

func (s *ResultStore) AppendRisk(ctx context.Context, rows []domain.RiskAssessment) error {
	return appendBatches(ctx, s, "risk_assessments", rows, s.risk.InsertAssessments)
}

func appendBatches[T any](ctx context.Context, s *ResultStore, table string, rows []T, insert func(context.Context, []T) error) error {
	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		if err := insert(ctx, rows[start:end]); err != nil {
			s.logger.Warn("Batch write failed",
				zap.String("table", table),
				zap.Int("written", written),
				zap.Int("total", len(rows)),
				zap.Error(err))
			return &PartialWriteError{Table: table, Written: written, Total: len(rows), Err: err}
		}
		written = end
	}

	s.logger.Debug("Rows appended", zap.String("table", table), zap.Int("rows", written))
	return nil
}
