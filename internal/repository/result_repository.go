package repository

import (
	"context"
	"fmt"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"wildfire-analytics/internal/domain"
)

// AnalysisRepository appends to and reads the analysis_results table.
type AnalysisRepository interface {
	InsertAnalysisResults(ctx context.Context, rows []domain.AnalysisResult) error
	ListAnalysisResults(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]domain.AnalysisResult, error)
}

type rethinkAnalysisRepository struct {
	session r.QueryExecutor
	table   string
}

func NewAnalysisRepository(session r.QueryExecutor, table string) AnalysisRepository {
	return &rethinkAnalysisRepository{
		session: session,
		table:   table,
	}
}

func (repo *rethinkAnalysisRepository) InsertAnalysisResults(ctx context.Context, rows []domain.AnalysisResult) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}

	result, err := r.Table(repo.table).Insert(rows).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to insert analysis results: %w", err)
	}
	if result.Inserted != len(rows) {
		return fmt.Errorf("inserted %d of %d analysis results", result.Inserted, len(rows))
	}
	return nil
}

// ListAnalysisResults returns the newest rows of one analysis type.
func (repo *rethinkAnalysisRepository) ListAnalysisResults(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]domain.AnalysisResult, error) {
	cursor, err := r.Table(repo.table).
		Filter(map[string]interface{}{"analysis_type": analysisType}).
		OrderBy(r.Desc("created_at")).
		Limit(limit).
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis results: %w", err)
	}
	defer cursor.Close()

	results := []domain.AnalysisResult{}
	if err := cursor.All(&results); err != nil {
		return nil, fmt.Errorf("failed to decode analysis results: %w", err)
	}

	return results, nil
}
