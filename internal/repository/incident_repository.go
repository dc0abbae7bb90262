package repository

import (
	"context"
	"fmt"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"wildfire-analytics/internal/domain"
)

// IncidentRepository reads and writes the operational fire_incidents table.
type IncidentRepository interface {
	CreateIncident(ctx context.Context, incident *domain.FireIncident) error
	// InsertIncidents bulk-loads incidents and returns how many were stored.
	InsertIncidents(ctx context.Context, incidents []domain.FireIncident) (int, error)
	// ListIncidents returns incidents in id order; limit <= 0 means no limit.
	ListIncidents(ctx context.Context, filter domain.IncidentFilter, offset, limit int) ([]domain.FireIncident, error)
	CountIncidents(ctx context.Context, filter domain.IncidentFilter) (int, error)
	YearlyCounts(ctx context.Context) ([]domain.YearCount, error)
	RegionStats(ctx context.Context, filter domain.IncidentFilter) ([]domain.RegionStats, error)
	Summary(ctx context.Context) (*domain.SummaryStats, error)
}

type rethinkIncidentRepository struct {
	session r.QueryExecutor
	table   string
}

func NewIncidentRepository(session r.QueryExecutor, table string) IncidentRepository {
	return &rethinkIncidentRepository{
		session: session,
		table:   table,
	}
}

func (repo *rethinkIncidentRepository) CreateIncident(ctx context.Context, incident *domain.FireIncident) error {
	result, err := r.Table(repo.table).Insert(incident).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	if incident.ID == "" && len(result.GeneratedKeys) > 0 {
		incident.ID = result.GeneratedKeys[0]
	}
	return nil
}

func (repo *rethinkIncidentRepository) InsertIncidents(ctx context.Context, incidents []domain.FireIncident) (int, error) {
	if len(incidents) == 0 {
		return 0, nil
	}
	result, err := r.Table(repo.table).Insert(incidents).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("failed to insert incidents: %w", err)
	}
	if result.Inserted != len(incidents) {
		return result.Inserted, fmt.Errorf("inserted %d of %d incidents", result.Inserted, len(incidents))
	}
	return result.Inserted, nil
}

// present is true when the field exists and is not null.
func present(row r.Term, field string) r.Term {
	return row.HasFields(field).And(row.Field(field).Ne(nil))
}

func applyFilter(q r.Term, f domain.IncidentFilter) r.Term {
	var conds []func(row r.Term) r.Term
	if f.State != "" {
		conds = append(conds, func(row r.Term) r.Term { return row.Field("state").Eq(f.State) })
	}
	if f.Year != 0 {
		conds = append(conds, func(row r.Term) r.Term { return row.Field("fire_year").Eq(f.Year) })
	}
	if f.SinceYear != 0 {
		conds = append(conds, func(row r.Term) r.Term { return row.Field("fire_year").Ge(f.SinceYear) })
	}
	if f.SizeClass != "" {
		conds = append(conds, func(row r.Term) r.Term { return row.Field("fire_size_class").Eq(f.SizeClass) })
	}
	if f.RequireCoordinates {
		conds = append(conds, func(row r.Term) r.Term {
			return present(row, "latitude").And(present(row, "longitude"))
		})
	}
	if f.RequireSize {
		conds = append(conds, func(row r.Term) r.Term { return present(row, "fire_size_acres") })
	}
	if len(conds) == 0 {
		return q
	}

	return q.Filter(func(row r.Term) r.Term {
		term := conds[0](row)
		for _, c := range conds[1:] {
			term = term.And(c(row))
		}
		return term
	})
}

func (repo *rethinkIncidentRepository) ListIncidents(ctx context.Context, filter domain.IncidentFilter, offset, limit int) ([]domain.FireIncident, error) {
	q := applyFilter(r.Table(repo.table).OrderBy(r.OrderByOpts{Index: r.Asc("id")}), filter)
	if offset > 0 {
		q = q.Skip(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	cursor, err := q.Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer cursor.Close()

	incidents := []domain.FireIncident{}
	if err := cursor.All(&incidents); err != nil {
		return nil, fmt.Errorf("failed to decode incidents: %w", err)
	}
	return incidents, nil
}

func (repo *rethinkIncidentRepository) CountIncidents(ctx context.Context, filter domain.IncidentFilter) (int, error) {
	var n int
	err := applyFilter(r.Table(repo.table), filter).Count().ReadOne(&n, repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return n, nil
}

func (repo *rethinkIncidentRepository) YearlyCounts(ctx context.Context) ([]domain.YearCount, error) {
	cursor, err := r.Table(repo.table).
		Group("fire_year").
		Count().
		Ungroup().
		Map(func(g r.Term) interface{} {
			return map[string]interface{}{
				"year":  g.Field("group"),
				"count": g.Field("reduction"),
			}
		}).
		OrderBy("year").
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents by year: %w", err)
	}
	defer cursor.Close()

	counts := []domain.YearCount{}
	if err := cursor.All(&counts); err != nil {
		return nil, fmt.Errorf("failed to decode yearly counts: %w", err)
	}
	return counts, nil
}

// RegionStats aggregates matching incidents by (state, county). Incidents
// without a size count towards fire_count but not towards the size metrics.
func (repo *rethinkIncidentRepository) RegionStats(ctx context.Context, filter domain.IncidentFilter) ([]domain.RegionStats, error) {
	cursor, err := applyFilter(r.Table(repo.table), filter).
		Group("state", "county").
		Ungroup().
		Map(func(g r.Term) interface{} {
			sizes := g.Field("reduction").
				Filter(func(d r.Term) r.Term { return present(d, "fire_size_acres") }).
				Field("fire_size_acres")
			return map[string]interface{}{
				"state":      g.Field("group").Nth(0),
				"county":     g.Field("group").Nth(1),
				"fire_count": g.Field("reduction").Count(),
				"avg_size":   r.Branch(sizes.IsEmpty(), 0, sizes.Avg()),
				"max_size":   r.Branch(sizes.IsEmpty(), 0, sizes.Max()),
			}
		}).
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate regions: %w", err)
	}
	defer cursor.Close()

	stats := []domain.RegionStats{}
	if err := cursor.All(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode region stats: %w", err)
	}
	return stats, nil
}

func (repo *rethinkIncidentRepository) groupTotals(ctx context.Context, field, key string, order interface{}) ([]domain.GroupTotals, error) {
	cursor, err := r.Table(repo.table).
		Group(field).
		Ungroup().
		Map(func(g r.Term) interface{} {
			return map[string]interface{}{
				key:     g.Field("group"),
				"count": g.Field("reduction").Count(),
				"acres": g.Field("reduction").Sum(func(d r.Term) r.Term {
					return d.Field("fire_size_acres").Default(0)
				}),
			}
		}).
		OrderBy(order).
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to total incidents by %s: %w", field, err)
	}
	defer cursor.Close()

	totals := []domain.GroupTotals{}
	if err := cursor.All(&totals); err != nil {
		return nil, fmt.Errorf("failed to decode %s totals: %w", field, err)
	}
	return totals, nil
}

func (repo *rethinkIncidentRepository) Summary(ctx context.Context) (*domain.SummaryStats, error) {
	stats := &domain.SummaryStats{}

	total, err := repo.CountIncidents(ctx, domain.IncidentFilter{})
	if err != nil {
		return nil, err
	}
	stats.TotalFires = total

	err = r.Table(repo.table).
		Sum(func(d r.Term) r.Term { return d.Field("fire_size_acres").Default(0) }).
		ReadOne(&stats.TotalAcresBurned, repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to sum burned area: %w", err)
	}

	if stats.FiresByYear, err = repo.groupTotals(ctx, "fire_year", "year", "year"); err != nil {
		return nil, err
	}
	if stats.FiresByState, err = repo.groupTotals(ctx, "state", "state", r.Desc("count")); err != nil {
		return nil, err
	}
	return stats, nil
}
