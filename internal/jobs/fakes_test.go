package jobs

import (
	"context"
	"errors"
	"sort"

	"wildfire-analytics/internal/domain"
)

// incidentFixture answers the reader queries from a slice of incidents.
type incidentFixture struct {
	fires []domain.FireIncident
	err   error
}

func (f *incidentFixture) ListIncidents(_ context.Context, filter domain.IncidentFilter, _, _ int) ([]domain.FireIncident, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.FireIncident
	for _, fire := range f.fires {
		if filter.RequireCoordinates && (fire.Latitude == nil || fire.Longitude == nil) {
			continue
		}
		if filter.RequireSize && fire.FireSizeAcres == nil {
			continue
		}
		out = append(out, fire)
	}
	return out, nil
}

func (f *incidentFixture) YearlyCounts(context.Context) ([]domain.YearCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	byYear := map[int]int{}
	for _, fire := range f.fires {
		byYear[fire.FireYear]++
	}
	out := make([]domain.YearCount, 0, len(byYear))
	for y, n := range byYear {
		out = append(out, domain.YearCount{Year: y, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (f *incidentFixture) RegionStats(_ context.Context, filter domain.IncidentFilter) ([]domain.RegionStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	type key struct{ state, county string }
	var order []key
	stats := map[key]*domain.RegionStats{}
	sized := map[key]int{}
	for _, fire := range f.fires {
		if fire.FireYear < filter.SinceYear || (filter.State != "" && fire.State != filter.State) {
			continue
		}
		k := key{fire.State, fire.County}
		s, ok := stats[k]
		if !ok {
			s = &domain.RegionStats{State: fire.State, County: fire.County}
			stats[k] = s
			order = append(order, k)
		}
		s.FireCount++
		if fire.FireSizeAcres != nil {
			size := *fire.FireSizeAcres
			s.AvgSize += size
			s.MaxSize = max(s.MaxSize, size)
			sized[k]++
		}
	}
	out := make([]domain.RegionStats, 0, len(order))
	for _, k := range order {
		s := *stats[k]
		if sized[k] > 0 {
			s.AvgSize /= float64(sized[k])
		}
		out = append(out, s)
	}
	return out, nil
}

type recordingWriter struct {
	analysis []domain.AnalysisResult
	risk     []domain.RiskAssessment
	fail     bool
}

func (w *recordingWriter) AppendAnalysis(_ context.Context, rows []domain.AnalysisResult) error {
	if w.fail {
		return errors.New("analysis store unavailable")
	}
	w.analysis = append(w.analysis, rows...)
	return nil
}

func (w *recordingWriter) AppendRisk(_ context.Context, rows []domain.RiskAssessment) error {
	if w.fail {
		return errors.New("historical store unavailable")
	}
	w.risk = append(w.risk, rows...)
	return nil
}

func ptr[T any](v T) *T { return &v }

func geoFire(id string, lat, lon float64) domain.FireIncident {
	return domain.FireIncident{ID: id, Latitude: ptr(lat), Longitude: ptr(lon), FireYear: 2020}
}
