package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wildfire-analytics/internal/cache"
	"wildfire-analytics/internal/domain"
	"wildfire-analytics/pkg/analytics"
)

const (
	minClusterPoints = 10
	minPCAPoints     = 50
)

// insufficientError marks an aggregate that cannot be computed from the
// current data. It is answered with an empty payload and never cached.
type insufficientError struct{ msg string }

func (e *insufficientError) Error() string { return e.msg }

type fireQuery struct {
	Page      int    `validate:"min=1"`
	PerPage   int    `validate:"min=1,max=500"`
	State     string `validate:"omitempty,len=2,alpha"`
	Year      int    `validate:"omitempty,min=1900,max=2100"`
	SizeClass string `validate:"omitempty,len=1,alpha"`
}

func (s *Server) listFires(w http.ResponseWriter, r *http.Request) {
	page, errPage := queryInt(r, "page", 1)
	perPage, errPer := queryInt(r, "per_page", 50)
	year, errYear := queryInt(r, "year", 0)
	if err := errors.Join(errPage, errPer, errYear); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid numeric query parameter")
		return
	}

	q := fireQuery{
		Page:      page,
		PerPage:   perPage,
		State:     strings.ToUpper(r.URL.Query().Get("state")),
		Year:      year,
		SizeClass: strings.ToUpper(r.URL.Query().Get("size_class")),
	}
	if err := s.validator.Struct(q); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := domain.IncidentFilter{State: q.State, Year: q.Year, SizeClass: q.SizeClass}
	key := cache.FiresKey(q.Page, q.PerPage, q.State, q.Year, q.SizeClass)

	result, err := cache.Fetch(r.Context(), s.deps.Cache, s.logger, key, cache.ListingTTL,
		func(ctx context.Context) (domain.FirePage, error) {
			total, err := s.deps.Incidents.CountIncidents(ctx, filter)
			if err != nil {
				return domain.FirePage{}, err
			}
			fires, err := s.deps.Incidents.ListIncidents(ctx, filter, (q.Page-1)*q.PerPage, q.PerPage)
			if err != nil {
				return domain.FirePage{}, err
			}
			return domain.FirePage{
				Fires:       fires,
				Total:       total,
				Pages:       (total + q.PerPage - 1) / q.PerPage,
				CurrentPage: q.Page,
			}, nil
		})
	if err != nil {
		s.logger.Error("Failed to list fires", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch fires")
		return
	}
	if result.Fires == nil {
		result.Fires = []domain.FireIncident{}
	}

	s.respondWithJSON(w, http.StatusOK, result)
}

type createFireRequest struct {
	FireName         string     `json:"fire_name" validate:"max=256"`
	DiscoveryDate    *time.Time `json:"discovery_date"`
	FireYear         int        `json:"fire_year" validate:"required,min=1900,max=2100"`
	FireSizeAcres    *float64   `json:"fire_size_acres" validate:"omitempty,gte=0"`
	FireSizeClass    string     `json:"fire_size_class" validate:"omitempty,len=1,alpha"`
	Latitude         *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude        *float64   `json:"longitude" validate:"omitempty,longitude"`
	State            string     `json:"state" validate:"required,len=2,alpha"`
	County           string     `json:"county" validate:"max=128"`
	CauseDescription string     `json:"cause_description" validate:"max=256"`
	ReportingAgency  string     `json:"reporting_agency" validate:"max=128"`
}

func (s *Server) createFire(w http.ResponseWriter, r *http.Request) {
	var req createFireRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	incident := &domain.FireIncident{
		FireName:         req.FireName,
		FireYear:         req.FireYear,
		FireSizeAcres:    req.FireSizeAcres,
		FireSizeClass:    strings.ToUpper(req.FireSizeClass),
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		State:            strings.ToUpper(req.State),
		County:           req.County,
		CauseDescription: req.CauseDescription,
		ReportingAgency:  req.ReportingAgency,
	}
	if req.DiscoveryDate != nil {
		incident.DiscoveryDate = req.DiscoveryDate.UTC()
	}

	if err := s.deps.Incidents.CreateIncident(r.Context(), incident); err != nil {
		s.logger.Error("Failed to create fire incident", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to create fire incident")
		return
	}

	s.respondWithJSON(w, http.StatusCreated, map[string]string{
		"message": "Fire incident created",
		"id":      incident.ID,
	})
}

type ClusterPoint struct {
	FireID        string  `json:"fire_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Cluster       int     `json:"cluster"`
	FireSizeAcres float64 `json:"fire_size_acres"`
	FireYear      int     `json:"fire_year"`
}

type ClustersResponse struct {
	Clusters []ClusterPoint `json:"clusters"`
	Message  string         `json:"message,omitempty"`
}

func (s *Server) fireClusters(w http.ResponseWriter, r *http.Request) {
	result, err := cache.Fetch(r.Context(), s.deps.Cache, s.logger, cache.ClustersKey, cache.ClustersTTL,
		func(ctx context.Context) (ClustersResponse, error) {
			fires, err := s.deps.Incidents.ListIncidents(ctx, domain.IncidentFilter{RequireCoordinates: true}, 0, 0)
			if err != nil {
				return ClustersResponse{}, err
			}
			if len(fires) < minClusterPoints {
				return ClustersResponse{}, &insufficientError{"Insufficient data for clustering"}
			}

			points := make([][2]float64, len(fires))
			for i, f := range fires {
				points[i] = [2]float64{*f.Latitude, *f.Longitude}
			}
			labels, err := analytics.DBSCAN(points, 0.5, 5)
			if err != nil {
				return ClustersResponse{}, err
			}

			out := ClustersResponse{Clusters: make([]ClusterPoint, len(fires))}
			for i, f := range fires {
				out.Clusters[i] = ClusterPoint{
					FireID:        f.ID,
					Latitude:      *f.Latitude,
					Longitude:     *f.Longitude,
					Cluster:       labels[i],
					FireSizeAcres: sizeOrZero(f.FireSizeAcres),
					FireYear:      f.FireYear,
				}
			}
			return out, nil
		})

	var insufficient *insufficientError
	switch {
	case errors.As(err, &insufficient):
		s.respondWithJSON(w, http.StatusOK, ClustersResponse{Clusters: []ClusterPoint{}, Message: insufficient.msg})
	case err != nil:
		s.logger.Error("Failed to compute clusters", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to compute clusters")
	default:
		s.respondWithJSON(w, http.StatusOK, result)
	}
}

type PCAPoint struct {
	FireID        string  `json:"fire_id"`
	PC1           float64 `json:"pc1"`
	PC2           float64 `json:"pc2"`
	FireSizeAcres float64 `json:"fire_size_acres"`
	FireYear      int     `json:"fire_year"`
}

type PCAResponse struct {
	PCAData           []PCAPoint `json:"pca_data"`
	ExplainedVariance []float64  `json:"explained_variance,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// pcaAnalysis projects raw (unscaled) features; the pca job standardises.
func (s *Server) pcaAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := cache.Fetch(r.Context(), s.deps.Cache, s.logger, cache.PCAKey, cache.PCATTL,
		func(ctx context.Context) (PCAResponse, error) {
			filter := domain.IncidentFilter{RequireCoordinates: true, RequireSize: true}
			fires, err := s.deps.Incidents.ListIncidents(ctx, filter, 0, 0)
			if err != nil {
				return PCAResponse{}, err
			}
			if len(fires) < minPCAPoints {
				return PCAResponse{}, &insufficientError{"Insufficient data for PCA"}
			}

			features := make([][]float64, len(fires))
			for i, f := range fires {
				features[i] = []float64{*f.Latitude, *f.Longitude, *f.FireSizeAcres, float64(f.FireYear)}
			}
			res, err := analytics.PCA(features, 2)
			if err != nil {
				return PCAResponse{}, err
			}

			out := PCAResponse{
				PCAData:           make([]PCAPoint, len(fires)),
				ExplainedVariance: res.ExplainedVarianceRatio,
			}
			for i, f := range fires {
				out.PCAData[i] = PCAPoint{
					FireID:        f.ID,
					PC1:           res.Scores[i][0],
					PC2:           res.Scores[i][1],
					FireSizeAcres: *f.FireSizeAcres,
					FireYear:      f.FireYear,
				}
			}
			return out, nil
		})

	var insufficient *insufficientError
	switch {
	case errors.As(err, &insufficient):
		s.respondWithJSON(w, http.StatusOK, PCAResponse{PCAData: []PCAPoint{}, Message: insufficient.msg})
	case err != nil:
		s.logger.Error("Failed to compute PCA", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to compute PCA")
	default:
		s.respondWithJSON(w, http.StatusOK, result)
	}
}

func (s *Server) summaryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := cache.Fetch(r.Context(), s.deps.Cache, s.logger, cache.SummaryKey, cache.SummaryTTL,
		func(ctx context.Context) (*domain.SummaryStats, error) {
			return s.deps.Incidents.Summary(ctx)
		})
	if err != nil {
		s.logger.Error("Failed to compute summary", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}

	s.respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) analysisResults(w http.ResponseWriter, r *http.Request) {
	analysisType := domain.AnalysisType(mux.Vars(r)["type"])
	switch analysisType {
	case domain.AnalysisDBSCAN, domain.AnalysisPCA, domain.AnalysisForecast:
	default:
		s.respondWithError(w, http.StatusBadRequest, "Unknown analysis type")
		return
	}

	limit := 100
	if l, err := queryInt(r, "limit", limit); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	rows, err := s.deps.Analysis.ListAnalysisResults(r.Context(), analysisType, limit)
	if err != nil {
		s.logger.Error("Failed to list analysis results", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch analysis results")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"analysis_type": analysisType,
		"results":       rows,
		"count":         len(rows),
	})
}

func (s *Server) currentRisk(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(r.URL.Query().Get("state"))
	if err := s.validator.Var(state, "omitempty,len=2,alpha"); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid state")
		return
	}

	assessments, err := s.deps.Risk.CurrentAssessments(r.Context(), state, s.now().UTC())
	if err != nil {
		s.logger.Error("Failed to read risk assessments", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch risk assessments")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

func sizeOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
