package domain

import (
	"strings"
	"time"
)

type AnalysisType string

const (
	AnalysisDBSCAN   AnalysisType = "dbscan_clustering"
	AnalysisPCA      AnalysisType = "pca_analysis"
	AnalysisForecast AnalysisType = "arima_forecast"
)

// AnalysisResult is one append-only row of the operational analysis_results table.
// Repeated runs add new generations distinguished by CreatedAt.
type AnalysisResult struct {
	ID              string         `gorethink:"id,omitempty" json:"id,omitempty"`
	FireIncidentID  string         `gorethink:"fire_incident_id,omitempty" json:"fire_incident_id,omitempty"`
	AnalysisType    AnalysisType   `gorethink:"analysis_type" json:"analysis_type"`
	ClusterID       *int           `gorethink:"cluster_id,omitempty" json:"cluster_id,omitempty"`
	PredictionValue *float64       `gorethink:"prediction_value,omitempty" json:"prediction_value,omitempty"`
	ConfidenceScore *float64       `gorethink:"confidence_score,omitempty" json:"confidence_score,omitempty"`
	Metadata        map[string]any `gorethink:"metadata" json:"metadata"`
	CreatedAt       time.Time      `gorethink:"created_at" json:"created_at"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskExtreme  RiskLevel = "Extreme"
)

// RiskLevelForScore maps a score on [0, 10] to its level band.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 8:
		return RiskExtreme
	case score >= 6:
		return RiskHigh
	case score >= 4:
		return RiskModerate
	default:
		return RiskLow
	}
}

const (
	FactorHighFireFrequency = "high_fire_frequency"
	FactorLargeAverageSize  = "large_average_fire_size"
	FactorExtremeFireEvents = "extreme_fire_events"
)

const (
	RiskCreatedBy    = "automated_system"
	RiskValidityDays = 180
)

// RegionID derives the region key: state, underscore, first three letters of
// the county upper-cased.
func RegionID(state, county string) string {
	r := []rune(county)
	if len(r) > 3 {
		r = r[:3]
	}
	return state + "_" + strings.ToUpper(string(r))
}

// RiskAssessment is one append-only row of the historical risk_assessments table.
// Consumers pick the current assessment by AssessmentDate or ValidUntil.
type RiskAssessment struct {
	RegionID           string    `json:"region_id"`
	State              string    `json:"state"`
	County             string    `json:"county"`
	RiskLevel          RiskLevel `json:"risk_level"`
	RiskScore          float64   `json:"risk_score"`
	PrimaryRiskFactors []string  `json:"primary_risk_factors"`
	AssessmentDate     time.Time `json:"assessment_date"`
	ValidUntil         time.Time `json:"valid_until"`
	CreatedBy          string    `json:"created_by"`
}

// FireIncident is the read model of the operational fire_incidents table.
type FireIncident struct {
	ID               string    `gorethink:"id,omitempty" json:"id"`
	FireName         string    `gorethink:"fire_name,omitempty" json:"fire_name,omitempty"`
	DiscoveryDate    time.Time `gorethink:"discovery_date,omitempty" json:"discovery_date,omitempty"`
	FireYear         int       `gorethink:"fire_year" json:"fire_year"`
	FireSizeAcres    *float64  `gorethink:"fire_size_acres" json:"fire_size_acres"`
	FireSizeClass    string    `gorethink:"fire_size_class,omitempty" json:"fire_size_class,omitempty"`
	Latitude         *float64  `gorethink:"latitude" json:"latitude"`
	Longitude        *float64  `gorethink:"longitude" json:"longitude"`
	State            string    `gorethink:"state,omitempty" json:"state,omitempty"`
	County           string    `gorethink:"county,omitempty" json:"county,omitempty"`
	CauseDescription string    `gorethink:"cause_description,omitempty" json:"cause_description,omitempty"`
	ReportingAgency  string    `gorethink:"reporting_agency,omitempty" json:"reporting_agency,omitempty"`
}

// YearCount is the number of incidents discovered in one fire year.
type YearCount struct {
	Year  int `gorethink:"year" json:"year"`
	Count int `gorethink:"count" json:"count"`
}

// RegionStats aggregates incidents of one (state, county) pair.
type RegionStats struct {
	State     string  `gorethink:"state" json:"state"`
	County    string  `gorethink:"county" json:"county"`
	FireCount int     `gorethink:"fire_count" json:"fire_count"`
	AvgSize   float64 `gorethink:"avg_size" json:"avg_size"`
	MaxSize   float64 `gorethink:"max_size" json:"max_size"`
}

// IncidentFilter selects fire incidents for listings and job inputs.
// Zero values mean "no constraint".
type IncidentFilter struct {
	State              string
	Year               int
	SizeClass          string
	SinceYear          int
	RequireCoordinates bool
	RequireSize        bool
}

// FirePage is one page of an incident listing.
type FirePage struct {
	Fires       []FireIncident `json:"fires"`
	Total       int            `json:"total"`
	Pages       int            `json:"pages"`
	CurrentPage int            `json:"current_page"`
}

// GroupTotals is an incident count and burned area for one group key.
type GroupTotals struct {
	Year  int     `gorethink:"year,omitempty" json:"year,omitempty"`
	State string  `gorethink:"state,omitempty" json:"state,omitempty"`
	Count int     `gorethink:"count" json:"count"`
	Acres float64 `gorethink:"acres" json:"acres"`
}

// SummaryStats is the dataset-wide overview served by the stats endpoint.
type SummaryStats struct {
	TotalFires       int           `json:"total_fires"`
	TotalAcresBurned float64       `json:"total_acres_burned"`
	FiresByYear      []GroupTotals `json:"fires_by_year"`
	FiresByState     []GroupTotals `json:"fires_by_state"`
}
