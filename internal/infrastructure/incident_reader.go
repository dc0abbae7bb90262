package infrastructure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

var ErrInvalidFileFormat = errors.New("invalid file format")

// columnAliases maps the FPA FOD export headers and the table's own column
// names onto incident fields.
var columnAliases = map[string]string{
	"fire_name":             "fire_name",
	"discovery_date":        "discovery_date",
	"fire_year":             "fire_year",
	"fire_size":             "fire_size_acres",
	"fire_size_acres":       "fire_size_acres",
	"fire_size_class":       "fire_size_class",
	"latitude":              "latitude",
	"longitude":             "longitude",
	"state":                 "state",
	"county":                "county",
	"fips_name":             "county",
	"stat_cause_descr":      "cause_description",
	"cause_description":     "cause_description",
	"nwcg_reporting_agency": "reporting_agency",
	"reporting_agency":      "reporting_agency",
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "01/02/2006"}

// ImportStats counts what happened to the data rows of one file.
type ImportStats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// IncidentReader parses CSV exports of fire incidents. Unparseable numbers
// and dates become missing values; rows without coordinates or fire year are
// dropped.
type IncidentReader struct {
	logger *zap.Logger
}

func NewIncidentReader(logger *zap.Logger) *IncidentReader {
	return &IncidentReader{logger: logger.Named("incident-reader")}
}

func (r *IncidentReader) ReadIncidents(in io.Reader) ([]domain.FireIncident, ImportStats, error) {
	var stats ImportStats

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, fmt.Errorf("%w: empty file", ErrInvalidFileFormat)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := columnAliases[key]; ok {
			if _, seen := columns[field]; !seen {
				columns[field] = i
			}
		}
	}
	for _, required := range []string{"fire_year", "latitude", "longitude"} {
		if _, ok := columns[required]; !ok {
			return nil, stats, fmt.Errorf("%w: missing %s column", ErrInvalidFileFormat, required)
		}
	}

	var incidents []domain.FireIncident
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
		}
		stats.Rows++

		get := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		incident, ok := r.toIncident(get, stats.Rows)
		if !ok {
			stats.Dropped++
			continue
		}
		incidents = append(incidents, incident)
	}
	stats.Kept = len(incidents)

	r.logger.Info("Incidents read",
		zap.Int("rows", stats.Rows),
		zap.Int("kept", stats.Kept),
		zap.Int("dropped", stats.Dropped))
	return incidents, stats, nil
}

func (r *IncidentReader) toIncident(get func(string) string, row int) (domain.FireIncident, bool) {
	lat := parseFloat(get("latitude"))
	lon := parseFloat(get("longitude"))
	year, err := strconv.Atoi(get("fire_year"))
	if lat == nil || lon == nil || err != nil {
		return domain.FireIncident{}, false
	}

	size := parseFloat(get("fire_size_acres"))
	if size != nil && *size < 0 {
		r.logger.Warn("Negative fire size replaced with missing value",
			zap.Int("row", row), zap.Float64("value", *size))
		size = nil
	}

	incident := domain.FireIncident{
		FireName:         get("fire_name"),
		FireYear:         year,
		FireSizeAcres:    size,
		FireSizeClass:    strings.ToUpper(get("fire_size_class")),
		Latitude:         lat,
		Longitude:        lon,
		State:            strings.ToUpper(get("state")),
		County:           get("county"),
		CauseDescription: get("cause_description"),
		ReportingAgency:  get("reporting_agency"),
	}
	if raw := get("discovery_date"); raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				incident.DiscoveryDate = t.UTC()
				break
			}
		}
	}
	return incident, true
}

// ReadIncidentsFromFile is ReadIncidents on a file path.
func (r *IncidentReader) ReadIncidentsFromFile(filename string) ([]domain.FireIncident, ImportStats, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, ImportStats{}, err
	}
	defer f.Close()
	return r.ReadIncidents(f)
}

// parseFloat returns nil for empty, unparseable or non-finite input.
func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
