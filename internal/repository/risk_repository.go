package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"wildfire-analytics/internal/domain"
)

const dateLayout = "2006-01-02"

// RiskRepository appends to and reads the historical risk_assessments table.
type RiskRepository interface {
	CreateTable(ctx context.Context) error
	InsertAssessments(ctx context.Context, rows []domain.RiskAssessment) error
	// CurrentAssessments returns the newest assessment per region that is
	// still valid on asOf, optionally restricted to one state.
	CurrentAssessments(ctx context.Context, state string, asOf time.Time) ([]domain.RiskAssessment, error)
}

// OpenHistorical opens the historical store. driver is "postgres" or "sqlite".
func OpenHistorical(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported historical driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s store: %w", driver, err)
	}
	return db, nil
}

type sqlRiskRepository struct {
	db     *sql.DB
	driver string
	table  string
}

func NewRiskRepository(db *sql.DB, driver, table string) RiskRepository {
	return &sqlRiskRepository{db: db, driver: driver, table: table}
}

// rebind turns ? placeholders into $n for postgres.
func (repo *sqlRiskRepository) rebind(query string) string {
	if repo.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (repo *sqlRiskRepository) CreateTable(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	dateType := "TEXT"
	if repo.driver == "postgres" {
		idColumn = "id BIGSERIAL PRIMARY KEY"
		dateType = "DATE"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s,
			region_id VARCHAR(64) NOT NULL,
			state VARCHAR(8) NOT NULL,
			county VARCHAR(128) NOT NULL,
			risk_level VARCHAR(16) NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL,
			primary_risk_factors TEXT NOT NULL,
			assessment_date %s NOT NULL,
			valid_until %s NOT NULL,
			created_by VARCHAR(64) NOT NULL
		)`, repo.table, idColumn, dateType, dateType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_region_date ON %s (region_id, assessment_date)`, repo.table, repo.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_valid_until ON %s (valid_until)`, repo.table, repo.table),
	}
	for _, stmt := range stmts {
		if _, err := repo.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", repo.table, err)
		}
	}
	return nil
}

// InsertAssessments writes rows in one transaction.
func (repo *sqlRiskRepository) InsertAssessments(ctx context.Context, rows []domain.RiskAssessment) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, repo.rebind(fmt.Sprintf(`INSERT INTO %s
		(region_id, state, county, risk_level, risk_score, primary_risk_factors, assessment_date, valid_until, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, repo.table)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		factors := row.PrimaryRiskFactors
		if factors == nil {
			factors = []string{}
		}
		encoded, err := json.Marshal(factors)
		if err != nil {
			return fmt.Errorf("failed to encode risk factors: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			row.RegionID,
			row.State,
			row.County,
			string(row.RiskLevel),
			row.RiskScore,
			string(encoded),
			row.AssessmentDate.Format(dateLayout),
			row.ValidUntil.Format(dateLayout),
			row.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert assessment for %s: %w", row.RegionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assessments: %w", err)
	}
	return nil
}

func (repo *sqlRiskRepository) CurrentAssessments(ctx context.Context, state string, asOf time.Time) ([]domain.RiskAssessment, error) {
	day := asOf.Format(dateLayout)
	query := fmt.Sprintf(`SELECT t.region_id, t.state, t.county, t.risk_level, t.risk_score,
			t.primary_risk_factors, t.assessment_date, t.valid_until, t.created_by
		FROM %[1]s t
		WHERE t.valid_until >= ? AND t.assessment_date <= ?
		AND t.id = (
			SELECT MAX(l.id) FROM %[1]s l
			WHERE l.region_id = t.region_id AND l.valid_until >= ? AND l.assessment_date <= ?
		)`, repo.table)
	args := []any{day, day, day, day}
	if state != "" {
		query += " AND t.state = ?"
		args = append(args, state)
	}
	query += " ORDER BY t.risk_score DESC, t.region_id"

	rows, err := repo.db.QueryContext(ctx, repo.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	out := []domain.RiskAssessment{}
	for rows.Next() {
		var (
			a                       domain.RiskAssessment
			level, factors          string
			assessedRaw, validUntil string
		)
		if err := rows.Scan(&a.RegionID, &a.State, &a.County, &level, &a.RiskScore,
			&factors, &assessedRaw, &validUntil, &a.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		a.RiskLevel = domain.RiskLevel(level)
		if err := json.Unmarshal([]byte(factors), &a.PrimaryRiskFactors); err != nil {
			return nil, fmt.Errorf("failed to decode risk factors of %s: %w", a.RegionID, err)
		}
		if a.AssessmentDate, err = parseDate(assessedRaw); err != nil {
			return nil, err
		}
		if a.ValidUntil, err = parseDate(validUntil); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assessments: %w", err)
	}
	return out, nil
}

// parseDate accepts both plain dates and the RFC 3339 form database/sql
// produces when a DATE column is scanned into a string.
func parseDate(s string) (time.Time, error) {
	if len(s) >= len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
