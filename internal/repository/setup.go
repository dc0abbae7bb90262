package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// TableSpec is a RethinkDB table and the secondary indexes it needs.
type TableSpec struct {
	Name    string
	Indexes []string
}

// OperationalTables lists the tables the services expect in the operational
// database.
func OperationalTables(taskTable, incidentTable, analysisTable string) []TableSpec {
	return []TableSpec{
		{Name: taskTable, Indexes: []string{"status", "job_type", "created_at"}},
		{Name: incidentTable, Indexes: []string{"state", "fire_year", "fire_size_class"}},
		{Name: analysisTable, Indexes: []string{"analysis_type", "created_at", "fire_incident_id"}},
	}
}

// ConnectRethinkDB opens a session, retrying with a linear backoff while the
// server is unavailable.
func ConnectRethinkDB(ctx context.Context, url, dbName string, maxAttempts int, logger *zap.Logger) (*r.Session, error) {
	var session *r.Session
	var err error

	for i := 1; i <= maxAttempts; i++ {
		logger.Info("Connecting to RethinkDB", zap.Int("attempt", i), zap.Int("max_attempts", maxAttempts))

		session, err = r.Connect(r.ConnectOpts{
			Address:    url,
			Database:   dbName,
			MaxOpen:    20,
			InitialCap: 5,
			Timeout:    10 * time.Second,
		})
		if err == nil {
			if err = PingRethinkDB(ctx, session); err == nil {
				return session, nil
			}
			session.Close()
		}

		if i < maxAttempts {
			wait := time.Duration(i) * 2 * time.Second
			logger.Warn("RethinkDB connection failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to RethinkDB after %d attempts: %w", maxAttempts, err)
}

func PingRethinkDB(ctx context.Context, session r.QueryExecutor) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var one int
	if err := r.Expr(1).ReadOne(&one, session, r.RunOpts{Context: ctx}); err != nil {
		return fmt.Errorf("RethinkDB ping failed: %w", err)
	}
	return nil
}

// SetupDatabase creates the database, missing tables and their indexes.
// Existing objects are left untouched.
func SetupDatabase(ctx context.Context, session r.QueryExecutor, dbName string, tables []TableSpec, logger *zap.Logger) error {
	runOpts := r.RunOpts{Context: ctx}

	var dbList []string
	if err := readAll(r.DBList(), session, runOpts, &dbList); err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}
	if !slices.Contains(dbList, dbName) {
		logger.Info("Creating database", zap.String("db", dbName))
		if _, err := r.DBCreate(dbName).RunWrite(session, runOpts); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	db := r.DB(dbName)
	var tableList []string
	if err := readAll(db.TableList(), session, runOpts, &tableList); err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	for _, spec := range tables {
		if !slices.Contains(tableList, spec.Name) {
			logger.Info("Creating table", zap.String("table", spec.Name))
			if _, err := db.TableCreate(spec.Name).RunWrite(session, runOpts); err != nil {
				return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
			}
		}
		if err := createIndexes(session, db.Table(spec.Name), spec.Indexes, runOpts); err != nil {
			logger.Warn("Failed to create indexes", zap.String("table", spec.Name), zap.Error(err))
		}
	}
	return nil
}

func readAll(term r.Term, session r.QueryExecutor, opts r.RunOpts, dst interface{}) error {
	cursor, err := term.Run(session, opts)
	if err != nil {
		return err
	}
	defer cursor.Close()
	return cursor.All(dst)
}

func createIndexes(session r.QueryExecutor, table r.Term, indexes []string, opts r.RunOpts) error {
	for _, index := range indexes {
		_, err := table.IndexCreate(index).RunWrite(session, opts)
		if err != nil && !isIndexExistsError(err) {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
	}

	var statuses []map[string]interface{}
	if err := readAll(table.IndexWait(), session, opts, &statuses); err != nil {
		return fmt.Errorf("failed to wait for indexes: %w", err)
	}
	return nil
}

func isIndexExistsError(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}
