// Package store persists pipeline runs, their progress and the derived
// tables in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"covid-pipeline/internal/logger"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Supported drivers, as named in the configuration
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	tableJobs           = "jobs"
	tableJobErrors      = "job_errors"
	tableStageProgress  = "stage_progress"
	tablePipelineLogs   = "pipeline_logs"
	tableCountryDays    = "country_days"
	tableCountryMonths  = "country_months"
	tableCountryTotals  = "country_totals"
	tableForecasts      = "forecasts"
	tableForecastPoints = "forecast_points"
	tableOutputFiles    = "output_files"
)

// Store is a SQL-backed run and result store
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and creates the schema if needed.
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "sqlite3":
		driver, sqlDriver = DriverSQLite, "sqlite3"
	case DriverPostgres, "pgx":
		driver, sqlDriver = DriverPostgres, "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps an in-memory database alive across calls
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("store opened (%s)", driver)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) builder() squirrel.StatementBuilderType {
	if s.driver == DriverPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

var mapping = map[error]error{sql.ErrNoRows: ErrNotFound}

func wrapErr(err error) error {
	for k, v := range mapping {
		if errors.Is(err, k) {
			return v
		}
	}
	return err
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func execx(ctx context.Context, r runner, q squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.ExecContext(ctx, query, args...)
}

func queryx(ctx context.Context, r runner, q squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.QueryContext(ctx, query, args...)
}

func getx(ctx context.Context, r runner, q squirrel.Sqlizer, dest ...interface{}) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return wrapErr(r.QueryRowContext(ctx, query, args...).Scan(dest...))
}

// inTx runs fn in a transaction, rolling back when it fails.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// schema is written for both drivers; the placeholders are replaced per
// dialect.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	spec TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS job_errors (
	id {{serial}},
	job_id TEXT NOT NULL,
	error_message TEXT NOT NULL,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_progress (
	job_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at {{ts}},
	ended_at {{ts}},
	records_processed INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_id, stage)
);
CREATE TABLE IF NOT EXISTS pipeline_logs (
	id {{serial}},
	job_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	details TEXT,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS country_days (
	job_id TEXT NOT NULL,
	country TEXT NOT NULL,
	date DATE NOT NULL,
	cases BIGINT NOT NULL,
	deaths BIGINT NOT NULL,
	population {{num}},
	new_cases BIGINT NOT NULL,
	new_deaths BIGINT NOT NULL,
	cases_per_million {{num}},
	deaths_per_million {{num}},
	new_cases_per_million {{num}},
	new_deaths_per_million {{num}},
	PRIMARY KEY (job_id, country, date)
);
CREATE TABLE IF NOT EXISTS country_months (
	job_id TEXT NOT NULL,
	country TEXT NOT NULL,
	month DATE NOT NULL,
	cases BIGINT NOT NULL,
	deaths BIGINT NOT NULL,
	new_cases BIGINT NOT NULL,
	new_deaths BIGINT NOT NULL,
	PRIMARY KEY (job_id, country, month)
);
CREATE TABLE IF NOT EXISTS country_totals (
	job_id TEXT NOT NULL,
	rank INTEGER NOT NULL,
	country TEXT NOT NULL,
	cases BIGINT NOT NULL,
	deaths BIGINT NOT NULL,
	population {{num}},
	cases_per_thousand {{num}},
	deaths_per_thousand {{num}},
	PRIMARY KEY (job_id, country)
);
CREATE TABLE IF NOT EXISTS forecasts (
	job_id TEXT NOT NULL,
	country TEXT NOT NULL,
	p INTEGER NOT NULL,
	d INTEGER NOT NULL,
	q INTEGER NOT NULL,
	include_constant BOOLEAN NOT NULL,
	constant DOUBLE PRECISION NOT NULL,
	ar TEXT NOT NULL,
	ma TEXT NOT NULL,
	sigma2 DOUBLE PRECISION NOT NULL,
	aicc DOUBLE PRECISION NOT NULL,
	n_obs INTEGER NOT NULL,
	first_date DATE NOT NULL,
	last_date DATE NOT NULL,
	PRIMARY KEY (job_id, country)
);
CREATE TABLE IF NOT EXISTS forecast_points (
	job_id TEXT NOT NULL,
	country TEXT NOT NULL,
	step INTEGER NOT NULL,
	date DATE NOT NULL,
	mean DOUBLE PRECISION NOT NULL,
	intervals TEXT NOT NULL,
	PRIMARY KEY (job_id, country, step)
);
CREATE TABLE IF NOT EXISTS output_files (
	id {{serial}},
	job_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	download_url TEXT NOT NULL,
	created_at {{ts}} NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	r := strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "DATETIME",
		"{{num}}", "TEXT",
	)
	if s.driver == DriverPostgres {
		r = strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMPTZ",
			"{{num}}", "NUMERIC",
		)
	}

	for _, stmt := range strings.Split(r.Replace(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
