package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Enter-tainer/gps-tracker/reports"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS location_reports (
		fingerprint VARCHAR(64) PRIMARY KEY,
		source VARCHAR(16) NOT NULL,
		device_name VARCHAR(256) NOT NULL DEFAULT '',
		ts BIGINT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		altitude INTEGER NOT NULL DEFAULT 0,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		counter BIGINT NOT NULL DEFAULT 0,
		is_own BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_reports_ts ON location_reports(ts);
	CREATE INDEX IF NOT EXISTS idx_reports_source ON location_reports(source);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save inserts the points, skipping ones already stored. The fingerprint
// primary key makes retried polls idempotent.
func (s *PostgresStore) Save(ctx context.Context, locs []reports.Location) (int, error) {
	query := `
	INSERT INTO location_reports
		(fingerprint, source, device_name, ts, lat, lon, altitude, accuracy, confidence, status, counter, is_own)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (fingerprint) DO NOTHING
	`

	stored := 0
	for i := range locs {
		loc := &locs[i]
		res, err := s.db.ExecContext(ctx, query,
			fingerprint(loc),
			string(loc.Source),
			loc.DeviceName,
			loc.Timestamp,
			loc.Lat,
			loc.Lon,
			loc.Altitude,
			loc.Accuracy,
			loc.Confidence,
			loc.Status,
			loc.Counter,
			loc.IsOwn,
		)
		if err != nil {
			return stored, fmt.Errorf("inserting report: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}
	return stored, nil
}

// List returns matching points sorted by timestamp.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]reports.Location, error) {
	query := `
	SELECT source, device_name, ts, lat, lon, altitude, accuracy, confidence, status, counter, is_own
	FROM location_reports
	WHERE ts >= $1 AND ($2 = '' OR source = $2)
	ORDER BY ts ASC
	`
	args := []any{filter.Since, string(filter.Source)}
	if filter.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reports.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *loc)
	}
	return result, rows.Err()
}

// Latest returns the most recent point for the source, or nil when the
// store holds none. An empty source matches any.
func (s *PostgresStore) Latest(ctx context.Context, source reports.Source) (*reports.Location, error) {
	query := `
	SELECT source, device_name, ts, lat, lon, altitude, accuracy, confidence, status, counter, is_own
	FROM location_reports
	WHERE ($1 = '' OR source = $1)
	ORDER BY ts DESC
	LIMIT 1
	`

	loc, err := scanLocation(s.db.QueryRowContext(ctx, query, string(source)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// Devices summarizes the devices seen in the store, most recent first.
func (s *PostgresStore) Devices(ctx context.Context) ([]DeviceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, device_name, COUNT(*), MAX(ts)
		FROM location_reports
		GROUP BY source, device_name
		ORDER BY MAX(ts) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DeviceSummary
	for rows.Next() {
		var (
			summary DeviceSummary
			source  string
		)
		if err := rows.Scan(&source, &summary.Name, &summary.Count, &summary.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		summary.Source = reports.Source(source)
		result = append(result, summary)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*reports.Location, error) {
	var (
		loc    reports.Location
		source string
		ts     int64
	)
	if err := row.Scan(&source, &loc.DeviceName, &ts, &loc.Lat, &loc.Lon,
		&loc.Altitude, &loc.Accuracy, &loc.Confidence, &loc.Status, &loc.Counter, &loc.IsOwn); err != nil {
		return nil, err
	}
	loc.Source = reports.Source(source)
	loc.Stamp(ts)
	return &loc, nil
}
