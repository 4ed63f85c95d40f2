// Package store persists stations and observations in SQLite.
//
// Observations carry a composite UNIQUE(station_id, timestamp) constraint and
// the value-range CHECK constraints of the destination schema. Bulk insertion
// uses ON CONFLICT DO NOTHING so re-ingesting an overlapping window is
// idempotent: duplicate keys are skipped silently and only genuinely new rows
// count. Correctness under concurrent ingestion runs rests entirely on these
// database-level constraints; the store takes no in-process locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
)

// ErrStationMissing indicates a station lookup matched no row.
var ErrStationMissing = errors.New("station missing")

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	nws_id     TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	timezone   TEXT,
	latitude   REAL,
	longitude  REAL
);

CREATE TABLE IF NOT EXISTS observations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id     INTEGER NOT NULL REFERENCES stations(id),
	timestamp      TEXT NOT NULL,
	temperature    REAL CHECK (temperature IS NULL OR temperature >= -273.15),
	wind_speed     REAL,
	humidity       REAL CHECK (humidity IS NULL OR humidity BETWEEN 0 AND 100),
	wind_direction REAL CHECK (wind_direction IS NULL OR wind_direction BETWEEN 0 AND 360),
	pressure       REAL,
	dewpoint       REAL,
	visibility     REAL CHECK (visibility IS NULL OR visibility >= 0),
	UNIQUE (station_id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_observations_station_ts
	ON observations (station_id, timestamp);
`

// insertChunkSize keeps multi-row inserts well under SQLite's bound-variable
// limit (9 columns per row).
const insertChunkSize = 100

// Store wraps the SQLite handle. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies the
// schema, and validates connectivity. A non-empty dsn overrides path entirely.
func Open(path, dsn string, maxOpenConns int) (*Store, error) {
	resolved, err := buildDSN(path, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", resolved)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func buildDSN(path, dsn string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// foreign_keys enforces the station reference (and blocks deleting a
	// referenced station); busy_timeout and WAL keep concurrent runs from
	// tripping over "database is locked".
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// StationByNWSID looks up a station by its external identifier.
// Returns ErrStationMissing when no row matches.
func (s *Store) StationByNWSID(ctx context.Context, nwsID string) (domain.Station, error) {
	var st domain.Station
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nws_id, name, timezone, latitude, longitude FROM stations WHERE nws_id = ?`,
		nwsID,
	).Scan(&st.ID, &st.NWSID, &st.Name, &st.Timezone, &st.Latitude, &st.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, fmt.Errorf("station %s: %w", nwsID, ErrStationMissing)
	}
	if err != nil {
		return domain.Station{}, fmt.Errorf("lookup station %s: %w", nwsID, err)
	}
	return st, nil
}

// CreateStation inserts a station row from resolved metadata and returns it
// with its assigned surrogate key.
func (s *Store) CreateStation(ctx context.Context, meta domain.StationMetadata) (domain.Station, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (nws_id, name, timezone, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
		meta.NWSID, meta.Name, meta.Timezone, meta.Latitude, meta.Longitude,
	)
	if err != nil {
		return domain.Station{}, fmt.Errorf("create station %s: %w", meta.NWSID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Station{}, fmt.Errorf("create station %s: %w", meta.NWSID, err)
	}
	return domain.Station{
		ID:        id,
		NWSID:     meta.NWSID,
		Name:      meta.Name,
		Timezone:  meta.Timezone,
		Latitude:  meta.Latitude,
		Longitude: meta.Longitude,
	}, nil
}

// InsertObservations bulk-inserts observations in one transaction, skipping
// rows that collide on (station_id, timestamp). Returns the number of rows
// actually inserted. A constraint violation (e.g. an out-of-range value)
// aborts and rolls back the entire batch.
func (s *Store) InsertObservations(ctx context.Context, obs []domain.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin observation insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted := 0
	for chunk := range slices.Chunk(obs, insertChunkSize) {
		n, err := insertChunk(ctx, tx, chunk)
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit observation insert: %w", err)
	}
	return inserted, nil
}

func insertChunk(ctx context.Context, tx *sql.Tx, chunk []domain.Observation) (int, error) {
	var b strings.Builder
	b.WriteString(`INSERT INTO observations
		(station_id, timestamp, temperature, wind_speed, humidity, wind_direction, pressure, dewpoint, visibility)
		VALUES `)

	args := make([]any, 0, len(chunk)*9)
	for i, o := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			o.StationID, o.Timestamp,
			o.Temperature, o.WindSpeed, o.Humidity, o.WindDirection,
			o.Pressure, o.Dewpoint, o.Visibility,
		)
	}
	b.WriteString(" ON CONFLICT(station_id, timestamp) DO NOTHING")

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert observations: %w", err)
	}
	return int(n), nil
}

// AvgTemperature returns the average temperature for a station across
// [start, end), or nil when the window holds no temperature readings.
func (s *Store) AvgTemperature(ctx context.Context, stationID int64, start, end time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(temperature) FROM observations WHERE station_id = ? AND timestamp >= ? AND timestamp < ?`,
		stationID, domain.FormatTimestamp(start), domain.FormatTimestamp(end),
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("avg temperature: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// WindSpeeds returns the wind-speed readings for a station across
// [start, end) in timestamp order, including nil readings.
func (s *Store) WindSpeeds(ctx context.Context, stationID int64, start, end time.Time) ([]*float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wind_speed FROM observations WHERE station_id = ? AND timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		stationID, domain.FormatTimestamp(start), domain.FormatTimestamp(end),
	)
	if err != nil {
		return nil, fmt.Errorf("wind speeds: %w", err)
	}
	defer rows.Close()

	var out []*float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan wind speed: %w", err)
		}
		if v.Valid {
			f := v.Float64
			out = append(out, &f)
		} else {
			out = append(out, nil)
		}
	}
	return out, rows.Err()
}
