// Package history keeps sensor readings and fogger actuations in SQLite for
// the dashboard chart, stats and CSV export.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"furitingoasis/fogger/control"
	"furitingoasis/fogger/sensor"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS sensors_timestamp_idx ON sensors (timestamp);
CREATE TABLE IF NOT EXISTS actuations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	verdict INTEGER NOT NULL,
	commanded INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	status_code INTEGER,
	error TEXT NOT NULL DEFAULT '',
	fallback INTEGER NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS actuations_timestamp_idx ON actuations (timestamp);
`

// Point is one stored reading.
type Point struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

// Actuation is one stored cycle outcome.
type Actuation struct {
	CycleID    string    `json:"cycle_id"`
	Mode       string    `json:"mode"`
	Verdict    bool      `json:"verdict"`
	Commanded  bool      `json:"commanded"`
	Succeeded  bool      `json:"succeeded"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Fallback   bool      `json:"fallback"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats summarises the stored readings.
type Stats struct {
	Count          int     `json:"count"`
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	AvgTemperature float64 `json:"avg_temperature"`
	MinHumidity    float64 `json:"min_humidity"`
	MaxHumidity    float64 `json:"max_humidity"`
	AvgHumidity    float64 `json:"avg_humidity"`
}

// Store wraps the history database. Writes are serialised.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// Open creates the database file's directory if needed and the tables.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == ":memory:" {
		// Every pooled connection to ":memory:" would get its own empty
		// database; a named shared-cache database is seen by all of them.
		dsn = "file:history-" + uuid.NewString() + "?mode=memory&cache=shared"
	} else if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, "mode=memory") {
		// The database lives as long as one connection stays open.
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
		db.SetMaxIdleConns(2)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history tables: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertReading stores a live reading. Fallback readings are skipped so the
// chart only ever shows measured values.
func (s *Store) InsertReading(ctx context.Context, r sensor.Reading) error {
	if r.IsFallback {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO sensors (temperature, humidity, timestamp) VALUES (?, ?, ?)`,
		r.Temperature, r.Humidity, r.ObservedAt.UTC())
	return err
}

// InsertActuation stores the outcome of a cycle.
func (s *Store) InsertActuation(ctx context.Context, sum control.Summary) error {
	var status sql.NullInt64
	if sum.Actuation.StatusCode != 0 {
		status = sql.NullInt64{Int64: int64(sum.Actuation.StatusCode), Valid: true}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actuations (cycle_id, mode, verdict, commanded, succeeded, status_code, error, fallback, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID.String(), sum.Mode.String(), bool(sum.Verdict), bool(sum.Commanded), sum.Actuation.Succeeded,
		status, sum.Actuation.Kind.String(), sum.Reading.IsFallback, sum.StartedAt.UTC())
	return err
}

// RecordCycle stores the cycle's reading and outcome, logging failures.
func (s *Store) RecordCycle(sum control.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.InsertReading(ctx, sum.Reading); err != nil {
		s.logger.Error("storing reading", "cycle", sum.ID, "error", err)
	}
	if err := s.InsertActuation(ctx, sum); err != nil {
		s.logger.Error("storing actuation", "cycle", sum.ID, "error", err)
	}
}

// Series returns at most maxPoints readings in insertion order, keeping every
// step-th row once the table grows past maxPoints.
func (s *Store) Series(ctx context.Context, maxPoints int) ([]Point, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensors`).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting readings: %w", err)
	}
	step := 1
	if maxPoints > 0 && total > maxPoints {
		step = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, temperature, humidity FROM sensors ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	points := []Point{}
	count := 0
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Timestamp, &p.Temperature, &p.Humidity); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if count%step == 0 {
			points = append(points, p)
		}
		count++
	}
	return points, rows.Err()
}

// Stats computes min/max/avg over every stored reading.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var minT, maxT, avgT, minH, maxH, avgH sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(temperature), MAX(temperature), AVG(temperature),
		       MIN(humidity), MAX(humidity), AVG(humidity)
		FROM sensors`).Scan(&st.Count, &minT, &maxT, &avgT, &minH, &maxH, &avgH)
	if err != nil {
		return Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	st.MinTemperature, st.MaxTemperature, st.AvgTemperature = minT.Float64, maxT.Float64, avgT.Float64
	st.MinHumidity, st.MaxHumidity, st.AvgHumidity = minH.Float64, maxH.Float64, avgH.Float64
	return st, nil
}

// Actuations returns the newest outcomes first.
func (s *Store) Actuations(ctx context.Context, limit int) ([]Actuation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, mode, verdict, commanded, succeeded, status_code, error, fallback, timestamp
		FROM actuations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying actuations: %w", err)
	}
	defer rows.Close()

	out := []Actuation{}
	for rows.Next() {
		var a Actuation
		var status sql.NullInt64
		if err := rows.Scan(&a.CycleID, &a.Mode, &a.Verdict, &a.Commanded, &a.Succeeded, &status, &a.Error, &a.Fallback, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning actuation: %w", err)
		}
		a.StatusCode = int(status.Int64)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes rows older than cutoff and returns how many readings went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sensors WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning readings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM actuations WHERE timestamp < ?`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("pruning actuations: %w", err)
	}
	return res.RowsAffected()
}
