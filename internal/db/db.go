// Package db stores crossing sessions and their decision log in SQLite.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/crosswalk/internal/crossing"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	path string
}

// pragmas are applied to every connection opened by NewDB and OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies pragmas without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps pragmas and WAL state consistent.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Session is one start/stop cycle of the analysis stream.
type Session struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Decisions int        `json:"decisions"`
}

// DecisionRecord is one logged frame decision.
type DecisionRecord struct {
	SessionID       string            `json:"session_id"`
	Timestamp       time.Time         `json:"-"`
	TimestampMs     int64             `json:"ts"`
	Seq             uint64            `json:"seq"`
	Decision        crossing.Decision `json:"decision"`
	Signals         crossing.Signals  `json:"signals"`
	MaxVehicleSpeed float64           `json:"max_vehicle_speed_px_s"`
}

// StartSession inserts a new session row. id must be a UUID.
func (db *DB) StartSession(id, source string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("session id %q: %w", id, err)
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, source, started_at_ms) VALUES (?, ?, ?)`,
		id, source, at.UnixMilli(),
	)
	return err
}

// StopSession stamps the stop time of a session.
func (db *DB) StopSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET stopped_at_ms = ? WHERE session_id = ?`, at.UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordDecision appends ev to the decision log of a session.
func (db *DB) RecordDecision(sessionID string, ev crossing.Event) error {
	s := ev.Signals
	_, err := db.Exec(
		`INSERT INTO decisions (
			session_id, ts_ms, frame_seq, decision,
			moving_vehicle, stationary_vehicle, has_red_light, has_green_light,
			unclear_signal, max_vehicle_speed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, ev.Timestamp.UnixMilli(), int64(ev.Seq), ev.Decision.String(),
		s.MovingVehicle, s.StationaryVehicle, s.HasRedLight, s.HasGreenLight,
		s.UnclearSignal, ev.MaxVehicleSpeed,
	)
	return err
}

// ListDecisions returns the most recent limit decisions of a session in
// timestamp order. limit <= 0 returns all of them.
func (db *DB) ListDecisions(sessionID string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT ts_ms, frame_seq, decision, moving_vehicle, stationary_vehicle,
			has_red_light, has_green_light, unclear_signal, max_vehicle_speed
		FROM (
			SELECT * FROM decisions WHERE session_id = ?
			ORDER BY ts_ms DESC, decision_id DESC LIMIT ?
		) ORDER BY ts_ms ASC, decision_id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			r        DecisionRecord
			decision string
			seq      int64
		)
		if err := rows.Scan(&r.TimestampMs, &seq, &decision,
			&r.Signals.MovingVehicle, &r.Signals.StationaryVehicle,
			&r.Signals.HasRedLight, &r.Signals.HasGreenLight,
			&r.Signals.UnclearSignal, &r.MaxVehicleSpeed); err != nil {
			return nil, err
		}
		if r.Decision, err = crossing.ParseDecision(decision); err != nil {
			return nil, err
		}
		r.SessionID = sessionID
		r.Seq = uint64(seq)
		r.Timestamp = time.UnixMilli(r.TimestampMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSessions returns up to limit sessions, newest first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT s.session_id, s.source, s.started_at_ms, s.stopped_at_ms,
			(SELECT COUNT(*) FROM decisions d WHERE d.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at_ms DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession returns one session or ErrNotFound.
func (db *DB) GetSession(id string) (Session, error) {
	row := db.QueryRow(
		`SELECT s.session_id, s.source, s.started_at_ms, s.stopped_at_ms,
			(SELECT COUNT(*) FROM decisions d WHERE d.session_id = s.session_id)
		FROM sessions s WHERE s.session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// LatestSession returns the most recently started session or ErrNotFound.
func (db *DB) LatestSession() (Session, error) {
	sessions, err := db.ListSessions(1)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	return sessions[0], nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s       Session
		started int64
		stopped sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Source, &started, &stopped, &s.Decisions); err != nil {
		return Session{}, err
	}
	s.StartedAt = time.UnixMilli(started).UTC()
	if stopped.Valid {
		t := time.UnixMilli(stopped.Int64).UTC()
		s.StoppedAt = &t
	}
	return s, nil
}
