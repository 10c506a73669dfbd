// Package sqlstore implements database.Store on top of sqlx. Queries are
// written with '?' placeholders and rebound for the driver, so the same code
// serves PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

// insertBatchSize keeps multi-row inserts below SQLite's variable limit.
const insertBatchSize = 500

// Store is a database.Store backed by an sqlx connection.
type Store struct {
	db *sqlx.DB
}

var _ database.Store = (*Store)(nil)

// New wraps an open and migrated connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

type sessionRow struct {
	ID          string    `db:"id"`
	Patient     string    `db:"patient"`
	Kind        string    `db:"kind"`
	Mode        string    `db:"mode"`
	StartedAt   time.Time `db:"started_at"`
	EndedAt     time.Time `db:"ended_at"`
	Frames      int       `db:"frames"`
	Skipped     int       `db:"skipped"`
	MaxOpen     float64   `db:"max_open"`
	MaxLeft     float64   `db:"max_left"`
	MaxRight    float64   `db:"max_right"`
	Stats       string    `db:"stats"`
	Repetitions string    `db:"repetitions"`
}

const sessionColumns = `id, patient, kind, mode, started_at, ended_at, frames, skipped,
	max_open, max_left, max_right, stats, repetitions`

func toRow(s *database.Session) (sessionRow, error) {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return sessionRow{}, fmt.Errorf("encode stats: %w", err)
	}
	reps, err := json.Marshal(s.Repetitions)
	if err != nil {
		return sessionRow{}, fmt.Errorf("encode repetitions: %w", err)
	}
	return sessionRow{
		ID:          s.ID,
		Patient:     s.Patient,
		Kind:        string(s.Kind),
		Mode:        s.Mode,
		StartedAt:   s.StartedAt.UTC(),
		EndedAt:     s.EndedAt.UTC(),
		Frames:      s.Frames,
		Skipped:     s.Skipped,
		MaxOpen:     s.MaxOpen,
		MaxLeft:     s.MaxLeft,
		MaxRight:    s.MaxRight,
		Stats:       string(stats),
		Repetitions: string(reps),
	}, nil
}

func (r sessionRow) session() (*database.Session, error) {
	s := &database.Session{
		ID:        r.ID,
		Patient:   r.Patient,
		Kind:      database.Kind(r.Kind),
		Mode:      r.Mode,
		StartedAt: r.StartedAt.UTC(),
		EndedAt:   r.EndedAt.UTC(),
		Frames:    r.Frames,
		Skipped:   r.Skipped,
		CalibrationResults: motion.CalibrationResults{
			MaxOpen:  r.MaxOpen,
			MaxLeft:  r.MaxLeft,
			MaxRight: r.MaxRight,
		},
	}
	if r.Stats != "" {
		var stats map[motion.State]motion.ActionStats
		if err := json.Unmarshal([]byte(r.Stats), &stats); err != nil {
			return nil, fmt.Errorf("decode stats of session %s: %w", r.ID, err)
		}
		s.Stats = stats
	}
	if r.Repetitions != "" {
		var reps []training.RepetitionResult
		if err := json.Unmarshal([]byte(r.Repetitions), &reps); err != nil {
			return nil, fmt.Errorf("decode repetitions of session %s: %w", r.ID, err)
		}
		s.Repetitions = reps
	}
	return s, nil
}

// SaveSession stores a session and replaces its measurements in one transaction.
func (s *Store) SaveSession(ctx context.Context, sess *database.Session, records []motion.Record) error {
	if sess.ID == "" {
		return errors.New("session ID is required")
	}
	row, err := toRow(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (:id, :patient, :kind, :mode, :started_at, :ended_at, :frames, :skipped,
			:max_open, :max_left, :max_right, :stats, :repetitions)
		ON CONFLICT (id) DO UPDATE SET
			patient = excluded.patient,
			kind = excluded.kind,
			mode = excluded.mode,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			frames = excluded.frames,
			skipped = excluded.skipped,
			max_open = excluded.max_open,
			max_left = excluded.max_left,
			max_right = excluded.max_right,
			stats = excluded.stats,
			repetitions = excluded.repetitions
	`
	if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM measurements WHERE session_id = ?"), sess.ID); err != nil {
		return fmt.Errorf("clear measurements: %w", err)
	}

	insert := `
		INSERT INTO measurements (session_id, frame, offset_us, displacement, vertical,
			horizontal, left_rotation, right_rotation, state)
		VALUES (:session_id, :frame, :offset_us, :displacement, :vertical,
			:horizontal, :left_rotation, :right_rotation, :state)
	`
	batch := make([]database.Measurement, 0, min(len(records), insertBatchSize))
	for i, rec := range records {
		batch = append(batch, database.NewMeasurement(sess.ID, sess.StartedAt, rec))
		if len(batch) == insertBatchSize || i == len(records)-1 {
			if _, err := tx.NamedExecContext(ctx, insert, batch); err != nil {
				return fmt.Errorf("save measurements: %w", err)
			}
			batch = batch[:0]
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its measurements.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM measurements WHERE session_id = ?"), id); err != nil {
		return fmt.Errorf("delete measurements: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sessions WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// ListSessions returns sessions matching filter, newest first.
func (s *Store) ListSessions(ctx context.Context, filter database.SessionFilter) ([]database.Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.Patient != "" {
		where = append(where, "patient = ?")
		args = append(args, filter.Patient)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	query := "SELECT " + sessionColumns + " FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if filter.Limit <= 0 && filter.Offset > 0 {
		rows = rows[min(filter.Offset, len(rows)):]
	}

	sessions := make([]database.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// GetSession returns one session or database.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*database.Session, error) {
	var row sessionRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind("SELECT "+sessionColumns+" FROM sessions WHERE id = ?"), id).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.session()
}

// GetMeasurements returns the records of a session in frame order.
// An unknown session yields database.ErrNotFound.
func (s *Store) GetMeasurements(ctx context.Context, id string) ([]motion.Record, error) {
	var start time.Time
	err := s.db.GetContext(ctx, &start, s.db.Rebind("SELECT started_at FROM sessions WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session start: %w", err)
	}

	var rows []database.Measurement
	query := `
		SELECT session_id, frame, offset_us, displacement, vertical, horizontal,
			left_rotation, right_rotation, state
		FROM measurements
		WHERE session_id = ?
		ORDER BY frame
	`
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), id); err != nil {
		return nil, fmt.Errorf("get measurements: %w", err)
	}

	records := make([]motion.Record, len(rows))
	for i, m := range rows {
		records[i] = m.Record(start.UTC())
	}
	return records, nil
}
