package database

import (
	"context"
	"errors"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionReader provides read access to stored sessions.
type SessionReader interface {
	// ListSessions returns sessions matching filter, newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	// GetSession returns one session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetMeasurements returns the records of a session in frame order.
	GetMeasurements(ctx context.Context, id string) ([]motion.Record, error)
}

// SessionWriter persists sessions.
type SessionWriter interface {
	// SaveSession stores a session with its records, replacing any stored
	// session with the same ID.
	SaveSession(ctx context.Context, s *Session, records []motion.Record) error
	// DeleteSession removes a session and its records.
	DeleteSession(ctx context.Context, id string) error
}

// Store combines read and write access with lifecycle management.
type Store interface {
	SessionReader
	SessionWriter
	Close() error
}
