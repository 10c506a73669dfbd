// Package mock provides an in-memory implementation of the database
// interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// SaveCall records one SaveSession call.
type SaveCall struct {
	Session database.Session
	Records []motion.Record
}

// MockStore is an in-memory database.Store.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]database.Session
	records  map[string][]motion.Record
	saves    []SaveCall
	closed   bool

	// Error injection
	SaveError   error
	DeleteError error
	ListError   error
	GetError    error
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]database.Session),
		records:  make(map[string][]motion.Record),
	}
}

// SaveSession stores a copy of s and its records.
func (m *MockStore) SaveSession(ctx context.Context, s *database.Session, records []motion.Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	m.records[s.ID] = slices.Clone(records)
	m.saves = append(m.saves, SaveCall{Session: *s, Records: slices.Clone(records)})
	return nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.records, id)
	return nil
}

// ListSessions returns sessions matching filter, newest first.
func (m *MockStore) ListSessions(ctx context.Context, filter database.SessionFilter) ([]database.Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Session
	for _, s := range m.sessions {
		if filter.Patient != "" && s.Patient != filter.Patient {
			continue
		}
		if filter.Kind != "" && s.Kind != filter.Kind {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b database.Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if filter.Offset > 0 {
		out = out[min(filter.Offset, len(out)):]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetSession returns a session or database.ErrNotFound.
func (m *MockStore) GetSession(ctx context.Context, id string) (*database.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

// GetMeasurements returns the records of a session.
func (m *MockStore) GetMeasurements(ctx context.Context, id string) ([]motion.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, database.ErrNotFound
	}
	return slices.Clone(m.records[id]), nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Saves returns every SaveSession call in order.
func (m *MockStore) Saves() []SaveCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.saves)
}
