// internal/store/memory.go
//
// In-memory implementation of the session Store.
//
// Characteristics:
//   - Stores *session.Session objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts; rounds are ephemeral by design.
//   - Errors are returned for missing session IDs on Get().
//   - Save and Get stamp the session as seen; Idle lists the stale ones.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/tonewheel/internal/session"
)

var ErrNotFound = errors.New("session not found")

// Store defines the interface for live player sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, s *session.Session) error

	// Get retrieves a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Delete drops a session. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error

	// Len reports the number of live sessions.
	Len() int

	// Idle lists sessions not saved or fetched since before.
	Idle(ctx context.Context, before time.Time) ([]*session.Session, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex                // guards sessions and seen
	sessions map[string]*session.Session // keyed by Session.ID
	seen     map[string]time.Time        // last Save or Get
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		sessions: make(map[string]*session.Session),
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *memory) Save(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.seen[s.ID] = m.now()
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		m.seen[id] = m.now()
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.seen, id)
	return nil
}

func (m *memory) Idle(ctx context.Context, before time.Time) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*session.Session
	for id, at := range m.seen {
		if at.Before(before) {
			out = append(out, m.sessions[id])
		}
	}
	return out, nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
