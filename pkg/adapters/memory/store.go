package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data    map[string]*domain.Session
	history map[string][]domain.Transition
	mu      sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:    make(map[string]*domain.Session),
		history: make(map[string][]domain.Transition),
	}
}

// Save persists the session in memory and appends a transition row.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	// Copy to ensure isolation, similar to serialization
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.Lot] = copied
	s.history[session.Lot] = append(s.history[session.Lot], session.Transition())
	return nil
}

// Load retrieves the session from memory.
func (s *Store) Load(ctx context.Context, lot string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[lot]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	// Copy on read so the caller can't mutate store state by pointer
	return session.Clone(), nil
}

// History returns the transitions of a lot in insertion order.
func (s *Store) History(ctx context.Context, lot string) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history[lot]), nil
}

// Delete removes the session and its history.
func (s *Store) Delete(ctx context.Context, lot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, lot)
	delete(s.history, lot)
	return nil
}

// List returns every stored session ordered by lot.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*domain.Session, 0, len(s.data))
	for _, session := range s.data {
		sessions = append(sessions, session.Clone())
	}
	slices.SortFunc(sessions, func(a, b *domain.Session) int {
		return cmp.Compare(a.Lot, b.Lot)
	})
	return sessions, nil
}
