package ports

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
)

// SessionStore persists session records keyed by lot, together with the
// history of state transitions of each lot.
type SessionStore interface {
	// Save upserts the current record of s.Lot and appends a transition row.
	Save(ctx context.Context, s *domain.Session) error

	// Load retrieves the current record for a lot.
	// Returns domain.ErrSessionNotFound if the lot has no record.
	Load(ctx context.Context, lot string) (*domain.Session, error)

	// List returns the current record of every lot.
	List(ctx context.Context) ([]*domain.Session, error)

	// History returns the transitions of a lot, oldest first.
	History(ctx context.Context, lot string) ([]domain.Transition, error)

	// Delete purges the record and the history of a lot.
	Delete(ctx context.Context, lot string) error
}
