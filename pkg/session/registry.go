package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Registry tracks the session registered under each origin input and keeps
// the persisted record of every lot in step with it.
//
// A single mutex guards the in-memory map. Store writes happen inside the
// same critical section so the map and the store never diverge; device I/O
// never happens while the lock is held.
type Registry struct {
	store ports.SessionStore

	mu     sync.Mutex
	active map[int]*domain.Session

	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(store ports.SessionStore, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		active: make(map[int]*domain.Session),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession registers lot under origin in state RUNNING.
//
// A persisted record for the lot is reused (its created timestamp survives);
// otherwise a new one is created. Any prior registration under origin is
// overwritten, and a lot registered under another origin is moved.
func (r *Registry) StartSession(ctx context.Context, lot, expiry string, origin int, run *domain.Context) (*domain.Session, error) {
	if err := domain.ValidateInput(origin); err != nil {
		return nil, err
	}
	if err := domain.ValidateSession(lot, expiry); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	s, err := r.store.Load(ctx, lot)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s = &domain.Session{Lot: lot, Created: now}
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", lot, err)
	}

	s.Expiry = expiry
	s.State = domain.StateRunning
	s.OriginInput = origin
	s.Updated = now
	s.Context = run.Clone()

	if err := r.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", lot, err)
	}

	for input, other := range r.active {
		if other.Lot == lot && input != origin {
			delete(r.active, input)
			r.logger.Info("Session moved to new origin input", "lot", lot, "from", input, "to", origin)
		}
	}
	if prev, ok := r.active[origin]; ok && prev.Lot != lot {
		r.logger.Warn("Session registration overwritten", "origin_input", origin, "previous_lot", prev.Lot, "lot", lot)
	}
	r.active[origin] = s

	r.logger.Debug("Session started", "lot", lot, "origin_input", origin)
	return s.Clone(), nil
}

// GetSession returns the session registered under origin.
func (r *Registry) GetSession(origin int) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.active[origin]
	if !ok {
		return nil, domain.Errorf(domain.KindSessionNotActive, "no active session on input %d", origin)
	}
	return s.Clone(), nil
}

// PauseSession persists lot as PAUSED and unregisters it.
func (r *Registry) PauseSession(ctx context.Context, lot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	origin, s, ok := r.findActive(lot)
	if !ok {
		return domain.Errorf(domain.KindSessionNotActive, "session %s is not active", lot)
	}

	next := s.Clone()
	next.State = domain.StatePaused
	next.Updated = r.now().UTC()
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", lot, err)
	}
	delete(r.active, origin)

	r.logger.Debug("Session paused", "lot", lot, "origin_input", origin)
	return nil
}

// RestartSession resumes a PAUSED lot under its original origin input.
func (r *Registry) RestartSession(ctx context.Context, lot string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Load(ctx, lot)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.Errorf(domain.KindSessionState, "session %s does not exist", lot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", lot, err)
	}
	if s.State != domain.StatePaused {
		return nil, domain.Errorf(domain.KindSessionState, "session %s is %s, not %s", lot, s.State, domain.StatePaused)
	}
	if other, ok := r.active[s.OriginInput]; ok {
		return nil, domain.Errorf(domain.KindSessionExists, "session %s is already active on input %d", other.Lot, s.OriginInput)
	}

	s.State = domain.StateRunning
	s.Updated = r.now().UTC()
	if err := r.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", lot, err)
	}
	r.active[s.OriginInput] = s

	r.logger.Debug("Session restarted", "lot", lot, "origin_input", s.OriginInput)
	return s.Clone(), nil
}

// FinishSession persists lot as FINISHED and removes any registration of it.
// Finishing a finished lot only re-persists the same state.
func (r *Registry) FinishSession(ctx context.Context, lot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Load(ctx, lot)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Errorf(domain.KindSessionState, "session %s does not exist", lot)
	}
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", lot, err)
	}

	s.State = domain.StateFinished
	s.Updated = r.now().UTC()
	if err := r.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", lot, err)
	}
	if origin, _, ok := r.findActive(lot); ok {
		delete(r.active, origin)
	}

	r.logger.Debug("Session finished", "lot", lot)
	return nil
}

// Purge deletes the persisted record and history of a lot that is not active.
func (r *Registry) Purge(ctx context.Context, lot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if origin, _, ok := r.findActive(lot); ok {
		return domain.Errorf(domain.KindSessionState, "session %s is active on input %d", lot, origin)
	}
	if _, err := r.store.Load(ctx, lot); err != nil {
		return err
	}
	return r.store.Delete(ctx, lot)
}

// Load returns the persisted record of a lot.
func (r *Registry) Load(ctx context.Context, lot string) (*domain.Session, error) {
	return r.store.Load(ctx, lot)
}

// List returns every persisted record.
func (r *Registry) List(ctx context.Context) ([]*domain.Session, error) {
	return r.store.List(ctx)
}

// History returns the transitions of a lot, oldest first.
func (r *Registry) History(ctx context.Context, lot string) ([]domain.Transition, error) {
	return r.store.History(ctx, lot)
}

// Active returns a snapshot of the registered sessions ordered by origin input.
func (r *Registry) Active() []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Session, 0, len(r.active))
	for _, s := range r.active {
		out = append(out, s.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.Session) int {
		return a.OriginInput - b.OriginInput
	})
	return out
}

// Restore registers every persisted RUNNING record under its origin input.
// When two records claim the same input the most recently updated wins.
// It returns the number of sessions registered.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range records {
		if s.State != domain.StateRunning || domain.ValidateInput(s.OriginInput) != nil {
			continue
		}
		if cur, ok := r.active[s.OriginInput]; ok && cur.Updated.After(s.Updated) {
			continue
		}
		r.active[s.OriginInput] = s
	}
	r.logger.Info("Sessions restored", "count", len(r.active))
	return len(r.active), nil
}

// findActive must be called with r.mu held.
func (r *Registry) findActive(lot string) (int, *domain.Session, bool) {
	for origin, s := range r.active {
		if s.Lot == lot {
			return origin, s, true
		}
	}
	return 0, nil, false
}
