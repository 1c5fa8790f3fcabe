package dispatch

import (
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// DefaultHistory is the number of runs a Tracker keeps by default.
const DefaultHistory = 256

// Tracker keeps the most recent runs so their status can be observed while
// and after they execute.
type Tracker struct {
	mu    sync.RWMutex
	max   int
	order []string
	runs  map[string]*domain.Run
}

// NewTracker creates a tracker holding up to max runs.
func NewTracker(max int) *Tracker {
	if max <= 0 {
		max = DefaultHistory
	}
	return &Tracker{max: max, runs: make(map[string]*domain.Run)}
}

// Add records a new run, evicting the oldest when full.
func (t *Tracker) Add(run *domain.Run) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) >= t.max {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.runs, oldest)
	}
	c := *run
	t.runs[run.ID] = &c
	t.order = append(t.order, run.ID)
}

// Update applies fn to the stored run and returns a copy of the result.
func (t *Tracker) Update(id string, fn func(*domain.Run)) (domain.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.runs[id]
	if !ok {
		return domain.Run{}, false
	}
	fn(r)
	return *r, true
}

// Get returns a copy of one run.
func (t *Tracker) Get(id string) (domain.Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.runs[id]
	if !ok {
		return domain.Run{}, false
	}
	return *r, true
}

// List returns copies of the tracked runs, newest first.
func (t *Tracker) List() []domain.Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Run, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		out = append(out, *t.runs[t.order[i]])
	}
	return out
}
