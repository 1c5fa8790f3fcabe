package memory

import (
	"context"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// SerialPools implements ports.SerialAllocator with in-process counters.
type SerialPools struct {
	mu    sync.Mutex
	pools map[string]domain.PoolRange
	next  map[string]int64
}

// NewSerialPools creates an allocator over the given ranges.
func NewSerialPools(ranges ...domain.PoolRange) *SerialPools {
	p := &SerialPools{
		pools: make(map[string]domain.PoolRange, len(ranges)),
		next:  make(map[string]int64, len(ranges)),
	}
	for _, r := range ranges {
		p.pools[r.Name] = r
		p.next[r.Name] = r.Start
	}
	return p
}

// Lookup implements ports.SerialAllocator.
func (p *SerialPools) Lookup(ctx context.Context, pool string, count int) ([]string, error) {
	if count < 1 {
		return nil, domain.Errorf(domain.KindInvalidInput, "serial count must be positive, got %d", count)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.pools[pool]
	if !ok {
		return nil, domain.Errorf(domain.KindPoolNotFound, "serial pool %q not found", pool)
	}
	first := p.next[pool]
	last := first + int64(count) - 1
	if r.Exhausted(last) {
		return nil, domain.Errorf(domain.KindPoolExhausted, "serial pool %q exhausted at %d", pool, r.End)
	}
	p.next[pool] = last + 1

	out := make([]string, 0, count)
	for n := first; n <= last; n++ {
		out = append(out, r.Format(n))
	}
	return out, nil
}
