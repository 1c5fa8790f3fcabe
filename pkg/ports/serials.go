package ports

import "context"

// SerialAllocator hands out unique serial numbers from named pools.
type SerialAllocator interface {
	// Lookup reserves count numbers from pool. It returns
	// domain.ErrPoolNotFound when no pool matches.
	Lookup(ctx context.Context, pool string, count int) ([]string, error)
}
