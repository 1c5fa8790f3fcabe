package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// reserveScript advances a pool counter by ARGV[2] unless that would pass
// the range end ARGV[3] (0 means unbounded). The counter starts at ARGV[1].
// It returns the last reserved number, or -1 when the pool is exhausted.
var reserveScript = backend.NewScript(`
local next = tonumber(redis.call("get", KEYS[1]) or ARGV[1])
local last = next + tonumber(ARGV[2]) - 1
local stop = tonumber(ARGV[3])
if stop > 0 and last > stop then
	return -1
end
redis.call("set", KEYS[1], last + 1)
return last
`)

// SerialPools implements ports.SerialAllocator with Redis counters shared
// by every replica.
type SerialPools struct {
	client *backend.Client
	prefix string
	pools  map[string]domain.PoolRange
}

// NewSerialPools creates an allocator over the given ranges. Counters live
// under <prefix>serial:<pool>.
func NewSerialPools(client *backend.Client, prefix string, ranges ...domain.PoolRange) *SerialPools {
	p := &SerialPools{
		client: client,
		prefix: prefix,
		pools:  make(map[string]domain.PoolRange, len(ranges)),
	}
	for _, r := range ranges {
		p.pools[r.Name] = r
	}
	return p
}

func (p *SerialPools) key(pool string) string {
	return p.prefix + "serial:" + pool
}

// Lookup implements ports.SerialAllocator.
func (p *SerialPools) Lookup(ctx context.Context, pool string, count int) ([]string, error) {
	if count < 1 {
		return nil, domain.Errorf(domain.KindInvalidInput, "serial count must be positive, got %d", count)
	}
	r, ok := p.pools[pool]
	if !ok {
		return nil, domain.Errorf(domain.KindPoolNotFound, "serial pool %q not found", pool)
	}

	last, err := reserveScript.Run(ctx, p.client, []string{p.key(pool)}, r.Start, count, r.End).Int64()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve serial numbers: %w", err)
	}
	if last < 0 {
		return nil, domain.Errorf(domain.KindPoolExhausted, "serial pool %q exhausted at %d", pool, r.End)
	}

	out := make([]string, 0, count)
	for n := last - int64(count) + 1; n <= last; n++ {
		out = append(out, r.Format(n))
	}
	return out, nil
}
