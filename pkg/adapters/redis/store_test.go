package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunSessionStoreContract(t, redis.NewFromClient(client))
}

func testSession(lot string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		Lot:         lot,
		Expiry:      "261231",
		State:       domain.StateRunning,
		OriginInput: 2,
		Created:     now,
		Updated:     now,
	}
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("10TTL")))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "10TTL")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	rows, err := store.History(ctx, "10TTL")
	require.NoError(t, err)
	assert.Empty(t, rows, "history expires with the record")

	// The index entry may outlive the key until the next prune; List must
	// skip it either way.
	sessions, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("plant1:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("10ABC")))

	assert.True(t, mr.Exists("plant1:session:10ABC"), "record key carries the prefix")
	assert.True(t, mr.Exists("plant1:history:10ABC"), "history key carries the prefix")
	assert.True(t, mr.Exists("plant1:sessions"), "index carries the prefix")

	require.NoError(t, store.Delete(ctx, "10ABC"))
	assert.False(t, mr.Exists("plant1:session:10ABC"))
	assert.False(t, mr.Exists("plant1:history:10ABC"))
}
