package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/bolt"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStore_Contract(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "conductor.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ports.RunSessionStoreContract(t, store)
}

func TestBoltStore_ListOrderAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.bolt")
	ctx := context.Background()
	now := time.Now().UTC()

	store, err := bolt.Open(path)
	require.NoError(t, err)
	for _, lot := range []string{"10B", "10A", "10C"} {
		require.NoError(t, store.Save(ctx, &domain.Session{
			Lot: lot, Expiry: "261231", State: domain.StateRunning,
			OriginInput: 2, Created: now, Updated: now,
		}))
	}
	require.NoError(t, store.Close())

	store, err = bolt.Open(path)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "10A", sessions[0].Lot)
	assert.Equal(t, "10C", sessions[2].Lot)

	require.NoError(t, store.Delete(ctx, "never-saved"), "deleting an unknown lot is a no-op")
}
