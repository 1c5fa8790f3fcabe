package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/sqlite"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "conductor.db"))
	ports.RunSessionStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.db")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := sqlite.Open(path)
	require.NoError(t, err)
	run := domain.NewContext()
	run.JobFields = map[string]string{"LOT": "10ABC"}
	run.Set("rule_data", "line-a")
	require.NoError(t, first.Save(ctx, &domain.Session{
		Lot: "10ABC", Expiry: "261231", State: domain.StateRunning,
		OriginInput: 2, Created: now, Updated: now, Context: run,
	}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	loaded, err := second.Load(ctx, "10ABC")
	require.NoError(t, err)
	assert.Equal(t, now, loaded.Created)
	assert.Equal(t, "10ABC", loaded.Context.JobFields["LOT"])
	v, ok := loaded.Context.Get("rule_data")
	require.True(t, ok)
	assert.Equal(t, "line-a", v)

	rows, err := second.History(ctx, "10ABC")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.Error(t, err)
}
