package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	lot := "10C" + time.Now().Format("150405.000")

	newSession := func(lot string, state domain.SessionState) *domain.Session {
		now := time.Now().UTC().Truncate(time.Millisecond)
		run := domain.NewContext()
		run.JobFields = map[string]string{"LOT": lot, "EXPIRY": "261231"}
		run.PrinterHost = "printer"
		run.PrinterPort = 777
		run.IOPort = 2
		return &domain.Session{
			Lot:         lot,
			Expiry:      "261231",
			State:       state,
			OriginInput: 2,
			Created:     now,
			Updated:     now,
			Context:     run,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		s := newSession(lot, domain.StateRunning)
		require.NoError(t, store.Save(ctx, s), "Save should not return error")

		loaded, err := store.Load(ctx, lot)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.Lot, loaded.Lot)
		assert.Equal(t, s.Expiry, loaded.Expiry)
		assert.Equal(t, domain.StateRunning, loaded.State)
		assert.Equal(t, 2, loaded.OriginInput)
		assert.True(t, s.Created.Equal(loaded.Created), "created timestamp should survive a round trip")
		require.NotNil(t, loaded.Context)
		assert.Equal(t, "261231", loaded.Context.JobFields["EXPIRY"])
		assert.Equal(t, 777, loaded.Context.PrinterPort)
		assert.Equal(t, 2, loaded.Context.IOPort)
	})

	t.Run("Save Overwrites Current Record", func(t *testing.T) {
		s := newSession(lot, domain.StatePaused)
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, lot)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePaused, loaded.State)
	})

	t.Run("History", func(t *testing.T) {
		rows, err := store.History(ctx, lot)
		require.NoError(t, err)
		require.Len(t, rows, 2, "every Save appends one transition")
		assert.Equal(t, domain.StateRunning, rows[0].State)
		assert.Equal(t, domain.StatePaused, rows[1].State)
		assert.Equal(t, lot, rows[1].Lot)
		assert.Equal(t, 2, rows[1].OriginInput)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+lot)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		lot1 := lot + "A"
		lot2 := lot + "B"
		require.NoError(t, store.Save(ctx, newSession(lot1, domain.StateRunning)))
		require.NoError(t, store.Save(ctx, newSession(lot2, domain.StateFinished)))

		defer func() {
			_ = store.Delete(ctx, lot1)
			_ = store.Delete(ctx, lot2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		lots := make([]string, 0, len(sessions))
		for _, s := range sessions {
			lots = append(lots, s.Lot)
		}
		assert.Contains(t, lots, lot1)
		assert.Contains(t, lots, lot2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, lot), "Delete should not return error")

		_, err := store.Load(ctx, lot)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		rows, err := store.History(ctx, lot)
		require.NoError(t, err)
		assert.Empty(t, rows, "Delete should purge the history")
	})
}
