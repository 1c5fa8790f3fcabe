package dispatch

import (
	"fmt"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Eviction(t *testing.T) {
	tr := NewTracker(3)
	for i := 1; i <= 5; i++ {
		tr.Add(&domain.Run{ID: fmt.Sprintf("r%d", i), Status: domain.RunQueued})
	}

	runs := tr.List()
	require.Len(t, runs, 3)
	assert.Equal(t, "r5", runs[0].ID)
	assert.Equal(t, "r3", runs[2].ID)

	_, ok := tr.Get("r1")
	assert.False(t, ok)

	updated, ok := tr.Update("r4", func(r *domain.Run) { r.Status = domain.RunFinished })
	require.True(t, ok)
	assert.Equal(t, domain.RunFinished, updated.Status)

	_, ok = tr.Update("r1", func(r *domain.Run) {})
	assert.False(t, ok)
}
