package domain_test

import (
	"strings"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidateSession(t *testing.T) {
	assert.NoError(t, domain.ValidateSession("W6G", "2211"))
	assert.ErrorIs(t, domain.ValidateSession("", "2211"), domain.ErrSessionState)
	assert.ErrorIs(t, domain.ValidateSession(strings.Repeat("1", 21), "2211"), domain.ErrSessionState)
	assert.ErrorIs(t, domain.ValidateSession("W6G", "2211001"), domain.ErrSessionState)
}

func TestValidateManualLot(t *testing.T) {
	assert.NoError(t, domain.ValidateManualLot("10ABC123"))
	assert.NoError(t, domain.ValidateManualLot("10"))
	assert.ErrorIs(t, domain.ValidateManualLot("W6G"), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateManualLot("10ABC 123"), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateManualLot("10"+strings.Repeat("A", 19)), domain.ErrInvalidInput)
}

func TestSessionState_Open(t *testing.T) {
	assert.True(t, domain.StateRunning.Open())
	assert.True(t, domain.StatePaused.Open())
	assert.False(t, domain.StateFinished.Open())
}

func TestValidateInput(t *testing.T) {
	assert.NoError(t, domain.ValidateInput(1))
	assert.NoError(t, domain.ValidateInput(16))
	assert.ErrorIs(t, domain.ValidateInput(0), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateInput(17), domain.ErrInvalidInput)
}
