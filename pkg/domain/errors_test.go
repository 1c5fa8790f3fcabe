package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := domain.Errorf(domain.KindPrinter, "no ACK from printer")
	wrapped := fmt.Errorf("print label: %w", err)

	assert.ErrorIs(t, wrapped, domain.ErrPrinter)
	assert.NotErrorIs(t, wrapped, domain.ErrNoJobFields)
	assert.Equal(t, domain.KindPrinter, domain.KindOf(wrapped))
}

func TestError_DeviceUnreachableCarriesAddress(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.DeviceUnreachable("printer", 777, cause)

	assert.ErrorIs(t, err, domain.ErrDeviceUnreachable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "printer:777")
	assert.Equal(t, 3, domain.BlinkCode(err))
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, domain.KindUnknown, domain.KindOf(errors.New("plain")))
	assert.False(t, domain.IsConfiguration(errors.New("plain")))
	assert.True(t, domain.IsConfiguration(domain.Errorf(domain.KindNoInputMap, "input 3")))
}
