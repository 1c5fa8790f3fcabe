package ports

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
)

// InputMapSource resolves the configured binding of an input.
type InputMapSource interface {
	// InputMap returns domain.ErrNoInputMap when the input is not mapped.
	InputMap(ctx context.Context, input int) (domain.InputMap, error)
}

// StaticInputMaps is an InputMapSource backed by configuration loaded at startup.
type StaticInputMaps map[int]domain.InputMap

// InputMap implements InputMapSource.
func (m StaticInputMaps) InputMap(_ context.Context, input int) (domain.InputMap, error) {
	im, ok := m[input]
	if !ok {
		return domain.InputMap{}, domain.Errorf(domain.KindNoInputMap, "no input map for input %d", input)
	}
	return im, nil
}
