package ports

import "context"

// InputReader samples the physical input lines. Bit n-1 of the result is
// input n.
type InputReader interface {
	ReadInputs(ctx context.Context) (uint16, error)
}

// InputWatcher is implemented by boards that push input transitions instead
// of being polled. The channel carries the number of each input that went
// active and is closed when ctx is done.
type InputWatcher interface {
	WatchInputs(ctx context.Context) (<-chan int, error)
}

// OutputController drives the physical output lines.
type OutputController interface {
	SetOutput(ctx context.Context, line int, on bool) error

	// SetOutputs drives every line in one batch without yielding between lines.
	SetOutputs(ctx context.Context, lines []int, on bool) error
}
