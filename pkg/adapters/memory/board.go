package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// OutputWrite records one call made against the board outputs.
type OutputWrite struct {
	Lines []int
	On    bool
}

// Board is a simulated digital I/O board. It implements ports.InputReader,
// ports.InputWatcher and ports.OutputController.
type Board struct {
	mu       sync.Mutex
	inputs   uint16
	outputs  map[int]bool
	writes   []OutputWrite
	watchers []chan int
}

// NewBoard creates a board with every line low.
func NewBoard() *Board {
	return &Board{outputs: make(map[int]bool)}
}

// ReadInputs implements ports.InputReader.
func (b *Board) ReadInputs(ctx context.Context) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs, nil
}

// WatchInputs implements ports.InputWatcher. Events are delivered for Press only.
func (b *Board) WatchInputs(ctx context.Context) (<-chan int, error) {
	ch := make(chan int, 16)
	b.mu.Lock()
	b.watchers = append(b.watchers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.watchers = slices.DeleteFunc(b.watchers, func(w chan int) bool { return w == ch })
		close(ch)
	}()
	return ch, nil
}

// SetInput drives an input line, as a sensor or push button would.
func (b *Board) SetInput(n int, active bool) error {
	if err := domain.ValidateInput(n); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if active {
		b.inputs |= 1 << (n - 1)
	} else {
		b.inputs &^= 1 << (n - 1)
	}
	return nil
}

// Press raises input n and notifies watchers. The line stays high until
// Release is called.
func (b *Board) Press(n int) error {
	if err := b.SetInput(n, true); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.watchers {
		select {
		case w <- n:
		default:
		}
	}
	return nil
}

// Release lowers input n.
func (b *Board) Release(n int) error {
	return b.SetInput(n, false)
}

// SetOutput implements ports.OutputController.
func (b *Board) SetOutput(ctx context.Context, line int, on bool) error {
	return b.SetOutputs(ctx, []int{line}, on)
}

// SetOutputs implements ports.OutputController. The whole batch is applied
// under one lock.
func (b *Board) SetOutputs(ctx context.Context, lines []int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range lines {
		b.outputs[l] = on
	}
	b.writes = append(b.writes, OutputWrite{Lines: slices.Clone(lines), On: on})
	return nil
}

// Output reports the current level of an output line.
func (b *Board) Output(line int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[line]
}

// Writes returns every output call in order.
func (b *Board) Writes() []OutputWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.writes)
}
