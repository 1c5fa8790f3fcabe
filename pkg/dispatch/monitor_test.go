package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	inputs []int
}

func (h *recordingHandler) Dispatch(ctx context.Context, n int) (*domain.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inputs = append(h.inputs, n)
	if n == 9 {
		return nil, domain.Errorf(domain.KindNoInputMap, "no input map for input 9")
	}
	return &domain.Run{ID: "r", Input: n}, nil
}

func (h *recordingHandler) seen() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.inputs...)
}

// pollOnly hides the watcher side of the memory board.
type pollOnly struct {
	board *memory.Board
}

func (p pollOnly) ReadInputs(ctx context.Context) (uint16, error) {
	return p.board.ReadInputs(ctx)
}

// flakyReader fails its first reads, as a board still enumerating would.
type flakyReader struct {
	board    *memory.Board
	failures atomic.Int32
}

func (f *flakyReader) ReadInputs(ctx context.Context) (uint16, error) {
	if f.failures.Add(-1) >= 0 {
		return 0, errors.New("device not ready")
	}
	return f.board.ReadInputs(ctx)
}

func TestRisingEdges(t *testing.T) {
	assert.Equal(t, []int{1, 4}, dispatch.RisingEdges(0b0010, 0b1011))
	assert.Empty(t, dispatch.RisingEdges(0b1011, 0b0011))
	assert.Equal(t, []int{16}, dispatch.RisingEdges(0, 1<<15))
}

func TestMonitor_Poll(t *testing.T) {
	board := memory.NewBoard()
	require.NoError(t, board.SetInput(3, true)) // already high at startup
	handler := &recordingHandler{}
	m := dispatch.NewMonitor(handler, pollOnly{board}, dispatch.WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, board.SetInput(9, true))
	require.NoError(t, board.SetInput(2, true))
	assert.Eventually(t, func() bool { return len(handler.seen()) == 2 }, time.Second, 5*time.Millisecond)

	// Holding the line does not retrigger; a new press does.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, board.SetInput(2, false))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, board.SetInput(2, true))
	assert.Eventually(t, func() bool { return len(handler.seen()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	seen := handler.seen()
	assert.ElementsMatch(t, []int{2, 9}, seen[:2])
	assert.Equal(t, 2, seen[2], "the failing input 9 did not stop the loop")
}

func TestMonitor_Watch(t *testing.T) {
	board := memory.NewBoard()
	handler := &recordingHandler{}
	m := dispatch.NewMonitor(handler, board)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_ = board.Press(4)
		return len(handler.seen()) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 4, handler.seen()[0])
}

func TestMonitor_PollBaselineWaitsForFirstRead(t *testing.T) {
	board := memory.NewBoard()
	require.NoError(t, board.SetInput(3, true)) // already high at startup
	reader := &flakyReader{board: board}
	reader.failures.Store(3)
	handler := &recordingHandler{}
	m := dispatch.NewMonitor(handler, reader, dispatch.WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool { return reader.failures.Load() < 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, board.SetInput(2, true))
	assert.Eventually(t, func() bool { return len(handler.seen()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int{2}, handler.seen(), "input 3 was high before the baseline")
}
