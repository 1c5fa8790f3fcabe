package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_Defaults(t *testing.T) {
	noop := func(context.Context, int) error { return nil }

	pool := NewPool(2, 8, noop)
	assert.Equal(t, 2, pool.workers)
	assert.Equal(t, 8, pool.queueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 4, pool.workers)
	assert.Equal(t, 64, pool.queueSize)

	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[int](1, 1, nil)
	})
}

func TestPool_ProcessesWork(t *testing.T) {
	var sum atomic.Int64
	pool := NewPool(3, 10, func(ctx context.Context, n int) error {
		sum.Add(int64(n))
		if n == 5 {
			return errors.New("boom")
		}
		return nil
	})

	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	for i := 1; i <= 5; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(15), sum.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(1), stats.Failed)

	assert.ErrorIs(t, pool.Submit(6), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "stopping twice is a no-op")
}

func TestPool_BackPressure(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	reg := prometheus.NewRegistry()
	pool := NewPool(1, 1, func(ctx context.Context, n int) error {
		started <- struct{}{}
		<-release
		return nil
	}, WithMetrics[int](reg, "test_pool"))
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(1))
	<-started // the only worker is busy
	require.NoError(t, pool.Submit(2))
	assert.ErrorIs(t, pool.Submit(3), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, mf := range families {
		if mf.GetName() == "test_pool_dropped_total" {
			dropped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	pool := NewPool(1, 1, func(ctx context.Context, n int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))

	assert.Eventually(t, func() bool { return pool.Stats().Busy == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, pool.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestPool_CancelledContextStillDrainsQueue(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var done atomic.Int64
	var sawCancel atomic.Bool
	pool := NewPool(1, 4, func(ctx context.Context, n int) error {
		if n == 1 {
			started <- struct{}{}
			<-release
		}
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		done.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(1))
	<-started
	require.NoError(t, pool.Submit(2))

	cancel()
	close(release)
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(2), done.Load(), "accepted items run after cancellation")
	assert.False(t, sawCancel.Load())
}
