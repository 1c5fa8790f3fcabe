package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// DefaultPollInterval is how often a polled board is sampled.
const DefaultPollInterval = 100 * time.Millisecond

// InputHandler receives input activations from a Monitor.
type InputHandler interface {
	Dispatch(ctx context.Context, n int) (*domain.Run, error)
}

// Monitor watches the physical inputs and dispatches every activation.
// Boards implementing ports.InputWatcher are consumed as event streams; other
// boards are polled for rising edges.
type Monitor struct {
	handler  InputHandler
	reader   ports.InputReader
	interval time.Duration
	logger   *slog.Logger
}

// MonitorOption configures the Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger configures a logger for the Monitor.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithPollInterval sets the sampling period of polled boards.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewMonitor creates a Monitor reading board and dispatching to handler.
func NewMonitor(handler InputHandler, board ports.InputReader, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		handler:  handler,
		reader:   board,
		interval: DefaultPollInterval,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks until ctx is done. Dispatch errors are logged and never stop
// the loop.
func (m *Monitor) Run(ctx context.Context) error {
	if w, ok := m.reader.(ports.InputWatcher); ok {
		return m.watch(ctx, w)
	}
	return m.poll(ctx)
}

func (m *Monitor) watch(ctx context.Context, w ports.InputWatcher) error {
	events, err := w.WatchInputs(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("Input monitor started", "mode", "watch")
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-events:
			if !ok {
				return nil
			}
			m.trigger(ctx, n)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Lines already active at startup are not edges, so nothing is
	// dispatched until one read has set the baseline.
	prev, err := m.reader.ReadInputs(ctx)
	for err != nil {
		m.logger.Error("Failed to read inputs", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		prev, err = m.reader.ReadInputs(ctx)
	}
	m.logger.Info("Input monitor started", "mode", "poll", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur, err := m.reader.ReadInputs(ctx)
			if err != nil {
				m.logger.Error("Failed to read inputs", "err", err)
				continue
			}
			for _, n := range RisingEdges(prev, cur) {
				m.trigger(ctx, n)
			}
			prev = cur
		}
	}
}

func (m *Monitor) trigger(ctx context.Context, n int) {
	run, err := m.handler.Dispatch(ctx, n)
	switch {
	case err == nil:
		m.logger.Debug("Input dispatched", "input", n, "run_id", run.ID)
	case domain.IsConfiguration(err):
		// Already logged by the dispatcher.
	case errors.Is(err, domain.ErrInputBusy), errors.Is(err, domain.ErrQueueFull):
		m.logger.Warn("Input dropped", "input", n, "err", err)
	default:
		m.logger.Error("Input run failed", "input", n, "kind", domain.KindOf(err), "err", err)
	}
}

// RisingEdges lists the inputs that are active in cur but were not in prev,
// in ascending order.
func RisingEdges(prev, cur uint16) []int {
	rising := cur &^ prev
	var out []int
	for n := domain.MinInput; n <= domain.MaxInput; n++ {
		if rising&(1<<(n-1)) != 0 {
			out = append(out, n)
		}
	}
	return out
}
