// Package nats exposes a remote I/O board over NATS subjects. Remote
// input modules publish to <prefix>.input.<n>; output changes are published
// to <prefix>.output.<n>. Payloads are "1" (active) or "0".
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/nats-io/nats.go"
)

const DefaultPrefix = "conductor.io"

// Subscription is a live subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Conn is the part of a NATS connection the board uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(subject string, data []byte)) (Subscription, error)
}

// Board implements ports.InputReader, ports.InputWatcher and
// ports.OutputController over NATS.
type Board struct {
	conn   Conn
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	inputs   uint16
	watchers []chan int
	sub      Subscription
}

// Option configures the Board.
type Option func(*Board)

// WithLogger configures a logger for the Board.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		b.logger = logger
	}
}

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(b *Board) {
		b.prefix = prefix
	}
}

// Connect dials the NATS server at url and starts listening for input events.
func Connect(url string, opts ...Option) (*Board, error) {
	nc, err := nats.Connect(url, nats.Name("conductor"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	b, err := New(natsConn{nc}, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

// New creates a Board on an existing connection and subscribes to the
// input subjects.
func New(conn Conn, opts ...Option) (*Board, error) {
	b := &Board{
		conn:   conn,
		prefix: DefaultPrefix,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	sub, err := conn.Subscribe(b.prefix+".input.*", b.handleInput)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to inputs: %w", err)
	}
	b.sub = sub
	return b, nil
}

// Close stops listening for input events.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.watchers {
		close(w)
	}
	b.watchers = nil
	return b.sub.Unsubscribe()
}

func (b *Board) handleInput(subject string, data []byte) {
	n, err := strconv.Atoi(subject[strings.LastIndexByte(subject, '.')+1:])
	if err == nil {
		err = domain.ValidateInput(n)
	}
	if err != nil {
		b.logger.Warn("Ignoring input event", "subject", subject, "err", err)
		return
	}
	active := strings.TrimSpace(string(data)) != "0"

	b.mu.Lock()
	defer b.mu.Unlock()
	bit := uint16(1) << (n - 1)
	rising := active && b.inputs&bit == 0
	if active {
		b.inputs |= bit
	} else {
		b.inputs &^= bit
	}
	if !rising {
		return
	}
	for _, w := range b.watchers {
		select {
		case w <- n:
		default:
			b.logger.Warn("Input event dropped, watcher is full", "input", n)
		}
	}
}

// ReadInputs implements ports.InputReader with the last reported levels.
func (b *Board) ReadInputs(ctx context.Context) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs, nil
}

// WatchInputs implements ports.InputWatcher. Only rising edges are sent.
func (b *Board) WatchInputs(ctx context.Context) (<-chan int, error) {
	ch := make(chan int, 16)
	b.mu.Lock()
	b.watchers = append(b.watchers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, w := range b.watchers {
			if w == ch {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// SetOutput implements ports.OutputController.
func (b *Board) SetOutput(ctx context.Context, line int, on bool) error {
	return b.SetOutputs(ctx, []int{line}, on)
}

// SetOutputs implements ports.OutputController.
func (b *Board) SetOutputs(ctx context.Context, lines []int, on bool) error {
	for _, line := range lines {
		if err := domain.ValidateInput(line); err != nil {
			return err
		}
	}
	payload := []byte("0")
	if on {
		payload = []byte("1")
	}
	for _, line := range lines {
		subject := b.prefix + ".output." + strconv.Itoa(line)
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("failed to publish %s: %w", subject, err)
		}
	}
	return nil
}

// natsConn adapts *nats.Conn to Conn.
type natsConn struct {
	nc *nats.Conn
}

func (c natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c natsConn) Subscribe(subject string, handler func(string, []byte)) (Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
}
