// Package numato drives Numato Lab USB GPIO modules over their serial
// command shell (gpio set|clear|readall).
package numato

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 19200
	DefaultTimeout  = time.Second

	prompt = '>'
)

// Port is the part of a serial port the board uses. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// Board implements ports.InputReader and ports.OutputController on a
// Numato GPIO module. Input n is GPIO n-1; output line L is GPIO
// outputBase+L-1.
type Board struct {
	mu         sync.Mutex
	port       Port
	timeout    time.Duration
	outputBase int
	logger     *slog.Logger
}

// Option configures the Board.
type Option func(*Board)

// WithLogger configures a logger for the Board.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		b.logger = logger
	}
}

// WithTimeout bounds each command round trip.
func WithTimeout(d time.Duration) Option {
	return func(b *Board) {
		b.timeout = d
	}
}

// WithOutputBase shifts output lines onto higher GPIO indices so inputs and
// outputs can share one module.
func WithOutputBase(base int) Option {
	return func(b *Board) {
		b.outputBase = base
	}
}

// Open opens the serial device at path.
func Open(path string, baud int, opts ...Option) (*Board, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return New(port, opts...), nil
}

// New wraps an already open port.
func New(port Port, opts ...Option) *Board {
	b := &Board{
		port:    port,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close closes the serial port.
func (b *Board) Close() error {
	return b.port.Close()
}

// ReadInputs implements ports.InputReader.
func (b *Board) ReadInputs(ctx context.Context) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply, err := b.command(ctx, "gpio readall")
	if err != nil {
		return 0, err
	}
	mask, err := strconv.ParseUint(reply, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected readall reply %q: %w", reply, err)
	}
	return uint16(mask), nil
}

// SetOutput implements ports.OutputController.
func (b *Board) SetOutput(ctx context.Context, line int, on bool) error {
	return b.SetOutputs(ctx, []int{line}, on)
}

// SetOutputs implements ports.OutputController. The module has no batch
// command, so the lines are written back to back under one lock.
func (b *Board) SetOutputs(ctx context.Context, lines []int, on bool) error {
	for _, line := range lines {
		if err := domain.ValidateInput(line); err != nil {
			return err
		}
	}

	verb := "clear"
	if on {
		verb = "set"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range lines {
		cmd := "gpio " + verb + " " + gpioIndex(b.outputBase+line-1)
		if _, err := b.command(ctx, cmd); err != nil {
			return err
		}
	}
	b.logger.Debug("Outputs written", "lines", lines, "on", on)
	return nil
}

// command sends cmd and returns the reply with the echo and prompt removed.
// The caller holds b.mu.
func (b *Board) command(ctx context.Context, cmd string) (string, error) {
	if _, err := b.port.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", cmd, err)
	}

	deadline := time.Now().Add(b.timeout)
	var buf bytes.Buffer
	chunk := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := b.port.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("failed to read reply to %q: %w", cmd, err)
		}
		buf.Write(chunk[:n])
		if i := bytes.IndexByte(buf.Bytes(), prompt); i >= 0 {
			return parseReply(buf.String()[:i], cmd), nil
		}
		if n == 0 && time.Now().After(deadline) {
			return "", fmt.Errorf("no reply to %q within %s", cmd, b.timeout)
		}
	}
}

// parseReply drops the echoed command and surrounding line breaks.
func parseReply(raw, cmd string) string {
	raw = strings.TrimPrefix(strings.TrimLeft(raw, "\r\n"), cmd)
	return strings.TrimSpace(raw)
}

// gpioIndex renders a GPIO number the way the module expects it: 0-9 then
// A-V.
func gpioIndex(i int) string {
	return strings.ToUpper(strconv.FormatInt(int64(i), 32))
}
