// Package telnet implements ports.LineChannel over telnet connections to
// label printers and barcode readers.
package telnet

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/ziutek/telnet"
)

// DefaultTimeout bounds a whole exchange when the request carries none.
const DefaultTimeout = 5 * time.Second

// Channel opens one connection per exchange.
type Channel struct {
	dialer net.Dialer
	logger *slog.Logger
}

// Option configures the Channel.
type Option func(*Channel)

// WithLogger configures a logger for the Channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New creates a Channel.
func New(opts ...Option) *Channel {
	c := &Channel{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.LineChannel = (*Channel)(nil)

// Exchange implements ports.LineChannel. The connection is closed on every
// path. Option negotiation from the device is answered by the telnet
// connection and never reaches the reply.
func (c *Channel) Exchange(ctx context.Context, req ports.Request) ([]byte, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
	raw, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, domain.DeviceUnreachable(req.Host, req.Port, err)
	}
	conn, err := telnet.NewConn(raw)
	if err != nil {
		raw.Close()
		return nil, domain.DeviceUnreachable(req.Host, req.Port, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	start := time.Now()
	if _, err := conn.Write(req.Payload); err != nil {
		return nil, domain.DeviceUnreachable(req.Host, req.Port, err)
	}
	if len(req.Terminator) == 0 {
		c.logger.Debug("Line exchange sent", "addr", addr, "bytes", len(req.Payload))
		return nil, nil
	}

	reply, err := conn.ReadUntil(string(req.Terminator))
	if err != nil {
		return nil, domain.DeviceUnreachable(req.Host, req.Port, err)
	}
	c.logger.Debug("Line exchange completed",
		"addr", addr,
		"bytes", len(reply),
		"duration", time.Since(start),
	)
	return reply, nil
}
