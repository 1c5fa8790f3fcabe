package ports

import (
	"context"
	"time"
)

// Request describes one scoped line exchange with a device.
type Request struct {
	Host    string
	Port    int
	Timeout time.Duration
	Payload []byte

	// Terminator, when set, makes the exchange read until it appears.
	Terminator []byte
}

// LineChannel opens a connection, writes a command, optionally reads a reply
// and closes the connection again.
type LineChannel interface {
	// Exchange returns the reply (nil when no terminator was requested).
	// Connection and timeout failures are reported as domain.ErrDeviceUnreachable.
	Exchange(ctx context.Context, req Request) ([]byte, error)
}
