// Package transport carries frames between the client and the game server.
//
// The connection manager only sees the Transport and Dialer interfaces; the
// websocket implementation lives here and an in-memory fake lives in
// transporttest.
package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Frame is one inbound message with its receive timestamp.
type Frame struct {
	Data       []byte    // Raw message bytes
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Transport is a single open connection.
type Transport interface {
	// Send writes one frame.
	Send(data []byte) error

	// Messages returns inbound frames in arrival order. The channel is
	// closed when the connection ends for any reason.
	Messages() <-chan Frame

	// Err returns why the connection ended. It is nil while the connection
	// is open and after a local Close.
	Err() error

	// IsConnected returns current connection state.
	IsConnected() bool

	// Close closes the connection. Idempotent.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}
