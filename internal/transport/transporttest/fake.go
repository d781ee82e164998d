// Package transporttest provides an in-memory Transport and Dialer for tests.
//
// A Dialer hands out Conns. Tests script the server side through the Conn:
// Deliver pushes inbound frames, Drop simulates a connection loss and Sent
// returns what the client wrote. A Dialer's Handler runs for every frame the
// client sends and can reply, which is how join/rejoin handshakes are faked.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/wire"
)

// ErrDialRefused is the default error for scripted dial failures.
var ErrDialRefused = errors.New("dial refused")

// Handler is called for every envelope the client sends on conn.
type Handler func(conn *Conn, env wire.Envelope)

// Dialer is a scripted transport.Dialer.
type Dialer struct {
	mu       sync.Mutex
	failures []error // Consumed in order before dials succeed
	failAll  error
	handler  Handler
	conns    []*Conn
	dials    int
	dialed   chan *Conn
}

// NewDialer creates a dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// FailNext makes the next n dials fail with err (ErrDialRefused if nil).
func (d *Dialer) FailNext(n int, err error) {
	if err == nil {
		err = ErrDialRefused
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures = append(d.failures, err)
	}
}

// FailAll makes every dial fail with err until cleared with nil.
func (d *Dialer) FailAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

// SetHandler installs the server-side handler for new and existing conns.
func (d *Dialer) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	conns := append([]*Conn(nil), d.conns...)
	d.mu.Unlock()
	for _, c := range conns {
		c.setHandler(h)
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context) (transport.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials++
	if d.failAll != nil {
		err := d.failAll
		d.mu.Unlock()
		return nil, err
	}
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	c := newConn(d.handler)
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	select {
	case d.dialed <- c:
	default:
	}
	return c, nil
}

// Dials returns how many dials were attempted.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns every successfully dialed conn.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recently dialed conn, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// WaitDial waits for the next successful dial.
func (d *Dialer) WaitDial(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-d.dialed:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Conn is an in-memory transport.Transport.
type Conn struct {
	messages chan transport.Frame
	sent     chan wire.Envelope

	mu        sync.Mutex
	handler   Handler
	frames    [][]byte
	connected bool
	closed    bool
	err       error
	sendErr   error
}

func newConn(h Handler) *Conn {
	return &Conn{
		messages:  make(chan transport.Frame, 256),
		sent:      make(chan wire.Envelope, 256),
		handler:   h,
		connected: true,
	}
}

func (c *Conn) setHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Send implements transport.Transport.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	h := c.handler
	c.mu.Unlock()

	env, err := wire.Unmarshal(data)
	if err != nil {
		return nil
	}
	select {
	case c.sent <- env:
	default:
	}
	if h != nil {
		h(c, env)
	}
	return nil
}

// Messages implements transport.Transport.
func (c *Conn) Messages() <-chan transport.Frame {
	return c.messages
}

// Err implements transport.Transport.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsConnected implements transport.Transport.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close implements transport.Transport.
func (c *Conn) Close() error {
	c.end(nil)
	return nil
}

// Closed reports whether the conn ended, locally or via Drop.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Drop simulates an unexpected connection loss.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = errors.New("connection reset")
	}
	c.end(err)
}

// FailSends makes subsequent Sends return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *Conn) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.connected = false
	c.err = err
	close(c.messages)
}

// Deliver pushes a raw inbound frame. It is a no-op once the conn ended.
func (c *Conn) Deliver(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.messages <- transport.Frame{Data: frame, ReceivedAt: time.Now()}
}

// DeliverEvent encodes ev as a reply to id (empty for broadcasts) and
// delivers it.
func (c *Conn) DeliverEvent(id string, ev wire.Event) {
	env, err := wire.EncodeEvent(id, ev, time.Now())
	if err != nil {
		panic(err)
	}
	frame, err := wire.Marshal(env)
	if err != nil {
		panic(err)
	}
	c.Deliver(frame)
}

// Frames returns every raw frame the client sent.
func (c *Conn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// Sent returns every envelope the client sent, in order.
func (c *Conn) Sent() []wire.Envelope {
	var out []wire.Envelope
	for _, f := range c.Frames() {
		if env, err := wire.Unmarshal(f); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// WaitSent waits for the next envelope the client sends.
func (c *Conn) WaitSent(timeout time.Duration) (wire.Envelope, bool) {
	select {
	case env := <-c.sent:
		return env, true
	case <-time.After(timeout):
		return wire.Envelope{}, false
	}
}

// WaitSentType waits for the next envelope of the given type, skipping others.
func (c *Conn) WaitSentType(typ string, timeout time.Duration) (wire.Envelope, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case env := <-c.sent:
			if env.Type == typ {
				return env, true
			}
		case <-deadline:
			return wire.Envelope{}, false
		}
	}
}

var (
	_ transport.Transport = (*Conn)(nil)
	_ transport.Dialer    = (*Dialer)(nil)
)
