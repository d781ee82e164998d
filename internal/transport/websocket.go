package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a websocket transport.
type Config struct {
	URL              string        // Server URL, e.g. wss://play.example.com/ws
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial handshake limit
	PingInterval     time.Duration // Keep-alive ping period
	PingTimeout      time.Duration // Max time without pong before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound frame buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// WebSocketDialer dials websocket transports.
type WebSocketDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer. Zero config durations use defaults.
func NewWebSocketDialer(cfg Config, logger *slog.Logger) *WebSocketDialer {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial establishes the websocket connection and starts its read and
// heartbeat loops.
func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	header := http.Header{}
	for k, v := range d.cfg.Header {
		header[k] = v
	}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.URL, err)
	}

	t := &wsTransport{
		cfg:       d.cfg,
		logger:    d.logger,
		conn:      conn,
		messages:  make(chan Frame, d.cfg.BufferSize),
		done:      make(chan struct{}),
		connected: true,
		lastPong:  time.Now(),
	}

	// Server pings count as liveness too.
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop()
	go t.heartbeatLoop()

	d.logger.Debug("websocket connected", "url", d.cfg.URL)
	return t, nil
}

type wsTransport struct {
	cfg    Config
	logger *slog.Logger
	conn   *websocket.Conn

	messages chan Frame
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
	lastPong  time.Time
	err       error
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Messages() <-chan Frame {
	return t.messages
}

func (t *wsTransport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *wsTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	close(t.done)

	t.writeMu.Lock()
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPong = time.Now()
	t.mu.Unlock()
}

// fail records the reason the connection ended, unless it was closed locally.
func (t *wsTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	if !t.closed && t.err == nil {
		t.err = err
	}
}

// readLoop forwards frames until the connection ends, then closes messages.
func (t *wsTransport) readLoop() {
	defer close(t.messages)

	for {
		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-t.done:
				t.fail(nil)
			default:
				t.fail(err)
			}
			return
		}

		select {
		case t.messages <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			t.fail(nil)
			return
		}
	}
}

// heartbeatLoop pings the server and detects stale connections.
func (t *wsTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.RLock()
			lastPong := t.lastPong
			t.mu.RUnlock()

			if time.Since(lastPong) > t.cfg.PingTimeout {
				t.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				// Unblocks readLoop, which closes messages.
				_ = t.conn.Close()
				return
			}
		}
	}
}
