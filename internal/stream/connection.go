package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultPongWait         = 75 * time.Second
	writeWait               = 5 * time.Second
)

// Config describes one connection.
type Config struct {
	Endpoint     Endpoint
	Token        string
	HostRewrites HostRewrites

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 5 / 2
	}
	return c
}

// Option configures a Connection.
type Option func(*Connection)

// WithDialer replaces the websocket dialer (useful for testing).
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Connection) {
		c.dialer = dialer
	}
}

// WithLogger sets the logger; the global zerolog logger is used otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// Connection owns one streaming websocket.
type Connection struct {
	id       string
	cfg      Config
	url      string
	observer Observer
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	cancel    context.CancelFunc
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// Open starts connecting to cfg.Endpoint and returns immediately. Events are
// delivered to observer until a terminal Failed event or Close.
func Open(ctx context.Context, cfg Config, observer Observer, opts ...Option) *Connection {
	cfg = cfg.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)

	c := &Connection{
		id:       uuid.NewString(),
		cfg:      cfg,
		url:      cfg.Endpoint.URL(cfg.HostRewrites),
		observer: observer,
		logger:   log.Logger,
		state:    StateIdle,
		cancel:   cancel,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	c.logger = c.logger.With().
		Str("component", "stream").
		Str("conn_id", c.id).
		Str("endpoint", cfg.Endpoint.String()).
		Logger()

	go c.run(runCtx)
	return c
}

// ID identifies this connection instance in logs.
func (c *Connection) ID() string {
	return c.id
}

// Endpoint returns the endpoint this connection follows.
func (c *Connection) Endpoint() Endpoint {
	return c.cfg.Endpoint
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection stopped delivering events.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close terminates the connection and waits until the reader goroutine has
// exited. No observer call happens after Close returns. Close is idempotent
// and keeps StateError on a connection that already failed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateClosed
		}
		conn := c.conn
		c.mu.Unlock()

		close(c.closing)
		c.cancel()

		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			_ = conn.Close()
		}
		c.logger.Info().Msg("stream closed")
	})
	<-c.done
	return nil
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)

	if !c.transition(StateConnecting) {
		return
	}
	c.logger.Info().Str("url", c.url).Msg("stream connecting")

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			c.logger.Error().Err(err).Int("status", resp.StatusCode).Msg("stream dial failed")
		}
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info().Msg("stream opened")
	c.emit(Event{Type: Opened})

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.ping(conn, stopPing)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		// Any frame proves the server is alive.
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		ev, name, ok, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn().Err(err).Str("event", name).Msg("stream frame decode failed")
			c.emit(Event{Type: Failed, Err: &DecodeError{Endpoint: c.cfg.Endpoint, Event: name, Err: err}})
			continue
		}
		if !ok {
			c.logger.Debug().Str("event", name).Msg("stream frame ignored")
			continue
		}
		c.emit(ev)
	}
}

func (c *Connection) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.closing:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("stream ping failed")
				return
			}
		}
	}
}

// transition moves to next unless the connection already reached a
// terminal state.
func (c *Connection) transition(next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.terminal() {
		return false
	}
	c.state = next
	return true
}

// fail reports a transport failure once, unless Close caused it.
func (c *Connection) fail(err error) {
	if c.isClosing() {
		return
	}
	if !c.transition(StateError) {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	c.logger.Error().Err(err).Msg("stream failed")
	c.emit(Event{Type: Failed, Err: &TransportError{Endpoint: c.cfg.Endpoint, Err: err}})
}

func (c *Connection) emit(ev Event) {
	if c.observer == nil || c.isClosing() {
		return
	}
	c.observer(ev)
}

func (c *Connection) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}
