package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// Channel is a reconnecting websocket link to the robot.
type Channel struct {
	config  *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	dialer  websocket.Dialer

	mu        sync.Mutex
	state     ConnectionState
	conn      *websocket.Conn
	sendCh    chan []byte
	subs      map[*subscription]struct{}
	reconnect bool // reconnect-enabled flag
	stopped   bool // set by Disconnect, cleared by Connect
	cancel    context.CancelFunc
	done      chan struct{} // closed when connectLoop exits

	attempts atomic.Int64
}

type subscription struct {
	ch   chan Message
	stop func() bool
}

// New creates a Channel. Call Connect to start dialing.
func New(opts ...Option) (*Channel, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Channel{
		config:  cfg,
		logger:  cfg.Logger.With("component", "control.channel", "url", cfg.URL),
		metrics: cfg.Metrics,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		subs: make(map[*subscription]struct{}),
	}, nil
}

// Connect starts the connect loop. It returns immediately; use State or
// Messages to observe the connection. Calling Connect while the loop is
// running only re-enables reconnection.
//
// The loop stops when ctx is cancelled or Disconnect is called.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconnect = true
	c.stopped = false

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.connectLoop(loopCtx, c.done)
}

// connectLoop owns the underlying connection. Only one dial is ever in
// flight because this is the only goroutine that dials.
func (c *Channel) connectLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(StateDisconnected)

	for {
		if ctx.Err() != nil || !c.reconnectEnabled() {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("connect failed", "error", NewConnectionError("dial", err, c.reconnectEnabled()))
		} else {
			c.serve(ctx, conn)
		}

		if ctx.Err() != nil || !c.reconnectEnabled() {
			return
		}

		c.setState(StateDisconnected)
		c.logger.Info("reconnecting", "delay", c.config.ReconnectDelay)
		c.metrics.Reconnect()

		timer := time.NewTimer(c.config.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// dial opens one websocket connection.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.attempts.Add(1)

	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve runs the pumps for one connection and blocks until it closes.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	sendCh := make(chan []byte, c.config.SendBuffer)

	c.mu.Lock()
	c.conn = conn
	c.sendCh = sendCh
	c.state = StateConnected
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.logger.Info("connected")

	// Cancelling ctx unblocks the reader.
	stopCloser := context.AfterFunc(ctx, func() { conn.Close() })

	connDone := make(chan struct{})
	writerDone := make(chan struct{})
	go c.writeLoop(conn, sendCh, connDone, writerDone)

	err := c.readLoop(conn)

	stopCloser()
	close(connDone)
	<-writerDone
	conn.Close()

	c.mu.Lock()
	c.conn = nil
	c.sendCh = nil
	c.state = StateDisconnected
	subs := c.subs
	c.subs = make(map[*subscription]struct{})
	for s := range subs {
		s.stop()
		close(s.ch)
	}
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	if ctx.Err() == nil && c.reconnectEnabled() {
		c.logger.Warn("connection lost", "error", NewConnectionError("read", err, true))
	} else {
		c.logger.Info("connection closed")
	}
}

// readLoop decodes inbound frames until the connection fails.
func (c *Channel) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(c.config.MaxMessageSize)
	if c.config.PingInterval > 0 {
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return err
		}
		if c.config.PingInterval > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.logger.Warn("discarding inbound frame", "error", err, "bytes", len(data))
			c.metrics.Dropped("malformed")
			continue
		}

		c.metrics.Frame("in", string(msg.Feature()))
		c.dispatch(msg)
	}
}

// writeLoop is the only writer of data frames on conn.
func (c *Channel) writeLoop(conn *websocket.Conn, sendCh <-chan []byte, connDone <-chan struct{}, writerDone chan<- struct{}) {
	defer close(writerDone)

	var ping <-chan time.Time
	if c.config.PingInterval > 0 {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-connDone:
			return
		case data := <-sendCh:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("failed to send frame", "error", err)
				conn.Close()
				return
			}
		case <-ping:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Warn("keepalive ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// dispatch hands msg to every live subscription without blocking.
func (c *Channel) dispatch(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for s := range c.subs {
		select {
		case s.ch <- msg:
		default:
			c.logger.Warn("subscriber too slow, dropping frame", "feature", msg.Feature())
			c.metrics.Dropped("slow_subscriber")
		}
	}
}

// Send queues commands as one frame. When the channel is not connected the
// frame is dropped and logged; that is not an error because disconnects
// are expected. Errors are only returned for frames that cannot be encoded.
func (c *Channel) Send(cmds ...Command) error {
	data, err := EncodeCommands(cmds...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sendCh := c.sendCh
	c.mu.Unlock()

	if sendCh == nil {
		c.logger.Warn("dropping frame", "error", ErrNotConnected, "feature", cmds[0].Feature)
		c.metrics.Dropped("not_connected")
		return nil
	}

	select {
	case sendCh <- data:
		c.metrics.Frame("out", string(cmds[0].Feature))
	default:
		c.logger.Warn("send buffer full, dropping frame", "feature", cmds[0].Feature)
		c.metrics.Dropped("send_buffer_full")
	}
	return nil
}

// Speak asks the robot to say text in lang.
func (c *Channel) Speak(text, lang string) error {
	return c.Send(SpeakCommand(text, lang))
}

// Messages returns the inbound frames of the current connection, or of the
// next one when the channel is between connections. The channel is closed
// when that connection ends, when ctx is done, or on Disconnect; call
// Messages again to follow the next connection.
func (c *Channel) Messages(ctx context.Context) <-chan Message {
	s := &subscription{ch: make(chan Message, c.config.SubscriberBuffer)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || ctx.Err() != nil {
		close(s.ch)
		return s.ch
	}

	s.stop = context.AfterFunc(ctx, func() { c.unsubscribe(s) })
	c.subs[s] = struct{}{}
	return s.ch
}

func (c *Channel) unsubscribe(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[s]; ok {
		delete(c.subs, s)
		close(s.ch)
	}
}

// Disconnect disables reconnection, closes the connection with a normal
// closure and ends every Messages subscription. It blocks until the
// connect loop has exited.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.reconnect = false
	c.stopped = true
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("close frame not sent", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	for s := range c.subs {
		s.stop()
		close(s.ch)
	}
	c.subs = make(map[*subscription]struct{})
	c.mu.Unlock()
}

// Wait blocks until the connect loop has exited, either because the ctx
// given to Connect ended or Disconnect was called. It returns at once if
// Connect was never called.
func (c *Channel) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close implements io.Closer by calling Disconnect.
func (c *Channel) Close() error {
	c.Disconnect()
	return nil
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true while frames can be exchanged.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Attempts returns the number of dials made so far.
func (c *Channel) Attempts() int64 {
	return c.attempts.Load()
}

// URL returns the endpoint URL.
func (c *Channel) URL() string {
	return c.config.URL
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) reconnectEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect
}
