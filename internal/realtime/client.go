// Package realtime maintains the push channel to the backend: one
// authenticated websocket per process that re-registers the user after
// every reconnect and fans decoded events out to listeners.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/obs"
)

// ErrConnectTimeout is returned by Connect when the channel did not become
// ready in time. The reconnect loop keeps running.
var ErrConnectTimeout = errors.New("realtime: connect timed out")

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReuseTimeout   = 5 * time.Second
	defaultMinBackoff     = time.Second
	defaultMaxBackoff     = 5 * time.Second
	defaultPingInterval   = 25 * time.Second
	writeWait             = 10 * time.Second
	dedupeSize            = 256
)

// Config configures a Client.
type Config struct {
	URL    string
	UserID string
	Token  string

	// ConnectTimeout bounds the first Connect; ReuseTimeout bounds a
	// Connect that joins an existing connection loop.
	ConnectTimeout time.Duration
	ReuseTimeout   time.Duration

	// MinBackoff and MaxBackoff clamp the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// PingInterval is the keepalive period. The connection is considered
	// dead after two missed intervals.
	PingInterval time.Duration

	Dialer *websocket.Dialer
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReuseTimeout <= 0 {
		c.ReuseTimeout = defaultReuseTimeout
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = defaultMaxBackoff
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.ConnectTimeout,
		}
	}
}

type subscription struct {
	id       int
	listener Listener
}

// Client is the process-wide realtime channel. The zero value is not
// usable; construct with NewClient.
type Client struct {
	cfg     Config
	log     *zap.Logger
	metrics *obs.Metrics
	dedupe  *dedupeWindow

	mu        gosync.Mutex
	running   bool
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	conn      *websocket.Conn
	state     State
	connects  int
	listeners []subscription
	nextSubID int
}

// NewClient creates a disconnected Client.
func NewClient(cfg Config, log *zap.Logger, metrics *obs.Metrics) *Client {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NopMetrics()
	}
	return &Client{
		cfg:     cfg,
		log:     log.Named("realtime"),
		metrics: metrics,
		dedupe:  newDedupeWindow(dedupeSize),
	}
}

// Subscribe registers l for all future events and returns a function that
// removes it. The registration survives reconnects.
func (c *Client) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.listeners = append(c.listeners, subscription{id: id, listener: l})
	c.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.listeners {
				if s.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Connect starts the connection loop if it is not running and waits until
// the channel is ready. Repeated calls share one loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	timeout := c.cfg.ReuseTimeout
	if !c.running {
		timeout = c.cfg.ConnectTimeout
		c.startLocked()
	}
	ready := c.ready
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the socket and stops the loop. A later Connect starts
// from scratch.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.gen++
	cancel, done := c.cancel, c.done
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	cancel()
	<-done
	c.dedupe.reset()

	if wasConnected {
		c.metrics.RealtimeConnected.Set(0)
		c.dispatch(func(l Listener) { l.OnStateChange(StateDisconnected) })
	}
	c.log.Info("realtime channel closed")
}

// State returns the current liveness.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connects returns how many handshakes (including registration) have
// completed since the Client was created.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *Client) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.gen++
	c.cancel = cancel
	c.done = make(chan struct{})
	c.ready = make(chan struct{})
	go c.run(ctx, c.gen, c.done)
}

// run keeps the channel connected until ctx is cancelled.
func (c *Client) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		conn, err := c.dial(ctx)
		if err == nil {
			b.Reset()
			c.serve(ctx, gen, conn)
		} else if ctx.Err() == nil {
			c.log.Warn("realtime connect failed", zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}

		wait := clamp(b.NextBackOff(), c.cfg.MinBackoff, c.cfg.MaxBackoff)
		c.log.Debug("realtime reconnect scheduled", zap.Duration("in", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// dial opens the websocket and registers the user on it.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime url: %w", err)
	}
	q := u.Query()
	q.Set("userId", c.cfg.UserID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.cfg.Dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: status %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", u.Host, err)
	}

	msg, err := encodeEnvelope(EventRegisterUser, registerPayload{UserID: c.cfg.UserID})
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registering user: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	return conn, nil
}

// serve marks the channel ready and reads frames until the connection
// drops or ctx is cancelled.
func (c *Client) serve(ctx context.Context, gen uint64, conn *websocket.Conn) {
	defer conn.Close()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.connects++
	reconnect := c.connects > 1
	close(c.ready)
	c.mu.Unlock()

	c.metrics.RealtimeConnects.Inc()
	c.metrics.RealtimeConnected.Set(1)
	c.log.Info("realtime channel connected", zap.String("user_id", c.cfg.UserID), zap.Bool("reconnect", reconnect))
	c.dispatch(func(l Listener) { l.OnStateChange(StateConnected) })

	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.keepalive(conn, pingDone)

	deadline := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("realtime channel dropped", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleFrame(data)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.ready = make(chan struct{})
	c.mu.Unlock()

	c.metrics.RealtimeConnected.Set(0)
	c.dispatch(func(l Listener) { l.OnStateChange(StateDisconnected) })
}

func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one inbound frame and dispatches it. Malformed and
// unknown frames are dropped.
func (c *Client) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("dropping malformed realtime frame", zap.Error(err))
		return
	}

	switch env.Event {
	case EventNewNotification:
		// Re-delivered pushes would otherwise overwrite newer local state.
		if c.dedupe.seen(data) {
			c.metrics.RealtimeDuplicates.Inc()
			return
		}
		n, hasReadState, err := decodeNotification(env.Data)
		if err != nil || n.NotificationID == "" {
			c.log.Warn("dropping malformed new_notification", zap.Error(err))
			return
		}
		c.metrics.RealtimeEvents.WithLabelValues(env.Event).Inc()
		c.dispatch(func(l Listener) { l.OnNotification(n, hasReadState) })

	case EventNotificationUpdated:
		var u ReadUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil || u.NotificationID == "" {
			c.log.Warn("dropping malformed notification_updated", zap.Error(err))
			return
		}
		c.metrics.RealtimeEvents.WithLabelValues(env.Event).Inc()
		c.dispatch(func(l Listener) { l.OnNotificationUpdated(u) })

	default:
		c.log.Debug("ignoring realtime event", zap.String("event", env.Event))
	}
}

// dispatch calls fn for every listener in subscription order. A panicking
// listener is logged and skipped.
func (c *Client) dispatch(fn func(Listener)) {
	c.mu.Lock()
	subs := make([]subscription, len(c.listeners))
	copy(subs, c.listeners)
	c.mu.Unlock()

	for _, s := range subs {
		c.call(s.listener, fn)
	}
}

func (c *Client) call(l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("realtime listener panicked", zap.Any("panic", r))
		}
	}()
	fn(l)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
