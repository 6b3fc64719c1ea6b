// Package realtime keeps one WebSocket connection to the bound POS server
// and dispatches its named events to subscribers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// State is the connection state reported to observers.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

var (
	// ErrConnectFailed is returned when every dial attempt failed.
	ErrConnectFailed = errors.New("realtime: could not connect")
	// ErrClosed is returned when Disconnect raced a Connect in progress.
	ErrClosed = errors.New("realtime: client disconnected")
	// ErrNotConnected is returned by Emit without a live connection.
	ErrNotConnected = errors.New("realtime: not connected")
)

// Handler receives one event.  A panicking handler is recovered and does not
// affect other handlers or the connection.
type Handler func(Event)

// Options tune connection behaviour.
type Options struct {
	Attempts    int           // dial attempts per (re)connect, default 3
	DialTimeout time.Duration // per attempt, default 5s
	RetryDelay  time.Duration // pause between attempts, default 1s
	Path        string        // WebSocket path, default "/ws"
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Path == "" {
		o.Path = "/ws"
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Client is a single-connection event client.
type Client struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	authed    bool
	gen       uint64
	cancel    context.CancelFunc
	handlers  map[string][]Handler
	observers []func(State)
}

// New returns a disconnected client.
func New(opts Options) *Client {
	return &Client{opts: opts.withDefaults(), handlers: map[string][]Handler{}}
}

// On subscribes h to event.  Handlers persist across reconnects.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// OnStateChange registers an observer of connection state transitions.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a connection is live.
func (c *Client) Connected() bool { return c.State() == StateConnected }

// Authenticated reports whether the server acknowledged the auth message on
// the current connection.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

// Connect dials baseURL and sends the auth message carrying token.  It does
// not wait for the acknowledgement.  Calling Connect while connected or
// connecting is a no-op.
func (c *Client) Connect(ctx context.Context, baseURL, token string) error {
	wsURL, origin, err := c.endpoint(baseURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	life, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(gen, StateConnecting)

	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-life.Done():
			stop()
		case <-dialCtx.Done():
		}
	}()

	conn, err := c.dial(dialCtx, wsURL, origin, token)
	if err != nil {
		c.drop(gen)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(gen, StateConnected)
	c.opts.Logger.Info("realtime connected", "url", wsURL)

	go c.run(life, gen, conn, wsURL, origin, token)
	return nil
}

// Disconnect closes the connection and discards it.  A later Connect dials a
// fresh one.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	cancel := c.cancel
	c.conn, c.cancel = nil, nil
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.authed = false
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if changed {
		notify(observers, StateDisconnected)
	}
}

// Emit sends a client → server event on the live connection.
func (c *Client) Emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	f, err := NewFrame(event, data)
	if err != nil {
		return err
	}
	return websocket.JSON.Send(conn, f)
}

// run reads frames until the connection drops, then reconnects within the
// attempt budget.  It exits for good after the budget is exhausted or when
// the generation it belongs to is superseded by Disconnect.
func (c *Client) run(life context.Context, gen uint64, conn *websocket.Conn, wsURL, origin, token string) {
	for {
		c.readLoop(gen, conn)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.authed = false
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(gen, StateConnecting)
		c.opts.Logger.Warn("realtime connection lost, reconnecting", "url", wsURL, "attempts", c.opts.Attempts)

		next, err := c.dial(life, wsURL, origin, token)
		if err != nil {
			c.opts.Logger.Error("realtime reconnect gave up", "url", wsURL, "error", err)
			c.drop(gen)
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = next.Close()
			return
		}
		c.conn = next
		c.mu.Unlock()
		c.setState(gen, StateConnected)
		conn = next
	}
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		var f Frame
		if err := websocket.JSON.Receive(conn, &f); err != nil {
			if !errors.Is(err, io.EOF) {
				c.opts.Logger.Debug("realtime read ended", "error", err)
			}
			return
		}
		if f.Event == "" {
			continue
		}
		c.mu.Lock()
		stale := c.gen != gen
		switch f.Event {
		case EventAuthOK:
			c.authed = !stale
		case EventAuthError:
			c.authed = false
		}
		c.mu.Unlock()
		if stale {
			return
		}
		c.dispatch(Event{Name: f.Event, Data: f.Data})
	}
}

// dispatch runs every handler of ev.Name in registration order, each
// isolated from the others' panics.
func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[ev.Name]...)
	c.mu.Unlock()
	for _, h := range hs {
		c.safeCall(h, ev)
	}
}

func (c *Client) safeCall(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Error("realtime handler panicked", "event", ev.Name, "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

// dial tries up to Attempts times and sends the auth frame on success.
func (c *Client) dial(ctx context.Context, wsURL, origin, token string) (*websocket.Conn, error) {
	var last error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		conn, err := c.dialOnce(ctx, wsURL, origin)
		if err == nil {
			if token != "" {
				f, _ := NewFrame(EventAuth, AuthPayload{Token: token})
				if err = websocket.JSON.Send(conn, f); err != nil {
					_ = conn.Close()
				}
			}
			if err == nil {
				return conn, nil
			}
		}
		last = err
		c.opts.Logger.Debug("realtime dial failed", "url", wsURL, "attempt", attempt, "error", err)
		if attempt == c.opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, ctx.Err())
		case <-time.After(c.opts.RetryDelay):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, c.opts.Attempts, last)
}

func (c *Client) dialOnce(ctx context.Context, wsURL, origin string) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	return cfg.DialContext(dctx)
}

// drop marks generation gen as disconnected if it is still current.
func (c *Client) drop(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.authed = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.setState(gen, StateDisconnected)
}

func (c *Client) setState(gen uint64, s State) {
	c.mu.Lock()
	if c.gen != gen || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := slices.Clone(c.observers)
	c.mu.Unlock()
	notify(observers, s)
}

func notify(observers []func(State), s State) {
	for _, fn := range observers {
		fn(s)
	}
}

// endpoint turns an http base URL into the ws URL and origin to dial.
func (c *Client) endpoint(baseURL string) (wsURL, origin string, err error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("realtime: invalid server address %q", baseURL)
	}
	origin = u.Scheme + "://" + u.Host
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
		origin = "https://" + u.Host
	default:
		u.Scheme = "ws"
		origin = "http://" + u.Host
	}
	u.Path = c.opts.Path
	return u.String(), origin, nil
}
