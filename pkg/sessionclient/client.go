package sessionclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fdp/pkg/types"
)

// Listener receives server frames and connection changes. Calls are made
// from the client's read goroutine, one at a time, in arrival order.
type Listener interface {
	OnConnected()
	OnDisconnected(err error)
	OnAck(ack types.AckPayload)
	OnWarning(w types.SessionWarning)
	OnSync(payload types.SyncPayload)
	OnError(e types.ErrorPayload)
}

type Config struct {
	// URL of the awareness service. http(s) schemes are rewritten to
	// ws(s) and an empty path becomes /ws.
	URL               string
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
}

func DefaultConfig(rawURL string) Config {
	return Config{
		URL:               rawURL,
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

type Option func(*Client)

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is one window's connection to the awareness service. It holds at
// most one registration and heartbeats it until Deregister or Close.
// Reconnecting is the caller's job: Dial again and call Reregister.
type Client struct {
	cfg      Config
	listener Listener
	clock    clock.Clock
	logger   *zap.Logger
	conn     *websocket.Conn

	writeMu sync.Mutex

	mu           sync.Mutex
	registration *types.RegisterPayload
	closing      bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects and starts the read and heartbeat loops.
func Dial(ctx context.Context, cfg Config, listener Listener, opts ...Option) (*Client, error) {
	target, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	defaults := DefaultConfig(cfg.URL)
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}

	c := &Client{
		cfg:      cfg,
		listener: listener,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	c.conn = conn

	ticker := c.clock.Ticker(cfg.HeartbeatInterval)
	c.wg.Add(2)
	go c.readLoop()
	go c.heartbeatLoop(ticker)

	c.logger.Info("connected to awareness service", zap.String("url", target))
	c.listener.OnConnected()
	return c, nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Register announces the window's case. A missing WindowID is generated
// and a missing OpenedAt is set to now.
func (c *Client) Register(reg types.RegisterPayload) error {
	if !types.IsValidUserID(reg.UserID) {
		return fmt.Errorf("%w: user ID %q", ErrInvalidRegistration, reg.UserID)
	}
	if !types.IsValidCaseID(reg.CaseID) {
		return fmt.Errorf("%w: case ID", ErrInvalidRegistration)
	}
	if reg.WindowID == "" {
		reg.WindowID = uuid.NewString()
	}
	if reg.OpenedAt == 0 {
		reg.OpenedAt = c.clock.Now().UnixMilli()
	}
	if reg.ViewerType == "" {
		reg.ViewerType = types.ViewerTypeViewer
	}

	c.mu.Lock()
	stored := reg
	c.registration = &stored
	c.mu.Unlock()

	return c.send(types.MessageTypeRegister, reg)
}

// Reregister sends the last registration again, typically after a reconnect.
func (c *Client) Reregister() error {
	reg, ok := c.Registration()
	if !ok {
		return ErrNotRegistered
	}
	return c.send(types.MessageTypeRegister, reg)
}

// Deregister withdraws the window's registration.
func (c *Client) Deregister() error {
	c.mu.Lock()
	reg := c.registration
	c.registration = nil
	c.mu.Unlock()

	if reg == nil {
		return ErrNotRegistered
	}
	return c.send(types.MessageTypeDeregister, types.DeregisterPayload{WindowID: reg.WindowID})
}

// Heartbeat refreshes the registration's liveness.
func (c *Client) Heartbeat() error {
	reg, ok := c.Registration()
	if !ok {
		return ErrNotRegistered
	}
	return c.send(types.MessageTypeHeartbeat, types.HeartbeatPayload{
		WindowID:  reg.WindowID,
		FocusedAt: c.clock.Now().UnixMilli(),
	})
}

// Focus tells the service which case the workflow now expects in this window.
func (c *Client) Focus(caseID string) error {
	reg, ok := c.Registration()
	if !ok {
		return ErrNotRegistered
	}
	return c.FocusWindow(reg.WindowID, caseID)
}

// FocusWindow declares the case expected in another of the user's windows,
// as a case context window does for its viewer. The sender must itself be
// registered; the service ignores focus from anonymous connections.
func (c *Client) FocusWindow(windowID, caseID string) error {
	if _, ok := c.Registration(); !ok {
		return ErrNotRegistered
	}
	if !types.IsValidWindowID(windowID) {
		return fmt.Errorf("%w: %q", ErrInvalidWindowID, windowID)
	}
	return c.send(types.MessageTypeFocus, types.FocusPayload{WindowID: windowID, CaseID: caseID})
}

// Registration returns the current registration.
func (c *Client) Registration() (types.RegisterPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registration == nil {
		return types.RegisterPayload{}, false
	}
	return *c.registration, true
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) send(msgType string, payload interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(types.OutboundMessage{Type: msgType, Payload: payload}); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// Close deregisters, sends a normal close frame and waits for both loops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.wg.Wait()
		return nil
	}
	c.closing = true
	registered := c.registration != nil
	c.mu.Unlock()

	if registered {
		if err := c.Deregister(); err != nil {
			c.logger.Debug("deregister on close failed", zap.Error(err))
		}
	}

	wasDone := false
	select {
	case <-c.done:
		wasDone = true
	default:
	}

	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "window closed"),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()

	if err == nil {
		// Give the server a moment to echo the close frame.
		select {
		case <-c.done:
		case <-time.After(c.cfg.WriteTimeout):
		}
	}
	_ = c.conn.Close()
	c.wg.Wait()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !wasDone {
		return fmt.Errorf("send close frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()

			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.listener.OnDisconnected(nil)
			} else {
				c.logger.Warn("awareness connection lost", zap.Error(err))
				c.listener.OnDisconnected(err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed frame from server", zap.Error(err))
		return
	}

	var err error
	switch env.Type {
	case types.MessageTypeAck:
		var ack types.AckPayload
		if err = json.Unmarshal(env.Payload, &ack); err == nil {
			c.listener.OnAck(ack)
		}
	case types.MessageTypeWarning:
		var w types.SessionWarning
		if err = json.Unmarshal(env.Payload, &w); err == nil {
			c.listener.OnWarning(w)
		}
	case types.MessageTypeSync:
		var s types.SyncPayload
		if err = json.Unmarshal(env.Payload, &s); err == nil {
			c.listener.OnSync(s)
		}
	case types.MessageTypeError:
		var e types.ErrorPayload
		if err = json.Unmarshal(env.Payload, &e); err == nil {
			c.listener.OnError(e)
		}
	default:
		c.logger.Debug("ignoring unknown frame type", zap.String("type", env.Type))
	}
	if err != nil {
		c.logger.Warn("undecodable payload", zap.String("type", env.Type), zap.Error(err))
	}
}

func (c *Client) heartbeatLoop(ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil && !errors.Is(err, ErrNotRegistered) {
				c.logger.Warn("heartbeat failed", zap.Error(err))
			}
		case <-c.done:
			return
		}
	}
}
