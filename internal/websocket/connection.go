package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeQueueSize = 100
	writeTimeout   = 5 * time.Second
	controlTimeout = 10 * time.Second
)

// Connection wraps one viewer window's socket. All data frames go through a
// single writer goroutine, so frames queued on one connection are delivered
// in the order WriteJSON was called.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	alive     atomic.Bool
	logger    *zap.Logger
}

// NewConnection wraps conn and starts its writer. The connection starts out alive.
func NewConnection(conn *websocket.Conn, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	c := &Connection{
		id:      id,
		conn:    conn,
		writeCh: make(chan []byte, writeQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("connection_id", id)),
	}
	c.alive.Store(true)

	go c.writeLoop()

	return c
}

// GetID returns the server-assigned connection ID.
func (c *Connection) GetID() string {
	return c.id
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// fail closes the socket after a write error so the read pump exits and the
// window is deregistered.
func (c *Connection) fail(err error) {
	c.logger.Debug("write failed, closing connection", zap.Error(err))
	_ = c.Close()
}

// WriteJSON marshals v and queues it for the writer. It never blocks: a
// client that lets its queue fill up is too slow to trust with warnings, so
// the connection is closed and its window goes through the normal close path.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("write queue full, closing slow connection", zap.Int("queued", len(c.writeCh)))
		_ = c.Close()
		return ErrWriteQueueFull
	}
}

// Ping sends a ping control frame. Gorilla allows WriteControl concurrently
// with the writer goroutine.
func (c *Connection) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlTimeout))
}

// markAlive records a pong.
func (c *Connection) markAlive() {
	c.alive.Store(true)
}

// checkAlive reports whether a pong arrived since the previous check and
// resets the flag for the next sweep.
func (c *Connection) checkAlive() bool {
	return c.alive.Swap(false)
}

// Close tears down the socket without a close handshake.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// CloseWithCode sends a close frame carrying code before closing.
func (c *Connection) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		err = c.conn.Close()
	})
	return err
}
