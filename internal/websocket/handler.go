package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fdp/pkg/interfaces"
)

// HandlerConfig tunes the upgrade and read side of each connection.
type HandlerConfig struct {
	AllowedOrigins   []string // empty or "*" allows any origin
	ReadLimit        int64
	PongWait         time.Duration
	HandshakeTimeout time.Duration
}

// DefaultHandlerConfig matches a 30s ping sweep: a socket silent for 75s is
// dropped by the read deadline even if the sweep has not caught it yet.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadLimit:        64 * 1024,
		PongWait:         75 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Handler upgrades HTTP requests and runs each connection's read pump.
// Frames and closes are forwarded to the sink; the handler holds no
// protocol state.
type Handler struct {
	registry *Registry
	sink     interfaces.EventSink
	config   HandlerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, sink interfaces.EventSink, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		registry: registry,
		sink:     sink,
		config:   cfg,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	conn := NewConnection(ws, h.logger)
	if err := h.registry.Add(conn); err != nil {
		h.logger.Warn("connection rejected", zap.Error(err), zap.String("connection_id", conn.GetID()))
		_ = conn.CloseWithCode(websocket.CloseTryAgainLater, "server at capacity")
		return
	}

	conn.logger.Info("connection opened", zap.String("remote", r.RemoteAddr))

	go h.readPump(conn)
}

// readPump reads frames until the socket fails. Whatever ends the pump, the
// sink hears about the close exactly once.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		if err := h.sink.Closed(conn.GetID()); err != nil {
			conn.logger.Warn("close event not delivered", zap.Error(err))
		}
		conn.logger.Info("connection closed")
	}()

	ws := conn.conn
	if h.config.ReadLimit > 0 {
		ws.SetReadLimit(h.config.ReadLimit)
	}
	h.extendDeadline(conn)
	ws.SetPongHandler(func(string) error {
		conn.markAlive()
		return h.extendDeadline(conn)
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				conn.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if err := h.extendDeadline(conn); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.sink.Inbound(conn.GetID(), data); err != nil {
			conn.logger.Warn("inbound frame not delivered", zap.Error(err))
			return
		}
	}
}

func (h *Handler) extendDeadline(conn *Connection) error {
	if h.config.PongWait <= 0 {
		return nil
	}
	return conn.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
}
