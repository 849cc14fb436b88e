package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fdp/internal/session"
	"fdp/pkg/interfaces"
)

const (
	healthTimeout = 5 * time.Second
	maxAuditLimit = 1000
)

// Registry reports socket counts.
type Registry interface {
	Stats() map[string]int
}

// SessionStats reports registration counts.
type SessionStats interface {
	Stats() session.StoreStats
}

// writerStats is implemented by audit stores that expose queue counters.
type writerStats interface {
	Stats() map[string]int64
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	WebSocket      http.HandlerFunc
}

// Server is the HTTP side of the awareness service: health, counters, the
// audit trail and the WebSocket upgrade endpoint. It carries no protocol logic.
type Server struct {
	registry Registry
	sessions SessionStats
	audit    interfaces.AuditStore
	clock    clock.Clock
	logger   *zap.Logger
	started  time.Time
	engine   *gin.Engine
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Audit       string         `json:"audit"`
	Connections map[string]int `json:"connections"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Connections map[string]int     `json:"connections"`
	Sessions    session.StoreStats `json:"sessions"`
	Audit       map[string]int64   `json:"audit,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer builds the gin engine. audit may be nil when the trail is disabled.
func NewServer(registry Registry, sessions SessionStats, audit interfaces.AuditStore, clk clock.Clock, opts Options, logger *zap.Logger) *Server {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger.Named("http")))
	engine.Use(corsMiddleware(opts.AllowedOrigins, logger))

	s := &Server{
		registry: registry,
		sessions: sessions,
		audit:    audit,
		clock:    clk,
		logger:   logger,
		started:  clk.Now(),
		engine:   engine,
	}

	engine.GET("/health", s.healthCheck)
	api := engine.Group("/api")
	api.GET("/stats", s.stats)
	api.GET("/audit", s.auditEvents)
	if opts.WebSocket != nil {
		engine.GET("/ws", gin.WrapF(opts.WebSocket))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// GET /health returns 503 when the audit trail is enabled but unreachable.
func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   s.clock.Now(),
		Uptime:      s.clock.Since(s.started).Round(time.Second).String(),
		Audit:       "disabled",
		Connections: s.registry.Stats(),
	}

	if s.audit != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.audit.HealthCheck(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
			resp.Audit = "error: " + err.Error()
		} else {
			resp.Audit = "healthy"
		}
	}
	c.JSON(status, resp)
}

// GET /api/stats
func (s *Server) stats(c *gin.Context) {
	resp := StatsResponse{
		Connections: s.registry.Stats(),
		Sessions:    s.sessions.Stats(),
	}
	if ws, ok := s.audit.(writerStats); ok {
		resp.Audit = ws.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/audit?limit=N returns the newest audit events.
func (s *Server) auditEvents(c *gin.Context) {
	if s.audit == nil {
		s.sendError(c, http.StatusNotFound, "audit trail is disabled")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAuditLimit {
			s.sendError(c, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := s.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("audit query failed", zap.Error(err))
		s.sendError(c, http.StatusInternalServerError, "failed to read audit trail")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) sendError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
