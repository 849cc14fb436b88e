package app

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fdp/internal/api"
	"fdp/internal/config"
	"fdp/internal/database"
	"fdp/internal/hub"
	"fdp/internal/router"
	"fdp/internal/session"
	ws "fdp/internal/websocket"
	pkgdatabase "fdp/pkg/database"
	"fdp/pkg/interfaces"
)

// Application owns every server component. Construction follows dependency
// order: audit, session, registry, router, hub, HTTP.
type Application struct {
	config   *config.Config
	clock    clock.Clock
	logger   *zap.Logger
	audit    *database.Manager
	sessions *session.Manager
	registry *ws.Registry
	hub      *hub.Hub
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewApplication wires the awareness service. clk may be nil for the wall clock.
func NewApplication(cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	app := &Application{config: cfg, clock: clk, logger: logger}

	var recorder interfaces.AuditRecorder = interfaces.NoopAuditRecorder{}
	var auditStore interfaces.AuditStore
	if cfg.Audit.Enabled {
		manager, err := database.NewManager(
			pkgdatabase.DefaultConfig(cfg.Audit.Path),
			database.Options{QueueSize: cfg.Audit.QueueSize, WriteTimeout: cfg.Audit.Timeout},
			clk, logger)
		if err != nil {
			return nil, errors.Wrap(err, "initialize audit trail")
		}
		app.audit = manager
		recorder = manager
		auditStore = manager
	}

	app.sessions = session.NewManager(session.NewStore(clk), clk, session.Config{
		HeartbeatTimeout:      cfg.Session.HeartbeatTimeout,
		MaxConnectionsPerUser: cfg.Session.MaxConnectionsPerUser,
	}, recorder, logger.Named("session"))

	app.registry = ws.NewRegistry(cfg.WebSocket.MaxConnections, logger.Named("websocket"))

	limiter := router.NewRateLimiter(cfg.Session.RateLimitPerMinute, clk)
	messageRouter := router.NewRouter(app.sessions, app.registry, limiter, logger.Named("router"))

	app.hub = hub.NewHub(messageRouter, app.registry, clk, hub.Config{
		CleanupInterval: cfg.Session.CleanupInterval,
		PingInterval:    cfg.WebSocket.PingInterval,
	}, logger.Named("hub"))

	wsHandler := ws.NewHandler(app.registry, app.hub, ws.HandlerConfig{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		ReadLimit:        cfg.WebSocket.ReadLimit,
		PongWait:         cfg.WebSocket.PongWait,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
	}, logger.Named("websocket"))

	apiServer := api.NewServer(app.registry, app.sessions.Store(), auditStore, clk, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WebSocket:      wsHandler.HandleWebSocket,
	}, logger)

	app.server = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return app, nil
}

// Start runs the hub and begins serving. It returns once the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return errors.Wrap(err, "start hub")
	}

	listener, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return errors.Wrapf(err, "listen on %s", app.server.Addr)
	}

	app.mu.Lock()
	app.listener = listener
	app.serveErr = make(chan error, 1)
	serveErr := app.serveErr
	app.mu.Unlock()

	go func() {
		if err := app.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	app.logger.Info("session awareness server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("audit", app.audit != nil))
	return nil
}

// Errors reports a fatal serve error. It is closed when serving stops.
func (app *Application) Errors() <-chan error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serveErr
}

// Addr returns the bound address, or the configured one before Start.
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.server.Addr
}

// Stop shuts down in reverse order: the hub stops first so no sweep or
// warning races the socket teardown, then clients get a normal close,
// then HTTP drains, and finally the audit queue is flushed.
func (app *Application) Stop(ctx context.Context) error {
	var errs []error

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, errors.Wrap(err, "stop hub"))
	}

	app.registry.CloseAll(websocket.CloseNormalClosure, "server shutdown")

	if err := app.server.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "shutdown http server"))
	}

	if app.audit != nil {
		if err := app.audit.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close audit trail"))
		}
	}

	app.logger.Info("session awareness server stopped")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Sessions exposes the session manager for status tooling.
func (app *Application) Sessions() *session.Manager {
	return app.sessions
}
