package hub

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"fdp/internal/router"
	"fdp/pkg/interfaces"
)

const eventBuffer = 1000

// Config sets the two background sweeps.
type Config struct {
	CleanupInterval time.Duration
	PingInterval    time.Duration
}

// DefaultConfig runs both sweeps every 30 seconds.
func DefaultConfig() Config {
	return Config{
		CleanupInterval: 30 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

// Pinger runs one liveness sweep over open sockets.
type Pinger interface {
	PingSweep() []string
}

// connectionEvent is a frame or, when closed is set, the end of a
// connection. Both share one queue so a close is never handled before a
// frame the same connection sent earlier.
type connectionEvent struct {
	connectionID string
	data         []byte
	closed       bool
}

// Hub serializes every protocol event on one goroutine: inbound frames,
// connection closes, the stale sweep and the ping sweep. Registry mutations
// and warning delivery therefore happen in the order events arrive.
type Hub struct {
	events chan connectionEvent

	router *router.Router
	pinger Pinger
	clock  clock.Clock
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

var _ interfaces.EventSink = (*Hub)(nil)

// NewHub creates a hub. A nil pinger disables the ping sweep.
func NewHub(r *router.Router, pinger Pinger, clk clock.Clock, cfg Config, logger *zap.Logger) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		events: make(chan connectionEvent, eventBuffer),
		router: r,
		pinger: pinger,
		clock:  clk,
		config: cfg,
		logger: logger,
	}
}

// Start launches the event loop and its sweep timers.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	if h.config.CleanupInterval <= 0 || h.config.PingInterval <= 0 {
		return ErrInvalidInterval
	}

	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	// Tickers are created here rather than in run so a mock clock advanced
	// right after Start is guaranteed to drive them.
	cleanup := h.clock.Ticker(h.config.CleanupInterval)
	ping := h.clock.Ticker(h.config.PingInterval)

	h.logger.Info("hub started",
		zap.Duration("cleanup_interval", h.config.CleanupInterval),
		zap.Duration("ping_interval", h.config.PingInterval))

	go h.run(ctx, cleanup, ping, h.shutdown, h.done)
	return nil
}

// Stop halts the loop and waits for it to exit. No sweep runs after Stop returns.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.logger.Info("hub stopped")
	return nil
}

// Running reports whether the loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Inbound queues a frame. It blocks while the queue is full, which pushes
// back on the sending connection's read pump only.
func (h *Hub) Inbound(connectionID string, data []byte) error {
	return h.enqueue(connectionEvent{connectionID: connectionID, data: data})
}

// Closed queues a connection close behind every frame the connection
// already queued. Closes are never dropped while the hub runs.
func (h *Hub) Closed(connectionID string) error {
	return h.enqueue(connectionEvent{connectionID: connectionID, closed: true})
}

func (h *Hub) enqueue(ev connectionEvent) error {
	done, ok := h.loopDone()
	if !ok {
		return ErrHubNotRunning
	}
	select {
	case <-done:
		return ErrHubNotRunning
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-done:
		return ErrHubNotRunning
	}
}

func (h *Hub) loopDone() (chan struct{}, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done, h.running
}

func (h *Hub) run(ctx context.Context, cleanup, ping *clock.Ticker, shutdown, done chan struct{}) {
	defer close(done)
	defer cleanup.Stop()
	defer ping.Stop()

	for {
		// Shutdown wins over pending work so no timer fires after Stop.
		select {
		case <-shutdown:
			return
		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			return
		default:
		}

		select {
		case ev := <-h.events:
			if ev.closed {
				h.router.ConnectionClosed(ev.connectionID)
			} else {
				h.router.HandleMessage(ev.connectionID, ev.data)
			}

		case <-cleanup.C:
			result := h.router.Sweep()
			if len(result.Removed) > 0 {
				h.logger.Info("stale sweep",
					zap.Int("removed", len(result.Removed)),
					zap.Strings("affected_users", result.AffectedUsers))
			}

		case <-ping.C:
			if h.pinger != nil {
				h.pinger.PingSweep()
			}

		case <-shutdown:
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			return
		}
	}
}
