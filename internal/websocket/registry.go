package websocket

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"fdp/pkg/interfaces"
)

// Registry tracks open sockets by connection ID. It knows nothing about
// users or windows; that mapping lives in the session store.
type Registry struct {
	mu             sync.RWMutex
	connections    map[string]*Connection
	maxConnections int // 0 means unlimited
	logger         *zap.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(maxConnections int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections:    make(map[string]*Connection),
		maxConnections: maxConnections,
		logger:         logger,
	}
}

var _ interfaces.Sender = (*Registry)(nil)

// Add tracks a newly opened connection.
func (r *Registry) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConnections > 0 && len(r.connections) >= r.maxConnections {
		return ErrRegistryFull
	}
	r.connections[conn.GetID()] = conn
	return nil
}

// Remove forgets a connection. Only the exact instance registered under the
// ID is removed.
func (r *Registry) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.connections[conn.GetID()]; ok && current == conn {
		delete(r.connections, conn.GetID())
	}
}

// Get looks up a connection by ID.
func (r *Registry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[connectionID]
	return conn, ok
}

// Send queues msg on a connection.
func (r *Registry) Send(connectionID string, msg interface{}) error {
	conn, ok := r.Get(connectionID)
	if !ok {
		return interfaces.ErrConnectionNotFound
	}
	return conn.WriteJSON(msg)
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// PingSweep terminates connections that have not answered the previous
// ping and pings the rest. It returns the IDs of terminated connections;
// their read pumps then report the close through the normal path.
func (r *Registry) PingSweep() []string {
	var terminated []string
	for _, conn := range r.snapshot() {
		if !conn.checkAlive() {
			terminated = append(terminated, conn.GetID())
			_ = conn.Close()
			continue
		}
		go func(c *Connection) {
			if err := c.Ping(); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
			}
		}(conn)
	}

	if len(terminated) > 0 {
		r.logger.Info("terminated unresponsive connections", zap.Int("count", len(terminated)))
	}
	return terminated
}

// CloseAll closes every connection with the given close code.
func (r *Registry) CloseAll(code int, reason string) {
	conns := r.snapshot()
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			_ = c.CloseWithCode(code, reason)
		}(conn)
	}
	wg.Wait()

	r.logger.Info("closed all connections", zap.Int("count", len(conns)))
}

// Stats returns registry statistics for the status API.
func (r *Registry) Stats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}

// snapshot copies the connection set in ID order so sweeps do not hold the
// lock while doing I/O.
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].GetID() < conns[j].GetID() })
	return conns
}
