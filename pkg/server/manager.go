package server

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// ConnectionManager tracks the open connections.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	peak  int

	maxConnections int

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64

	onOpen  func(*Connection)
	onClose func(*Connection)

	logger *slog.Logger
}

// ManagerStats is a snapshot of the manager's counters.
type ManagerStats struct {
	Active       int
	Peak         int
	TotalCreated uint64
	TotalClosed  uint64
}

// NewConnectionManager creates a manager. maxConnections of 0 means no
// limit.
func NewConnectionManager(maxConnections int, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	return &ConnectionManager{
		conns:          make(map[string]*Connection),
		maxConnections: maxConnections,
		logger:         logger,
	}
}

// OnOpen sets a callback run after a connection is added.
func (m *ConnectionManager) OnOpen(fn func(*Connection)) {
	m.onOpen = fn
}

// OnClose sets a callback run after a connection is removed.
func (m *ConnectionManager) OnClose(fn func(*Connection)) {
	m.onClose = fn
}

// Add registers c. It fails with ErrMaxConnectionsReached when the limit is
// reached.
func (m *ConnectionManager) Add(c *Connection) error {
	m.mu.Lock()
	if m.maxConnections > 0 && len(m.conns) >= m.maxConnections {
		m.mu.Unlock()
		return ErrMaxConnectionsReached
	}
	m.conns[c.id] = c
	if len(m.conns) > m.peak {
		m.peak = len(m.conns)
	}
	m.mu.Unlock()

	m.totalCreated.Add(1)
	m.logger.Debug("connection opened", "conn_id", c.id, "uid", c.uid)
	if m.onOpen != nil {
		m.onOpen(c)
	}
	return nil
}

// Remove unregisters the connection with the given id.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	c, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.totalClosed.Add(1)
	if m.onClose != nil {
		m.onClose(c)
	}
}

// Get returns the connection with the given id, or nil.
func (m *ConnectionManager) Get(id string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[id]
}

// ByUser returns the open connections of a user, oldest first.
func (m *ConnectionManager) ByUser(uid string) []*Connection {
	m.mu.RLock()
	var out []*Connection
	for _, c := range m.conns {
		if c.uid == uid {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of open connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Stats returns the manager's counters.
func (m *ConnectionManager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ManagerStats{
		Active:       len(m.conns),
		Peak:         m.peak,
		TotalCreated: m.totalCreated.Load(),
		TotalClosed:  m.totalClosed.Load(),
	}
}

// CloseAll closes every connection.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
