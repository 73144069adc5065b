package session

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("session: store closed")

// MemoryStore holds user variables in memory, one partition per user id.
// It is safe for concurrent use by every connection of the server.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*partition
	defaults map[string]any
	idleTTL  time.Duration
	closed   bool
	done     chan struct{}
}

type partition struct {
	mu       sync.Mutex
	vars     map[string]any
	lastSeen time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
	idleTTL         time.Duration
	defaults        map[string]any
}

// WithCleanupInterval sets how often idle partitions are cleaned up.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithIdleTTL drops a user's partition after it has not been accessed for d.
// Zero keeps partitions forever. Default: 24 hours.
func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.idleTTL = d
	}
}

// WithDefaults sets the variables every new partition starts with.
func WithDefaults(vars map[string]any) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.defaults = maps.Clone(vars)
	}
}

// NewMemoryStore creates a new in-memory user variable store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
		idleTTL:         24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		users:    make(map[string]*partition),
		defaults: cfg.defaults,
		idleTTL:  cfg.idleTTL,
		done:     make(chan struct{}),
	}
	if cfg.idleTTL > 0 && cfg.cleanupInterval > 0 {
		go store.cleanupLoop(cfg.cleanupInterval)
	}
	return store
}

// SetDefaults replaces the variables new partitions start with. Existing
// partitions are unaffected.
func (m *MemoryStore) SetDefaults(vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = maps.Clone(vars)
}

// Vars returns the variables of user uid, creating the partition from the
// defaults on first use.
func (m *MemoryStore) Vars(uid string) (*Vars, error) {
	p, err := m.partition(uid)
	if err != nil {
		return nil, err
	}
	return &Vars{p: p}, nil
}

func (m *MemoryStore) partition(uid string) (*partition, error) {
	now := time.Now()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p, ok := m.users[uid]
	m.mu.RUnlock()
	if ok {
		p.touch(now)
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	if p, ok := m.users[uid]; ok {
		p.touch(now)
		return p, nil
	}
	p = &partition{vars: maps.Clone(m.defaults), lastSeen: now}
	if p.vars == nil {
		p.vars = make(map[string]any)
	}
	m.users[uid] = p
	return p, nil
}

// Delete drops the partition of user uid.
func (m *MemoryStore) Delete(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.users, uid)
	return nil
}

// Count returns the number of partitions in the store.
// This is for monitoring/testing purposes.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// Close shuts down the store and releases resources.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.users = nil
	return nil
}

// cleanupLoop periodically removes idle partitions.
func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.idleTTL <= 0 {
		return
	}
	for uid, p := range m.users {
		if now.Sub(p.seen()) > m.idleTTL {
			delete(m.users, uid)
		}
	}
}

func (p *partition) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *partition) seen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}
