package sqlsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/logging"
	"github.com/ekaya-inc/opd-explorer/pkg/retry"
)

// SQL drivers a named connection may use.
const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

const (
	DefaultConnectionTTL   = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
	DefaultPoolMaxConns    = 5
	DefaultPoolMinConns    = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTL          time.Duration
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager keeps one pool per named connection and closes pools
// that have been idle longer than the TTL.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*managedConnection // key: connection name
	cfg         ConnectionManagerConfig
	open        func(ctx context.Context, conn source.SQLConnection, cfg ConnectionManagerConfig) (PoolConnector, error)
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type managedConnection struct {
	pool     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager starts a background cleanup goroutine that runs
// until Close is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConnectionTTL
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ConnectionManager{
		connections: make(map[string]*managedConnection),
		cfg:         cfg,
		open:        openPool,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
	go m.cleanupExpiredConnections()
	return m
}

// GetOrCreatePool returns the pool for the named connection, recreating it
// when the health check fails.
func (m *ConnectionManager) GetOrCreatePool(ctx context.Context, name string, conn source.SQLConnection) (PoolConnector, error) {
	m.mu.RLock()
	managed, exists := m.connections[name]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.pool.Ping(healthCtx)
		})
		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("connection", name),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(name)
			return m.createNewPool(ctx, name, conn)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.pool, nil
	}

	return m.createNewPool(ctx, name, conn)
}

// createNewPool must be called without holding any locks.
func (m *ConnectionManager) createNewPool(ctx context.Context, name string, conn source.SQLConnection) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[name]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return m.open(ctx, conn, m.cfg)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("connection", name),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", name, err)
	}

	m.connections[name] = &managedConnection{pool: pool, lastUsed: time.Now()}
	m.logger.Info("created new connection pool",
		zap.String("connection", name),
		zap.String("driver", pool.GetType()),
	)
	return pool, nil
}

// removeConnection must be called without holding m.mu.
func (m *ConnectionManager) removeConnection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[name]; exists && managed != nil {
		if managed.pool != nil {
			_ = managed.pool.Close()
		}
		delete(m.connections, name)
		m.logger.Debug("removed connection", zap.String("connection", name))
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes pools idle for longer than the TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	var expired []string
	for name, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()
		if idle > m.cfg.TTL {
			expired = append(expired, name)
		}
	}

	for _, name := range expired {
		if managed := m.connections[name]; managed != nil && managed.pool != nil {
			_ = managed.pool.Close()
		}
		delete(m.connections, name)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes every pool and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.pool != nil {
			_ = managed.pool.Close()
		}
	}
	m.connections = make(map[string]*managedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}

// GetStats is safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.cfg.TTL.Minutes()),
		ConnectionsByType: make(map[string]int),
	}
	for _, managed := range m.connections {
		if managed == nil {
			continue
		}
		stats.ConnectionsByType[managed.pool.GetType()]++
		managed.mu.Lock()
		idle := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}
