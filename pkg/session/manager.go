package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/metrics"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 2 * time.Hour

// Manager owns the live sessions. Idle sessions expire after the TTL.
type Manager struct {
	env     *Env
	ttl     time.Duration
	metrics *metrics.Metrics
	store   *cache.Cache
}

// NewManager creates a Manager. m may be nil.
func NewManager(env *Env, ttl time.Duration, m *metrics.Metrics) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	mgr := &Manager{
		env:     env,
		ttl:     ttl,
		metrics: m,
		store:   cache.New(ttl, ttl/2),
	}
	mgr.store.OnEvicted(func(string, interface{}) {
		mgr.metrics.SetActiveSessions(mgr.store.ItemCount())
	})
	return mgr
}

// Create starts a new session with empty hints.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.env)
	m.store.SetDefault(s.ID, s)
	m.metrics.SetActiveSessions(m.store.ItemCount())
	return s
}

// Get returns the session for id and extends its lifetime.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.store.Get(id)
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	s := v.(*Session)
	m.store.SetDefault(id, s)
	return s, nil
}

// GetOrCreate returns the session for id, or a fresh one when id is empty
// or unknown.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false
		}
	}
	return m.Create(), true
}

// Delete ends a session.
func (m *Manager) Delete(id string) {
	m.store.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.store.ItemCount()
}
