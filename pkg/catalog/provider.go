package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const storeKey = "catalog"

// Provider serves the current catalog snapshot and refreshes it from its
// Source once the TTL expires. When a refresh fails the previous snapshot
// keeps being served.
type Provider struct {
	source         Source
	libraryVersion string
	logger         *zap.Logger

	cache *cache.Cache
	mu    sync.Mutex
	last  *Store
}

// NewProvider creates a Provider. A zero ttl means the catalog is loaded
// once and never refreshed.
func NewProvider(source Source, libraryVersion string, ttl time.Duration, logger *zap.Logger) *Provider {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Provider{
		source:         source,
		libraryVersion: libraryVersion,
		logger:         logger,
		cache:          cache.New(ttl, 0),
	}
}

// Get returns the current snapshot, loading it if needed.
func (p *Provider) Get(ctx context.Context) (*Store, error) {
	if v, ok := p.cache.Get(storeKey); ok {
		return v.(*Store), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.cache.Get(storeKey); ok {
		return v.(*Store), nil
	}

	rows, err := p.source.Fetch(ctx)
	if err != nil {
		if p.last != nil {
			p.logger.Warn("Catalog refresh failed, serving previous snapshot",
				zap.Time("loaded_at", p.last.LoadedAt()),
				zap.Error(err))
			return p.last, nil
		}
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	kept, dropped := Prepare(rows, p.libraryVersion)
	store := NewStore(kept)
	p.cache.SetDefault(storeKey, store)
	p.last = store

	p.logger.Info("Catalog loaded",
		zap.Int("datasets", len(kept)),
		zap.Int("dropped_by_min_version", dropped))
	return store, nil
}

// Invalidate forces the next Get to reload from the Source.
func (p *Provider) Invalidate() {
	p.cache.Delete(storeKey)
}
