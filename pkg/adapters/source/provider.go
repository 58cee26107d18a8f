package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/cache"
	"github.com/ekaya-inc/opd-explorer/pkg/metrics"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Provider routes catalog rows to their loaders. It implements the lookups
// resolution needs and the calls retrieval makes.
type Provider struct {
	deps    Deps
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	loaders map[models.DataType]Loader
}

// NewProvider creates a Provider. c and m may be nil.
func NewProvider(deps Deps, c cache.Cache, m *metrics.Metrics) *Provider {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
		deps.Logger = logger
	}
	return &Provider{
		deps:    deps,
		cache:   c,
		metrics: m,
		logger:  logger.Named("source"),
		loaders: make(map[models.DataType]Loader),
	}
}

// SetLoader installs l for dt, bypassing the registry.
func (p *Provider) SetLoader(dt models.DataType, l Loader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaders[dt] = l
}

func (p *Provider) loader(dt models.DataType) (Loader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.loaders[dt]; ok {
		return l, nil
	}
	factory := GetFactory(dt)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDataType, dt)
	}
	l, err := factory(p.deps)
	if err != nil {
		return nil, fmt.Errorf("create %s loader: %w", dt, err)
	}
	p.loaders[dt] = l
	return l, nil
}

func (p *Provider) batchLoader(dt models.DataType) (BatchLoader, error) {
	l, err := p.loader(dt)
	if err != nil {
		return nil, err
	}
	bl, ok := l.(BatchLoader)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot count or page", apperrors.ErrNotSupported, dt)
	}
	return bl, nil
}

func (p *Provider) cacheError(err error) {
	p.logger.Warn("Lookup cache unavailable", zap.Error(err))
}

// Years lists the years available across rows. Rows with a concrete or
// NOT-APPLICABLE year contribute that year. MULTI rows are asked for the
// years their data covers: file datasets use the catalog coverage when it
// is recorded, everything else asks the loader.
func (p *Provider) Years(ctx context.Context, rows []models.DatasetDescriptor) ([]models.Year, error) {
	var out []models.Year
	for _, d := range rows {
		if !d.Year.IsMulti() {
			out = append(out, d.Year)
			continue
		}
		years, err := p.multiYears(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, years...)
	}
	return out, nil
}

func (p *Provider) multiYears(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if !d.DataType.SupportsBatchCount() {
		if start, end, ok := d.CoverageYears(); ok {
			return YearRange(start, end), nil
		}
	}

	return cache.Remember(ctx, p.cache, "years:"+d.Key(), p.cacheError, func() ([]models.Year, error) {
		l, err := p.loader(d.DataType)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		years, err := l.Years(ctx, d)
		p.metrics.ObserveLoader(d.DataType.String(), "years", start, err)
		if err != nil {
			return nil, err
		}
		if len(years) == 0 {
			years = []models.Year{models.MultiYear}
		}
		return years, nil
	})
}

// Agencies lists the agencies of a multi-agency dataset for year.
func (p *Provider) Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error) {
	key := "agencies:" + d.Key() + ":" + year.String()
	return cache.Remember(ctx, p.cache, key, p.cacheError, func() ([]string, error) {
		bl, err := p.batchLoader(d.DataType)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		agencies, err := bl.Agencies(ctx, d, year)
		p.metrics.ObserveLoader(d.DataType.String(), "agencies", start, err)
		if err != nil {
			return nil, err
		}
		sort.Strings(agencies)
		return agencies, nil
	})
}

// Count returns the number of rows q matches. Only batch-capable data types
// support it.
func (p *Provider) Count(ctx context.Context, q Query) (int, error) {
	bl, err := p.batchLoader(q.Dataset.DataType)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := bl.Count(ctx, q)
	p.metrics.ObserveLoader(q.Dataset.DataType.String(), "count", start, err)
	return n, err
}

// LoadBatches pages through q, handing each page to yield.
func (p *Provider) LoadBatches(ctx context.Context, q Query, batchSize int, yield func(*models.Table) error) error {
	bl, err := p.batchLoader(q.Dataset.DataType)
	if err != nil {
		return err
	}
	start := time.Now()
	err = LoadPaged(ctx, bl, q, batchSize, yield)
	p.metrics.ObserveLoader(q.Dataset.DataType.String(), "load_batches", start, err)
	return err
}

// Load returns the whole result of q in one call.
func (p *Provider) Load(ctx context.Context, q Query) (*models.Table, error) {
	l, err := p.loader(q.Dataset.DataType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	t, err := l.Load(ctx, q)
	p.metrics.ObserveLoader(q.Dataset.DataType.String(), "load", start, err)
	return t, err
}

// DownloadRaw returns the dataset's file bytes unparsed.
func (p *Provider) DownloadRaw(ctx context.Context, d models.DatasetDescriptor) ([]byte, error) {
	l, err := p.loader(d.DataType)
	if err != nil {
		return nil, err
	}
	rd, ok := l.(RawDownloader)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no raw download", apperrors.ErrNotSupported, d.DataType)
	}
	start := time.Now()
	data, err := rd.DownloadRaw(ctx, d)
	p.metrics.ObserveLoader(d.DataType.String(), "download_raw", start, err)
	return data, err
}

// Close releases loaders that hold connections.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for dt, l := range p.loaders {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s loader: %w", dt, err)
			}
		}
	}
	return firstErr
}
