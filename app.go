package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/arcgis"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/carto"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/ckan"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/csvfile"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/excel"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/socrata"
	_ "github.com/ekaya-inc/opd-explorer/pkg/adapters/source/sqlsource"
	"github.com/ekaya-inc/opd-explorer/pkg/cache"
	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/config"
	"github.com/ekaya-inc/opd-explorer/pkg/database"
	"github.com/ekaya-inc/opd-explorer/pkg/logging"
	"github.com/ekaya-inc/opd-explorer/pkg/metrics"
	"github.com/ekaya-inc/opd-explorer/pkg/retrieval"
	"github.com/ekaya-inc/opd-explorer/pkg/retry"
)

// app holds the long-lived components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	db    *database.DB
	redis *redis.Client

	catalog  *catalog.Provider
	source   *source.Provider
	pipeline *retrieval.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	httpClient := &http.Client{Timeout: cfg.Retrieval.HTTPTimeout}
	retryCfg := retry.DefaultConfig()

	lookups, err := a.lookupCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	catalogSource, err := a.catalogSource(ctx, httpClient, retryCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.catalog = catalog.NewProvider(catalogSource, cfg.Catalog.LibraryVersion, cfg.Catalog.RefreshTTL, logger.Named("catalog"))

	sqlConns := make(map[string]source.SQLConnection, len(cfg.SQLSources))
	for name, s := range cfg.SQLSources {
		sqlConns[name] = source.SQLConnection{Driver: s.Driver, DSN: s.DSN()}
	}
	a.source = source.NewProvider(source.Deps{
		HTTP:             httpClient,
		Retry:            retryCfg,
		MaxDownloadBytes: cfg.Retrieval.MaxDownloadMB << 20,
		SocrataAppToken:  cfg.Socrata.AppToken,
		SQLConnections:   sqlConns,
		Logger:           logger,
	}, lookups, a.metrics)

	a.pipeline = retrieval.New(a.source, retrieval.Config{
		BatchSize:   cfg.Retrieval.BatchSize,
		PreviewRows: cfg.Retrieval.PreviewRows,
	}, logger, a.metrics)

	return a, nil
}

func (a *app) lookupCache(ctx context.Context) (cache.Cache, error) {
	if a.cfg.Cache.Backend != config.CacheBackendRedis {
		return cache.NewMemory(a.cfg.Cache.TTL), nil
	}
	client, err := database.NewRedisClient(ctx, &a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.logger.Info("Using Redis lookup cache", zap.String("addr", a.cfg.Redis.Addr()))
	return cache.NewRedis(client, "opd:", a.cfg.Cache.TTL), nil
}

func (a *app) catalogSource(ctx context.Context, httpClient *http.Client, retryCfg *retry.Config) (catalog.Source, error) {
	if a.cfg.Catalog.Source != config.CatalogSourcePostgres {
		src := catalog.NewFileSource(a.cfg.Catalog.Location, httpClient)
		src.Retry = retryCfg
		a.logger.Info("Using file catalog", zap.String("location", logging.SanitizeURL(a.cfg.Catalog.Location)))
		return src, nil
	}
	repo, err := a.catalogRepository(ctx)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// catalogRepository connects to PostgreSQL and applies pending migrations.
func (a *app) catalogRepository(ctx context.Context) (catalog.Repository, error) {
	if a.db == nil {
		db, err := database.NewConnection(ctx, database.ConfigFrom(&a.cfg.Database))
		if err != nil {
			return nil, fmt.Errorf("connect catalog database: %w", err)
		}
		a.db = db
		if err := db.Migrate(a.logger); err != nil {
			return nil, err
		}
		a.logger.Info("Using PostgreSQL catalog",
			zap.String("host", a.cfg.Database.Host),
			zap.String("database", a.cfg.Database.Database))
	}
	return catalog.NewPostgresRepository(a.db.Pool), nil
}

// Close releases connections. It is safe on a partially built app.
func (a *app) Close() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("Failed to close loaders", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log, cfg.IsDevelopment())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
