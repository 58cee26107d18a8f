package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/handlers"
	"github.com/ekaya-inc/opd-explorer/pkg/middleware"
	"github.com/ekaya-inc/opd-explorer/pkg/session"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("sql_sources", len(cfg.SQLSources)))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Warm the catalog so the first request does not pay for it.
	if _, err := a.catalog.Get(ctx); err != nil {
		logger.Warn("Initial catalog load failed, will retry on demand", zap.Error(err))
	}

	sessions := session.NewManager(&session.Env{
		Catalog:   a.catalog,
		Lookup:    a.source,
		Retriever: a.pipeline,
		Logger:    logger.Named("session"),
	}, cfg.Session.TTL, a.metrics)
	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}
	cookies := handlers.NewSessionCookies(cfg.Session.Secret, cfg.Session.CookieName, cfg.Session.TTL,
		!cfg.IsDevelopment(), sessions, logger.Named("http"))

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.catalog, sessions, logger).RegisterRoutes(mux)
	handlers.NewExplorerHandler(a.catalog, cookies, cfg.ExplorerURL, cfg.Retrieval.PreviewRows, logger.Named("http")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", a.metrics.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Recover(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting opd-explorer", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
