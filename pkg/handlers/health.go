package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports whether the catalog is loaded.
type HealthResponse struct {
	Status          string              `json:"status"`
	Datasets        int                 `json:"datasets"`
	CatalogLoadedAt *time.Time          `json:"catalog_loaded_at,omitempty"`
	ActiveSessions  int                 `json:"active_sessions"`
	Loaders         []source.LoaderInfo `json:"loaders"`
	Error           string              `json:"error,omitempty"`
}

// CatalogGetter returns the current catalog snapshot.
type CatalogGetter interface {
	Get(ctx context.Context) (*catalog.Store, error)
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg      *config.Config
	catalog  CatalogGetter
	sessions SessionCounter
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. catalog and sessions may be nil.
func NewHealthHandler(cfg *config.Config, catalog CatalogGetter, sessions SessionCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, catalog: catalog, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests. It returns 503 while the catalog
// cannot be loaded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Loaders: source.RegisteredLoaders()}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.Count()
	}

	status := http.StatusOK
	if h.catalog != nil {
		store, err := h.catalog.Get(r.Context())
		if err != nil {
			h.logger.Warn("Health check: catalog unavailable", zap.Error(err))
			resp.Status = "degraded"
			resp.Error = "catalog unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Datasets = store.Len()
			loaded := store.LoadedAt()
			resp.CatalogLoadedAt = &loaded
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "opd-explorer",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
