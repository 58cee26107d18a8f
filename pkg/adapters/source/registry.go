package source

import (
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/retry"
)

// LoaderInfo describes a registered access mechanism.
type LoaderInfo struct {
	Type        models.DataType `json:"type"`
	DisplayName string          `json:"display_name"`
	Description string          `json:"description"`
}

// SQLConnection is a named database connection SQL datasets refer to
// through their URL column.
type SQLConnection struct {
	Driver string // "postgres" or "sqlserver"
	DSN    string
}

// Deps are the shared dependencies handed to every loader factory.
type Deps struct {
	HTTP  *http.Client
	Retry *retry.Config
	// MaxDownloadBytes caps file downloads. 0 means no cap.
	MaxDownloadBytes int64
	SocrataAppToken  string
	SQLConnections   map[string]SQLConnection
	Logger           *zap.Logger
}

// Client returns the portal HTTP client built from d.
func (d Deps) Client() *Client {
	return &Client{HTTP: d.HTTP, Retry: d.Retry, MaxBytes: d.MaxDownloadBytes}
}

// Registration contains info + factory for a loader.
type Registration struct {
	Info    LoaderInfo
	Factory func(deps Deps) (Loader, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DataType]Registration)
)

// Register is called by each loader's init() function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredLoaders returns info for all registered loaders, sorted by type.
func RegisteredLoaders() []LoaderInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]LoaderInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a data type, or nil.
func GetFactory(dt models.DataType) func(deps Deps) (Loader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dt]; ok {
		return reg.Factory
	}
	return nil
}
