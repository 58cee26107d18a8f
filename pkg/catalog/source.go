package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/retry"
)

// Source fetches raw catalog rows.
type Source interface {
	Fetch(ctx context.Context) ([]models.DatasetDescriptor, error)
}

// FileSource reads a CSV or YAML catalog from a local path or an http(s) URL.
// The format is chosen by extension; anything other than .yaml/.yml is CSV.
type FileSource struct {
	Location string
	Client   *http.Client
	Retry    *retry.Config
}

// NewFileSource returns a FileSource for location.
func NewFileSource(location string, client *http.Client) *FileSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &FileSource{Location: location, Client: client}
}

func (s *FileSource) Fetch(ctx context.Context) ([]models.DatasetDescriptor, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if isYAML(s.Location) {
		return LoadYAML(bytes.NewReader(data))
	}
	return LoadCSV(bytes.NewReader(data))
}

func (s *FileSource) read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(s.Location, "http://") && !strings.HasPrefix(s.Location, "https://") {
		data, err := os.ReadFile(s.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		return data, nil
	}

	return retry.DoIfRetryableWithResult(ctx, s.Retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{URL: s.Location, StatusCode: resp.StatusCode}
		}
		return io.ReadAll(resp.Body)
	})
}

func isYAML(location string) bool {
	loc := location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	switch strings.ToLower(path.Ext(loc)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
