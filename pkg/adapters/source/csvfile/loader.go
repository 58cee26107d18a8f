// Package csvfile loads datasets published as CSV files, plain or zipped,
// from a URL or a local path.
package csvfile

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Loader reads the whole file and filters in memory.
type Loader struct {
	client *source.Client
}

func New(client *source.Client) *Loader {
	return &Loader{client: client}
}

// Fetch returns the bytes at location, a local path, a file:// URL or an
// http(s) URL.
func Fetch(ctx context.Context, client *source.Client, location string) ([]byte, error) {
	switch {
	case strings.HasPrefix(location, "file://"):
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return client.Get(ctx, location, nil, nil)
	}
	if _, err := os.Stat(location); err == nil {
		return os.ReadFile(location)
	}
	return client.Get(ctx, location, nil, nil)
}

// DownloadRaw returns the CSV bytes, extracted from the archive when the
// dataset is zipped.
func (l *Loader) DownloadRaw(ctx context.Context, d models.DatasetDescriptor) ([]byte, error) {
	data, err := Fetch(ctx, l.client, d.URL)
	if err != nil {
		return nil, err
	}
	if !d.IsCompressedCSV() {
		return data, nil
	}
	return ExtractCSV(data, d.DatasetID)
}

// ExtractCSV returns the archive member named member, or the first .csv
// member when member is empty or absent.
func ExtractCSV(archive []byte, member string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var pick *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if member != "" && (f.Name == member || path.Base(f.Name) == member) {
			pick = f
			break
		}
		if pick == nil && strings.EqualFold(path.Ext(f.Name), ".csv") {
			pick = f
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("no csv file in archive")
	}

	rc, err := pick.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pick.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func hasFilters(q source.Query) bool {
	_, _, date := q.DateRange()
	_, _, agency := q.AgencyFilter()
	return date || agency
}

// Load parses the file and applies q's filters. Without filters only
// q.Limit rows are parsed.
func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	data, err := l.DownloadRaw(ctx, q.Dataset)
	if err != nil {
		return nil, err
	}
	limit := 0
	if !hasFilters(q) {
		limit = q.Limit
	}
	t, err := source.ReadCSV(bytes.NewReader(data), limit)
	if err != nil {
		return nil, err
	}
	return source.FilterTable(t, q)
}

// Years parses the whole file and collects the years of the date field.
func (l *Loader) Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if d.DateField == "" {
		return nil, nil
	}
	t, err := l.Load(ctx, source.Query{Dataset: d, Year: models.MultiYear})
	if err != nil {
		return nil, err
	}
	return source.YearsInColumn(t, d.DateField)
}
