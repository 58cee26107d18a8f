// Package carto loads tables through the Carto SQL API. The catalog URL
// column holds the Carto account and dataset_id the table name.
package carto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/jsonutil"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

const defaultBatch = 5000

// Loader sends statements to https://{account}.carto.com/api/v2/sql.
type Loader struct {
	client *source.Client
	sql    source.SQLAPI
	// BaseURL overrides the account host. Used in tests.
	BaseURL string
}

func New(client *source.Client) *Loader {
	return &Loader{client: client, sql: source.PostgresSQLAPI}
}

type response struct {
	Rows  []json.RawMessage `json:"rows"`
	Error []string          `json:"error"`
}

func (l *Loader) endpoint(d models.DatasetDescriptor) string {
	if l.BaseURL != "" {
		return strings.TrimRight(l.BaseURL, "/") + "/api/v2/sql"
	}
	account := d.URL
	if u, err := url.Parse(source.EnsureScheme(d.URL)); err == nil && u.Host != "" {
		account = strings.TrimSuffix(u.Host, ".carto.com")
	}
	return fmt.Sprintf("https://%s.carto.com/api/v2/sql", account)
}

func (l *Loader) run(ctx context.Context, d models.DatasetDescriptor, stmt string) (*models.Table, error) {
	if d.DatasetID == "" {
		return nil, fmt.Errorf("carto dataset %s has no table name", d.Key())
	}
	var resp response
	params := url.Values{"q": {stmt}, "format": {"json"}}
	if err := l.client.GetJSON(ctx, l.endpoint(d), params, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("carto query failed: %s", strings.Join(resp.Error, "; "))
	}
	t := models.NewTable(nil)
	for _, raw := range resp.Rows {
		rec, order, err := jsonutil.Record(raw)
		if err != nil {
			return nil, err
		}
		t.AppendRecord(rec, order)
	}
	return t, nil
}

func (l *Loader) Count(ctx context.Context, q source.Query) (int, error) {
	stmt, err := l.sql.Count(q.Dataset.DatasetID, q)
	if err != nil {
		return 0, err
	}
	t, err := l.run(ctx, q.Dataset, stmt)
	if err != nil {
		return 0, err
	}
	col := t.ColumnIndex("count")
	if t.Len() == 0 || col < 0 {
		return 0, fmt.Errorf("carto count missing from response")
	}
	return strconv.Atoi(t.Rows[0][col])
}

func (l *Loader) Page(ctx context.Context, q source.Query, offset, limit int) (*models.Table, error) {
	stmt, err := l.sql.Select(q.Dataset.DatasetID, q, offset, limit)
	if err != nil {
		return nil, err
	}
	return l.run(ctx, q.Dataset, stmt)
}

func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	return source.LoadAll(ctx, l, q, defaultBatch)
}

func (l *Loader) Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if d.DateField == "" {
		return nil, nil
	}
	t, err := l.run(ctx, d, l.sql.Years(d.DatasetID, d.DateField))
	if err != nil {
		return nil, err
	}
	col := t.ColumnIndex("year")
	var out []models.Year
	for _, row := range t.Rows {
		if col < 0 || row[col] == "" {
			continue
		}
		y, err := models.ParseYear(row[col])
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, nil
}

func (l *Loader) Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error) {
	if d.AgencyField == "" {
		return nil, fmt.Errorf("dataset %s has no agency field", d.Key())
	}
	stmt, err := l.sql.Distinct(d.DatasetID, d.AgencyField, source.Query{Dataset: d, Year: year})
	if err != nil {
		return nil, err
	}
	t, err := l.run(ctx, d, stmt)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, nil
	}
	return source.DistinctValues(t, d.AgencyField)
}
