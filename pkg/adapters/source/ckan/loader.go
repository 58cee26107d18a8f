// Package ckan loads CKAN DataStore resources through the
// datastore_search_sql action.
package ckan

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

// Loader queries {site}/api/3/action/datastore_search_sql with the
// resource id from the catalog's dataset_id column as table name.
type Loader struct {
	client *source.Client
	sql    source.SQLAPI
}

func New(client *source.Client) *Loader {
	return &Loader{client: client, sql: source.PostgresSQLAPI}
}

type response struct {
	Success bool `json:"success"`
	Result  struct {
		Records []json.RawMessage `json:"records"`
		Fields  []struct {
			ID string `json:"id"`
		} `json:"fields"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error"`
}

func actionURL(d models.DatasetDescriptor) string {
	base := strings.TrimRight(source.EnsureScheme(d.URL), "/")
	return base + "/api/3/action/datastore_search_sql"
}

func (l *Loader) run(ctx context.Context, d models.DatasetDescriptor, stmt string) (*models.Table, error) {
	if d.DatasetID == "" {
		return nil, fmt.Errorf("ckan dataset %s has no resource id", d.Key())
	}
	var resp response
	if err := l.client.GetJSON(ctx, actionURL(d), url.Values{"sql": {stmt}}, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = resp.Error.Type + ": " + resp.Error.Message
		}
		return nil, fmt.Errorf("ckan query failed: %s", msg)
	}

	// Field order comes from the result metadata; _id and _full_text are
	// DataStore internals.
	var columns []string
	for _, f := range resp.Result.Fields {
		if f.ID != "_full_text" && f.ID != "_id" {
			columns = append(columns, f.ID)
		}
	}
	t := models.NewTable(columns)
	for _, raw := range resp.Result.Records {
		rec, _, err := jsonutil.Record(raw)
		if err != nil {
			return nil, err
		}
		t.AppendRecord(rec, columns)
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
	if t.Len() == 0 || t.ColumnIndex("count") < 0 {
		return 0, fmt.Errorf("ckan count missing from response")
	}
	return strconv.Atoi(t.Rows[0][t.ColumnIndex("count")])
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
	return yearsFrom(t)
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
	return source.DistinctValues(t, d.AgencyField)
}

func yearsFrom(t *models.Table) ([]models.Year, error) {
	col := t.ColumnIndex("year")
	if col < 0 {
		return nil, nil
	}
	var out []models.Year
	for _, row := range t.Rows {
		if row[col] == "" {
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
