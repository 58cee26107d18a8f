// Package socrata loads datasets through the Socrata Open Data API using
// SoQL query parameters.
package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/jsonutil"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

const (
	appTokenHeader = "X-App-Token"
	defaultBatch   = 5000
)

// Loader talks to https://{domain}/resource/{dataset_id}.json.
type Loader struct {
	client   *source.Client
	appToken string
}

// New creates a Loader. appToken is optional and raises rate limits.
func New(client *source.Client, appToken string) *Loader {
	return &Loader{client: client, appToken: appToken}
}

var dialect = source.Dialect{
	Ident: func(name string) string {
		return "`" + strings.ReplaceAll(name, "`", "") + "`"
	},
	Timestamp: func(t time.Time) string {
		return "'" + t.Format("2006-01-02T15:04:05") + "'"
	},
}

func endpoint(d models.DatasetDescriptor) (string, error) {
	if d.DatasetID == "" {
		return "", fmt.Errorf("socrata dataset %s has no dataset id", d.Key())
	}
	host := source.EnsureScheme(d.URL)
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid socrata url %q: %w", d.URL, err)
	}
	return fmt.Sprintf("%s://%s/resource/%s.json", u.Scheme, u.Host, d.DatasetID), nil
}

func (l *Loader) headers() map[string]string {
	if l.appToken == "" {
		return nil
	}
	return map[string]string{appTokenHeader: l.appToken}
}

func (l *Loader) query(ctx context.Context, d models.DatasetDescriptor, params url.Values) ([]json.RawMessage, error) {
	ep, err := endpoint(d)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := l.client.GetJSON(ctx, ep, params, l.headers(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (l *Loader) where(q source.Query, params url.Values) error {
	w, err := dialect.Where(q)
	if err != nil {
		return err
	}
	if w != "" {
		params.Set("$where", w)
	}
	return nil
}

// Count returns count(*) for the query's filters.
func (l *Loader) Count(ctx context.Context, q source.Query) (int, error) {
	params := url.Values{"$select": {"count(*) AS count"}}
	if err := l.where(q, params); err != nil {
		return 0, err
	}
	records, err := l.query(ctx, q.Dataset, params)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	rec, _, err := jsonutil.Record(records[0])
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(rec["count"])
	if err != nil {
		return 0, fmt.Errorf("unexpected count %q: %w", rec["count"], err)
	}
	return n, nil
}

// Page returns rows [offset, offset+limit) in :id order.
func (l *Loader) Page(ctx context.Context, q source.Query, offset, limit int) (*models.Table, error) {
	params := url.Values{
		"$limit":  {strconv.Itoa(limit)},
		"$offset": {strconv.Itoa(offset)},
		"$order":  {":id"},
	}
	if err := l.where(q, params); err != nil {
		return nil, err
	}
	records, err := l.query(ctx, q.Dataset, params)
	if err != nil {
		return nil, err
	}
	t := models.NewTable(nil)
	for _, raw := range records {
		rec, order, err := jsonutil.Record(raw)
		if err != nil {
			return nil, err
		}
		t.AppendRecord(rec, order)
	}
	return t, nil
}

// Load pages through the whole result.
func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	return source.LoadAll(ctx, l, q, defaultBatch)
}

// Years groups the date field by date_extract_y.
func (l *Loader) Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if d.DateField == "" {
		return nil, nil
	}
	col := dialect.Ident(d.DateField)
	params := url.Values{
		"$select": {fmt.Sprintf("date_extract_y(%s) AS year", col)},
		"$group":  {"year"},
		"$order":  {"year DESC"},
	}
	records, err := l.query(ctx, d, params)
	if err != nil {
		return nil, err
	}
	var years []models.Year
	for _, raw := range records {
		rec, _, err := jsonutil.Record(raw)
		if err != nil {
			return nil, err
		}
		if rec["year"] == "" {
			continue
		}
		y, err := models.ParseYear(rec["year"])
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}

// Agencies groups the agency field, restricted to year on MULTI datasets.
func (l *Loader) Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error) {
	if d.AgencyField == "" {
		return nil, fmt.Errorf("dataset %s has no agency field", d.Key())
	}
	col := dialect.Ident(d.AgencyField)
	params := url.Values{
		"$select": {col},
		"$group":  {col},
		"$limit":  {"50000"},
	}
	if err := l.where(source.Query{Dataset: d, Year: year}, params); err != nil {
		return nil, err
	}
	records, err := l.query(ctx, d, params)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, raw := range records {
		rec, _, err := jsonutil.Record(raw)
		if err != nil {
			return nil, err
		}
		if v := rec[d.AgencyField]; v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}
