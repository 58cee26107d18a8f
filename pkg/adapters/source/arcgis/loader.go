// Package arcgis loads feature layers through the ArcGIS REST query
// operation.
package arcgis

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

// maxRecordCount is the page size most servers accept.
const maxRecordCount = 1000

// Loader queries {layer url}/query.
type Loader struct {
	client *source.Client
}

func New(client *source.Client) *Loader {
	return &Loader{client: client}
}

var dialect = source.Dialect{
	Ident: func(name string) string { return name },
	Timestamp: func(t time.Time) string {
		return "TIMESTAMP '" + t.Format("2006-01-02 15:04:05") + "'"
	},
}

type response struct {
	Count    *int `json:"count"`
	Features []struct {
		Attributes json.RawMessage `json:"attributes"`
	} `json:"features"`
	Fields []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func queryURL(d models.DatasetDescriptor) string {
	return strings.TrimRight(d.URL, "/") + "/query"
}

func (l *Loader) query(ctx context.Context, d models.DatasetDescriptor, params url.Values) (*response, error) {
	params.Set("f", "json")
	if params.Get("where") == "" {
		params.Set("where", "1=1")
	}
	var resp response
	if err := l.client.GetJSON(ctx, queryURL(d), params, nil, &resp); err != nil {
		return nil, err
	}
	// ArcGIS reports errors with HTTP 200.
	if resp.Error != nil {
		return nil, fmt.Errorf("arcgis error %d: %s %s", resp.Error.Code, resp.Error.Message, strings.Join(resp.Error.Details, "; "))
	}
	return &resp, nil
}

func (l *Loader) where(q source.Query, params url.Values) error {
	w, err := dialect.Where(q)
	if err != nil {
		return err
	}
	if w != "" {
		params.Set("where", w)
	}
	return nil
}

// Count uses returnCountOnly.
func (l *Loader) Count(ctx context.Context, q source.Query) (int, error) {
	params := url.Values{"returnCountOnly": {"true"}}
	if err := l.where(q, params); err != nil {
		return 0, err
	}
	resp, err := l.query(ctx, q.Dataset, params)
	if err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, fmt.Errorf("arcgis count missing from response")
	}
	return *resp.Count, nil
}

// Page fetches [offset, offset+limit). Servers cap each response at their
// maxRecordCount, so a page may take several requests.
func (l *Loader) Page(ctx context.Context, q source.Query, offset, limit int) (*models.Table, error) {
	t := models.NewTable(nil)
	for t.Len() < limit {
		n := limit - t.Len()
		if n > maxRecordCount {
			n = maxRecordCount
		}
		params := url.Values{
			"outFields":         {"*"},
			"returnGeometry":    {"false"},
			"resultOffset":      {strconv.Itoa(offset + t.Len())},
			"resultRecordCount": {strconv.Itoa(n)},
		}
		if err := l.where(q, params); err != nil {
			return nil, err
		}
		resp, err := l.query(ctx, q.Dataset, params)
		if err != nil {
			return nil, err
		}
		dateFields := dateFieldSet(resp)
		for _, f := range resp.Features {
			rec, order, err := jsonutil.Record(f.Attributes)
			if err != nil {
				return nil, err
			}
			for k := range dateFields {
				rec[k] = epochToISO(rec[k])
			}
			t.AppendRecord(rec, order)
		}
		if len(resp.Features) < n && !resp.ExceededTransferLimit {
			break
		}
		if len(resp.Features) == 0 {
			break
		}
	}
	return t, nil
}

// Load pages through the whole result.
func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	return source.LoadAll(ctx, l, q, 5*maxRecordCount)
}

// Years asks for the min and max of the date field and expands the range.
func (l *Loader) Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if d.DateField == "" {
		return nil, nil
	}
	stats := fmt.Sprintf(`[{"statisticType":"min","onStatisticField":%q,"outStatisticFieldName":"min_date"},`+
		`{"statisticType":"max","onStatisticField":%q,"outStatisticFieldName":"max_date"}]`, d.DateField, d.DateField)
	resp, err := l.query(ctx, d, url.Values{"outStatistics": {stats}})
	if err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return nil, nil
	}
	rec, _, err := jsonutil.Record(resp.Features[0].Attributes)
	if err != nil {
		return nil, err
	}
	min, okMin := parseDateCell(rec["min_date"])
	max, okMax := parseDateCell(rec["max_date"])
	if !okMin || !okMax {
		return nil, nil
	}
	return source.YearRange(min.Year(), max.Year()), nil
}

// Agencies uses returnDistinctValues on the agency field.
func (l *Loader) Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error) {
	if d.AgencyField == "" {
		return nil, fmt.Errorf("dataset %s has no agency field", d.Key())
	}
	params := url.Values{
		"outFields":            {d.AgencyField},
		"returnDistinctValues": {"true"},
		"returnGeometry":       {"false"},
	}
	if err := l.where(source.Query{Dataset: d, Year: year}, params); err != nil {
		return nil, err
	}
	resp, err := l.query(ctx, d, params)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range resp.Features {
		rec, _, err := jsonutil.Record(f.Attributes)
		if err != nil {
			return nil, err
		}
		if v := rec[d.AgencyField]; v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func dateFieldSet(resp *response) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range resp.Fields {
		if f.Type == "esriFieldTypeDate" {
			out[f.Name] = struct{}{}
		}
	}
	return out
}

// epochToISO converts an esriFieldTypeDate cell (epoch milliseconds) to
// RFC 3339. Other values pass through.
func epochToISO(v string) string {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return v
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func parseDateCell(v string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return source.ParseDate(v)
}
