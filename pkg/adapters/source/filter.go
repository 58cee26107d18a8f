package source

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// dateLayouts are the formats seen in date columns of published files.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 3:04",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
}

// ParseDate parses a date cell. Bare 4-digit values are treated as years.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) == 4 {
		if y, err := strconv.Atoi(s); err == nil {
			return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterTable applies q's date and agency filters and limit in memory, for
// mechanisms that cannot filter server-side.
func FilterTable(t *models.Table, q Query) (*models.Table, error) {
	dateCol, agencyCol := -1, -1
	var start, end time.Time
	var agency string

	if s, e, ok := q.DateRange(); ok {
		if dateCol = t.ColumnIndex(q.Dataset.DateField); dateCol < 0 {
			return nil, fmt.Errorf("date field %q not found in %s", q.Dataset.DateField, q.Dataset.Key())
		}
		start, end = s, e
	}
	if field, value, ok := q.AgencyFilter(); ok {
		if agencyCol = t.ColumnIndex(field); agencyCol < 0 {
			return nil, fmt.Errorf("agency field %q not found in %s", field, q.Dataset.Key())
		}
		agency = value
	}

	if dateCol < 0 && agencyCol < 0 {
		if q.Limit > 0 {
			return t.Head(q.Limit), nil
		}
		return t, nil
	}

	out := models.NewTable(t.Columns)
	for _, row := range t.Rows {
		if dateCol >= 0 {
			d, ok := ParseDate(row[dateCol])
			if !ok || d.Before(start) || !d.Before(end) {
				continue
			}
		}
		if agencyCol >= 0 && row[agencyCol] != agency {
			continue
		}
		out.Rows = append(out.Rows, row)
		if q.Limit > 0 && len(out.Rows) >= q.Limit {
			break
		}
	}
	return out, nil
}

// YearsInColumn returns the distinct years found in a date column.
func YearsInColumn(t *models.Table, field string) ([]models.Year, error) {
	col := t.ColumnIndex(field)
	if col < 0 {
		return nil, fmt.Errorf("date field %q not found", field)
	}
	seen := map[int]struct{}{}
	for _, row := range t.Rows {
		if d, ok := ParseDate(row[col]); ok {
			seen[d.Year()] = struct{}{}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	out := make([]models.Year, len(years))
	for i, y := range years {
		out[i] = models.ConcreteYear(y)
	}
	return out, nil
}

// DistinctValues returns the sorted distinct non-empty values of a column.
func DistinctValues(t *models.Table, field string) ([]string, error) {
	col := t.ColumnIndex(field)
	if col < 0 {
		return nil, fmt.Errorf("column %q not found", field)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, row := range t.Rows {
		v := row[col]
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// YearRange expands [min, max] into concrete years, most recent first.
func YearRange(min, max int) []models.Year {
	if max < min {
		return nil
	}
	out := make([]models.Year, 0, max-min+1)
	for y := max; y >= min; y-- {
		out = append(out, models.ConcreteYear(y))
	}
	return out
}
