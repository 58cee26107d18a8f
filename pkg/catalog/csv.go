package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Catalog CSV column names.
const (
	colState         = "State"
	colSourceName    = "SourceName"
	colAgency        = "Agency"
	colAgencyFull    = "AgencyFull"
	colTableType     = "TableType"
	colCoverageStart = "coverage_start"
	colCoverageEnd   = "coverage_end"
	colDataType      = "DataType"
	colYear          = "Year"
	colURL           = "URL"
	colDatasetID     = "dataset_id"
	colDateField     = "date_field"
	colAgencyField   = "agency_field"
	colSourceURL     = "source_url"
	colReadme        = "readme"
	colMinVersion    = "min_version"
)

var requiredColumns = []string{colState, colSourceName, colAgency, colTableType, colDataType, colYear, colURL}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// LoadCSV parses a catalog export. Unknown columns are ignored.
func LoadCSV(r io.Reader) ([]models.DatasetDescriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("catalog is missing column %q", c)
		}
	}

	var rows []models.DatasetDescriptor
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog line %d: %w", line, err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return nullable(rec[i])
		}

		d := models.DatasetDescriptor{
			State:       get(colState),
			SourceName:  get(colSourceName),
			Agency:      get(colAgency),
			AgencyFull:  get(colAgencyFull),
			TableType:   get(colTableType),
			DataType:    normalizeDataType(get(colDataType)),
			URL:         get(colURL),
			DatasetID:   get(colDatasetID),
			DateField:   get(colDateField),
			AgencyField: get(colAgencyField),
			SourceURL:   get(colSourceURL),
			Readme:      get(colReadme),
			MinVersion:  get(colMinVersion),
		}
		if d.Year, err = models.ParseYear(get(colYear)); err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		if d.CoverageStart, err = parseDate(get(colCoverageStart)); err != nil {
			return nil, fmt.Errorf("catalog line %d: coverage_start: %w", line, err)
		}
		if d.CoverageEnd, err = parseDate(get(colCoverageEnd)); err != nil {
			return nil, fmt.Errorf("catalog line %d: coverage_end: %w", line, err)
		}
		rows = append(rows, d)
	}
	return rows, nil
}

// nullable maps the null spellings of catalog exports to "".
func nullable(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "nan", "NaN", "NaT", "None", "null":
		return ""
	}
	return s
}

// normalizeDataType keeps unknown mechanisms verbatim so they still show up
// in the catalog. Loading them fails later with ErrUnsupportedDataType.
func normalizeDataType(s string) models.DataType {
	if dt, err := models.ParseDataType(s); err == nil {
		return dt
	}
	return models.DataType(s)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}
