// Package excel loads datasets published as Excel workbooks.
package excel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source/csvfile"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Loader reads one sheet of a workbook. The sheet is named by the dataset
// id, else the first sheet is used.
type Loader struct {
	client *source.Client
}

func New(client *source.Client) *Loader {
	return &Loader{client: client}
}

// Load reads the sheet and applies q's filters in memory.
func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	data, err := csvfile.Fetch(ctx, l.client, q.Dataset.URL)
	if err != nil {
		return nil, err
	}
	t, err := ReadSheet(data, q.Dataset.DatasetID)
	if err != nil {
		return nil, err
	}
	return source.FilterTable(t, q)
}

// Years reads the sheet and collects the years of the date field.
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

// ReadSheet converts a sheet to a table whose header is the first row.
func ReadSheet(workbook []byte, sheet string) (*models.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	name := sheets[0]
	if sheet != "" {
		found := false
		for _, s := range sheets {
			if strings.EqualFold(s, sheet) {
				name, found = s, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("sheet %q not found", sheet)
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return models.NewTable(nil), nil
	}

	t := models.NewTable(rows[0])
	for _, r := range rows[1:] {
		row := make([]string, len(t.Columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
