package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

// ReadCSV parses a CSV with a header row. limit > 0 stops after that many
// data rows. Short rows are padded and long rows truncated to the header.
func ReadCSV(r io.Reader, limit int) (*models.Table, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return models.NewTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := models.NewTable(header)
	for limit <= 0 || t.Len() < limit {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", t.Len()+1, err)
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// CountCSVRows counts the data rows of a CSV document, honoring quoted
// newlines.
func CountCSVRows(data []byte) (int, error) {
	cr := newCSVReader(bytes.NewReader(data))
	n := -1
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count csv rows: %w", err)
		}
		n++
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// WriteCSV encodes t with its header.
func WriteCSV(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}
