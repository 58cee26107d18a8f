package models

// Table is a rectangular result. Every row has len(Columns) cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable returns an empty table with the given header.
func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns a copy holding at most n rows.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := NewTable(t.Columns)
	out.Rows = make([][]string, n)
	for i := 0; i < n; i++ {
		out.Rows[i] = append([]string(nil), t.Rows[i]...)
	}
	return out
}

// AppendRecord adds a row given as column name to value, extending the
// header with unseen columns. Earlier rows are padded.
func (t *Table) AppendRecord(rec map[string]string, order []string) {
	for _, c := range order {
		if _, ok := rec[c]; ok && t.ColumnIndex(c) < 0 {
			t.addColumn(c)
		}
	}
	row := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = rec[c]
	}
	t.Rows = append(t.Rows, row)
}

// Concat appends other's rows, aligning columns by name.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	for _, c := range other.Columns {
		if t.ColumnIndex(c) < 0 {
			t.addColumn(c)
		}
	}
	idx := make([]int, len(other.Columns))
	for i, c := range other.Columns {
		idx[i] = t.ColumnIndex(c)
	}
	for _, r := range other.Rows {
		row := make([]string, len(t.Columns))
		for i, v := range r {
			if i < len(idx) {
				row[idx[i]] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) addColumn(name string) {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
}

// RetrievalResult is what one retrieval produced for a selection.
type RetrievalResult struct {
	// Payload is the full table as CSV bytes. Nil when only a preview was
	// requested for a dataset that supports partial loads.
	Payload  []byte `json:"-"`
	Preview  *Table `json:"preview"`
	RowCount *int   `json:"row_count,omitempty"`
	Filename string `json:"filename"`
	// Empty marks a successful retrieval that returned zero rows.
	Empty bool `json:"empty"`
	// Message is the informational text for an empty result.
	Message string `json:"message,omitempty"`
}

// HasPayload reports whether a downloadable CSV is available.
func (r *RetrievalResult) HasPayload() bool {
	return r != nil && r.Payload != nil
}
