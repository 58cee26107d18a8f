// Package catalog holds the read-only set of dataset descriptors and the
// filtered views the resolution chain narrows.
package catalog

import (
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Store is an immutable snapshot of the catalog. It is safe to share between
// sessions.
type Store struct {
	rows     []models.DatasetDescriptor
	loadedAt time.Time
}

// NewStore wraps rows. The caller must not modify rows afterwards.
func NewStore(rows []models.DatasetDescriptor) *Store {
	return &Store{rows: rows, loadedAt: time.Now()}
}

// All returns a view over every row.
func (s *Store) All() View {
	if s == nil {
		return View{}
	}
	return View{rows: s.rows}
}

// Len returns the number of rows.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// LoadedAt is when the snapshot was taken.
func (s *Store) LoadedAt() time.Time {
	return s.loadedAt
}

// View is a filtered, ordered subset of a Store.
type View struct {
	rows []models.DatasetDescriptor
}

// NewView builds a view directly from rows.
func NewView(rows []models.DatasetDescriptor) View {
	return View{rows: rows}
}

// Rows returns the rows of the view. Callers must treat them as read-only.
func (v View) Rows() []models.DatasetDescriptor {
	return v.rows
}

func (v View) Len() int { return len(v.rows) }

// First returns the first row. It panics on an empty view.
func (v View) First() models.DatasetDescriptor {
	return v.rows[0]
}

// Filter keeps the rows for which keep returns true.
func (v View) Filter(keep func(models.DatasetDescriptor) bool) View {
	out := make([]models.DatasetDescriptor, 0, len(v.rows))
	for _, r := range v.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return View{rows: out}
}

// Distinct returns the distinct values of field in order of first appearance.
func (v View) Distinct(field func(models.DatasetDescriptor) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range v.rows {
		val := field(r)
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

// Field accessors for Filter and Distinct.
func State(d models.DatasetDescriptor) string      { return d.State }
func SourceName(d models.DatasetDescriptor) string { return d.SourceName }
func Agency(d models.DatasetDescriptor) string     { return d.Agency }
func TableType(d models.DatasetDescriptor) string  { return d.TableType }

// Equals builds a Filter predicate matching field == value.
func Equals(field func(models.DatasetDescriptor) string, value string) func(models.DatasetDescriptor) bool {
	return func(d models.DatasetDescriptor) bool { return field(d) == value }
}
