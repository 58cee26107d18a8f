// Package source is the data-access layer: one Loader per access mechanism
// (open-data APIs, files, SQL databases) plus a Provider that routes catalog
// rows to them and memoizes lookups.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Query identifies the rows to load from one dataset.
type Query struct {
	Dataset models.DatasetDescriptor
	// Year is the effective year. A concrete year on a MULTI dataset filters
	// on Dataset.DateField; any other combination loads everything.
	Year models.Year
	// Agency narrows a multi-agency dataset on Dataset.AgencyField.
	// Empty means no filter.
	Agency string
	// Limit caps the number of rows. 0 loads everything.
	Limit int
}

// NewQuery builds the query for a resolved selection.
func NewQuery(sel models.DatasetSelection) Query {
	return Query{Dataset: sel.Dataset, Year: sel.Year, Agency: sel.AgencyOverride}
}

// DateRange returns the half-open [start, end) interval the query filters
// on, if any.
func (q Query) DateRange() (start, end time.Time, ok bool) {
	if !q.Dataset.Year.IsMulti() || !q.Year.IsConcrete() || q.Dataset.DateField == "" {
		return time.Time{}, time.Time{}, false
	}
	start = time.Date(q.Year.Value, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0), true
}

// AgencyFilter returns the agency column and value the query filters on, if any.
func (q Query) AgencyFilter() (field, value string, ok bool) {
	if q.Agency == "" || q.Dataset.AgencyField == "" {
		return "", "", false
	}
	return q.Dataset.AgencyField, q.Agency, true
}

func (q Query) String() string {
	return fmt.Sprintf("%s year=%s agency=%q limit=%d", q.Dataset.Key(), q.Year, q.Agency, q.Limit)
}

// Loader is implemented by every access mechanism.
type Loader interface {
	// Load returns the rows matching q, honoring q.Limit.
	Load(ctx context.Context, q Query) (*models.Table, error)
	// Years lists the years present in a MULTI dataset.
	Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error)
}

// BatchLoader is a Loader whose backend counts and pages server-side.
type BatchLoader interface {
	Loader
	Count(ctx context.Context, q Query) (int, error)
	// Page returns up to limit rows starting at offset.
	Page(ctx context.Context, q Query, offset, limit int) (*models.Table, error)
	// Agencies lists the distinct agencies of a multi-agency dataset.
	Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error)
}

// RawDownloader returns the dataset's bytes without parsing them. Used for
// very large compressed CSV files.
type RawDownloader interface {
	DownloadRaw(ctx context.Context, d models.DatasetDescriptor) ([]byte, error)
}

// LoadPaged pages through a BatchLoader until a short page, the limit, or an
// error. Each page is handed to yield.
func LoadPaged(ctx context.Context, l BatchLoader, q Query, batchSize int, yield func(*models.Table) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	offset := 0
	for {
		n := batchSize
		if q.Limit > 0 && q.Limit-offset < n {
			n = q.Limit - offset
		}
		if n <= 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := l.Page(ctx, q, offset, n)
		if err != nil {
			return err
		}
		if page.Len() > 0 || offset == 0 {
			if err := yield(page); err != nil {
				return err
			}
		}
		if page.Len() < n {
			return nil
		}
		offset += page.Len()
	}
}

// LoadAll concatenates every page of q.
func LoadAll(ctx context.Context, l BatchLoader, q Query, batchSize int) (*models.Table, error) {
	var out *models.Table
	err := LoadPaged(ctx, l, q, batchSize, func(t *models.Table) error {
		if out == nil {
			out = t
			return nil
		}
		out.Concat(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = models.NewTable(nil)
	}
	return out, nil
}
