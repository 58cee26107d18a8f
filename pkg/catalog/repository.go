package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Repository persists the catalog in PostgreSQL (table opd_catalog).
type Repository interface {
	Source
	// ReplaceAll swaps the stored catalog for rows in one transaction.
	ReplaceAll(ctx context.Context, rows []models.DatasetDescriptor) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

var catalogColumns = []string{
	"state", "source_name", "agency", "agency_full", "table_type", "data_type", "year",
	"coverage_start", "coverage_end", "url", "dataset_id", "date_field", "agency_field",
	"source_url", "readme", "min_version",
}

func (r *postgresRepository) Fetch(ctx context.Context) ([]models.DatasetDescriptor, error) {
	query := `
		SELECT state, source_name, agency, agency_full, table_type, data_type, year,
		       coverage_start, coverage_end, url, dataset_id, date_field, agency_field,
		       source_url, readme, min_version
		FROM opd_catalog
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var out []models.DatasetDescriptor
	for rows.Next() {
		var d models.DatasetDescriptor
		var dataType, year string
		var coverageStart, coverageEnd *time.Time
		if err := rows.Scan(&d.State, &d.SourceName, &d.Agency, &d.AgencyFull, &d.TableType, &dataType, &year,
			&coverageStart, &coverageEnd, &d.URL, &d.DatasetID, &d.DateField, &d.AgencyField,
			&d.SourceURL, &d.Readme, &d.MinVersion); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		d.DataType = normalizeDataType(dataType)
		if d.Year, err = models.ParseYear(year); err != nil {
			return nil, fmt.Errorf("catalog row for %s/%s: %w", d.State, d.SourceName, err)
		}
		d.CoverageStart, d.CoverageEnd = coverageStart, coverageEnd
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog rows: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) ReplaceAll(ctx context.Context, rows []models.DatasetDescriptor) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM opd_catalog`); err != nil {
		return 0, fmt.Errorf("failed to clear catalog: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"opd_catalog"}, catalogColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			d := rows[i]
			return []any{
				d.State, d.SourceName, d.Agency, d.AgencyFull, d.TableType, string(d.DataType), d.Year.String(),
				d.CoverageStart, d.CoverageEnd, d.URL, d.DatasetID, d.DateField, d.AgencyField,
				d.SourceURL, d.Readme, d.MinVersion,
			}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("failed to copy catalog rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit catalog: %w", err)
	}
	return n, nil
}
