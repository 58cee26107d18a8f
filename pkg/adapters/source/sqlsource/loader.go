// Package sqlsource loads datasets stored as tables in PostgreSQL or SQL
// Server. A dataset's URL names a configured connection and its dataset id
// names the table.
package sqlsource

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/logging"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Loader implements source.BatchLoader over pooled connections.
type Loader struct {
	conns map[string]source.SQLConnection
	mgr   *ConnectionManager
}

func New(conns map[string]source.SQLConnection, mgr *ConnectionManager) *Loader {
	return &Loader{conns: conns, mgr: mgr}
}

func (l *Loader) target(ctx context.Context, d models.DatasetDescriptor) (PoolConnector, builder, error) {
	conn, ok := l.conns[d.URL]
	if !ok {
		return nil, builder{}, fmt.Errorf("unknown sql connection %q", d.URL)
	}
	pool, err := l.mgr.GetOrCreatePool(ctx, d.URL, conn)
	if err != nil {
		return nil, builder{}, err
	}
	return pool, builder{driver: conn.Driver}, nil
}

func (l *Loader) query(ctx context.Context, pool PoolConnector, stmt string, args []any) (*models.Table, error) {
	l.mgr.logger.Debug("Running dataset query",
		zap.String("sql", logging.SanitizeQuery(stmt)),
		zap.Int("args", len(args)))
	return pool.Query(ctx, stmt, args)
}

func (l *Loader) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	return l.Page(ctx, q, 0, q.Limit)
}

func (l *Loader) Page(ctx context.Context, q source.Query, offset, limit int) (*models.Table, error) {
	pool, b, err := l.target(ctx, q.Dataset)
	if err != nil {
		return nil, err
	}
	stmt, args, err := b.Select(q, offset, limit)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, pool, stmt, args)
}

func (l *Loader) Count(ctx context.Context, q source.Query) (int, error) {
	pool, b, err := l.target(ctx, q.Dataset)
	if err != nil {
		return 0, err
	}
	stmt, args, err := b.Count(q)
	if err != nil {
		return 0, err
	}
	t, err := l.query(ctx, pool, stmt, args)
	if err != nil {
		return 0, err
	}
	if t.Len() != 1 || len(t.Rows[0]) == 0 {
		return 0, fmt.Errorf("count of %s returned no rows", q.Dataset.DatasetID)
	}
	n, err := strconv.Atoi(t.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("count of %s: %w", q.Dataset.DatasetID, err)
	}
	return n, nil
}

func (l *Loader) Years(ctx context.Context, d models.DatasetDescriptor) ([]models.Year, error) {
	if d.DateField == "" {
		return nil, nil
	}
	pool, b, err := l.target(ctx, d)
	if err != nil {
		return nil, err
	}
	stmt, err := b.Years(source.Query{Dataset: d})
	if err != nil {
		return nil, err
	}
	t, err := l.query(ctx, pool, stmt, nil)
	if err != nil {
		return nil, err
	}
	years := make([]models.Year, 0, t.Len())
	for _, row := range t.Rows {
		y, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		years = append(years, models.ConcreteYear(y))
	}
	return years, nil
}

func (l *Loader) Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error) {
	if d.AgencyField == "" {
		return nil, nil
	}
	pool, b, err := l.target(ctx, d)
	if err != nil {
		return nil, err
	}
	stmt, args, err := b.Distinct(source.Query{Dataset: d, Year: year}, d.AgencyField)
	if err != nil {
		return nil, err
	}
	t, err := l.query(ctx, pool, stmt, args)
	if err != nil {
		return nil, err
	}
	return source.DistinctValues(t, d.AgencyField)
}

// Close releases every pool.
func (l *Loader) Close() error {
	return l.mgr.Close()
}
