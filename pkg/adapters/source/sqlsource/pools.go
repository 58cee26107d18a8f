package sqlsource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// PoolConnector abstracts connection pool operations across database types.
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the driver name for logging/stats
	GetType() string

	// Query runs a parameterized SELECT and returns the rows as strings.
	Query(ctx context.Context, query string, args []any) (*models.Table, error)
}

// openPool creates the pool for conn.
func openPool(ctx context.Context, conn source.SQLConnection, cfg ConnectionManagerConfig) (PoolConnector, error) {
	switch conn.Driver {
	case DriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(conn.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		poolConfig.MaxConns = cfg.PoolMaxConns
		poolConfig.MinConns = cfg.PoolMinConns
		poolConfig.MaxConnIdleTime = cfg.TTL

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		return &postgresPool{pool: pool}, nil

	case DriverSQLServer:
		db, err := sql.Open("sqlserver", conn.DSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(int(cfg.PoolMaxConns))
		db.SetMaxIdleConns(int(cfg.PoolMinConns))
		db.SetConnMaxIdleTime(cfg.TTL)
		return &mssqlPool{db: db}, nil
	}
	return nil, fmt.Errorf("unknown sql driver %q", conn.Driver)
}

// postgresPool wraps *pgxpool.Pool.
type postgresPool struct {
	pool *pgxpool.Pool
}

func (w *postgresPool) Ping(ctx context.Context) error { return w.pool.Ping(ctx) }

func (w *postgresPool) Close() error {
	w.pool.Close()
	return nil
}

func (w *postgresPool) GetType() string { return DriverPostgres }

func (w *postgresPool) Query(ctx context.Context, query string, args []any) (*models.Table, error) {
	rows, err := w.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	t := models.NewTable(columns)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = cellString(v)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return t, nil
}

// mssqlPool wraps *sql.DB opened with the sqlserver driver.
type mssqlPool struct {
	db *sql.DB
}

func (w *mssqlPool) Ping(ctx context.Context) error { return w.db.PingContext(ctx) }

func (w *mssqlPool) Close() error { return w.db.Close() }

func (w *mssqlPool) GetType() string { return DriverSQLServer }

func (w *mssqlPool) Query(ctx context.Context, query string, args []any) (*models.Table, error) {
	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	t := models.NewTable(columns)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = cellString(v)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return t, nil
}

// cellString renders a driver value the way it would appear in a CSV export.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, same := dv.(driver.Valuer); same {
			return fmt.Sprint(dv)
		}
		return cellString(dv)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
