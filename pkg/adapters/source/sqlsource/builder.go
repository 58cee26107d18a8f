package sqlsource

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
)

// builder renders parameterized statements for one driver. Filter values
// are always bound as parameters.
type builder struct {
	driver string
}

// splitTable parses "schema.table" or "table". SQL Server defaults the
// schema to dbo, PostgreSQL to the search path.
func (b builder) splitTable(datasetID string) (schema, table string) {
	cleaned := strings.NewReplacer("[", "", "]", "", `"`, "").Replace(strings.TrimSpace(datasetID))
	if i := strings.Index(cleaned, "."); i >= 0 {
		return cleaned[:i], cleaned[i+1:]
	}
	if b.driver == DriverSQLServer {
		return "dbo", cleaned
	}
	return "", cleaned
}

func (b builder) ident(name string) string {
	if b.driver == DriverSQLServer {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return pgx.Identifier{name}.Sanitize()
}

func (b builder) table(datasetID string) (string, error) {
	schema, table := b.splitTable(datasetID)
	if table == "" {
		return "", fmt.Errorf("dataset id must name a table, got %q", datasetID)
	}
	if b.driver == DriverSQLServer {
		return b.ident(schema) + "." + b.ident(table), nil
	}
	if schema == "" {
		return pgx.Identifier{table}.Sanitize(), nil
	}
	return pgx.Identifier{schema, table}.Sanitize(), nil
}

func (b builder) placeholder(n int) string {
	if b.driver == DriverSQLServer {
		return fmt.Sprintf("@p%d", n)
	}
	return fmt.Sprintf("$%d", n)
}

// where returns the WHERE clause (with leading space) and its arguments.
func (b builder) where(q source.Query) (string, []any) {
	var clauses []string
	var args []any

	if start, end, ok := q.DateRange(); ok {
		col := b.ident(q.Dataset.DateField)
		args = append(args, start, end)
		clauses = append(clauses, fmt.Sprintf("%s >= %s AND %s < %s", col, b.placeholder(1), col, b.placeholder(2)))
	}
	if field, value, ok := q.AgencyFilter(); ok {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = %s", b.ident(field), b.placeholder(len(args))))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Select pages through q. limit 0 returns every row from offset.
func (b builder) Select(q source.Query, offset, limit int) (string, []any, error) {
	from, err := b.table(q.Dataset.DatasetID)
	if err != nil {
		return "", nil, err
	}
	where, args := b.where(q)
	stmt := "SELECT * FROM " + from + where

	if b.driver == DriverSQLServer {
		if offset > 0 || limit > 0 {
			stmt += fmt.Sprintf(" ORDER BY (SELECT NULL) OFFSET %d ROWS", offset)
			if limit > 0 {
				stmt += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
			}
		}
		return stmt, args, nil
	}
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", offset)
	}
	return stmt, args, nil
}

func (b builder) Count(q source.Query) (string, []any, error) {
	from, err := b.table(q.Dataset.DatasetID)
	if err != nil {
		return "", nil, err
	}
	where, args := b.where(q)
	return "SELECT COUNT(*) AS count FROM " + from + where, args, nil
}

// Years lists the distinct years of the date field, most recent first.
func (b builder) Years(q source.Query) (string, error) {
	from, err := b.table(q.Dataset.DatasetID)
	if err != nil {
		return "", err
	}
	col := b.ident(q.Dataset.DateField)
	expr := fmt.Sprintf("CAST(EXTRACT(YEAR FROM CAST(%s AS TIMESTAMP)) AS INTEGER)", col)
	if b.driver == DriverSQLServer {
		expr = fmt.Sprintf("YEAR(CAST(%s AS DATETIME2))", col)
	}
	return fmt.Sprintf("SELECT DISTINCT %s AS year FROM %s WHERE %s IS NOT NULL ORDER BY year DESC", expr, from, col), nil
}

// Distinct lists the distinct non-null values of field within q.
func (b builder) Distinct(q source.Query, field string) (string, []any, error) {
	from, err := b.table(q.Dataset.DatasetID)
	if err != nil {
		return "", nil, err
	}
	where, args := b.where(q)
	col := b.ident(field)
	if where == "" {
		where = " WHERE " + col + " IS NOT NULL"
	} else {
		where += " AND " + col + " IS NOT NULL"
	}
	return "SELECT DISTINCT " + col + " FROM " + from + where, args, nil
}
