package source

import (
	"fmt"
)

// SQLAPI renders the PostgreSQL statements sent to SQL-over-HTTP portals
// (CKAN datastore_search_sql, Carto SQL API).
type SQLAPI struct {
	Dialect Dialect
}

// PostgresSQLAPI is the SQLAPI for portals backed by PostgreSQL.
var PostgresSQLAPI = SQLAPI{Dialect: PostgresDialect}

func (s SQLAPI) from(table string, q Query) (string, error) {
	stmt := " FROM " + s.Dialect.Ident(table)
	w, err := s.Dialect.Where(q)
	if err != nil {
		return "", err
	}
	if w != "" {
		stmt += " WHERE " + w
	}
	return stmt, nil
}

// Select returns one page of q.
func (s SQLAPI) Select(table string, q Query, offset, limit int) (string, error) {
	from, err := s.from(table, q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT *%s LIMIT %d OFFSET %d", from, limit, offset), nil
}

// Count returns the row count of q.
func (s SQLAPI) Count(table string, q Query) (string, error) {
	from, err := s.from(table, q)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) AS count" + from, nil
}

// Years returns the distinct years of dateField, as column "year".
func (s SQLAPI) Years(table, dateField string) string {
	col := s.Dialect.Ident(dateField)
	return fmt.Sprintf("SELECT DISTINCT CAST(EXTRACT(YEAR FROM CAST(%s AS TIMESTAMP)) AS INTEGER) AS year FROM %s WHERE %s IS NOT NULL ORDER BY year DESC",
		col, s.Dialect.Ident(table), col)
}

// Distinct returns the distinct values of field under q's filters.
func (s SQLAPI) Distinct(table, field string, q Query) (string, error) {
	from, err := s.from(table, q)
	if err != nil {
		return "", err
	}
	col := s.Dialect.Ident(field)
	return fmt.Sprintf("SELECT DISTINCT %s%s", col, from), nil
}
