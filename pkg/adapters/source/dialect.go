package source

import (
	"fmt"
	"strings"
	"time"

	opdsql "github.com/ekaya-inc/opd-explorer/pkg/sql"
)

// Dialect renders the filter clauses of one portal query language.
type Dialect struct {
	// Ident quotes a column name.
	Ident func(name string) string
	// Timestamp renders a UTC instant as a literal.
	Timestamp func(t time.Time) string
}

// PostgresDialect serves the SQL endpoints of CKAN and Carto.
var PostgresDialect = Dialect{
	Ident: func(name string) string {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	},
	Timestamp: func(t time.Time) string {
		return "'" + t.Format("2006-01-02 15:04:05") + "'"
	},
}

// Where builds the filter expression for q. An empty string means no
// filter. Agency values are screened for injection before being quoted.
func (d Dialect) Where(q Query) (string, error) {
	var clauses []string
	if start, end, ok := q.DateRange(); ok {
		col := d.Ident(q.Dataset.DateField)
		clauses = append(clauses, fmt.Sprintf("%s >= %s AND %s < %s", col, d.Timestamp(start), col, d.Timestamp(end)))
	}
	if field, value, ok := q.AgencyFilter(); ok {
		lit, err := opdsql.SafeLiteral(field, value)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", d.Ident(field), lit))
	}
	return strings.Join(clauses, " AND "), nil
}

