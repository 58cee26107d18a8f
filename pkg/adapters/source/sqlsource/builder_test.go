package sqlsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func stopsQuery(datasetID string) source.Query {
	return source.Query{
		Dataset: models.DatasetDescriptor{
			DataType: models.DataTypeSQL, Year: models.MultiYear, Agency: models.MultiValue,
			URL: "warehouse", DatasetID: datasetID, DateField: "stop_date", AgencyField: "agency",
		},
		Year:   models.ConcreteYear(2021),
		Agency: "Pasadena",
	}
}

func TestBuilder_PostgresSelect(t *testing.T) {
	b := builder{driver: DriverPostgres}

	stmt, args, err := b.Select(stopsQuery("ripa.stops"), 5000, 5000)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "ripa"."stops" WHERE "stop_date" >= $1 AND "stop_date" < $2 AND "agency" = $3 LIMIT 5000 OFFSET 5000`, stmt)
	require.Len(t, args, 3)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), args[0])
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), args[1])
	assert.Equal(t, "Pasadena", args[2])
}

func TestBuilder_SQLServerSelect(t *testing.T) {
	b := builder{driver: DriverSQLServer}

	stmt, args, err := b.Select(stopsQuery("stops"), 0, 20)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM [dbo].[stops] WHERE [stop_date] >= @p1 AND [stop_date] < @p2 AND [agency] = @p3 ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 20 ROWS ONLY", stmt)
	assert.Len(t, args, 3)

	q := stopsQuery("stops")
	q.Year = models.MultiYear
	q.Agency = ""
	stmt, args, err = b.Select(q, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM [dbo].[stops]", stmt)
	assert.Empty(t, args)
}

func TestBuilder_AgencyOnlyPlaceholder(t *testing.T) {
	q := stopsQuery("stops")
	q.Year = models.MultiYear

	stmt, args, err := builder{driver: DriverPostgres}.Count(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS count FROM "stops" WHERE "agency" = $1`, stmt)
	assert.Equal(t, []any{"Pasadena"}, args)
}

func TestBuilder_QuotesHostileIdentifiers(t *testing.T) {
	q := stopsQuery(`stops"; DROP TABLE x; --`)
	stmt, _, err := builder{driver: DriverPostgres}.Count(q)
	require.NoError(t, err)
	assert.Contains(t, stmt, `FROM "stops; DROP TABLE x; --"`)

	q = stopsQuery("dbo.stops]; DROP TABLE x; --")
	stmt, _, err = builder{driver: DriverSQLServer}.Count(q)
	require.NoError(t, err)
	assert.Contains(t, stmt, "FROM [dbo].[stops; DROP TABLE x; --]")

	_, _, err = builder{driver: DriverPostgres}.Count(stopsQuery(""))
	require.Error(t, err)
}

func TestBuilder_YearsAndDistinct(t *testing.T) {
	q := stopsQuery("ripa.stops")

	stmt, err := builder{driver: DriverPostgres}.Years(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT CAST(EXTRACT(YEAR FROM CAST("stop_date" AS TIMESTAMP)) AS INTEGER) AS year FROM "ripa"."stops" WHERE "stop_date" IS NOT NULL ORDER BY year DESC`, stmt)

	stmt, err = builder{driver: DriverSQLServer}.Years(q)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT YEAR(CAST([stop_date] AS DATETIME2)) AS year FROM [ripa].[stops] WHERE [stop_date] IS NOT NULL ORDER BY year DESC", stmt)

	q.Agency = ""
	stmt, args, err := builder{driver: DriverPostgres}.Distinct(q, "agency")
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT "agency" FROM "ripa"."stops" WHERE "stop_date" >= $1 AND "stop_date" < $2 AND "agency" IS NOT NULL`, stmt)
	assert.Len(t, args, 2)
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", cellString(nil))
	assert.Equal(t, "abc", cellString([]byte("abc")))
	assert.Equal(t, "2021-03-04", cellString(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2021-03-04 05:06:07", cellString(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)))
	assert.Equal(t, "1.5", cellString(1.5))
	assert.Equal(t, "42", cellString(int64(42)))
	assert.Equal(t, "true", cellString(true))
}
