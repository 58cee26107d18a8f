//go:build integration

package sqlsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/testhelpers"
)

func TestLoader_Postgres_Integration(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	_, err := testDB.Pool.Exec(ctx, `
		DROP TABLE IF EXISTS sqlsource_stops;
		CREATE TABLE sqlsource_stops (id int, stop_date date, agency text);
		INSERT INTO sqlsource_stops VALUES
			(1, '2020-05-01', 'Pasadena'),
			(2, '2021-02-01', 'Pasadena'),
			(3, '2021-08-09', 'Burbank'),
			(4, '2021-12-31', 'Pasadena');`)
	require.NoError(t, err)

	mgr := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	loader := New(map[string]source.SQLConnection{
		"test": {Driver: DriverPostgres, DSN: testDB.ConnStr},
	}, mgr)
	t.Cleanup(func() { _ = loader.Close() })

	d := models.DatasetDescriptor{
		DataType: models.DataTypeSQL, Year: models.MultiYear, Agency: models.MultiValue,
		URL: "test", DatasetID: "public.sqlsource_stops", DateField: "stop_date", AgencyField: "agency",
	}

	years, err := loader.Years(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []models.Year{models.ConcreteYear(2021), models.ConcreteYear(2020)}, years)

	agencies, err := loader.Agencies(ctx, d, models.ConcreteYear(2021))
	require.NoError(t, err)
	assert.Equal(t, []string{"Burbank", "Pasadena"}, agencies)

	q := source.Query{Dataset: d, Year: models.ConcreteYear(2021), Agency: "Pasadena"}
	n, err := loader.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := source.LoadAll(ctx, loader, q, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "stop_date", "agency"}, all.Columns)
	require.Equal(t, 2, all.Len())
	assert.Equal(t, "2021-02-01", all.Rows[0][1])
}
