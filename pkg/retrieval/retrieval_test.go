package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/metrics"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// fakeSource serves a table in pages and records what was asked of it.
type fakeSource struct {
	table    *models.Table
	raw      []byte
	countErr error
	loadErr  error
	queries  []source.Query
	ops      []string
}

func (f *fakeSource) Count(ctx context.Context, q source.Query) (int, error) {
	f.ops = append(f.ops, "count")
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.table.Len(), nil
}

func (f *fakeSource) LoadBatches(ctx context.Context, q source.Query, batchSize int, yield func(*models.Table) error) error {
	f.ops = append(f.ops, "load_batches")
	f.queries = append(f.queries, q)
	for offset := 0; offset < f.table.Len(); offset += batchSize {
		if f.loadErr != nil && offset > 0 {
			return f.loadErr
		}
		end := offset + batchSize
		if end > f.table.Len() {
			end = f.table.Len()
		}
		page := models.NewTable(f.table.Columns)
		page.Rows = append(page.Rows, f.table.Rows[offset:end]...)
		if err := yield(page); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Load(ctx context.Context, q source.Query) (*models.Table, error) {
	f.ops = append(f.ops, "load")
	f.queries = append(f.queries, q)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if q.Limit > 0 {
		return f.table.Head(q.Limit), nil
	}
	return f.table, nil
}

func (f *fakeSource) DownloadRaw(ctx context.Context, d models.DatasetDescriptor) ([]byte, error) {
	f.ops = append(f.ops, "download_raw")
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.raw, nil
}

func numberedTable(n int) *models.Table {
	t := models.NewTable([]string{"id", "name"})
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, []string{fmt.Sprint(i), "row"})
	}
	return t
}

func apiSelection() models.DatasetSelection {
	return models.DatasetSelection{
		Dataset: models.DatasetDescriptor{
			State: "Virginia", SourceName: "Virginia", Agency: models.MultiValue, TableType: "STOPS",
			DataType: models.DataTypeSocrata, Year: models.MultiYear, URL: "data.virginia.gov", DatasetID: "2c96-texw",
			DateField: "incident_date", AgencyField: "agency_name",
		},
		Year:          models.ConcreteYear(2021),
		RequestedYear: models.ConcreteYear(2021),
		YearLabel:     "2021",
		TableType:     "STOPS",
	}
}

func TestRetrieve_BatchedProgress(t *testing.T) {
	src := &fakeSource{table: numberedTable(12000)}
	p := New(src, Config{BatchSize: 5000}, nil, metrics.New())

	var fractions []float64
	res, err := p.Retrieve(context.Background(), Request{Selection: apiSelection(), Full: true}, func(pr Progress) {
		if f, ok := pr.Fraction(); ok && pr.Completed > 0 {
			fractions = append(fractions, f)
		}
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3, 1}, fractions, 1e-9)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, 12000, *res.RowCount)
	assert.Equal(t, DefaultPreviewRows, res.Preview.Len())
	assert.True(t, res.HasPayload())
	assert.Equal(t, "Virginia_Virginia_MULTIPLE_STOPS_2021.csv", res.Filename)
	assert.Equal(t, []string{"count", "load_batches"}, src.ops)
}

func TestRetrieve_CountFailureIsTolerated(t *testing.T) {
	src := &fakeSource{table: numberedTable(7), countErr: errors.New("timeout")}
	p := New(src, Config{BatchSize: 5}, nil, nil)

	var last Progress
	res, err := p.Retrieve(context.Background(), Request{Selection: apiSelection(), Full: true}, func(pr Progress) { last = pr })
	require.NoError(t, err)
	assert.Equal(t, 7, *res.RowCount)

	_, known := last.Fraction()
	assert.False(t, known)
	assert.Equal(t, 2, last.Completed)
}

func TestRetrieve_EmptyIsNotFailure(t *testing.T) {
	src := &fakeSource{table: models.NewTable([]string{"id"})}
	p := New(src, Config{}, nil, nil)

	sel := apiSelection()
	sel.AgencyOverride = "Richmond"
	res, err := p.Retrieve(context.Background(), Request{Selection: sel, Full: true}, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Nil(t, res.Payload)
	assert.Equal(t, "No data found for the STOPS table for Virginia in 2021 when filtering for agency Richmond", res.Message)
	assert.Equal(t, "Virginia_Virginia_Richmond_STOPS_2021.csv", res.Filename)
}

func TestRetrieve_LoadFailure(t *testing.T) {
	src := &fakeSource{table: numberedTable(12), loadErr: errors.New("HTTP 503")}
	p := New(src, Config{BatchSize: 5}, nil, nil)

	res, err := p.Retrieve(context.Background(), Request{Selection: apiSelection(), Full: true}, nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var lf *apperrors.LoadFailure
	require.True(t, errors.As(err, &lf))
	assert.Equal(t, apperrors.PhaseRetrieval, lf.Phase)
	assert.Equal(t, "load_batches", lf.Op)
}

func TestRetrieve_PreviewOnlyPartialLoad(t *testing.T) {
	src := &fakeSource{table: numberedTable(100)}
	p := New(src, Config{}, nil, nil)

	res, err := p.Retrieve(context.Background(), Request{Selection: apiSelection(), PreviewRows: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Preview.Len())
	assert.Nil(t, res.Payload)
	assert.Nil(t, res.RowCount)
	require.Len(t, src.queries, 1)
	assert.Equal(t, 5, src.queries[0].Limit)
}

func TestRetrieve_MonolithicFile(t *testing.T) {
	sel := models.DatasetSelection{
		Dataset: models.DatasetDescriptor{
			State: "California", SourceName: "Oakland", Agency: "Oakland", TableType: "STOPS",
			DataType: models.DataTypeExcel, Year: models.MultiYear, URL: "https://x/stops.xlsx",
		},
		Year:          models.MultiYear,
		RequestedYear: models.ConcreteYear(2017),
		YearLabel:     "2016-2018",
		TableType:     "STOPS",
	}
	src := &fakeSource{table: numberedTable(30)}
	p := New(src, Config{}, nil, nil)

	res, err := p.Retrieve(context.Background(), Request{Selection: sel, PreviewRows: 10}, nil)
	require.NoError(t, err)
	require.Len(t, src.queries, 1)
	assert.Equal(t, 0, src.queries[0].Limit, "a file without partial loads is read whole")
	assert.True(t, res.HasPayload())
	assert.Equal(t, 30, *res.RowCount)
	assert.Equal(t, 10, res.Preview.Len())
	assert.Equal(t, "California_Oakland_STOPS_2017.csv", res.Filename)
}

func TestRetrieve_PlainCSVPreview(t *testing.T) {
	sel := models.DatasetSelection{
		Dataset: models.DatasetDescriptor{
			State: "Ohio", SourceName: "Columbus", Agency: "Columbus", TableType: "USE OF FORCE",
			DataType: models.DataTypeCSV, Year: models.ConcreteYear(2020), URL: "https://x/uof.csv",
		},
		Year: models.ConcreteYear(2020), TableType: "USE OF FORCE",
	}
	src := &fakeSource{table: numberedTable(30)}
	p := New(src, Config{}, nil, nil)

	res, err := p.Retrieve(context.Background(), Request{Selection: sel, PreviewRows: 3}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Payload)
	assert.Equal(t, 3, src.queries[0].Limit)
	assert.Equal(t, "Ohio_Columbus_USE_OF_FORCE_2020.csv", res.Filename)

	res, err = p.Retrieve(context.Background(), Request{Selection: sel, PreviewRows: 3, Full: true}, nil)
	require.NoError(t, err)
	assert.True(t, res.HasPayload())
	assert.Equal(t, 30, *res.RowCount)
}

func TestRetrieve_RawArchive(t *testing.T) {
	csvData := "id,name\n1,Jos\xc3\xa9\n2,Ann\n3,Bo\n"
	sel := models.DatasetSelection{
		Dataset: models.DatasetDescriptor{
			State: "California", SourceName: "California", Agency: models.MultiValue, TableType: "STOPS",
			DataType: models.DataTypeCSV, Year: models.ConcreteYear(2019), URL: "https://stacks.stanford.edu/ripa.zip",
		},
		Year: models.ConcreteYear(2019), TableType: "STOPS",
	}
	src := &fakeSource{raw: []byte(csvData)}
	p := New(src, Config{}, nil, nil)

	res, err := p.Retrieve(context.Background(), Request{Selection: sel, PreviewRows: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"download_raw"}, src.ops)
	assert.Equal(t, 3, *res.RowCount)
	assert.Equal(t, csvData, string(res.Payload))
	require.Equal(t, 2, res.Preview.Len())
	assert.Equal(t, "Jos", res.Preview.Rows[0][1])

	src.raw = []byte("id,name\n")
	res, err = p.Retrieve(context.Background(), Request{Selection: sel}, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty)
}

func TestStrategyFor(t *testing.T) {
	assert.Equal(t, StrategyBatched, StrategyFor(models.DatasetDescriptor{DataType: models.DataTypeArcGIS}))
	assert.Equal(t, StrategyBatched, StrategyFor(models.DatasetDescriptor{DataType: models.DataTypeSQL}))
	assert.Equal(t, StrategyRawArchive, StrategyFor(models.DatasetDescriptor{DataType: models.DataTypeCSV, URL: "https://x/a.zip"}))
	assert.Equal(t, StrategyMonolithic, StrategyFor(models.DatasetDescriptor{DataType: models.DataTypeCSV, URL: "https://x/a.csv"}))
	assert.Equal(t, StrategyMonolithic, StrategyFor(models.DatasetDescriptor{DataType: models.DataTypeExcel}))
}

func TestCountLabel(t *testing.T) {
	assert.Equal(t, "1 record", CountLabel(1))
	assert.Equal(t, "12000 records", CountLabel(12000))
	assert.Equal(t, "0 records", CountLabel(0))
}
