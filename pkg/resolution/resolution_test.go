package resolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// fakeLookup returns each row's own year, or the years listed for its URL
// when the row is MULTI.
type fakeLookup struct {
	multiYears map[string][]models.Year
	agencies   []string
	yearsErr   error
	agencyErr  error
	agencyCall int
}

func (f *fakeLookup) Years(_ context.Context, rows []models.DatasetDescriptor) ([]models.Year, error) {
	if f.yearsErr != nil {
		return nil, f.yearsErr
	}
	var out []models.Year
	for _, r := range rows {
		if r.Year.IsMulti() {
			out = append(out, f.multiYears[r.URL]...)
			continue
		}
		out = append(out, r.Year)
	}
	return out, nil
}

func (f *fakeLookup) Agencies(_ context.Context, _ models.DatasetDescriptor, _ models.Year) ([]string, error) {
	f.agencyCall++
	return f.agencies, f.agencyErr
}

func date(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

func row(state, source, agency, table string, dt models.DataType, year models.Year, url string) models.DatasetDescriptor {
	return models.DatasetDescriptor{
		State: state, SourceName: source, Agency: agency, TableType: table,
		DataType: dt, Year: year, URL: url,
	}
}

func testCatalog() catalog.View {
	return catalog.NewView([]models.DatasetDescriptor{
		row("Virginia", "Fairfax County", "Fairfax County", "STOPS", models.DataTypeSocrata, models.ConcreteYear(2021), "data.fairfax.gov"),
		row("Virginia", "Fairfax County", "Fairfax County", "STOPS", models.DataTypeSocrata, models.ConcreteYear(2020), "data.fairfax.gov"),
		row("Virginia", "Fairfax County", "Fairfax County", "ARRESTS", models.DataTypeSocrata, models.ConcreteYear(2019), "data.fairfax.gov"),
		row("Virginia", "Richmond", "Richmond", "STOPS", models.DataTypeArcGIS, models.ConcreteYear(2022), "https://maps.richmond.gov/0"),
		row("California", "Oakland", "Oakland", "USE OF FORCE - SUBJECTS", models.DataTypeCSV, models.ConcreteYear(2019), "https://oakland.gov/subjects.csv"),
		row("California", "Oakland", "Oakland", "USE OF FORCE - INCIDENTS", models.DataTypeCSV, models.ConcreteYear(2019), "https://oakland.gov/incidents.csv"),
		row("California", "Oakland", "Oakland", "STOPS", models.DataTypeCSV, models.MultiYear, "https://oakland.gov/stops.csv"),
	})
}

func hintsOf(t *testing.T, m map[models.Stage]string) defaults.State {
	t.Helper()
	s, err := defaults.NewDownload().ApplyHints(m)
	require.NoError(t, err)
	return s
}

func TestResolve_PendingAtFirstAmbiguousStage(t *testing.T) {
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   defaults.NewDownload(),
	})
	require.NoError(t, err)

	assert.False(t, out.Resolved())
	require.NotNil(t, out.Pending)
	assert.Equal(t, models.StageState, out.Pending.Stage)
	assert.Equal(t, []string{"Virginia", "California"}, out.Pending.Options)
}

func TestResolve_FullyHinted(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "Virginia",
		models.StageSource:           "Fairfax County",
		models.StageTableTypeGeneral: "STOPS",
		models.StageYear:             "2020",
	})
	out, after, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.True(t, out.Resolved())

	sel := out.Selection
	assert.Equal(t, models.ConcreteYear(2020), sel.Year)
	assert.Equal(t, "STOPS", sel.TableType)
	assert.Equal(t, "data.fairfax.gov", sel.Dataset.URL)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, hints, after)

	var stages []models.Stage
	for _, s := range out.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []models.Stage{models.StageState, models.StageSource, models.StageTableTypeGeneral, models.StageYear}, stages)
}

func TestResolve_YearOptionsMostRecentFirst(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "Virginia",
		models.StageSource:           "Fairfax County",
		models.StageTableTypeGeneral: "STOPS",
	})
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.Equal(t, models.StageYear, out.Pending.Stage)
	assert.Equal(t, []string{"2021", "2020"}, out.Pending.Options)
}

func TestResolve_HintNotFoundFallsBackToFirstOption(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:  "Virginia",
		models.StageSource: "Atlantis",
	})
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)

	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "ERROR: Requested source=Atlantis not found", out.Warnings[0].Message())
	assert.Equal(t, FromFallback, out.Stages[1].Source)
	assert.Equal(t, "Fairfax County", out.Stages[1].Selected)
}

func TestResolve_ChoiceOverridingHintCascades(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "Virginia",
		models.StageSource:           "Fairfax County",
		models.StageTableTypeGeneral: "ARRESTS",
		models.StageYear:             "2019",
	})
	out, after, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   hints,
		Choices: Choices{models.StageSource: "Richmond"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Virginia", after.Get(models.StageState))
	assert.Equal(t, "Fairfax County", after.Get(models.StageSource))
	assert.False(t, after.IsSet(models.StageTableTypeGeneral))
	assert.False(t, after.IsSet(models.StageYear))

	// Richmond has a single table and year, so resolution completes.
	require.True(t, out.Resolved())
	assert.Equal(t, "https://maps.richmond.gov/0", out.Selection.Dataset.URL)
	assert.Empty(t, out.Warnings)
}

func TestResolve_ChoiceOnUnsetStageCascades(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageSource: "Oakland",
		models.StageYear:   "2019",
	})
	out, after, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   hints,
		Choices: Choices{models.StageState: "Virginia"},
	})
	require.NoError(t, err)

	assert.Empty(t, after.Get(models.StageSource))
	assert.False(t, after.IsSet(models.StageYear))
	assert.Empty(t, out.Warnings)
	require.NotNil(t, out.Pending)
	assert.Equal(t, models.StageSource, out.Pending.Stage)
	assert.Equal(t, []string{"Fairfax County", "Richmond"}, out.Pending.Options)
}

func TestResolve_ChoiceMatchingHintKeepsLaterHints(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "Virginia",
		models.StageSource:           "Fairfax County",
		models.StageTableTypeGeneral: "STOPS",
	})
	_, after, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   hints,
		Choices: Choices{models.StageSource: "Fairfax County"},
	})
	require.NoError(t, err)
	assert.Equal(t, "STOPS", after.Get(models.StageTableTypeGeneral))
}

func TestResolve_InvalidChoiceReturnsInputHints(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{models.StageState: "Virginia", models.StageYear: "2020"})
	_, after, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   hints,
		Choices: Choices{models.StageState: "Texas"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidChoice))
	assert.Equal(t, hints, after)
}

func TestResolve_SubTables(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "California",
		models.StageSource:           "Oakland",
		models.StageTableTypeGeneral: "USE OF FORCE",
	})
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.Equal(t, models.StageTableTypeSub, out.Pending.Stage)
	assert.Equal(t, []string{"SUBJECTS", "INCIDENTS"}, out.Pending.Options)

	out, _, err = Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: testCatalog(),
		Hints:   hints,
		Choices: Choices{models.StageTableTypeSub: "INCIDENTS"},
	})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, "USE OF FORCE - INCIDENTS", out.Selection.TableType)
	assert.Equal(t, []string{"USE OF FORCE - SUBJECTS"}, out.Selection.RelatedTables)
}

func TestResolve_RelatedTablesUseCatalogSpelling(t *testing.T) {
	v := catalog.NewView([]models.DatasetDescriptor{
		row("California", "Oakland", "Oakland", "USE OF FORCE-SUBJECTS", models.DataTypeCSV, models.ConcreteYear(2019), "https://oakland.gov/subjects.csv"),
		row("California", "Oakland", "Oakland", "USE OF FORCE - INCIDENTS", models.DataTypeCSV, models.ConcreteYear(2019), "https://oakland.gov/incidents.csv"),
	})
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{
		Catalog: v,
		Hints:   defaults.NewDownload(),
		Choices: Choices{models.StageTableTypeSub: "INCIDENTS"},
	})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, "USE OF FORCE - INCIDENTS", out.Selection.TableType)
	assert.Equal(t, []string{"USE OF FORCE-SUBJECTS"}, out.Selection.RelatedTables)
}

func TestResolve_GeneralOptionsSorted(t *testing.T) {
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:  "California",
		models.StageSource: "Oakland",
	})
	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.Equal(t, []string{"STOPS", "USE OF FORCE"}, out.Pending.Options)
}

func TestResolve_MonolithicFileOffersRange(t *testing.T) {
	lookup := &fakeLookup{multiYears: map[string][]models.Year{
		"https://oakland.gov/stops.csv": {models.ConcreteYear(2016), models.ConcreteYear(2018), models.ConcreteYear(2017)},
	}}
	hints := hintsOf(t, map[models.Stage]string{
		models.StageState:            "California",
		models.StageSource:           "Oakland",
		models.StageTableTypeGeneral: "STOPS",
	})

	out, _, err := Resolve(context.Background(), lookup, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, "2016-2018", out.Selection.YearLabel)
	assert.True(t, out.Selection.Year.IsMulti())
	assert.Equal(t, "2016-2018", out.Selection.FileYear())

	withYear, err := hints.ApplyHints(map[models.Stage]string{
		models.StageState:            "California",
		models.StageSource:           "Oakland",
		models.StageTableTypeGeneral: "STOPS",
		models.StageYear:             "2017",
	})
	require.NoError(t, err)
	out, _, err = Resolve(context.Background(), lookup, Request{Catalog: testCatalog(), Hints: withYear})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Empty(t, out.Warnings)
	assert.Equal(t, models.ConcreteYear(2017), out.Selection.RequestedYear)
	assert.Equal(t, "2017", out.Selection.FileYear())
}

func TestResolve_OverlappingMultiRows(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := row("Texas", "Austin", "Austin", "STOPS", models.DataTypeSocrata, models.MultiYear, "data.austintexas.gov")
	older.DatasetID, older.CoverageStart, older.CoverageEnd = "old1-1111", date(2015, 1, 1), date(2019, 12, 31)
	newer := row("Texas", "Austin", "Austin", "STOPS", models.DataTypeSocrata, models.MultiYear, "data.austintexas.gov")
	newer.DatasetID, newer.CoverageStart, newer.CoverageEnd = "new2-2222", date(2019, 1, 1), date(2023, 12, 31)
	v := catalog.NewView([]models.DatasetDescriptor{older, newer})

	lookup := &fakeLookup{multiYears: map[string][]models.Year{
		"data.austintexas.gov": {models.ConcreteYear(2024), models.ConcreteYear(2019), models.ConcreteYear(2016)},
	}}

	tests := []struct {
		name    string
		year    string
		wantID  string
		pending bool
	}{
		{name: "only older covers", year: "2016", wantID: "old1-1111"},
		{name: "current year follows last coverage", year: "2024", wantID: "new2-2222"},
		{name: "overlap needs url", year: "2019", pending: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := hintsOf(t, map[models.Stage]string{models.StageYear: tt.year})
			out, _, err := Resolve(context.Background(), lookup, Request{Catalog: v, Hints: hints, Now: now})
			require.NoError(t, err)
			if tt.pending {
				require.NotNil(t, out.Pending)
				assert.Equal(t, models.StageURL, out.Pending.Stage)
				assert.Equal(t, []string{"data.austintexas.gov: old1-1111", "data.austintexas.gov: new2-2222"}, out.Pending.Options)
				return
			}
			require.True(t, out.Resolved())
			assert.Equal(t, tt.wantID, out.Selection.Dataset.DatasetID)
			assert.Equal(t, tt.year, out.Selection.FileYear())
		})
	}

	hints := hintsOf(t, map[models.Stage]string{
		models.StageYear: "2019",
		models.StageURL:  "data.austintexas.gov",
		models.StageID:   "new2-2222",
	})
	out, _, err := Resolve(context.Background(), lookup, Request{Catalog: v, Hints: hints, Now: now})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, "new2-2222", out.Selection.Dataset.DatasetID)
}

func TestResolve_AgencyFilter(t *testing.T) {
	multi := row("Virginia", "Virginia", models.MultiValue, "STOPS", models.DataTypeSocrata, models.ConcreteYear(2022), "data.virginia.gov")
	csvMulti := row("Virginia", "Virginia", models.MultiValue, "ARRESTS", models.DataTypeCSV, models.ConcreteYear(2022), "https://va.gov/arrests.csv")
	v := catalog.NewView([]models.DatasetDescriptor{multi, csvMulti})

	lookup := &fakeLookup{agencies: []string{"Richmond", "Fairfax County"}}
	out, _, err := Resolve(context.Background(), lookup, Request{
		Catalog: v,
		Hints:   hintsOf(t, map[models.Stage]string{models.StageTableTypeGeneral: "STOPS"}),
	})
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.Equal(t, models.StageAgencyFilter, out.Pending.Stage)
	assert.Equal(t, []string{"ALL", "Fairfax County", "Richmond"}, out.Pending.Options)

	out, _, err = Resolve(context.Background(), lookup, Request{
		Catalog: v,
		Hints:   hintsOf(t, map[models.Stage]string{models.StageTableTypeGeneral: "STOPS"}),
		Choices: Choices{models.StageAgencyFilter: "Richmond"},
	})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, "Richmond", out.Selection.AgencyOverride)
	assert.Equal(t, "Richmond", out.Selection.AgencyName())

	out, _, err = Resolve(context.Background(), lookup, Request{
		Catalog: v,
		Hints:   hintsOf(t, map[models.Stage]string{models.StageTableTypeGeneral: "STOPS"}),
		Choices: Choices{models.StageAgencyFilter: "ALL"},
	})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Empty(t, out.Selection.AgencyOverride)

	// File-based multi-agency rows never get the agency stage.
	calls := lookup.agencyCall
	out, _, err = Resolve(context.Background(), lookup, Request{
		Catalog: v,
		Hints:   hintsOf(t, map[models.Stage]string{models.StageTableTypeGeneral: "ARRESTS"}),
	})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, calls, lookup.agencyCall)
}

func TestResolve_LoadFailures(t *testing.T) {
	boom := errors.New("connection refused")

	_, _, err := Resolve(context.Background(), &fakeLookup{yearsErr: boom}, Request{
		Catalog: testCatalog(),
		Hints: hintsOf(t, map[models.Stage]string{
			models.StageState: "Virginia", models.StageSource: "Richmond",
		}),
	})
	require.Error(t, err)
	var lf *apperrors.LoadFailure
	require.True(t, errors.As(err, &lf))
	assert.Equal(t, apperrors.PhaseResolution, lf.Phase)
	assert.Equal(t, "years", lf.Op)
	assert.ErrorIs(t, err, boom)

	multi := row("Virginia", "Virginia", models.MultiValue, "STOPS", models.DataTypeSocrata, models.ConcreteYear(2022), "data.virginia.gov")
	_, _, err = Resolve(context.Background(), &fakeLookup{agencyErr: boom}, Request{
		Catalog: catalog.NewView([]models.DatasetDescriptor{multi}),
		Hints:   defaults.NewDownload(),
	})
	require.True(t, errors.As(err, &lf))
	assert.Equal(t, "agencies", lf.Op)
}

func TestHintsForDataset(t *testing.T) {
	d := row("California", "Oakland", "Oakland", "USE OF FORCE - SUBJECTS", models.DataTypeCSV, models.ConcreteYear(2019), "https://oakland.gov/subjects.csv")
	d.DatasetID = "uof"

	hints, err := HintsForDataset(context.Background(), &fakeLookup{}, d)
	require.NoError(t, err)
	assert.Equal(t, "USE OF FORCE", hints.Get(models.StageTableTypeGeneral))
	assert.Equal(t, "SUBJECTS", hints.Get(models.StageTableTypeSub))
	assert.Equal(t, "2019", hints.Get(models.StageYear))
	assert.Equal(t, "uof", hints.Get(models.StageID))

	out, _, err := Resolve(context.Background(), &fakeLookup{}, Request{Catalog: testCatalog(), Hints: hints})
	require.NoError(t, err)
	require.True(t, out.Resolved())
	assert.Equal(t, d.URL, out.Selection.Dataset.URL)
	assert.Empty(t, out.Warnings)

	na := row("Texas", "Dallas", "Dallas", "ARRESTS", models.DataTypeCSV, models.NotApplicableYear, "https://dallas.gov/a.csv")
	hints, err = HintsForDataset(context.Background(), &fakeLookup{}, na)
	require.NoError(t, err)
	assert.Equal(t, models.NotApplicableLabel, hints.Get(models.StageYear))
}
