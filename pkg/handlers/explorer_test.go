package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/config"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/retrieval"
	"github.com/ekaya-inc/opd-explorer/pkg/session"
)

type staticCatalog struct{ store *catalog.Store }

func (c staticCatalog) Get(context.Context) (*catalog.Store, error) { return c.store, nil }

type rowYears struct{}

func (rowYears) Years(_ context.Context, rows []models.DatasetDescriptor) ([]models.Year, error) {
	out := make([]models.Year, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Year)
	}
	return out, nil
}

func (rowYears) Agencies(context.Context, models.DatasetDescriptor, models.Year) ([]string, error) {
	return nil, nil
}

type csvRetriever struct{ calls int }

func (f *csvRetriever) Retrieve(_ context.Context, req retrieval.Request, onProgress func(retrieval.Progress)) (*models.RetrievalResult, error) {
	f.calls++
	onProgress(retrieval.Progress{Completed: 1, Total: 1, Rows: 2})
	preview := models.NewTable([]string{"date", "race"})
	preview.Rows = [][]string{{"2021-01-01", "W"}, {"2021-01-02", "B"}}
	rows := 2
	res := &models.RetrievalResult{
		Preview:  preview,
		RowCount: &rows,
		Filename: retrieval.DeriveFilename(req.Selection),
	}
	if req.Full {
		res.Payload = []byte("date,race\n2021-01-01,W\n2021-01-02,B\n")
	}
	return res, nil
}

func testStore() *catalog.Store {
	row := func(state, source, table string, year int, url string) models.DatasetDescriptor {
		return models.DatasetDescriptor{
			State: state, SourceName: source, Agency: source, TableType: table,
			DataType: models.DataTypeSocrata, Year: models.ConcreteYear(year), URL: url, DatasetID: "abcd-1234",
		}
	}
	return catalog.NewStore([]models.DatasetDescriptor{
		row("Virginia", "Fairfax County", "STOPS", 2021, "data.fairfax.gov"),
		row("Virginia", "Fairfax County", "STOPS", 2020, "data.fairfax.gov"),
		row("Virginia", "Richmond", "ARRESTS", 2022, "data.richmond.gov"),
		row("California", "Oakland", "USE OF FORCE - INCIDENTS", 2019, "data.oaklandca.gov"),
	})
}

type explorerClient struct {
	t         *testing.T
	srv       *httptest.Server
	client    *http.Client
	retriever *csvRetriever
}

func newExplorerClient(t *testing.T) *explorerClient {
	t.Helper()
	store := testStore()
	r := &csvRetriever{}
	mgr := session.NewManager(&session.Env{
		Catalog:   staticCatalog{store},
		Lookup:    rowYears{},
		Retriever: r,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, time.Hour, nil)
	cookies := NewSessionCookies("test-secret", "opd_session", time.Hour, false, mgr, zap.NewNop())

	mux := http.NewServeMux()
	NewExplorerHandler(staticCatalog{store}, cookies, "https://explorer.example.org", 20, zap.NewNop()).RegisterRoutes(mux)
	NewHealthHandler(&config.Config{Version: "test", Env: "test"}, staticCatalog{store}, mgr, zap.NewNop()).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &explorerClient{t: t, srv: srv, client: &http.Client{Jar: jar}, retriever: r}
}

func (c *explorerClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestExplorer_FindAppliesFilters(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodGet, "/api/catalog?state=Virginia&table=STOPS", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[catalog.FinderResult](t, resp)

	assert.Equal(t, []string{"ALL", "Virginia", "California"}, res.StateOptions)
	assert.Equal(t, "Virginia", res.Selection.State)
	assert.Equal(t, "STOPS", res.Selection.Table)
	assert.Len(t, res.Datasets, 2)
}

func TestExplorer_Link(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodGet, "/api/link?state=Virginia&source=Richmond", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	link := decode[LinkResponse](t, resp)
	assert.Equal(t, "https://explorer.example.org/Find_Datasets/?&state=Virginia&source=Richmond", link.URL)

	resp = c.do(http.MethodGet, "/api/link?state=Texas", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExplorer_SelectionFlow(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodGet, "/api/selection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel := decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Pending)
	assert.Equal(t, models.StageState, sel.Pending.Stage)

	resp = c.do(http.MethodPost, "/api/selection/choose", ChooseRequest{Stage: "state", Value: "Virginia"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel = decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Pending)
	assert.Equal(t, models.StageSource, sel.Pending.Stage)

	resp = c.do(http.MethodPost, "/api/selection/choose", ChooseRequest{Stage: "source", Value: "Richmond"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel = decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Selection)
	assert.Equal(t, "Virginia_Richmond_ARRESTS_2022.csv", sel.Filename)
	require.NotNil(t, sel.Details)
	assert.Equal(t, "Arrests", sel.Details.TableType)
}

func TestExplorer_InvalidChoice(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodPost, "/api/selection/choose", ChooseRequest{Stage: "state", Value: "Texas"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/selection/choose", ChooseRequest{Value: "Texas"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExplorer_QueryHintsWithWarning(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodGet, "/api/selection?state=Virginia&source=Atlantis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel := decode[SelectionResponse](t, resp)
	assert.Equal(t, []string{"ERROR: Requested source=Atlantis not found"}, sel.Messages)
}

func TestExplorer_ApplyHintsRejectsUnknownStage(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodPost, "/api/selection/hints", map[string]string{"colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/selection/hints", map[string]string{"state": "Virginia", "source": "Fairfax County", "year": "2020"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel := decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Selection)
	assert.Equal(t, models.ConcreteYear(2020), sel.Selection.Year)
}

func TestExplorer_GoTo(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodPost, "/api/selection/goto", GoToRequest{
		State: "Virginia", SourceName: "Fairfax County", TableType: "STOPS", URL: "data.fairfax.gov",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sel := decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Selection)
	assert.Equal(t, models.ConcreteYear(2021), sel.Selection.Year)

	resp = c.do(http.MethodPost, "/api/selection/goto", GoToRequest{State: "Texas"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExplorer_RetrieveAndDownload(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodPost, "/api/retrieve", RetrieveRequest{Full: true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/selection/hints", map[string]string{"state": "Virginia", "source": "Richmond"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/download", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/retrieve", RetrieveRequest{Full: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[RetrieveResponse](t, resp)
	assert.True(t, res.Downloadable)
	assert.Equal(t, "2 records", res.RowCountLabel)
	assert.Equal(t, 2, res.Preview.Len())

	resp = c.do(http.MethodGet, "/api/retrieve/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[ProgressResponse](t, resp)
	require.NotNil(t, p.Fraction)
	assert.Equal(t, 1.0, *p.Fraction)

	resp = c.do(http.MethodGet, "/api/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.Contains(resp.Header.Get("Content-Disposition"), "Virginia_Richmond_ARRESTS_2022.csv"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "date,race\n2021-01-01,W\n2021-01-02,B\n", string(body))

	// Same selection again reuses the result.
	resp = c.do(http.MethodPost, "/api/retrieve", RetrieveRequest{Full: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, c.retriever.calls)
}

func TestExplorer_SessionsAreIsolated(t *testing.T) {
	a := newExplorerClient(t)
	resp := a.do(http.MethodPost, "/api/selection/hints", map[string]string{"state": "Virginia", "source": "Richmond"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A client without the cookie starts from scratch.
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/api/selection", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	sel := decode[SelectionResponse](t, resp)
	require.NotNil(t, sel.Pending)
	assert.Equal(t, models.StageState, sel.Pending.Stage)
}

func TestHealth(t *testing.T) {
	c := newExplorerClient(t)

	resp := c.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 4, h.Datasets)

	resp = c.do(http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[PingResponse](t, resp)
	assert.Equal(t, "opd-explorer", p.Service)
	assert.Equal(t, "test", p.Version)
}
