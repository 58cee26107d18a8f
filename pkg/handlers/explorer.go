package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/resolution"
	"github.com/ekaya-inc/opd-explorer/pkg/retrieval"
	"github.com/ekaya-inc/opd-explorer/pkg/session"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SelectionResponse is one resolution pass as seen by the UI.
type SelectionResponse struct {
	resolution.Outcome
	// Messages are the user-facing texts of Warnings.
	Messages []string         `json:"messages,omitempty"`
	Details  *catalog.Details `json:"details,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

// ChooseRequest for POST /api/selection/choose
type ChooseRequest struct {
	Stage string `json:"stage"`
	Value string `json:"value"`
}

// GoToRequest for POST /api/selection/goto. It identifies a catalog row.
type GoToRequest struct {
	State      string `json:"state"`
	SourceName string `json:"source_name"`
	TableType  string `json:"table_type"`
	URL        string `json:"url"`
	DatasetID  string `json:"dataset_id,omitempty"`
}

// RetrieveRequest for POST /api/retrieve
type RetrieveRequest struct {
	PreviewRows *int `json:"preview_rows,omitempty"`
	Full        bool `json:"full"`
}

// RetrieveResponse summarizes a retrieval. The CSV is fetched separately
// from /api/download.
type RetrieveResponse struct {
	Filename      string        `json:"filename"`
	RowCount      *int          `json:"row_count,omitempty"`
	RowCountLabel string        `json:"row_count_label,omitempty"`
	Empty         bool          `json:"empty"`
	Message       string        `json:"message,omitempty"`
	Preview       *models.Table `json:"preview,omitempty"`
	Downloadable  bool          `json:"downloadable"`
}

// ProgressResponse for GET /api/retrieve/progress
type ProgressResponse struct {
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Rows      int      `json:"rows"`
	Fraction  *float64 `json:"fraction,omitempty"`
}

// LinkResponse for GET /api/link
type LinkResponse struct {
	URL string `json:"url"`
}

// ============================================================================
// Handler
// ============================================================================

// ExplorerHandler serves the dataset finder and the download selection.
type ExplorerHandler struct {
	catalog     CatalogGetter
	cookies     *SessionCookies
	explorerURL string
	previewRows int
	logger      *zap.Logger
}

// NewExplorerHandler creates a new explorer handler.
func NewExplorerHandler(
	catalog CatalogGetter,
	cookies *SessionCookies,
	explorerURL string,
	previewRows int,
	logger *zap.Logger,
) *ExplorerHandler {
	if previewRows <= 0 {
		previewRows = retrieval.DefaultPreviewRows
	}
	return &ExplorerHandler{
		catalog:     catalog,
		cookies:     cookies,
		explorerURL: explorerURL,
		previewRows: previewRows,
		logger:      logger,
	}
}

// RegisterRoutes registers the explorer handler's routes on the given mux.
func (h *ExplorerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.Find)
	mux.HandleFunc("GET /api/link", h.Link)
	mux.HandleFunc("GET /api/selection", h.Selection)
	mux.HandleFunc("POST /api/selection/hints", h.ApplyHints)
	mux.HandleFunc("POST /api/selection/goto", h.GoTo)
	mux.HandleFunc("POST /api/selection/choose", h.Choose)
	mux.HandleFunc("POST /api/retrieve", h.Retrieve)
	mux.HandleFunc("GET /api/retrieve/progress", h.Progress)
	mux.HandleFunc("GET /api/download", h.Download)
}

// Find handles GET /api/catalog
func (h *ExplorerHandler) Find(w http.ResponseWriter, r *http.Request) {
	store, err := h.catalog.Get(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	hints, err := defaults.NewFinder().ApplyHints(defaults.HintsFromQuery(r.URL.Query(), models.FinderStageOrder))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, catalog.Find(store.All(), hints)); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Link handles GET /api/link
func (h *ExplorerHandler) Link(w http.ResponseWriter, r *http.Request) {
	store, err := h.catalog.Get(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	q := r.URL.Query()
	link, ok := catalog.FinderLink(h.explorerURL, store.All(), q.Get("state"), q.Get("source"), q.Get("table"))
	if !ok {
		if err := ErrorResponse(w, http.StatusNotFound, "no_datasets", "No datasets match the requested filters"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := WriteJSON(w, http.StatusOK, LinkResponse{URL: link}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Selection handles GET /api/selection. Query parameters named after
// stages replace the session's hints first.
func (h *ExplorerHandler) Selection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var (
		out resolution.Outcome
		err error
	)
	if hints := HintsFromRequest(r); len(hints) > 0 {
		out, err = sess.ApplyHints(r.Context(), hints)
	} else {
		out, err = sess.Resolve(r.Context())
	}
	h.writeOutcome(w, out, err)
}

// ApplyHints handles POST /api/selection/hints
func (h *ExplorerHandler) ApplyHints(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if !DecodeBody(w, r, &body, h.logger) {
		return
	}
	bulk := make(map[models.Stage]string, len(body))
	for k, v := range body {
		st := models.Stage(k)
		if !st.IsValid() {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_stage", fmt.Sprintf("Unknown stage %q", k)); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		bulk[st] = v
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.ApplyHints(r.Context(), bulk)
	h.writeOutcome(w, out, err)
}

// GoTo handles POST /api/selection/goto
func (h *ExplorerHandler) GoTo(w http.ResponseWriter, r *http.Request) {
	var req GoToRequest
	if !DecodeBody(w, r, &req, h.logger) {
		return
	}
	store, err := h.catalog.Get(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	matches := store.All().Filter(func(d models.DatasetDescriptor) bool {
		return d.State == req.State && d.SourceName == req.SourceName &&
			d.TableType == req.TableType && d.URL == req.URL &&
			(req.DatasetID == "" || d.DatasetID == req.DatasetID)
	})
	if matches.Len() == 0 {
		if err := ErrorResponse(w, http.StatusNotFound, "dataset_not_found", "Dataset not found in catalog"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.GoTo(r.Context(), matches.First())
	h.writeOutcome(w, out, err)
}

// Choose handles POST /api/selection/choose
func (h *ExplorerHandler) Choose(w http.ResponseWriter, r *http.Request) {
	var req ChooseRequest
	if !DecodeBody(w, r, &req, h.logger) {
		return
	}
	if req.Stage == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_stage", "stage is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Choose(r.Context(), models.Stage(req.Stage), req.Value)
	h.writeOutcome(w, out, err)
}

// Retrieve handles POST /api/retrieve
func (h *ExplorerHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !DecodeBody(w, r, &req, h.logger) {
		return
	}
	preview := h.previewRows
	if req.PreviewRows != nil {
		preview = *req.PreviewRows
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Retrieve(r.Context(), session.RetrieveOptions{PreviewRows: preview, Full: req.Full})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := RetrieveResponse{
		Filename:     res.Filename,
		RowCount:     res.RowCount,
		Empty:        res.Empty,
		Message:      res.Message,
		Preview:      res.Preview,
		Downloadable: res.HasPayload(),
	}
	if res.RowCount != nil {
		resp.RowCountLabel = retrieval.CountLabel(*res.RowCount)
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Progress handles GET /api/retrieve/progress
func (h *ExplorerHandler) Progress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, ok := sess.Progress()
	if !ok {
		if err := ErrorResponse(w, http.StatusNotFound, "no_retrieval", "No retrieval has been started"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	resp := ProgressResponse{Completed: p.Completed, Total: p.Total, Rows: p.Rows}
	if f, ok := p.Fraction(); ok {
		resp.Fraction = &f
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Download handles GET /api/download
func (h *ExplorerHandler) Download(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Result()
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if !res.HasPayload() {
		if err := ErrorResponse(w, http.StatusNotFound, "no_payload", "Retrieve the full dataset before downloading"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Payload)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Payload); err != nil {
		h.logger.Warn("Failed to write download", zap.Error(err))
	}
}

func (h *ExplorerHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.cookies.Session(w, r)
	if err != nil {
		WriteError(w, err, h.logger)
		return nil, false
	}
	return sess, true
}

func (h *ExplorerHandler) writeOutcome(w http.ResponseWriter, out resolution.Outcome, err error) {
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	resp := SelectionResponse{Outcome: out}
	for _, nf := range out.Warnings {
		resp.Messages = append(resp.Messages, nf.Message())
	}
	if sel := out.Selection; sel != nil {
		d := catalog.Describe(sel.Dataset)
		resp.Details = &d
		resp.Filename = retrieval.DeriveFilename(*sel)
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
