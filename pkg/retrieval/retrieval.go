// Package retrieval turns a resolved selection into a row count, a bounded
// preview and a CSV payload.
package retrieval

import (
	"bytes"
	"context"
	"math"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/logging"
	"github.com/ekaya-inc/opd-explorer/pkg/metrics"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

const (
	DefaultBatchSize   = 5000
	DefaultPreviewRows = 20
)

// DataSource is the part of the data-access layer retrieval uses.
// *source.Provider implements it.
type DataSource interface {
	Count(ctx context.Context, q source.Query) (int, error)
	LoadBatches(ctx context.Context, q source.Query, batchSize int, yield func(*models.Table) error) error
	Load(ctx context.Context, q source.Query) (*models.Table, error)
	DownloadRaw(ctx context.Context, d models.DatasetDescriptor) ([]byte, error)
}

// Strategy is how a dataset is fetched.
type Strategy string

const (
	StrategyBatched    Strategy = "batched"
	StrategyMonolithic Strategy = "monolithic"
	StrategyRawArchive Strategy = "raw_archive"
)

// StrategyFor picks the fetch strategy for d.
func StrategyFor(d models.DatasetDescriptor) Strategy {
	switch {
	case d.DataType.SupportsBatchCount():
		return StrategyBatched
	case d.IsCompressedCSV():
		return StrategyRawArchive
	default:
		return StrategyMonolithic
	}
}

// Progress reports completed batches. Total is 0 when the row count is
// unknown.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Rows      int `json:"rows"`
}

// Fraction returns Completed/Total capped at 1. ok is false when the total
// is unknown.
func (p Progress) Fraction() (f float64, ok bool) {
	if p.Total <= 0 {
		return 0, false
	}
	f = float64(p.Completed) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f, true
}

// Request asks for one retrieval.
type Request struct {
	Selection models.DatasetSelection
	// PreviewRows caps the preview. 0 uses the pipeline default.
	PreviewRows int
	// Full requests the complete CSV payload. Without it, datasets that
	// support partial loads only fetch the preview rows.
	Full bool
}

// Config tunes the pipeline.
type Config struct {
	BatchSize   int
	PreviewRows int
}

// Pipeline runs retrievals against a DataSource.
type Pipeline struct {
	src     DataSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Pipeline. m may be nil.
func New(src DataSource, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{src: src, cfg: cfg, logger: logger.Named("retrieval"), metrics: m}
}

// Retrieve fetches req.Selection. An empty result is returned with Empty
// set and no error. Failures are returned as *apperrors.LoadFailure and
// never as a partial result. onProgress may be nil.
func (p *Pipeline) Retrieve(ctx context.Context, req Request, onProgress func(Progress)) (*models.RetrievalResult, error) {
	sel := req.Selection
	previewRows := req.PreviewRows
	if previewRows <= 0 {
		previewRows = p.cfg.PreviewRows
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	q := source.NewQuery(sel)
	if sel.TableType != "" {
		q.Dataset.TableType = sel.TableType
	}
	strategy := StrategyFor(sel.Dataset)
	logger := p.logger.With(
		zap.String("dataset", sel.Dataset.Key()),
		zap.String("url", logging.SanitizeURL(sel.Dataset.URL)),
		zap.String("year", sel.Year.String()),
		zap.String("agency", sel.AgencyOverride),
		zap.String("strategy", string(strategy)),
	)
	logger.Info("Starting retrieval", zap.Int("preview_rows", previewRows), zap.Bool("full", req.Full))
	start := time.Now()

	var (
		res *models.RetrievalResult
		err error
	)
	switch strategy {
	case StrategyBatched:
		if req.Full {
			res, err = p.batched(ctx, q, previewRows, onProgress, logger)
		} else {
			res, err = p.partial(ctx, q, previewRows)
		}
	case StrategyRawArchive:
		res, err = p.rawArchive(ctx, q, previewRows)
	default:
		if req.Full || !sel.Dataset.SupportsPartialLoad() {
			res, err = p.monolithic(ctx, q, previewRows)
		} else {
			res, err = p.partial(ctx, q, previewRows)
		}
	}

	if err != nil {
		logger.Error("Retrieval failed", zap.String("error", logging.SanitizeError(err)), zap.Duration("elapsed", time.Since(start)))
		p.metrics.ObserveRetrieval(metrics.OutcomeFailed, 0)
		return nil, err
	}

	res.Filename = DeriveFilename(sel)
	if res.Empty {
		res.Message = NoDataMessage(sel)
		logger.Info("No data found", zap.Duration("elapsed", time.Since(start)))
		p.metrics.ObserveRetrieval(metrics.OutcomeEmpty, 0)
		return res, nil
	}

	rows := res.Preview.Len()
	if res.RowCount != nil {
		rows = *res.RowCount
	}
	logger.Info("Retrieval finished", zap.Int("rows", rows), zap.Duration("elapsed", time.Since(start)))
	p.metrics.ObserveRetrieval(metrics.OutcomeOK, rows)
	return res, nil
}

func failure(op string, err error) error {
	return apperrors.NewLoadFailure(apperrors.PhaseRetrieval, op, err)
}

// batched counts (best-effort) and then pages through the dataset.
func (p *Pipeline) batched(ctx context.Context, q source.Query, previewRows int, onProgress func(Progress), logger *zap.Logger) (*models.RetrievalResult, error) {
	progress := Progress{}
	if n, err := p.src.Count(ctx, q); err != nil {
		logger.Warn("Record count unavailable, continuing without progress total", zap.String("error", logging.SanitizeError(err)))
	} else {
		progress.Total = int(math.Ceil(float64(n) / float64(p.cfg.BatchSize)))
		logger.Info("Record count", zap.Int("count", n))
	}
	onProgress(progress)

	var all *models.Table
	err := p.src.LoadBatches(ctx, q, p.cfg.BatchSize, func(t *models.Table) error {
		if all == nil {
			all = t
		} else {
			all.Concat(t)
		}
		progress.Completed++
		progress.Rows = all.Len()
		onProgress(progress)
		return nil
	})
	if err != nil {
		return nil, failure("load_batches", err)
	}
	return p.fromTable(all, previewRows, true)
}

// partial fetches only the preview rows. The payload stays nil.
func (p *Pipeline) partial(ctx context.Context, q source.Query, previewRows int) (*models.RetrievalResult, error) {
	q.Limit = previewRows
	t, err := p.src.Load(ctx, q)
	if err != nil {
		return nil, failure("load", err)
	}
	res, err := p.fromTable(t, previewRows, false)
	if err != nil {
		return nil, err
	}
	res.RowCount = nil
	return res, nil
}

// monolithic loads the whole file in one call.
func (p *Pipeline) monolithic(ctx context.Context, q source.Query, previewRows int) (*models.RetrievalResult, error) {
	t, err := p.src.Load(ctx, q)
	if err != nil {
		return nil, failure("load", err)
	}
	return p.fromTable(t, previewRows, true)
}

// rawArchive downloads the extracted CSV once, counts it without building a
// table, and parses only the preview rows.
func (p *Pipeline) rawArchive(ctx context.Context, q source.Query, previewRows int) (*models.RetrievalResult, error) {
	raw, err := p.src.DownloadRaw(ctx, q.Dataset)
	if err != nil {
		return nil, failure("download_raw", err)
	}
	n, err := source.CountCSVRows(raw)
	if err != nil {
		return nil, failure("count_rows", err)
	}
	if n == 0 {
		return &models.RetrievalResult{Empty: true}, nil
	}
	preview, err := source.ReadCSV(bytes.NewReader(raw), previewRows)
	if err != nil {
		return nil, failure("preview", err)
	}
	return &models.RetrievalResult{
		Payload:  raw,
		Preview:  StripNonASCII(preview),
		RowCount: &n,
	}, nil
}

func (p *Pipeline) fromTable(t *models.Table, previewRows int, withPayload bool) (*models.RetrievalResult, error) {
	if t.Len() == 0 {
		return &models.RetrievalResult{Empty: true}, nil
	}
	n := t.Len()
	res := &models.RetrievalResult{
		Preview:  StripNonASCII(t.Head(previewRows)),
		RowCount: &n,
	}
	if withPayload {
		var buf bytes.Buffer
		if err := source.WriteCSV(&buf, t); err != nil {
			return nil, failure("encode", err)
		}
		res.Payload = buf.Bytes()
	}
	return res, nil
}

var nonASCII = regexp.MustCompile(`[^\x00-\x7F]+`)

// StripNonASCII removes non-ASCII runs from every preview cell.
func StripNonASCII(t *models.Table) *models.Table {
	if t == nil {
		return nil
	}
	for _, row := range t.Rows {
		for i, v := range row {
			row[i] = nonASCII.ReplaceAllString(v, "")
		}
	}
	return t
}
