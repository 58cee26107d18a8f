// Package session holds per-user selection state: hints, explicit choices,
// the last resolution and the retrieval result that belongs to it.
// Resolution and retrieval are mutually exclusive within a session.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/resolution"
	"github.com/ekaya-inc/opd-explorer/pkg/retrieval"
)

// CatalogSource returns the current catalog snapshot.
type CatalogSource interface {
	Get(ctx context.Context) (*catalog.Store, error)
}

// Retriever runs retrievals. *retrieval.Pipeline implements it.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request, onProgress func(retrieval.Progress)) (*models.RetrievalResult, error)
}

// Env is what every session shares.
type Env struct {
	Catalog   CatalogSource
	Lookup    resolution.Lookup
	Retriever Retriever
	Logger    *zap.Logger
	// Now overrides the clock for the current-year exception.
	Now func() time.Time
}

// Session is one user's selection state.
type Session struct {
	ID  string
	env *Env

	// phase serializes resolution and retrieval.
	phase sync.Mutex

	hints   defaults.State
	choices resolution.Choices
	outcome *resolution.Outcome
	memo    Memo
	result  *models.RetrievalResult

	progressMu sync.Mutex
	progress   *retrieval.Progress
}

func newSession(id string, env *Env) *Session {
	return &Session{
		ID:      id,
		env:     env,
		hints:   defaults.NewDownload(),
		choices: resolution.Choices{},
	}
}

func (s *Session) logger() *zap.Logger {
	if s.env.Logger == nil {
		return zap.NewNop()
	}
	return s.env.Logger.With(zap.String("session", s.ID))
}

func (s *Session) begin() error {
	if !s.phase.TryLock() {
		return apperrors.ErrSessionBusy
	}
	return nil
}

// Hints returns the current hint state.
func (s *Session) Hints() (defaults.State, error) {
	if err := s.begin(); err != nil {
		return defaults.State{}, err
	}
	defer s.phase.Unlock()
	return s.hints, nil
}

// ApplyHints replaces the hints in bulk and clears explicit choices, then
// resolves.
func (s *Session) ApplyHints(ctx context.Context, bulk map[models.Stage]string) (resolution.Outcome, error) {
	if err := s.begin(); err != nil {
		return resolution.Outcome{}, err
	}
	defer s.phase.Unlock()

	hints, err := s.hints.ApplyHints(bulk)
	if err != nil {
		return resolution.Outcome{}, err
	}
	return s.resolveWith(ctx, hints, resolution.Choices{})
}

// GoTo pre-selects every stage for d, as when jumping from the finder.
func (s *Session) GoTo(ctx context.Context, d models.DatasetDescriptor) (resolution.Outcome, error) {
	if err := s.begin(); err != nil {
		return resolution.Outcome{}, err
	}
	defer s.phase.Unlock()

	hints, err := resolution.HintsForDataset(ctx, s.env.Lookup, d)
	if err != nil {
		return resolution.Outcome{}, err
	}
	return s.resolveWith(ctx, hints, resolution.Choices{})
}

// Choose sets stage to value and drops choices for later stages. A failed
// pass leaves the session unchanged.
func (s *Session) Choose(ctx context.Context, stage models.Stage, value string) (resolution.Outcome, error) {
	if err := s.begin(); err != nil {
		return resolution.Outcome{}, err
	}
	defer s.phase.Unlock()

	i := models.StageIndex(models.StageOrder, stage)
	if i < 0 {
		return resolution.Outcome{}, apperrors.ErrInvalidStage
	}
	next := resolution.Choices{}
	for st, v := range s.choices {
		if models.StageIndex(models.StageOrder, st) < i {
			next[st] = v
		}
	}
	next[stage] = value
	return s.resolveWith(ctx, s.hints, next)
}

// resolveWith runs a pass with candidate hints and choices and keeps them
// only if the pass succeeds, so outcome always describes the held choices.
func (s *Session) resolveWith(ctx context.Context, hints defaults.State, choices resolution.Choices) (resolution.Outcome, error) {
	prevHints, prevChoices := s.hints, s.choices
	s.hints, s.choices = hints, choices
	out, err := s.resolve(ctx)
	if err != nil {
		s.hints, s.choices = prevHints, prevChoices
	}
	return out, err
}

// Resolve re-runs resolution with the current hints and choices.
func (s *Session) Resolve(ctx context.Context) (resolution.Outcome, error) {
	if err := s.begin(); err != nil {
		return resolution.Outcome{}, err
	}
	defer s.phase.Unlock()
	return s.resolve(ctx)
}

// resolve must be called inside a phase. A failed pass leaves hints,
// outcome and result as they were.
func (s *Session) resolve(ctx context.Context) (resolution.Outcome, error) {
	store, err := s.env.Catalog.Get(ctx)
	if err != nil {
		return resolution.Outcome{}, apperrors.NewLoadFailure(apperrors.PhaseResolution, "catalog", err)
	}
	req := resolution.Request{Catalog: store.All(), Hints: s.hints, Choices: s.choices}
	if s.env.Now != nil {
		req.Now = s.env.Now()
	}

	out, hints, err := resolution.Resolve(ctx, s.env.Lookup, req)
	if err != nil {
		s.logger().Warn("Resolution failed", zap.Error(err))
		return resolution.Outcome{}, err
	}
	s.hints = hints
	s.outcome = &out

	if s.memo.Observe(out.Selection) && s.result != nil {
		s.logger().Debug("Selection changed, dropping retrieval result")
		s.result = nil
		s.setProgress(nil)
	}
	return out, nil
}

// Selection returns the resolved selection of the last pass.
func (s *Session) Selection() (*models.DatasetSelection, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.phase.Unlock()
	if s.outcome == nil || s.outcome.Selection == nil {
		return nil, apperrors.ErrNotResolved
	}
	sel := *s.outcome.Selection
	return &sel, nil
}

// RetrieveOptions tune one retrieval.
type RetrieveOptions struct {
	PreviewRows int
	Full        bool
}

// Retrieve fetches the resolved selection. A cached result for the same
// selection is reused when it satisfies opts. On failure the previous
// result is kept.
func (s *Session) Retrieve(ctx context.Context, opts RetrieveOptions) (*models.RetrievalResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.phase.Unlock()

	if s.outcome == nil || s.outcome.Selection == nil {
		return nil, apperrors.ErrNotResolved
	}
	sel := *s.outcome.Selection
	if s.result != nil && s.memo.Matches(&sel) && (!opts.Full || s.result.HasPayload() || s.result.Empty) {
		return s.result, nil
	}

	s.setProgress(&retrieval.Progress{})
	res, err := s.env.Retriever.Retrieve(ctx, retrieval.Request{
		Selection:   sel,
		PreviewRows: opts.PreviewRows,
		Full:        opts.Full,
	}, func(p retrieval.Progress) { s.setProgress(&p) })
	if err != nil {
		return nil, err
	}
	s.result = res
	return res, nil
}

// Result returns the retrieval result for the current selection, or nil.
func (s *Session) Result() (*models.RetrievalResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.phase.Unlock()
	if s.outcome == nil || !s.memo.Matches(s.outcome.Selection) {
		return nil, nil
	}
	return s.result, nil
}

// Progress returns the progress of the running or last retrieval. It does
// not wait for the retrieval phase.
func (s *Session) Progress() (retrieval.Progress, bool) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	if s.progress == nil {
		return retrieval.Progress{}, false
	}
	return *s.progress, true
}

func (s *Session) setProgress(p *retrieval.Progress) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.progress = p
}
