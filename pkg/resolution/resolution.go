// Package resolution narrows the catalog, stage by stage, to exactly one
// dataset and the parameters needed to load it.
package resolution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// Lookup is the part of the data-access layer resolution depends on.
type Lookup interface {
	// Years lists the years available across rows, which all share state,
	// source, table type and agency.
	Years(ctx context.Context, rows []models.DatasetDescriptor) ([]models.Year, error)
	// Agencies lists the agencies of a multi-agency row for year.
	Agencies(ctx context.Context, d models.DatasetDescriptor, year models.Year) ([]string, error)
}

// Choices are explicit per-stage values from the caller. They take priority
// over hints and must be among the stage's options.
type Choices map[models.Stage]string

// ValueSource says how a stage got its value.
type ValueSource string

const (
	FromChoice   ValueSource = "choice"
	FromHint     ValueSource = "hint"
	FromFallback ValueSource = "fallback" // hint not found, first option used
	FromAuto     ValueSource = "auto"     // single option
)

// StageView is one surfaced stage with its legal options.
type StageView struct {
	Stage    models.Stage `json:"stage"`
	Label    string       `json:"label"`
	Options  []string     `json:"options"`
	Selected string       `json:"selected,omitempty"`
	Source   ValueSource  `json:"source,omitempty"`
}

// NeedMoreInput names the next stage the caller must choose.
type NeedMoreInput struct {
	Stage   models.Stage `json:"stage"`
	Options []string     `json:"options"`
}

// Outcome is a completed resolution pass. Exactly one of Selection and
// Pending is set.
type Outcome struct {
	Selection *models.DatasetSelection `json:"selection,omitempty"`
	Pending   *NeedMoreInput           `json:"pending,omitempty"`
	Stages    []StageView              `json:"stages"`
	Warnings  []defaults.NotFound      `json:"warnings,omitempty"`
}

// Resolved reports whether the pass reached a unique dataset.
func (o Outcome) Resolved() bool {
	return o.Selection != nil
}

// Request is the input of one resolution pass.
type Request struct {
	Catalog catalog.View
	Hints   defaults.State
	Choices Choices
	// Now drives the current-year exception. Zero means time.Now().
	Now time.Time
}

// Resolve runs the filter chain. It returns the outcome and the hint state
// after any cascade caused by choices that override hints. On error the
// input hints are returned unchanged.
//
// Errors are ErrInvalidChoice for a choice outside its stage's options,
// ErrNoMatchingDataset when a stage has nothing left to offer, and a
// *apperrors.LoadFailure when a year or agency lookup fails.
func Resolve(ctx context.Context, lookup Lookup, req Request) (Outcome, defaults.State, error) {
	c := &chain{
		ctx:     ctx,
		lookup:  lookup,
		hints:   req.Hints,
		choices: req.Choices,
		now:     req.Now,
	}
	if c.now.IsZero() {
		c.now = time.Now()
	}
	if err := c.run(req.Catalog); err != nil {
		return Outcome{}, req.Hints, err
	}
	return c.out, c.hints, nil
}

type chain struct {
	ctx     context.Context
	lookup  Lookup
	hints   defaults.State
	choices Choices
	now     time.Time
	out     Outcome
}

// picked is a stage decision. raw is the choice or hint it came from.
type picked struct {
	value string
	raw   string
	ok    bool
}

// matcher maps a hint or choice that is not literally an option to one.
type matcher func(v string) (string, bool)

func (c *chain) pick(stage models.Stage, options []string, match matcher) (picked, error) {
	if len(options) == 0 {
		return picked{}, fmt.Errorf("%w: no options for %s", apperrors.ErrNoMatchingDataset, stage)
	}
	view := StageView{Stage: stage, Label: stage.Label(), Options: options}
	hint := c.hints.Get(stage)

	var p picked
	switch choice := c.choices[stage]; {
	case choice != "":
		value, ok := matchOption(options, choice, match)
		if !ok {
			return picked{}, fmt.Errorf("%w: %s=%q", apperrors.ErrInvalidChoice, stage, choice)
		}
		if hinted, found := matchOption(options, hint, match); hint == "" || !found || hinted != value {
			c.hints = c.hints.OnStageResolved(stage)
		}
		p = picked{value: value, raw: choice, ok: true}
		view.Source = FromChoice

	case hint != "":
		value, ok := matchOption(options, hint, match)
		if ok {
			view.Source = FromHint
		} else {
			c.out.Warnings = append(c.out.Warnings, defaults.NotFound{Stage: stage, Requested: hint})
			value = options[0]
			view.Source = FromFallback
		}
		p = picked{value: value, raw: hint, ok: true}

	case len(options) == 1:
		p = picked{value: options[0], raw: options[0], ok: true}
		view.Source = FromAuto

	default:
		c.out.Stages = append(c.out.Stages, view)
		c.out.Pending = &NeedMoreInput{Stage: stage, Options: options}
		return picked{}, nil
	}

	view.Selected = p.value
	c.out.Stages = append(c.out.Stages, view)
	return p, nil
}

func matchOption(options []string, v string, match matcher) (string, bool) {
	for _, o := range options {
		if o == v {
			return o, true
		}
	}
	if match != nil {
		return match(v)
	}
	return "", false
}

func (c *chain) run(view catalog.View) error {
	p, err := c.pick(models.StageState, view.Distinct(catalog.State), nil)
	if err != nil || !p.ok {
		return err
	}
	view = view.Filter(catalog.Equals(catalog.State, p.value))

	if p, err = c.pick(models.StageSource, view.Distinct(catalog.SourceName), nil); err != nil || !p.ok {
		return err
	}
	view = view.Filter(catalog.Equals(catalog.SourceName, p.value))

	view, related, ok, err := c.tableType(view)
	if err != nil || !ok {
		return err
	}

	if agencies := view.Distinct(catalog.Agency); len(agencies) > 1 {
		if p, err = c.pick(models.StageAgency, agencies, nil); err != nil || !p.ok {
			return err
		}
		view = view.Filter(catalog.Equals(catalog.Agency, p.value))
	}

	sel, ok, err := c.year(view)
	if err != nil || !ok {
		return err
	}
	sel.RelatedTables = related

	if ok, err := c.agencyFilter(sel); err != nil || !ok {
		return err
	}

	c.out.Selection = sel
	return nil
}

// tableType resolves the general table type and, when every row of that
// general type is split into sub-tables, the sub-table.
func (c *chain) tableType(view catalog.View) (catalog.View, []string, bool, error) {
	_, generals, _ := models.SplitTableTypes(view.Distinct(catalog.TableType))
	p, err := c.pick(models.StageTableTypeGeneral, generals, nil)
	if err != nil || !p.ok {
		return view, nil, false, err
	}
	general := p.value

	var subs []string
	allSplit := true
	seen := map[string]struct{}{}
	inGeneral := view.Filter(func(d models.DatasetDescriptor) bool {
		g, s := models.SplitTableType(d.TableType)
		if g != general {
			return false
		}
		if s == "" {
			allSplit = false
		} else if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			subs = append(subs, s)
		}
		return true
	})

	if !allSplit {
		return inGeneral.Filter(func(d models.DatasetDescriptor) bool {
			_, s := models.SplitTableType(d.TableType)
			return s == ""
		}), nil, true, nil
	}

	p, err = c.pick(models.StageTableTypeSub, subs, nil)
	if err != nil || !p.ok {
		return view, nil, false, err
	}
	chosen := p.value
	related := inGeneral.Filter(func(d models.DatasetDescriptor) bool {
		_, s := models.SplitTableType(d.TableType)
		return s != chosen
	}).Distinct(catalog.TableType)
	return inGeneral.Filter(func(d models.DatasetDescriptor) bool {
		_, s := models.SplitTableType(d.TableType)
		return s == chosen
	}), related, true, nil
}

// year resolves the year stage and, if several rows remain, the URL stage.
func (c *chain) year(view catalog.View) (*models.DatasetSelection, bool, error) {
	years, err := c.lookup.Years(c.ctx, view.Rows())
	if err != nil {
		return nil, false, apperrors.NewLoadFailure(apperrors.PhaseResolution, "years", err)
	}
	years = SortYears(years)

	first := view.First()
	loadFile := view.Len() == 1 && !first.DataType.SupportsBatchCount() && first.Year.IsMulti()

	if loadFile {
		label, min, max, hasRange := RangeLabel(years)
		p, err := c.pick(models.StageYear, []string{label}, func(v string) (string, bool) {
			y, err := models.ParseYear(v)
			if err != nil {
				return "", false
			}
			if y.IsMulti() || (hasRange && y.IsConcrete() && min <= y.Value && y.Value <= max) {
				return label, true
			}
			return "", false
		})
		if err != nil || !p.ok {
			return nil, false, err
		}
		requested := models.MultiYear
		if y, err := models.ParseYear(p.raw); err == nil && y.IsConcrete() {
			requested = y
		}
		return &models.DatasetSelection{
			Dataset:       first,
			Year:          models.MultiYear,
			RequestedYear: requested,
			YearLabel:     label,
			TableType:     first.TableType,
		}, true, nil
	}

	labels := YearLabels(years)
	p, err := c.pick(models.StageYear, labels, func(v string) (string, bool) {
		y, err := models.ParseYear(v)
		if err != nil {
			return "", false
		}
		for _, l := range labels {
			if l == y.Label() {
				return l, true
			}
		}
		return "", false
	})
	if err != nil || !p.ok {
		return nil, false, err
	}
	requested, err := models.ParseYear(p.value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: year=%q", apperrors.ErrInvalidChoice, p.value)
	}

	candidates := view.Filter(func(d models.DatasetDescriptor) bool { return d.Year == requested })
	if candidates.Len() == 0 {
		candidates = view.Filter(func(d models.DatasetDescriptor) bool { return d.Year.IsMulti() })
		if candidates.Len() > 1 && requested.IsConcrete() {
			candidates = catalog.NewView(FilterByCoverage(candidates.Rows(), requested.Value, c.now))
		}
	}
	if candidates.Len() == 0 {
		return nil, false, fmt.Errorf("%w: year %s", apperrors.ErrNoMatchingDataset, requested.Label())
	}

	row, ok, err := c.url(candidates)
	if err != nil || !ok {
		return nil, false, err
	}
	return &models.DatasetSelection{
		Dataset:       row,
		Year:          requested,
		RequestedYear: requested,
		YearLabel:     p.value,
		TableType:     row.TableType,
	}, true, nil
}

// url disambiguates overlapping rows by URL and dataset id.
func (c *chain) url(candidates catalog.View) (models.DatasetDescriptor, bool, error) {
	rows := candidates.Rows()
	if len(rows) == 1 {
		return rows[0], true, nil
	}

	urls := make([]string, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		urls[i], ids[i] = r.URL, r.DatasetID
	}
	labels := UniqueURLs(urls, ids)
	id := c.hints.Get(models.StageID)

	p, err := c.pick(models.StageURL, labels, func(v string) (string, bool) {
		if id != "" {
			if full := v + ": " + id; count(labels, full) > 0 {
				return full, true
			}
		}
		if h := Hostname(v); h != "" && count(labels, h) > 0 {
			return h, true
		}
		for i, r := range rows {
			if r.URL == v && (id == "" || r.DatasetID == id) {
				return labels[i], true
			}
		}
		return "", false
	})
	if err != nil || !p.ok {
		return models.DatasetDescriptor{}, false, err
	}
	for i, l := range labels {
		if l == p.value {
			return rows[i], true, nil
		}
	}
	return models.DatasetDescriptor{}, false, fmt.Errorf("%w: url=%q", apperrors.ErrInvalidChoice, p.value)
}

// agencyFilter offers server-side agency narrowing for multi-agency rows of
// mechanisms that support it.
func (c *chain) agencyFilter(sel *models.DatasetSelection) (bool, error) {
	d := sel.Dataset
	if !d.IsMultiAgency() || !d.DataType.SupportsAgencyFilter() {
		return true, nil
	}

	agencies, err := c.lookup.Agencies(c.ctx, d, sel.Year)
	if err != nil {
		return false, apperrors.NewLoadFailure(apperrors.PhaseResolution, "agencies", err)
	}
	options := []string{models.AllAgencies}
	sorted := append([]string(nil), agencies...)
	sort.Strings(sorted)
	for _, a := range sorted {
		if a != "" && a != models.AllAgencies && count(options, a) == 0 {
			options = append(options, a)
		}
	}

	p, err := c.pick(models.StageAgencyFilter, options, nil)
	if err != nil || !p.ok {
		return false, err
	}
	if p.value != models.AllAgencies {
		sel.AgencyOverride = p.value
	}
	return true, nil
}
