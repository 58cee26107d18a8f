// Package defaults holds the per-session hint state that pre-selects stage
// values and the cascade rule that invalidates downstream hints.
package defaults

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// State maps each stage of a fixed order to a hint or unset. It is a value
// object: every mutation returns a new State and leaves the receiver intact.
type State struct {
	order  []models.Stage
	values map[models.Stage]string
}

// New returns a State over order with every stage unset.
func New(order []models.Stage) State {
	return State{order: append([]models.Stage(nil), order...), values: map[models.Stage]string{}}
}

// NewDownload returns an unset State for the download selection.
func NewDownload() State {
	return New(models.StageOrder)
}

// NewFinder returns an unset State for the dataset finder.
func NewFinder() State {
	return New(models.FinderStageOrder)
}

// Order returns the stage order the state was created with.
func (s State) Order() []models.Stage {
	return append([]models.Stage(nil), s.order...)
}

// Get returns the hint for stage, or "" when unset.
func (s State) Get(stage models.Stage) string {
	return s.values[stage]
}

// IsSet reports whether stage holds a hint.
func (s State) IsSet(stage models.Stage) bool {
	return s.values[stage] != ""
}

// IsEmpty reports whether every stage is unset.
func (s State) IsEmpty() bool {
	return len(s.values) == 0
}

// ApplyHints replaces the whole state with bulk. Stages missing from bulk
// end up unset. Unknown stage names are rejected and the receiver is
// returned unchanged.
func (s State) ApplyHints(bulk map[models.Stage]string) (State, error) {
	next := New(s.order)
	for stage, v := range bulk {
		if models.StageIndex(s.order, stage) < 0 {
			return s, fmt.Errorf("%w: %q", apperrors.ErrInvalidStage, stage)
		}
		if v = strings.TrimSpace(v); v != "" {
			next.values[stage] = v
		}
	}
	return next, nil
}

// OnStageResolved unsets every stage after stage and leaves stage and every
// stage before it untouched. An unknown stage is a no-op.
func (s State) OnStageResolved(stage models.Stage) State {
	i := models.StageIndex(s.order, stage)
	if i < 0 {
		return s
	}
	next := s.clone()
	for _, later := range s.order[i+1:] {
		delete(next.values, later)
	}
	return next
}

// Reset returns an all-unset State with the same order.
func (s State) Reset() State {
	return New(s.order)
}

// Entry is one stage of a State, in order.
type Entry struct {
	Stage models.Stage `json:"stage"`
	Value string       `json:"value"`
	Set   bool         `json:"set"`
}

// Entries lists every stage in order.
func (s State) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, st := range s.order {
		v := s.values[st]
		out = append(out, Entry{Stage: st, Value: v, Set: v != ""})
	}
	return out
}

// Map returns the set hints keyed by stage.
func (s State) Map() map[models.Stage]string {
	out := make(map[models.Stage]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s State) clone() State {
	next := State{order: s.order, values: make(map[models.Stage]string, len(s.values))}
	for k, v := range s.values {
		next.values[k] = v
	}
	return next
}

// HintsFromQuery extracts hints named by the stage vocabulary of order from
// URL query parameters. Other parameters are ignored.
func HintsFromQuery(q url.Values, order []models.Stage) map[models.Stage]string {
	out := map[models.Stage]string{}
	for _, st := range order {
		if v := strings.TrimSpace(q.Get(string(st))); v != "" {
			out[st] = v
		}
	}
	return out
}
