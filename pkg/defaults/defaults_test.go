package defaults

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func fullState(t *testing.T) State {
	t.Helper()
	bulk := map[models.Stage]string{}
	for _, st := range models.StageOrder {
		bulk[st] = "v-" + string(st)
	}
	s, err := NewDownload().ApplyHints(bulk)
	require.NoError(t, err)
	return s
}

func TestOnStageResolved_CascadesOnlyLaterStages(t *testing.T) {
	for i, stage := range models.StageOrder {
		t.Run(string(stage), func(t *testing.T) {
			before := fullState(t)
			after := before.OnStageResolved(stage)

			for k, st := range models.StageOrder {
				if k <= i {
					assert.Equal(t, before.Get(st), after.Get(st), "stage %s should be untouched", st)
				} else {
					assert.False(t, after.IsSet(st), "stage %s should be unset", st)
				}
			}
			// receiver is not mutated
			assert.True(t, before.IsSet(models.StageAgencyFilter))
		})
	}
}

func TestOnStageResolved_UnknownStageIsNoop(t *testing.T) {
	s := fullState(t)
	assert.Equal(t, s.Map(), s.OnStageResolved("bogus").Map())
}

func TestApplyHints_ReplacesWholeState(t *testing.T) {
	s := fullState(t)

	next, err := s.ApplyHints(map[models.Stage]string{
		models.StageState:  "Virginia",
		models.StageSource: " Fairfax County ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Virginia", next.Get(models.StageState))
	assert.Equal(t, "Fairfax County", next.Get(models.StageSource))
	assert.False(t, next.IsSet(models.StageYear))
	assert.Len(t, next.Map(), 2)
}

func TestApplyHints_RejectsUnknownStage(t *testing.T) {
	s := NewDownload()
	next, err := s.ApplyHints(map[models.Stage]string{"colour": "red"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStage)
	assert.True(t, next.IsEmpty())
}

func TestEntries_FollowOrder(t *testing.T) {
	s, err := NewFinder().ApplyHints(map[models.Stage]string{models.FinderStageTable: "STOPS"})
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, models.FinderStageState, entries[0].Stage)
	assert.False(t, entries[0].Set)
	assert.Equal(t, Entry{Stage: models.FinderStageTable, Value: "STOPS", Set: true}, entries[2])
}

func TestLookup(t *testing.T) {
	opts := []string{"a", "b", "c"}

	i, ok := Lookup(opts, "")
	assert.Equal(t, 0, i)
	assert.True(t, ok)

	i, ok = Lookup(opts, "c")
	assert.Equal(t, 2, i)
	assert.True(t, ok)

	i, ok = Lookup(opts, "z")
	assert.Equal(t, 0, i)
	assert.False(t, ok)
}

func TestNotFound_Message(t *testing.T) {
	n := NotFound{Stage: models.StageSource, Requested: "Gotham"}
	assert.Equal(t, "ERROR: Requested source=Gotham not found", n.Message())
}

func TestHintsFromQuery(t *testing.T) {
	q := url.Values{}
	q.Set("state", "Texas")
	q.Set("year", "2020")
	q.Set("page", "2")

	hints := HintsFromQuery(q, models.StageOrder)
	assert.Equal(t, map[models.Stage]string{
		models.StageState: "Texas",
		models.StageYear:  "2020",
	}, hints)
}
