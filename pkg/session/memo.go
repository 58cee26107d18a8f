package session

import "github.com/ekaya-inc/opd-explorer/pkg/models"

// Memo remembers the last fully resolved selection so cached retrieval
// results can be dropped when it changes.
type Memo struct {
	last *models.MemoKey
}

// Observe records sel (nil when resolution is incomplete) and reports
// whether it differs from the previous observation.
func (m *Memo) Observe(sel *models.DatasetSelection) (changed bool) {
	if sel == nil {
		changed = m.last != nil
		m.last = nil
		return changed
	}
	key := sel.MemoKey()
	changed = m.last == nil || *m.last != key
	m.last = &key
	return changed
}

// Matches reports whether sel is the recorded selection.
func (m *Memo) Matches(sel *models.DatasetSelection) bool {
	return sel != nil && m.last != nil && *m.last == sel.MemoKey()
}
