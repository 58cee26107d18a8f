package defaults

import (
	"fmt"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// NotFound records a hint that matched none of its stage's options. It is
// reported to the caller and never fails resolution.
type NotFound struct {
	Stage     models.Stage `json:"stage"`
	Requested string       `json:"requested"`
}

// Message is the user-facing warning text.
func (n NotFound) Message() string {
	return fmt.Sprintf("ERROR: Requested %s=%s not found", n.Stage, n.Requested)
}

// Lookup returns the option index to pre-select for hint. An empty hint
// selects index 0. A hint that is not among options also selects index 0
// and reports found=false.
func Lookup(options []string, hint string) (index int, found bool) {
	if hint == "" {
		return 0, true
	}
	for i, o := range options {
		if o == hint {
			return i, true
		}
	}
	return 0, false
}
