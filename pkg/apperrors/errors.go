package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidChoice       = errors.New("invalid choice")
	ErrInvalidStage        = errors.New("invalid stage")
	ErrUnsupportedDataType = errors.New("unsupported data type")
	ErrNoMatchingDataset   = errors.New("no dataset matches the selected filters")
	ErrNotResolved         = errors.New("selection is not fully resolved")
	ErrUnsafeFilterValue   = errors.New("filter value rejected")
	ErrNotSupported        = errors.New("operation not supported by data source")
	ErrSessionBusy         = errors.New("session is busy with another operation")
	ErrSessionNotFound     = errors.New("session not found or expired")
)

// Phase says where a LoadFailure happened.
type Phase string

const (
	PhaseResolution Phase = "resolution"
	PhaseRetrieval  Phase = "retrieval"
)

// UserFailureMessage is shown to users for any load failure. Details go to
// the diagnostic log only.
const UserFailureMessage = "The requested dataset information cannot be loaded due to an error. " +
	"The error is likely caused by an error with the police department or agency site that the data is sourced from. " +
	"If this error is with the agency's site, you can still access other datasets. " +
	"If you need access to the currently selected dataset, please try again later."

// LoadFailure wraps an error from an external catalog or data call.
type LoadFailure struct {
	Phase Phase
	Op    string // "years", "agencies", "count", "load", ...
	Err   error
}

// NewLoadFailure wraps err as a failure of op during phase.
func NewLoadFailure(phase Phase, op string, err error) *LoadFailure {
	return &LoadFailure{Phase: phase, Op: op, Err: err}
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Phase, e.Op, e.Err)
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}

// UserMessage returns the generic text safe to show to users.
func (e *LoadFailure) UserMessage() string {
	return UserFailureMessage
}

// IsLoadFailure reports whether err carries a LoadFailure.
func IsLoadFailure(err error) bool {
	var lf *LoadFailure
	return errors.As(err, &lf)
}
