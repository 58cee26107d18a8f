// Package sql guards the filter values spliced into the query languages of
// open-data portals (SoQL, ArcGIS where clauses, CKAN and Carto SQL), none of
// which accept bound parameters.
package sql

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
)

// InjectionCheckResult contains the result of an injection check on a filter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Column the value was meant to filter
	Value       string
}

// CheckFilterValue uses libinjection to detect SQL injection patterns in a
// value that will be placed in a string literal. Returns nil when the value
// is clean.
//
// Example:
//
//	CheckFilterValue("agency_name", "Fairfax County")     // nil
//	CheckFilterValue("agency_name", "x' OR '1'='1")       // IsSQLi == true
func CheckFilterValue(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Field:       field,
		Value:       value,
	}
}

// Err converts a failed check into ErrUnsafeFilterValue. A nil result gives
// a nil error.
func (r *InjectionCheckResult) Err() error {
	if r == nil {
		return nil
	}
	return fmt.Errorf("%w: %s (fingerprint %s)", apperrors.ErrUnsafeFilterValue, r.Field, r.Fingerprint)
}

// QuoteLiteral returns value as a single-quoted string literal with embedded
// quotes doubled. Callers must run CheckFilterValue first.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// SafeLiteral checks value and returns it quoted.
func SafeLiteral(field, value string) (string, error) {
	if err := CheckFilterValue(field, value).Err(); err != nil {
		return "", err
	}
	return QuoteLiteral(value), nil
}
