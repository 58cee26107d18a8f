package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Catalog spellings of the year/agency sentinels.
const (
	MultiValue         = "MULTIPLE"
	NotApplicableValue = "NONE"
	// NotApplicableLabel is how NOT-APPLICABLE years are displayed.
	NotApplicableLabel = "NOT APPLICABLE"
	// AllAgencies is the post-year agency option meaning "do not filter".
	AllAgencies = "ALL"
)

// YearKind distinguishes concrete years from the sentinels.
type YearKind int

const (
	YearConcrete YearKind = iota
	YearNotApplicable
	YearMulti
)

// Year is a concrete calendar year, NOT-APPLICABLE, or MULTI.
type Year struct {
	Kind  YearKind
	Value int
}

var (
	NotApplicableYear = Year{Kind: YearNotApplicable}
	MultiYear         = Year{Kind: YearMulti}
)

// ConcreteYear returns the Year for a calendar year.
func ConcreteYear(y int) Year {
	return Year{Kind: YearConcrete, Value: y}
}

// ParseYear accepts a calendar year, a sentinel spelling, or the display
// label of NOT-APPLICABLE.
func ParseYear(s string) (Year, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case MultiValue, "MULTI":
		return MultiYear, nil
	case NotApplicableValue, NotApplicableLabel, "NA", "N/A":
		return NotApplicableYear, nil
	}
	// Catalog exports sometimes carry years as floats ("2019.0").
	s = strings.TrimSuffix(s, ".0")
	y, err := strconv.Atoi(s)
	if err != nil {
		return Year{}, fmt.Errorf("invalid year %q", s)
	}
	return ConcreteYear(y), nil
}

func (y Year) IsConcrete() bool      { return y.Kind == YearConcrete }
func (y Year) IsMulti() bool         { return y.Kind == YearMulti }
func (y Year) IsNotApplicable() bool { return y.Kind == YearNotApplicable }

// String returns the catalog spelling.
func (y Year) String() string {
	switch y.Kind {
	case YearMulti:
		return MultiValue
	case YearNotApplicable:
		return NotApplicableValue
	default:
		return strconv.Itoa(y.Value)
	}
}

// Label returns the display form used for stage options.
func (y Year) Label() string {
	if y.Kind == YearNotApplicable {
		return NotApplicableLabel
	}
	return y.String()
}

func (y Year) MarshalText() ([]byte, error) {
	return []byte(y.String()), nil
}

func (y *Year) UnmarshalText(b []byte) error {
	parsed, err := ParseYear(string(b))
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}
