package models

// Stage names one step of the resolution chain. The string values are the
// public vocabulary used for hints, query parameters and deep links.
type Stage string

const (
	StageState            Stage = "state"
	StageSource           Stage = "source"
	StageTableTypeGeneral Stage = "table_type_general"
	StageTableTypeSub     Stage = "table_type_sub"
	StageAgency           Stage = "agency"
	StageYear             Stage = "year"
	StageURL              Stage = "url"
	// StageID is not surfaced on its own; it qualifies a url hint.
	StageID           Stage = "id"
	StageAgencyFilter Stage = "agency_filter"
)

// StageOrder is the fixed order of the download selection. Both resolution
// and default propagation index into it.
var StageOrder = []Stage{
	StageState,
	StageSource,
	StageTableTypeGeneral,
	StageTableTypeSub,
	StageAgency,
	StageYear,
	StageURL,
	StageID,
	StageAgencyFilter,
}

// Finder page stages.
const (
	FinderStageState  Stage = "state"
	FinderStageSource Stage = "source"
	FinderStageTable  Stage = "table"
)

// FinderStageOrder is the fixed order of the dataset finder filters.
var FinderStageOrder = []Stage{FinderStageState, FinderStageSource, FinderStageTable}

// StageIndex returns the position of s in order, or -1.
func StageIndex(order []Stage, s Stage) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s belongs to the download stage vocabulary.
func (s Stage) IsValid() bool {
	return StageIndex(StageOrder, s) >= 0
}

// Label is the prompt shown for a stage.
func (s Stage) Label() string {
	switch s {
	case StageState:
		return "State"
	case StageSource:
		return "Source"
	case StageTableTypeGeneral:
		return "Table Type"
	case StageTableTypeSub:
		return "Table Type Subcategory"
	case StageAgency:
		return "Agency"
	case StageYear:
		return "Year"
	case StageURL:
		return "Multiple Options: Select URL+ID"
	case StageAgencyFilter:
		return "Agencies"
	default:
		return string(s)
	}
}
