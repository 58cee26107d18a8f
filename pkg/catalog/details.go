package catalog

import (
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

const detailsDateLayout = "January 02, 2006"

// Details is the human-readable summary of a selected dataset.
type Details struct {
	State         string `json:"state"`
	Source        string `json:"source"`
	AgencyFull    string `json:"agency_full,omitempty"`
	TableType     string `json:"table_type"`
	CoverageStart string `json:"coverage_start"`
	CoverageEnd   string `json:"coverage_end"`
	SourceURL     string `json:"source_url"`
	Readme        string `json:"readme"`
}

// Describe summarizes d for display.
func Describe(d models.DatasetDescriptor) Details {
	out := Details{
		State:      d.State,
		Source:     d.SourceName,
		AgencyFull: d.AgencyFull,
		TableType:  titleCase(d.TableType),
		SourceURL:  d.SourceURL,
		Readme:     d.Readme,
	}

	if d.CoverageStart == nil {
		out.CoverageStart = "N/A"
	} else {
		out.CoverageStart = d.CoverageStart.Format(detailsDateLayout)
	}
	switch {
	case d.CoverageEnd != nil:
		out.CoverageEnd = d.CoverageEnd.Format(detailsDateLayout)
	case d.CoverageStart == nil:
		out.CoverageEnd = "N/A"
	default:
		out.CoverageEnd = "Present (Approx.)"
	}
	if out.Readme == "" {
		out.Readme = "No direct URL recorded. Check Source URL."
	}
	return out
}

// titleCase capitalizes the first letter of each word and lowercases the rest.
func titleCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range strings.ToLower(s) {
		if upper && r >= 'a' && r <= 'z' {
			b.WriteRune(r - ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
		upper = !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}
	return b.String()
}
