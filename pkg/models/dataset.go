// Package models contains domain types for opd-explorer.
package models

import (
	"net/url"
	"strings"
	"time"
)

// DatasetDescriptor is one catalog row.
//
// Within a (State, SourceName, TableType, Agency) group at most one row has a
// given concrete Year. MULTI rows may overlap in coverage and are told apart
// by coverage range or by URL/DatasetID.
type DatasetDescriptor struct {
	State      string   `json:"state" yaml:"State"`
	SourceName string   `json:"source_name" yaml:"SourceName"`
	Agency     string   `json:"agency" yaml:"Agency"`
	AgencyFull string   `json:"agency_full,omitempty" yaml:"AgencyFull,omitempty"`
	TableType  string   `json:"table_type" yaml:"TableType"`
	DataType   DataType `json:"data_type" yaml:"DataType"`
	Year       Year     `json:"year" yaml:"Year"`

	// Coverage is only meaningful when Year is MULTI.
	CoverageStart *time.Time `json:"coverage_start,omitempty" yaml:"coverage_start,omitempty"`
	CoverageEnd   *time.Time `json:"coverage_end,omitempty" yaml:"coverage_end,omitempty"`

	URL       string `json:"url" yaml:"URL"`
	DatasetID string `json:"dataset_id,omitempty" yaml:"dataset_id,omitempty"` // empty when absent
	DateField string `json:"date_field,omitempty" yaml:"date_field,omitempty"`
	// AgencyField is the column holding the agency name in multi-agency tables.
	AgencyField string `json:"agency_field,omitempty" yaml:"agency_field,omitempty"`
	SourceURL   string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Readme      string `json:"readme,omitempty" yaml:"readme,omitempty"`
	MinVersion  string `json:"min_version,omitempty" yaml:"min_version,omitempty"`
}

// IsMultiAgency reports whether the row aggregates several agencies.
func (d DatasetDescriptor) IsMultiAgency() bool {
	return d.Agency == MultiValue
}

// IsCompressedCSV reports whether the row is a CSV shipped inside a zip archive.
func (d DatasetDescriptor) IsCompressedCSV() bool {
	if d.DataType != DataTypeCSV {
		return false
	}
	path := d.URL
	if u, err := url.Parse(d.URL); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), ".zip")
}

// SupportsPartialLoad reports whether the first N rows can be fetched without
// loading the whole table.
func (d DatasetDescriptor) SupportsPartialLoad() bool {
	if d.DataType.SupportsBatchCount() {
		return true
	}
	return d.DataType == DataTypeCSV && !d.IsCompressedCSV()
}

// CoverageYears returns the integer year range of the coverage dates.
func (d DatasetDescriptor) CoverageYears() (start, end int, ok bool) {
	if d.CoverageStart == nil || d.CoverageEnd == nil {
		return 0, 0, false
	}
	return d.CoverageStart.Year(), d.CoverageEnd.Year(), true
}

// Key identifies the row for memoization and logging.
func (d DatasetDescriptor) Key() string {
	return strings.Join([]string{d.State, d.SourceName, d.Agency, d.TableType, d.Year.String(), d.URL, d.DatasetID}, "|")
}
