package models

// DatasetSelection is the terminal output of resolution: one catalog row plus
// the choices that parameterize loading it.
type DatasetSelection struct {
	Dataset DatasetDescriptor `json:"dataset"`

	// Year is the effective query year passed to the loader. For a MULTI
	// row selected by a concrete year this is that concrete year; for a
	// monolithic multi-year file it stays MULTI.
	Year Year `json:"year"`

	// RequestedYear is what the caller asked for. It differs from Year only
	// when a concrete year was folded back into a monolithic MULTI file.
	RequestedYear Year `json:"requested_year"`

	// YearLabel is the option shown at the year stage ("2019", "2015-2021").
	YearLabel string `json:"year_label"`

	// AgencyOverride narrows a multi-agency row server-side. Empty means no
	// agency filter (including the ALL option).
	AgencyOverride string `json:"agency_override,omitempty"`

	// TableType is the composed table type passed to the loader.
	TableType string `json:"table_type"`

	// RelatedTables lists the other sub-tables of the chosen general type.
	RelatedTables []string `json:"related_tables,omitempty"`
}

// AgencyName is the agency the retrieved data belongs to.
func (s DatasetSelection) AgencyName() string {
	if s.AgencyOverride != "" {
		return s.AgencyOverride
	}
	return s.Dataset.Agency
}

// FileYear is the year component used when naming the payload.
func (s DatasetSelection) FileYear() string {
	if s.Year.IsMulti() {
		if s.RequestedYear.IsConcrete() {
			return s.RequestedYear.String()
		}
		if s.YearLabel != "" {
			return s.YearLabel
		}
	}
	return s.Year.String()
}

// MemoKey is the tuple compared by the selection memo. Any field that changes
// what a retrieval would return is part of it.
type MemoKey struct {
	URL            string
	DatasetID      string
	TableType      string
	Year           Year
	RequestedYear  Year
	AgencyOverride string
}

// MemoKey returns the memo tuple for s.
func (s DatasetSelection) MemoKey() MemoKey {
	return MemoKey{
		URL:            s.Dataset.URL,
		DatasetID:      s.Dataset.DatasetID,
		TableType:      s.TableType,
		Year:           s.Year,
		RequestedYear:  s.RequestedYear,
		AgencyOverride: s.AgencyOverride,
	}
}
