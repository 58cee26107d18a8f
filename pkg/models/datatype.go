package models

import (
	"fmt"
	"strings"
)

// DataType identifies the access mechanism behind a catalog row.
type DataType string

const (
	DataTypeArcGIS  DataType = "ArcGIS"
	DataTypeCarto   DataType = "Carto"
	DataTypeCKAN    DataType = "CKAN"
	DataTypeSocrata DataType = "Socrata"
	DataTypeCSV     DataType = "CSV"
	DataTypeExcel   DataType = "Excel"
	DataTypeSQL     DataType = "SQL" // table in a configured PostgreSQL or SQL Server connection
)

// AllDataTypes lists every access mechanism the catalog may reference.
var AllDataTypes = []DataType{
	DataTypeArcGIS, DataTypeCarto, DataTypeCKAN, DataTypeSocrata,
	DataTypeCSV, DataTypeExcel, DataTypeSQL,
}

// ParseDataType matches a catalog value case-insensitively.
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	for _, dt := range AllDataTypes {
		if strings.EqualFold(string(dt), s) {
			return dt, nil
		}
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// String returns the catalog spelling of the data type.
func (d DataType) String() string {
	return string(d)
}

// SupportsBatchCount reports whether the mechanism can report a record count
// up front and stream the table in fixed-size batches.
func (d DataType) SupportsBatchCount() bool {
	switch d {
	case DataTypeArcGIS, DataTypeCarto, DataTypeCKAN, DataTypeSocrata, DataTypeSQL:
		return true
	default:
		return false
	}
}

// SupportsAgencyFilter reports whether a multi-agency table can be narrowed
// to one agency server-side.
func (d DataType) SupportsAgencyFilter() bool {
	return d.SupportsBatchCount()
}
