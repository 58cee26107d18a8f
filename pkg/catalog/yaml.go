package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

type yamlCatalog struct {
	Datasets []yamlRow `yaml:"datasets"`
}

// yamlRow keeps every field as text so the same parsing rules apply as for
// CSV exports.
type yamlRow struct {
	State         string `yaml:"State"`
	SourceName    string `yaml:"SourceName"`
	Agency        string `yaml:"Agency"`
	AgencyFull    string `yaml:"AgencyFull"`
	TableType     string `yaml:"TableType"`
	DataType      string `yaml:"DataType"`
	Year          string `yaml:"Year"`
	CoverageStart string `yaml:"coverage_start"`
	CoverageEnd   string `yaml:"coverage_end"`
	URL           string `yaml:"URL"`
	DatasetID     string `yaml:"dataset_id"`
	DateField     string `yaml:"date_field"`
	AgencyField   string `yaml:"agency_field"`
	SourceURL     string `yaml:"source_url"`
	Readme        string `yaml:"readme"`
	MinVersion    string `yaml:"min_version"`
}

// LoadYAML parses a catalog document of the form
//
//	datasets:
//	  - State: Virginia
//	    SourceName: Fairfax County
//	    Year: 2021
//	    ...
func LoadYAML(r io.Reader) ([]models.DatasetDescriptor, error) {
	var doc yamlCatalog
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog yaml: %w", err)
	}

	rows := make([]models.DatasetDescriptor, 0, len(doc.Datasets))
	for i, y := range doc.Datasets {
		d := models.DatasetDescriptor{
			State:       nullable(y.State),
			SourceName:  nullable(y.SourceName),
			Agency:      nullable(y.Agency),
			AgencyFull:  nullable(y.AgencyFull),
			TableType:   nullable(y.TableType),
			DataType:    normalizeDataType(y.DataType),
			URL:         nullable(y.URL),
			DatasetID:   nullable(y.DatasetID),
			DateField:   nullable(y.DateField),
			AgencyField: nullable(y.AgencyField),
			SourceURL:   nullable(y.SourceURL),
			Readme:      nullable(y.Readme),
			MinVersion:  nullable(y.MinVersion),
		}
		var err error
		if d.Year, err = models.ParseYear(y.Year); err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i, err)
		}
		if d.CoverageStart, err = parseDate(nullable(y.CoverageStart)); err != nil {
			return nil, fmt.Errorf("dataset %d: coverage_start: %w", i, err)
		}
		if d.CoverageEnd, err = parseDate(nullable(y.CoverageEnd)); err != nil {
			return nil, fmt.Errorf("dataset %d: coverage_end: %w", i, err)
		}
		rows = append(rows, d)
	}
	return rows, nil
}
