package retrieval

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

var filenameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_", ":", "_")

// DeriveFilename names the CSV payload of sel:
// State_Source[_Agency]_TableType_Year.csv. The agency part is left out
// when it repeats the source name.
func DeriveFilename(sel models.DatasetSelection) string {
	d := sel.Dataset
	parts := []string{d.State, d.SourceName}
	if agency := sel.AgencyName(); agency != d.SourceName {
		parts = append(parts, agency)
	}
	tableType := sel.TableType
	if tableType == "" {
		tableType = d.TableType
	}
	parts = append(parts, tableType, sel.FileYear())
	return filenameReplacer.Replace(strings.Join(parts, "_")) + ".csv"
}

// NoDataMessage is the informational text for an empty retrieval.
func NoDataMessage(sel models.DatasetSelection) string {
	msg := fmt.Sprintf("No data found for the %s table for %s in %s", sel.TableType, sel.Dataset.SourceName, sel.FileYear())
	if sel.AgencyOverride != "" {
		msg += " when filtering for agency " + sel.AgencyOverride
	}
	return msg
}

// CountLabel renders a row count for display ("1 record", "12000 records").
func CountLabel(n int) string {
	noun := "record"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("%d %s", n, noun)
}
