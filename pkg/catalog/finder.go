package catalog

import (
	"net/url"
	"strings"

	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// AllOption disables a finder filter.
const AllOption = models.AllAgencies

// FinderSelection is the value chosen for each finder filter.
type FinderSelection struct {
	State  string `json:"state"`
	Source string `json:"source"`
	Table  string `json:"table"`
}

// FinderResult is the dataset finder view.
type FinderResult struct {
	StateOptions  []string                   `json:"state_options"`
	SourceOptions []string                   `json:"source_options"`
	TableOptions  []string                   `json:"table_options"`
	Selection     FinderSelection            `json:"selection"`
	Datasets      []models.DatasetDescriptor `json:"datasets"`
	Warnings      []defaults.NotFound        `json:"warnings,omitempty"`
}

// Find applies the finder filters held in hints (stages state, source,
// table). Every filter offers ALL first. A hint that is not among a
// filter's options is reported and ALL is used instead.
func Find(v View, hints defaults.State) FinderResult {
	var res FinderResult

	pick := func(stage models.Stage, options []string) string {
		idx, found := defaults.Lookup(options, hints.Get(stage))
		if !found {
			res.Warnings = append(res.Warnings, defaults.NotFound{Stage: stage, Requested: hints.Get(stage)})
		}
		return options[idx]
	}

	res.StateOptions = append([]string{AllOption}, v.Distinct(State)...)
	res.Selection.State = pick(models.FinderStageState, res.StateOptions)
	if res.Selection.State != AllOption {
		v = v.Filter(Equals(State, res.Selection.State))
	}

	res.SourceOptions = append([]string{AllOption}, v.Distinct(SourceName)...)
	res.Selection.Source = pick(models.FinderStageSource, res.SourceOptions)
	if res.Selection.Source != AllOption {
		v = v.Filter(Equals(SourceName, res.Selection.Source))
	}

	_, generals, _ := models.SplitTableTypes(v.Distinct(TableType))
	res.TableOptions = append([]string{AllOption}, generals...)
	res.Selection.Table = pick(models.FinderStageTable, res.TableOptions)
	if res.Selection.Table != AllOption {
		v = v.Filter(func(d models.DatasetDescriptor) bool {
			general, _ := models.SplitTableType(d.TableType)
			return general == res.Selection.Table
		})
	}

	res.Datasets = v.Rows()
	return res
}

// FinderLink builds a link to the finder filtered by the non-empty
// arguments. ok is false when the filters match no dataset.
func FinderLink(baseURL string, v View, state, source, table string) (link string, ok bool) {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/Find_Datasets/?")

	if state != "" {
		v = v.Filter(Equals(State, state))
		b.WriteString("&state=" + url.QueryEscape(state))
	}
	if source != "" {
		v = v.Filter(Equals(SourceName, source))
		b.WriteString("&source=" + url.QueryEscape(source))
	}
	if table != "" {
		v = v.Filter(func(d models.DatasetDescriptor) bool {
			general, _ := models.SplitTableType(d.TableType)
			return general == table
		})
		b.WriteString("&table=" + url.QueryEscape(table))
	}

	if v.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
