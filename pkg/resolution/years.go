package resolution

import (
	"fmt"
	"sort"
	"time"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// SortYears orders years most recent first, followed by NOT-APPLICABLE and
// MULTI. Duplicates are removed.
func SortYears(years []models.Year) []models.Year {
	seen := map[models.Year]struct{}{}
	out := make([]models.Year, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Value > b.Value
	})
	return out
}

// YearLabels returns the display label of every year.
func YearLabels(years []models.Year) []string {
	out := make([]string, len(years))
	for i, y := range years {
		out[i] = y.Label()
	}
	return out
}

// RangeLabel is the single synthetic option offered for a monolithic
// multi-year file. ok is false when years holds no concrete year.
func RangeLabel(years []models.Year) (label string, min, max int, ok bool) {
	for _, y := range years {
		if !y.IsConcrete() {
			continue
		}
		if !ok || y.Value < min {
			min = y.Value
		}
		if !ok || y.Value > max {
			max = y.Value
		}
		ok = true
	}
	if !ok {
		return models.MultiValue, 0, 0, false
	}
	return fmt.Sprintf("%d-%d", min, max), min, max, true
}

// FilterByCoverage keeps the MULTI rows whose coverage range contains year.
// When none does, year is the current calendar year, and some row's
// coverage ends the year before, the rows ending the year before are kept:
// catalog metadata lags behind data that is already published.
func FilterByCoverage(rows []models.DatasetDescriptor, year int, now time.Time) []models.DatasetDescriptor {
	var out []models.DatasetDescriptor
	for _, r := range rows {
		if start, end, ok := r.CoverageYears(); ok && start <= year && year <= end {
			out = append(out, r)
		}
	}
	if len(out) > 0 || year != now.Year() {
		return out
	}
	for _, r := range rows {
		if r.CoverageEnd != nil && r.CoverageEnd.Year()+1 == year {
			out = append(out, r)
		}
	}
	return out
}
