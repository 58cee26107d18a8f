package models

import (
	"regexp"
	"sort"
	"strings"
)

// SplitTableFamilies are table types published as "FAMILY - SUBTABLE".
var SplitTableFamilies = []string{
	"COMPLAINTS",
	"CRASHES",
	"OFFICER-INVOLVED SHOOTINGS",
	"USE OF FORCE",
}

var familyPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(SplitTableFamilies))
	for i, f := range SplitTableFamilies {
		out[i] = regexp.MustCompile(regexp.QuoteMeta(f) + `\s?-\s?(.+)`)
	}
	return out
}()

// SplitTableType parses "General - Sub". Sub is empty when the table type
// does not belong to a split family.
func SplitTableType(tableType string) (general, sub string) {
	for i, re := range familyPatterns {
		if m := re.FindStringSubmatch(tableType); m != nil {
			return SplitTableFamilies[i], strings.TrimSpace(m[1])
		}
	}
	return tableType, ""
}

// SplitTableTypes splits every table type and also returns the sorted
// distinct general types.
func SplitTableTypes(tableTypes []string) (generals, sortedGenerals, subs []string) {
	generals = make([]string, len(tableTypes))
	subs = make([]string, len(tableTypes))
	seen := map[string]struct{}{}
	for i, tt := range tableTypes {
		generals[i], subs[i] = SplitTableType(tt)
		if _, ok := seen[generals[i]]; !ok {
			seen[generals[i]] = struct{}{}
			sortedGenerals = append(sortedGenerals, generals[i])
		}
	}
	sort.Strings(sortedGenerals)
	return generals, sortedGenerals, subs
}
