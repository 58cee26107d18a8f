package catalog

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// NeverSupported is the min_version marking rows no library release can load.
const NeverSupported = "-1"

// Prepare drops rows the configured library version cannot load and sorts
// the remainder by State, SourceName and TableType. An empty
// libraryVersion only drops NeverSupported rows. It returns the kept rows
// and how many were dropped.
func Prepare(rows []models.DatasetDescriptor, libraryVersion string) ([]models.DatasetDescriptor, int) {
	lib := canonicalVersion(libraryVersion)
	kept := make([]models.DatasetDescriptor, 0, len(rows))
	for _, r := range rows {
		if supported(r.MinVersion, lib) {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.SourceName != b.SourceName {
			return a.SourceName < b.SourceName
		}
		return a.TableType < b.TableType
	})
	return kept, len(rows) - len(kept)
}

func supported(minVersion, lib string) bool {
	minVersion = strings.TrimSpace(minVersion)
	if minVersion == "" {
		return true
	}
	if minVersion == NeverSupported {
		return false
	}
	if lib == "" {
		return true
	}
	min := canonicalVersion(minVersion)
	if !semver.IsValid(min) {
		return false
	}
	return semver.Compare(min, lib) <= 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
