package resolve

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// SortVersions orders version strings newest-first using semantic
// version comparison. Addon version strings are not guaranteed to be
// semver ("1.2.3buildid4" and friends appear in the wild), so if any
// entry fails to parse the slice is left in its original API order.
func SortVersions(versions []string) {
	type entry struct {
		raw    string
		parsed *semver.Version
	}

	entries := make([]entry, len(versions))
	for i, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			return
		}
		entries[i] = entry{raw: v, parsed: sv}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].parsed.GreaterThan(entries[j].parsed)
	})
	for i, e := range entries {
		versions[i] = e.raw
	}
}
