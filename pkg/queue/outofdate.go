package queue

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/universe"
	"github.com/repopulse/repopulse/pkg/vercmp"
)

// TrackedVersion is one name's record in an external version tracker.
type TrackedVersion struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Date    int64  `json:"date"`
}

// Tracker is one external version feed. Key names the recipe reference
// under which a source can pin its identity in this tracker explicitly;
// Priority orders trackers when several carry the same version.
type Tracker struct {
	Name     string
	Key      string
	Priority int
	Versions map[string]TrackedVersion
}

// ParseTrackerVersions decodes an external version feed, a JSON object
// mapping package name to its tracked version. Names match
// case-insensitively, so keys are folded to lower case.
func ParseTrackerVersions(data []byte) (map[string]TrackedVersion, error) {
	var raw map[string]TrackedVersion
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedFeedData, err, "decoding version feed")
	}
	versions := make(map[string]TrackedVersion, len(raw))
	for name, tv := range raw {
		versions[strings.ToLower(name)] = tv
	}
	return versions, nil
}

// ExternalVersion is the tracker record chosen for one source.
type ExternalVersion struct {
	Tracker string `json:"tracker"`
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
	Date    int64  `json:"date,omitempty"`
}

// OutOfDateEntry pairs one source with its best external record.
type OutOfDateEntry struct {
	Source   *universe.Source
	Version  string // upstream part of the local version
	External ExternalVersion
}

// OutOfDateReport classifies every non-internal source against the
// external trackers. Missing holds the sources no tracker knows at all,
// separate from Outdated.
type OutOfDateReport struct {
	Outdated []OutOfDateEntry
	UpToDate []OutOfDateEntry
	Missing  []*universe.Source
}

// OutOfDate builds the report. The local version basis is the newest
// built version, falling back to the recipe version for sources that
// were never built; release, epoch and build suffixes are stripped
// before comparing. Sources flagged internal are skipped entirely.
func OutOfDate(u *universe.Universe, trackers []Tracker) OutOfDateReport {
	ordered := make([]Tracker, len(trackers))
	copy(ordered, trackers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	var report OutOfDateReport
	for _, name := range u.SourceNames() {
		src := u.Sources[name]
		if src.Internal {
			continue
		}

		local := src.Version()
		if local == "" {
			local = src.RecipeVersion
		}
		local = vercmp.ExtractUpstream(local)

		ext, ok := match(u, src, ordered)
		if !ok {
			report.Missing = append(report.Missing, src)
			continue
		}
		entry := OutOfDateEntry{Source: src, Version: local, External: ext}
		if vercmp.Newer(ext.Version, local) {
			report.Outdated = append(report.Outdated, entry)
		} else {
			report.UpToDate = append(report.UpToDate, entry)
		}
	}

	// Recently moved upstreams first; they are the ones worth acting on.
	sort.SliceStable(report.Outdated, func(i, j int) bool {
		if report.Outdated[i].External.Date != report.Outdated[j].External.Date {
			return report.Outdated[i].External.Date > report.Outdated[j].External.Date
		}
		return report.Outdated[i].Source.Name < report.Outdated[j].Source.Name
	})
	sort.SliceStable(report.Missing, func(i, j int) bool {
		if di, dj := report.Missing[i].BuildDate(), report.Missing[j].BuildDate(); di != dj {
			return di > dj
		}
		return report.Missing[i].Name < report.Missing[j].Name
	})
	return report
}

// match finds the best external record for a source: every tracker is
// probed with the source's explicit reference name first, then its
// upstream name candidates; among trackers that know the source, the
// newest version wins, earlier trackers win ties.
func match(u *universe.Universe, src *universe.Source, trackers []Tracker) (ExternalVersion, bool) {
	var best ExternalVersion
	found := false
	for _, tr := range trackers {
		for _, candidate := range candidates(u, src, tr.Key) {
			tv, ok := tr.Versions[candidate]
			if !ok {
				continue
			}
			if !found || vercmp.Newer(tv.Version, best.Version) {
				best = ExternalVersion{
					Tracker: tr.Name,
					Name:    candidate,
					Version: tv.Version,
					URL:     tv.URL,
					Date:    tv.Date,
				}
				found = true
			}
			break
		}
	}
	return best, found
}

// candidates lists the names to probe a tracker with, lower-cased and
// deduplicated. Provided names carry their environment prefix, so each
// is tried stripped as well.
func candidates(u *universe.Universe, src *universe.Source, key string) []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		n = strings.ToLower(n)
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	if key != "" {
		if ref := src.References[key]; ref != "" {
			add(ref)
		}
	}
	for _, n := range src.UpstreamNames() {
		add(n)
		add(u.Normalize(n))
	}
	return names
}
