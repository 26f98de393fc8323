package queue

import (
	"sort"

	"github.com/repopulse/repopulse/pkg/universe"
	"github.com/repopulse/repopulse/pkg/vercmp"
)

// Update is one source whose recipe version is ahead of everything
// built from it, or whose binaries have never been built at all.
type Update struct {
	Source        *universe.Source
	BuiltVersion  string // newest built version, empty for a new recipe
	RecipeVersion string
	Statuses      []TypeStatus
}

// New reports whether no binary has been built from this source yet.
func (u Update) New() bool { return u.BuiltVersion == "" }

// Updates returns the pending update queue. A source is pending when
// its recipe build version is strictly newer than the newest built
// version sharing its base, or when nothing has been built. Entries
// sort most urgent build status first, then by newest recipe change,
// then by name.
func Updates(u *universe.Universe, bs *BuildStatus) []Update {
	var out []Update
	for _, name := range u.SourceNames() {
		src := u.Sources[name]
		if !src.HasRecipe {
			continue
		}
		built := src.Version()
		if built != "" && !vercmp.Newer(src.RecipeVersion, built) {
			continue
		}
		out = append(out, Update{
			Source:        src,
			BuiltVersion:  built,
			RecipeVersion: src.RecipeVersion,
			Statuses:      bs.For(src.Name, src.RecipeVersion, src.BuildTypes),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if pi, pj := leadPriority(out[i]), leadPriority(out[j]); pi != pj {
			return pi > pj
		}
		di, dj := out[i].Source.RecipeDate, out[j].Source.RecipeDate
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return out[i].Source.Name < out[j].Source.Name
	})
	return out
}

// leadPriority ranks an update by its most urgent build status.
func leadPriority(u Update) int {
	if len(u.Statuses) == 0 {
		return -1
	}
	return StatusPriority(u.Statuses[0].Status)
}
