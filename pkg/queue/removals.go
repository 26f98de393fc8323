package queue

import (
	"github.com/repopulse/repopulse/pkg/universe"
)

// Blocker is one reverse dependent standing in the way of a removal,
// with the dependency kinds tying it to the candidate.
type Blocker struct {
	Pkg   *universe.Package
	Kinds universe.KindSet
}

// Removal is one built binary whose base has no recipe anymore.
type Removal struct {
	Pkg      *universe.Package
	Blockers []Blocker

	// Ready is true when nothing requires the binary: optional-only
	// blockers are listed but do not hold a removal back.
	Ready bool
}

// Removals returns the removal candidates, ordered by source name and
// package key.
func Removals(u *universe.Universe) []Removal {
	var out []Removal
	for _, name := range u.SourceNames() {
		src := u.Sources[name]
		if src.HasRecipe {
			continue
		}
		for _, p := range src.Packages {
			rm := Removal{Pkg: p, Ready: true}
			for _, rd := range u.RDeps(p) {
				rm.Blockers = append(rm.Blockers, Blocker{Pkg: rd.Pkg, Kinds: rd.Kinds})
				if !rd.Kinds.OptionalOnly() {
					rm.Ready = false
				}
			}
			out = append(out, rm)
		}
	}
	return out
}
