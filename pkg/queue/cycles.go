package queue

import (
	"sort"

	"github.com/repopulse/repopulse/pkg/graph"
	"github.com/repopulse/repopulse/pkg/universe"
)

// Cycles reports build-order cycles among pending updates. An edge A→B
// exists when one of A's declared build dependencies (depends,
// makedepends, checkdepends across its sub-packages) resolves to a
// binary B produces; edges to sources that are not themselves pending
// are dropped, since a stable dependency never blocks an update order.
// Each strongly connected component of two or more sources is one
// cycle; a source build-depending on its own binaries shows up as a
// single-element cycle.
func Cycles(u *universe.Universe, updates []Update) [][]string {
	pending := make(map[string]*universe.Source, len(updates))
	names := make([]string, 0, len(updates))
	for _, up := range updates {
		pending[up.Source.Name] = up.Source
		names = append(names, up.Source.Name)
	}
	sort.Strings(names)

	g := graph.New()
	for _, name := range names {
		g.AddNode(name, nil)
	}
	for _, name := range names {
		for _, decl := range pending[name].Declared {
			for _, deps := range []universe.DepMap{decl.Depends, decl.MakeDepends, decl.CheckDepends} {
				for _, token := range deps.Names() {
					for _, target := range u.ResolveToSources(token) {
						if _, ok := pending[target.Name]; !ok {
							continue
						}
						g.AddEdge(name, target.Name)
					}
				}
			}
		}
	}
	return g.Cycles()
}
