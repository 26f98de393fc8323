package graph

import "sort"

// SCCs returns the strongly connected components of the graph, computed
// with Tarjan's algorithm. Each component is sorted by node ID and the
// components are sorted by their first member, so the result is stable
// for a given graph.
func (g *Directed) SCCs() [][]string {
	index := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	next := 0
	var comps [][]string

	// Sorted roots and adjacency keep the traversal order, and with it
	// the component order, independent of map iteration.
	ids := g.Nodes()
	sort.Strings(ids)
	children := make(map[string][]string, len(g.outgoing))
	for id, out := range g.outgoing {
		c := make([]string, len(out))
		copy(c, out)
		sort.Strings(c)
		children[id] = c
	}

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range children[v] {
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			comps = append(comps, comp)
		}
	}

	for _, id := range ids {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// Cycles returns the components that form dependency cycles: every SCC
// with two or more members, plus any single node with an edge to
// itself (a degenerate cycle).
func (g *Directed) Cycles() [][]string {
	var cycles [][]string
	for _, comp := range g.SCCs() {
		if len(comp) > 1 || g.HasEdge(comp[0], comp[0]) {
			cycles = append(cycles, comp)
		}
	}
	return cycles
}
