package graph_test

import (
	"fmt"

	"github.com/repopulse/repopulse/pkg/graph"
)

func ExampleDirected_basic() {
	// Build a small dependency graph: app → lib → core
	g := graph.New()
	_ = g.AddNode("app", nil)
	_ = g.AddNode("lib", nil)
	_ = g.AddNode("core", nil)
	_ = g.AddEdge("app", "lib")
	_ = g.AddEdge("lib", "core")

	fmt.Println("Nodes:", g.NodeCount())
	fmt.Println("Edges:", g.EdgeCount())
	fmt.Println("Children of app:", g.Children("app"))
	// Output:
	// Nodes: 3
	// Edges: 2
	// Children of app: [lib]
}

func ExampleDirected_Cycles() {
	// Two build recipes that depend on each other cannot be ordered.
	g := graph.New()
	_ = g.AddNode("gcc", nil)
	_ = g.AddNode("binutils", nil)
	_ = g.AddNode("zlib", nil)
	_ = g.AddEdge("gcc", "binutils")
	_ = g.AddEdge("binutils", "gcc")
	_ = g.AddEdge("gcc", "zlib")

	for _, cycle := range g.Cycles() {
		fmt.Println("Cycle:", cycle)
	}
	// Output:
	// Cycle: [binutils gcc]
}
