// Package graph provides the directed graph used for build-order
// analysis: nodes are base package names, edges are declared build
// dependencies between them. It offers strongly-connected-component
// detection for the update queue's cycle report and DOT/SVG export for
// visualization.
package graph

import (
	"errors"
	"sort"
)

var (
	// ErrInvalidNodeID is returned by AddNode when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by AddNode when a node with the
	// same ID already exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by AddEdge when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by AddEdge when the To node does
	// not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// Metadata stores arbitrary key-value pairs attached to nodes. It is
// used for display data (version transitions, status) when exporting.
type Metadata map[string]any

// Edge is a directed connection between two nodes.
type Edge struct {
	From string
	To   string
}

// Directed is a directed graph keyed by string node IDs. Parallel edges
// are collapsed; self-edges are allowed. The zero value is not usable,
// use New. Not safe for concurrent mutation.
type Directed struct {
	nodes    map[string]Metadata
	order    []string
	outgoing map[string][]string
	incoming map[string][]string
	edges    map[Edge]bool
}

// New creates an empty graph.
func New() *Directed {
	return &Directed{
		nodes:    make(map[string]Metadata),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		edges:    make(map[Edge]bool),
	}
}

// AddNode adds a node. The metadata map may be nil.
func (g *Directed) AddNode(id string, meta Metadata) error {
	if id == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[id]; exists {
		return ErrDuplicateNodeID
	}
	if meta == nil {
		meta = Metadata{}
	}
	g.nodes[id] = meta
	g.order = append(g.order, id)
	return nil
}

// HasNode reports whether a node with the given ID exists.
func (g *Directed) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Meta returns the metadata of a node, nil when the node is unknown.
func (g *Directed) Meta(id string) Metadata { return g.nodes[id] }

// AddEdge adds a directed edge between two existing nodes. Adding the
// same edge twice is a no-op.
func (g *Directed) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownTargetNode
	}
	e := Edge{From: from, To: to}
	if g.edges[e] {
		return nil
	}
	g.edges[e] = true
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
	return nil
}

// HasEdge reports whether the edge from→to exists.
func (g *Directed) HasEdge(from, to string) bool {
	return g.edges[Edge{From: from, To: to}]
}

// Nodes returns all node IDs in insertion order.
func (g *Directed) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns all edges sorted by (From, To).
func (g *Directed) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Children returns the targets of the node's outgoing edges. The
// returned slice is a read-only view.
func (g *Directed) Children(id string) []string { return g.outgoing[id] }

// Parents returns the sources of the node's incoming edges. The
// returned slice is a read-only view.
func (g *Directed) Parents(id string) []string { return g.incoming[id] }

// NodeCount returns the number of nodes.
func (g *Directed) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Directed) EdgeCount() int { return len(g.edges) }
