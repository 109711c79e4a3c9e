package resolve

import (
	"sort"
)

// Graph records which entities depend on which. An edge a -> b means a
// embeds or references b, so b is emitted first.
type Graph struct {
	edges map[string]map[string]bool
	nodes []string
}

// NewGraph creates a graph over the given node names
func NewGraph(nodes []string) *Graph {
	g := &Graph{edges: make(map[string]map[string]bool, len(nodes))}
	for _, n := range nodes {
		g.addNode(n)
	}
	return g
}

func (g *Graph) addNode(n string) {
	if _, ok := g.edges[n]; ok {
		return
	}
	g.edges[n] = make(map[string]bool)
	g.nodes = append(g.nodes, n)
}

// AddEdge records that from depends on to. Self edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	if from == to {
		return
	}
	g.addNode(from)
	g.addNode(to)
	g.edges[from][to] = true
}

// Deps returns the direct dependencies of n, sorted
func (g *Graph) Deps(n string) []string {
	deps := make([]string, 0, len(g.edges[n]))
	for d := range g.edges[n] {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

// Edge is a dependency that closed a cycle
type Edge struct {
	From, To string
}

// Order returns every node in dependency-first order along with the back
// edges that were skipped to break cycles. The walk starts from nodes sorted
// by name, so the result is deterministic.
func (g *Graph) Order() ([]string, []Edge) {
	const (
		unvisited = iota
		visiting
		done
	)

	nodes := make([]string, len(g.nodes))
	copy(nodes, g.nodes)
	sort.Strings(nodes)

	state := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))
	var cycles []Edge

	var visit func(n string)
	visit = func(n string) {
		state[n] = visiting
		for _, d := range g.Deps(n) {
			switch state[d] {
			case unvisited:
				visit(d)
			case visiting:
				cycles = append(cycles, Edge{From: n, To: d})
			}
		}
		state[n] = done
		order = append(order, n)
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return order, cycles
}
