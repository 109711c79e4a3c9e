package resolve

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_OrderPutsDependenciesFirst(t *testing.T) {
	// Test: Every dependency precedes its dependent in an acyclic graph
	g := NewGraph([]string{"Users", "Orgs", "Memberships"})
	g.AddEdge("Memberships", "Users")
	g.AddEdge("Memberships", "Orgs")
	g.AddEdge("Users", "Orgs")
	g.AddEdge("Users", "Users")

	order, cycles := g.Order()
	assert.Equal(t, []string{"Orgs", "Users", "Memberships"}, order)
	assert.Empty(t, cycles)
	assert.Equal(t, []string{"Orgs", "Users"}, g.Deps("Memberships"))
}

func TestGraph_OrderIsDeterministic(t *testing.T) {
	// Test: Insertion order never changes the computed order
	names := []string{"A", "B", "C", "D", "E", "F"}
	edges := [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}, {"D", "E"}, {"F", "A"}, {"E", "F"}}

	build := func(r *rand.Rand) *Graph {
		ns := append([]string(nil), names...)
		r.Shuffle(len(ns), func(i, j int) { ns[i], ns[j] = ns[j], ns[i] })
		es := append([][2]string(nil), edges...)
		r.Shuffle(len(es), func(i, j int) { es[i], es[j] = es[j], es[i] })
		g := NewGraph(ns)
		for _, e := range es {
			g.AddEdge(e[0], e[1])
		}
		return g
	}

	wantOrder, wantCycles := build(rand.New(rand.NewSource(1))).Order()
	assert.Len(t, wantOrder, len(names))
	assert.NotEmpty(t, wantCycles)

	for seed := int64(2); seed < 50; seed++ {
		order, cycles := build(rand.New(rand.NewSource(seed))).Order()
		assert.Equal(t, wantOrder, order, "seed %d", seed)
		assert.Equal(t, wantCycles, cycles, "seed %d", seed)
	}
}
