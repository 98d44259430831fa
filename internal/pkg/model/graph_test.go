package model

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

// buildTwoIslands wires a 7/3 split: subs A-B-C plus branches under A,
// and a detached pair D-E.
func buildTwoIslands(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()

	pts := map[string]geo.Coord{
		"A": geo.NewCoord(52.0, 13.0),
		"B": geo.NewCoord(52.1, 13.1),
		"C": geo.NewCoord(52.2, 13.2),
		"D": geo.NewCoord(50.0, 8.0),
		"E": geo.NewCoord(50.1, 8.1),
	}
	for id, at := range pts {
		addTestSub(t, r, id, at, 380000)
	}

	link := func(cid, from, to string) {
		addTestConn(t, r, cid, 380000, pts[from], pts[to])
		r.Connect(from, map[string]EndType{cid: EndStart})
		r.Connect(to, map[string]EndType{cid: EndEnd})
	}
	link("c1", "A", "B")
	link("c2", "B", "C")
	link("c3", "D", "E")

	// Two branch points hanging off A through their own links.
	j1 := geo.NewCoord(52.01, 13.01)
	j2 := geo.NewCoord(52.02, 13.02)
	addTestConn(t, r, "c4", 380000, pts["A"], j1)
	addTestConn(t, r, "c5", 380000, j1, j2)

	br1, err := r.AddBranch(j1, map[string]EndType{"c4": EndEnd, "c5": EndStart})
	assert.NilError(t, err)
	assert.Equal(t, br1.ID(), "br_c4_c5")
	br2, err := r.AddBranch(j2, map[string]EndType{"c5": EndEnd})
	assert.NilError(t, err)

	r.Connect("A", map[string]EndType{"c4": EndStart})
	r.Connect(br1.ID(), map[string]EndType{"c4": EndEnd, "c5": EndStart})
	r.Connect(br2.ID(), map[string]EndType{"c5": EndEnd})

	return r
}

func TestReachableFrom(t *testing.T) {
	r := buildTwoIslands(t)

	nodes, conns := r.ReachableFrom("A")
	assert.Equal(t, len(nodes), 5)
	assert.Equal(t, len(conns), 4)

	if _, ok := nodes["D"]; ok {
		t.Error("detached island reached from A")
	}
	if _, ok := conns["c3"]; ok {
		t.Error("detached conn reached from A")
	}

	nodes, conns = r.ReachableFrom("E")
	assert.Equal(t, len(nodes), 2)
	assert.Equal(t, len(conns), 1)
}

func TestReachableFromUnknownSeed(t *testing.T) {
	r := buildTwoIslands(t)
	nodes, conns := r.ReachableFrom("nope")
	assert.Equal(t, len(nodes), 0)
	assert.Equal(t, len(conns), 0)
}

func TestComponentsLargestFirst(t *testing.T) {
	r := buildTwoIslands(t)

	comps := r.Components()
	assert.Equal(t, len(comps), 2)
	assert.Equal(t, len(comps[0]), 5)
	assert.Equal(t, len(comps[1]), 2)
	assert.DeepEqual(t, comps[1], []string{"D", "E"})
}

func TestUnresolvedEndsDoNotCrashTraversal(t *testing.T) {
	r := NewRegistry()
	a := geo.NewCoord(52.0, 13.0)
	b := geo.NewCoord(52.1, 13.1)
	addTestSub(t, r, "A", a, 380000)
	conn := addTestConn(t, r, "c1", 380000, a, b)

	// End never resolved, and a stale reference to a deleted node.
	r.Connect("A", map[string]EndType{"c1": EndStart})
	conn.EndNode = "gone"

	nodes, conns := r.ReachableFrom("A")
	assert.Equal(t, len(nodes), 1)
	assert.Equal(t, len(conns), 1)
}
