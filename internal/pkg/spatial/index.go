// Package spatial wraps a point quadtree with the radius and nearest
// queries the merge stages need. Entries are keyed by caller-supplied ids,
// several entries may share one coordinate.
package spatial

import (
	"sort"
	"sync"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

type entry struct {
	id string
	pt orb.Point
}

func (e *entry) Point() orb.Point { return e.pt }

// Match is a single index hit, with the haversine distance from the query
// point in meters.
type Match struct {
	ID        string
	Coord     geo.Coord
	DistanceM float64
}

// Index is a mutable spatial index over identified points.
type Index struct {
	mux  *sync.Mutex
	tree *quadtree.Quadtree
	size int
}

// NewIndex returns an empty index covering the whole globe.
func NewIndex() *Index {
	bound := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	return &Index{
		mux:  &sync.Mutex{},
		tree: quadtree.New(bound),
	}
}

// Add inserts id at c. The same id may be added at several coordinates.
func (x *Index) Add(id string, c geo.Coord) error {
	x.mux.Lock()
	defer x.mux.Unlock()
	if err := x.tree.Add(&entry{id: id, pt: c.Point()}); err != nil {
		return err
	}
	x.size++
	return nil
}

// Remove drops one entry with the given id near c. Reports whether an
// entry was removed.
func (x *Index) Remove(id string, c geo.Coord) bool {
	x.mux.Lock()
	defer x.mux.Unlock()
	ok := x.tree.Remove(&entry{id: id, pt: c.Point()}, func(p orb.Pointer) bool {
		return p.(*entry).id == id
	})
	if ok {
		x.size--
	}
	return ok
}

// Len returns the number of entries in the index.
func (x *Index) Len() int {
	x.mux.Lock()
	defer x.mux.Unlock()
	return x.size
}

// Within returns all entries within radiusM meters of c, closest first.
// Ties break on id so results are stable across runs.
func (x *Index) Within(c geo.Coord, radiusM float64) []Match {
	x.mux.Lock()
	defer x.mux.Unlock()

	bound := orbgeo.NewBoundAroundPoint(c.Point(), radiusM)
	ptrs := x.tree.InBound(nil, bound)

	matches := make([]Match, 0, len(ptrs))
	for _, p := range ptrs {
		e := p.(*entry)
		ec := geo.FromPoint(e.pt)
		if d := c.DistanceM(ec); d <= radiusM {
			matches = append(matches, Match{ID: e.id, Coord: ec, DistanceM: d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceM != matches[j].DistanceM {
			return matches[i].DistanceM < matches[j].DistanceM
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// Nearest returns the entry closest to c, or ok=false on an empty index.
func (x *Index) Nearest(c geo.Coord) (Match, bool) {
	x.mux.Lock()
	defer x.mux.Unlock()

	if x.size == 0 {
		return Match{}, false
	}
	p := x.tree.Find(c.Point())
	if p == nil {
		return Match{}, false
	}
	e := p.(*entry)
	ec := geo.FromPoint(e.pt)
	return Match{ID: e.id, Coord: ec, DistanceM: c.DistanceM(ec)}, true
}
