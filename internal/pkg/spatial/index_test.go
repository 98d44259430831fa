package spatial

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

func TestWithinRadius(t *testing.T) {
	x := NewIndex()
	center := geo.NewCoord(50.0, 8.0)

	assert.NilError(t, x.Add("center", center))
	assert.NilError(t, x.Add("near", geo.NewCoord(50.0, 8.0001))) // ~7 m
	assert.NilError(t, x.Add("far", geo.NewCoord(50.0, 8.01)))    // ~700 m

	got := x.Within(center, 10)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].ID, "center")
	assert.Equal(t, got[1].ID, "near")
	assert.Assert(t, got[1].DistanceM > 0 && got[1].DistanceM <= 10)

	got = x.Within(center, 1000)
	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[2].ID, "far")
}

func TestWithinTieBreaksOnID(t *testing.T) {
	x := NewIndex()
	c := geo.NewCoord(50.0, 8.0)
	assert.NilError(t, x.Add("b", c))
	assert.NilError(t, x.Add("a", c))

	got := x.Within(c, 1)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].ID, "a")
	assert.Equal(t, got[1].ID, "b")
}

func TestNearest(t *testing.T) {
	x := NewIndex()
	if _, ok := x.Nearest(geo.NewCoord(50, 8)); ok {
		t.Error("empty index returned a match")
	}

	assert.NilError(t, x.Add("s1", geo.NewCoord(50.0, 8.0)))
	assert.NilError(t, x.Add("s2", geo.NewCoord(51.0, 9.0)))

	m, ok := x.Nearest(geo.NewCoord(50.1, 8.1))
	assert.Assert(t, ok)
	assert.Equal(t, m.ID, "s1")
	assert.Assert(t, m.DistanceM > 0)
}

func TestRemove(t *testing.T) {
	x := NewIndex()
	c := geo.NewCoord(50.0, 8.0)
	assert.NilError(t, x.Add("s1", c))
	assert.Equal(t, x.Len(), 1)

	assert.Assert(t, x.Remove("s1", c))
	assert.Equal(t, x.Len(), 0)
	assert.Equal(t, len(x.Within(c, 100)), 0)

	assert.Assert(t, !x.Remove("s1", c))
}

func TestSameIDAtTwoPoints(t *testing.T) {
	x := NewIndex()
	assert.NilError(t, x.Add("conn1", geo.NewCoord(50.0, 8.0)))
	assert.NilError(t, x.Add("conn1", geo.NewCoord(50.0, 8.5)))

	got := x.Within(geo.NewCoord(50.0, 8.0), 10)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].ID, "conn1")
	assert.Equal(t, x.Len(), 2)
}
