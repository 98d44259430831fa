// Package geo holds the coordinate primitives shared by the grid model.
// All coordinates are WGS84. Values are rounded to six decimal places
// (about 0.1 m) so that endpoints reported by different records collapse
// to the same key.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

const precision = 1e6

// Coord is a rounded WGS84 coordinate pair. Coords are comparable and
// usable as map keys.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoord rounds lat and lon to six decimal places.
func NewCoord(lat, lon float64) Coord {
	return Coord{Lat: Round(lat), Lon: Round(lon)}
}

// Round rounds a degree value to six decimal places.
func Round(deg float64) float64 {
	return math.Round(deg*precision) / precision
}

// Point returns the coordinate in orb's (lon, lat) order.
func (c Coord) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb point back to a rounded Coord.
func FromPoint(p orb.Point) Coord {
	return NewCoord(p.Lat(), p.Lon())
}

// DistanceM returns the haversine distance to o in meters.
func (c Coord) DistanceM(o Coord) float64 {
	return orbgeo.DistanceHaversine(c.Point(), o.Point())
}

// DegreeDistance returns the planar hypotenuse of the raw degree deltas.
// Not a physical length. Candidate ranking at merge time uses this so that
// orderings match across hosts regardless of projection library.
func (c Coord) DegreeDistance(o Coord) float64 {
	return math.Hypot(c.Lat-o.Lat, c.Lon-o.Lon)
}

// IsZero reports whether the coordinate is the zero value.
func (c Coord) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

func (c Coord) String() string {
	return fmt.Sprintf("(%v, %v)", c.Lat, c.Lon)
}

// PathLengthM returns the haversine length of a polyline in meters.
func PathLengthM(path []Coord) float64 {
	if len(path) < 2 {
		return 0
	}
	ls := make(orb.LineString, len(path))
	for i, c := range path {
		ls[i] = c.Point()
	}
	return orbgeo.LengthHaversine(ls)
}

// Centroid returns the arithmetic midpoint of a set of coordinates.
func Centroid(coords []Coord) Coord {
	if len(coords) == 0 {
		return Coord{}
	}
	var lat, lon float64
	for _, c := range coords {
		lat += c.Lat
		lon += c.Lon
	}
	n := float64(len(coords))
	return NewCoord(lat/n, lon/n)
}
