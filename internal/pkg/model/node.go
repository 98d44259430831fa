package model

import (
	"fmt"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

// Node is a vertex of the grid graph, either a substation or a branch
// point joining line ends in the field.
type Node interface {
	ID() string
	Type() NodeType
	Coords() geo.Coord
	Name() string
	Operator() string
	Voltages() []float64
	MaxV() float64
	MinV() float64
	Connections() map[string]EndType
	Generators() map[string]struct{}
	Loads() map[string]struct{}
	Region() string

	base() *node
}

// node carries the fields shared by substations and branches.
type node struct {
	id       string
	typ      NodeType
	coords   geo.Coord
	name     string
	operator string
	conns    map[string]EndType
	voltages []float64
	gens     map[string]struct{}
	loads    map[string]struct{}
	region   string
}

func newNode(id string, typ NodeType, coords geo.Coord, pool map[string]EndType) node {
	conns := make(map[string]EndType, len(pool))
	for cid, end := range pool {
		conns[cid] = end
	}
	return node{
		id:     id,
		typ:    typ,
		coords: coords,
		conns:  conns,
		gens:   make(map[string]struct{}),
		loads:  make(map[string]struct{}),
	}
}

func (n *node) ID() string                    { return n.id }
func (n *node) Type() NodeType                { return n.typ }
func (n *node) Coords() geo.Coord             { return n.coords }
func (n *node) Name() string                  { return n.name }
func (n *node) Operator() string              { return n.operator }
func (n *node) Voltages() []float64           { return n.voltages }
func (n *node) Connections() map[string]EndType { return n.conns }
func (n *node) Generators() map[string]struct{} { return n.gens }
func (n *node) Loads() map[string]struct{}    { return n.loads }
func (n *node) Region() string                { return n.region }

func (n *node) base() *node { return n }

// MaxV returns the highest voltage level at the node, 0 when none.
func (n *node) MaxV() float64 {
	max := 0.0
	for _, v := range n.voltages {
		if v > max {
			max = v
		}
	}
	return max
}

// MinV returns the lowest voltage level at the node, 0 when none.
func (n *node) MinV() float64 {
	if len(n.voltages) == 0 {
		return 0
	}
	min := n.voltages[0]
	for _, v := range n.voltages[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func (n *node) addConn(id string, end EndType) {
	n.conns[id] = end
}

func (n *node) String() string {
	return fmt.Sprintf("%s %s at %s, %d conns", n.typ, n.id, n.coords, len(n.conns))
}

// SubRecord is one raw substation record after property extraction.
// Voltages come from the per-level flags and are in volts.
type SubRecord struct {
	ID       string
	Name     string
	Operator string
	Lat      float64
	Lon      float64
	Voltages []float64
}

// Substation is a switchyard or transformer station. Its voltage levels
// start from the raw record but are overridden from the connected
// circuits during the merge, the raw set stays available as DBVoltages.
type Substation struct {
	node
	dbVoltages   []float64
	power        float64
	transformers []string
}

// DBVoltages returns the voltage levels the raw record declared.
func (s *Substation) DBVoltages() []float64 {
	return s.dbVoltages
}

// PowerVA returns the estimated station power.
func (s *Substation) PowerVA() float64 {
	return s.power
}

// Transformers returns the ids of the station's transformers, ordered
// low voltage side first.
func (s *Substation) Transformers() []string {
	return s.transformers
}

// subPowerVA estimates station power from the top voltage level until
// transformer data improves it.
func subPowerVA(maxV float64) float64 {
	if maxV > 200000 {
		return 600e6
	}
	return 80e6
}

// Branch is a point where line ends meet without a substation.
type Branch struct {
	node
}
