// Package model holds the in-memory grid model: connections decomposed
// into electrical circuits, substations and branch points joining them,
// and the transformers, generators and loads hanging off substations.
// A Registry owns every element and the spatial indexes over them.
package model

// NodeType discriminates the vertex kinds of the grid graph.
type NodeType int

const (
	NodeUndef NodeType = iota
	NodeBranch
	NodeSubstation
)

func (t NodeType) String() string {
	switch t {
	case NodeBranch:
		return "branch"
	case NodeSubstation:
		return "substation"
	}
	return "undef"
}

// ConnType discriminates overhead lines from underground cables and
// their HVDC variants.
type ConnType int

const (
	ConnUndef ConnType = iota
	ConnLine
	ConnCable
	ConnHVDCLine
	ConnHVDCCable
)

func (t ConnType) String() string {
	switch t {
	case ConnLine:
		return "line"
	case ConnCable:
		return "cable"
	case ConnHVDCLine:
		return "hvdc_line"
	case ConnHVDCCable:
		return "hvdc_cable"
	}
	return "undef"
}

// EndType marks which end of a connection a point belongs to.
type EndType int

const (
	EndUndef EndType = iota
	EndStart
	EndEnd
)

func (t EndType) String() string {
	switch t {
	case EndStart:
		return "start"
	case EndEnd:
		return "end"
	}
	return "undef"
}

// RailVoltage is the 16.7 Hz railway supply level. Records standardize
// on grid voltages, so it is dropped from voltage tags and only assigned
// to decomposed two-phase circuits.
const RailVoltage = 15000.0
