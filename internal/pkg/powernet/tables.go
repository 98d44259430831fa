/*
Package powernet holds the in-memory power network tables the analysis
side works on: element tables referencing buses by index, matching
result tables filled by a solver, and the builder that assembles the
static base network from the intermediate model CSVs.
*/
package powernet

import "fmt"

// Bus is one voltage node. ID carries the model bus id ("<node>_<kv>"),
// indices into Buses are what the other tables reference.
type Bus struct {
	ID      string
	Name    string
	VnKV    float64
	Lat     float64
	Lon     float64
	MinVmPu float64
	MaxVmPu float64
}

// Line is an AC branch with per-km parameters already folded down to a
// single equivalent circuit (Parallel counts stacked systems).
type Line struct {
	Name              string
	FromBus           int
	ToBus             int
	LengthKm          float64
	ROhmPerKm         float64
	XOhmPerKm         float64
	CNfPerKm          float64
	MaxIKA            float64
	Parallel          int
	CablesPerPhase    float64
	LineType          string
	ACDCType          string
	GeoCoords         string
	MaxLoadingPercent float64
}

// Trafo is a two-winding transformer, short-circuit parameters in
// percent on SnMVA.
type Trafo struct {
	Name       string
	HvBus      int
	LvBus      int
	SnMVA      float64
	VnHvKV     float64
	VnLvKV     float64
	VkPercent  float64
	VkrPercent float64
	PfeKW      float64
	I0Percent  float64
}

// Gen is a voltage-controlled (PV) machine. Border stations enter the
// model as gens of type "border" with symmetric power limits.
type Gen struct {
	Name           string
	Bus            int
	Type           string
	PMW            float64
	VmPu           float64
	SnMVA          float64
	MinPMW         float64
	MaxPMW         float64
	MinQMVAR       float64
	MaxQMVAR       float64
	NameplatePMW   float64
	NameplateSnMVA float64
	Controllable   bool
}

// SGen is a static (PQ) generator.
type SGen struct {
	Name           string
	Bus            int
	Type           string
	PMW            float64
	QMVAR          float64
	SnMVA          float64
	MinPMW         float64
	MaxPMW         float64
	MinQMVAR       float64
	MaxQMVAR       float64
	NameplatePMW   float64
	NameplateSnMVA float64
	Controllable   bool
}

// Load is a fixed demand. Scaling keeps the applied scenario factor so
// exports can tell nameplate from scaled values.
type Load struct {
	Name           string
	Bus            int
	PMW            float64
	QMVAR          float64
	Scaling        float64
	NameplatePMW   float64
	NameplateQMVAR float64
}

// Storage dispatches in both directions; the scenario mode narrows the
// band to charge- or discharge-only.
type Storage struct {
	Name           string
	Bus            int
	Type           string
	PMW            float64
	QMVAR          float64
	SnMVA          float64
	MaxEMWh        float64
	MinPMW         float64
	MaxPMW         float64
	MinQMVAR       float64
	MaxQMVAR       float64
	NameplatePMW   float64
	NameplateSnMVA float64
	Controllable   bool
}

// ExtGrid is a slack connection holding its bus at VmPu/VaDeg.
type ExtGrid struct {
	Name         string
	Bus          int
	Type         string
	VmPu         float64
	VaDeg        float64
	SlackWeight  float64
	MinPMW       float64
	MaxPMW       float64
	Controllable bool
}

// DCLine is an HVDC corridor with converter losses and reactive
// support limits at both terminals.
type DCLine struct {
	Name         string
	FromBus      int
	ToBus        int
	PMW          float64
	LossPercent  float64
	LossMW       float64
	VmFromPu     float64
	VmToPu       float64
	MaxPMW       float64
	MinQFromMVAR float64
	MaxQFromMVAR float64
	MinQToMVAR   float64
	MaxQToMVAR   float64
	InService    bool
}

// PolyCost prices one dispatchable element:
// cost = C0 + C1*p + C2*p^2 [EUR/h].
type PolyCost struct {
	ElementType string
	Element     int
	C0          float64
	C1          float64
	C2          float64
}

// Cost element types.
const (
	ElementGen     = "gen"
	ElementSGen    = "sgen"
	ElementStorage = "storage"
	ElementExtGrid = "ext_grid"
	ElementDCLine  = "dcline"
)

// Result tables, one row per element table row.

type ResBus struct {
	VmPu  float64
	VaDeg float64
	PMW   float64
	QMVAR float64
}

type ResLine struct {
	PFromMW        float64
	QFromMVAR      float64
	PToMW          float64
	QToMVAR        float64
	PlMW           float64
	QlMVAR         float64
	IFromKA        float64
	IToKA          float64
	LoadingPercent float64
}

type ResTrafo struct {
	PHvMW          float64
	QHvMVAR        float64
	PLvMW          float64
	QLvMVAR        float64
	PlMW           float64
	QlMVAR         float64
	LoadingPercent float64
}

type ResGen struct {
	PMW   float64
	QMVAR float64
	VmPu  float64
	VaDeg float64
}

type ResSGen struct {
	PMW   float64
	QMVAR float64
}

type ResLoad struct {
	PMW   float64
	QMVAR float64
}

type ResStorage struct {
	PMW   float64
	QMVAR float64
}

type ResExtGrid struct {
	PMW   float64
	QMVAR float64
}

type ResDCLine struct {
	PFromMW   float64
	QFromMVAR float64
	PToMW     float64
	QToMVAR   float64
	PlMW      float64
	VmFromPu  float64
	VmToPu    float64
}

// Network is the full table set. Element tables reference buses by
// position, result tables run parallel to their element tables and are
// empty until a solver fills them.
type Network struct {
	Name string

	Buses     []Bus
	Lines     []Line
	Trafos    []Trafo
	Gens      []Gen
	SGens     []SGen
	Loads     []Load
	Storages  []Storage
	ExtGrids  []ExtGrid
	DCLines   []DCLine
	PolyCosts []PolyCost

	ResBuses    []ResBus
	ResLines    []ResLine
	ResTrafos   []ResTrafo
	ResGens     []ResGen
	ResSGens    []ResSGen
	ResLoads    []ResLoad
	ResStorages []ResStorage
	ResExtGrids []ResExtGrid
	ResDCLines  []ResDCLine

	Converged    bool
	OPFConverged bool
	ResCost      float64
}

// Copy returns a deep copy with fresh backing arrays. Scenario
// parameterization works on copies only, the base net stays untouched.
func (n *Network) Copy() *Network {
	out := &Network{
		Name:         n.Name,
		Converged:    n.Converged,
		OPFConverged: n.OPFConverged,
		ResCost:      n.ResCost,
	}
	out.Buses = append([]Bus(nil), n.Buses...)
	out.Lines = append([]Line(nil), n.Lines...)
	out.Trafos = append([]Trafo(nil), n.Trafos...)
	out.Gens = append([]Gen(nil), n.Gens...)
	out.SGens = append([]SGen(nil), n.SGens...)
	out.Loads = append([]Load(nil), n.Loads...)
	out.Storages = append([]Storage(nil), n.Storages...)
	out.ExtGrids = append([]ExtGrid(nil), n.ExtGrids...)
	out.DCLines = append([]DCLine(nil), n.DCLines...)
	out.PolyCosts = append([]PolyCost(nil), n.PolyCosts...)

	out.ResBuses = append([]ResBus(nil), n.ResBuses...)
	out.ResLines = append([]ResLine(nil), n.ResLines...)
	out.ResTrafos = append([]ResTrafo(nil), n.ResTrafos...)
	out.ResGens = append([]ResGen(nil), n.ResGens...)
	out.ResSGens = append([]ResSGen(nil), n.ResSGens...)
	out.ResLoads = append([]ResLoad(nil), n.ResLoads...)
	out.ResStorages = append([]ResStorage(nil), n.ResStorages...)
	out.ResExtGrids = append([]ResExtGrid(nil), n.ResExtGrids...)
	out.ResDCLines = append([]ResDCLine(nil), n.ResDCLines...)
	return out
}

// AllocResults sizes every result table to its element table and zeroes
// it. Solvers call this before writing a solution.
func (n *Network) AllocResults() {
	n.ResBuses = make([]ResBus, len(n.Buses))
	n.ResLines = make([]ResLine, len(n.Lines))
	n.ResTrafos = make([]ResTrafo, len(n.Trafos))
	n.ResGens = make([]ResGen, len(n.Gens))
	n.ResSGens = make([]ResSGen, len(n.SGens))
	n.ResLoads = make([]ResLoad, len(n.Loads))
	n.ResStorages = make([]ResStorage, len(n.Storages))
	n.ResExtGrids = make([]ResExtGrid, len(n.ExtGrids))
	n.ResDCLines = make([]ResDCLine, len(n.DCLines))
}

// ClearResults drops any solver output and convergence marks.
func (n *Network) ClearResults() {
	n.ResBuses = nil
	n.ResLines = nil
	n.ResTrafos = nil
	n.ResGens = nil
	n.ResSGens = nil
	n.ResLoads = nil
	n.ResStorages = nil
	n.ResExtGrids = nil
	n.ResDCLines = nil
	n.Converged = false
	n.OPFConverged = false
	n.ResCost = 0
}

// BusByID resolves a model bus id to its index.
func (n *Network) BusByID(id string) (int, bool) {
	for i := range n.Buses {
		if n.Buses[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// SelectSubnet keeps the given buses, drops every element touching a
// dropped bus and remaps bus references. Result tables and poly costs
// are not carried over; both are rebuilt downstream.
func (n *Network) SelectSubnet(keep map[int]bool) *Network {
	out := &Network{Name: n.Name}
	remap := make([]int, len(n.Buses))
	for i := range remap {
		remap[i] = -1
	}
	for i, b := range n.Buses {
		if keep[i] {
			remap[i] = len(out.Buses)
			out.Buses = append(out.Buses, b)
		}
	}

	for _, l := range n.Lines {
		if remap[l.FromBus] >= 0 && remap[l.ToBus] >= 0 {
			l.FromBus = remap[l.FromBus]
			l.ToBus = remap[l.ToBus]
			out.Lines = append(out.Lines, l)
		}
	}
	for _, t := range n.Trafos {
		if remap[t.HvBus] >= 0 && remap[t.LvBus] >= 0 {
			t.HvBus = remap[t.HvBus]
			t.LvBus = remap[t.LvBus]
			out.Trafos = append(out.Trafos, t)
		}
	}
	for _, g := range n.Gens {
		if remap[g.Bus] >= 0 {
			g.Bus = remap[g.Bus]
			out.Gens = append(out.Gens, g)
		}
	}
	for _, g := range n.SGens {
		if remap[g.Bus] >= 0 {
			g.Bus = remap[g.Bus]
			out.SGens = append(out.SGens, g)
		}
	}
	for _, l := range n.Loads {
		if remap[l.Bus] >= 0 {
			l.Bus = remap[l.Bus]
			out.Loads = append(out.Loads, l)
		}
	}
	for _, s := range n.Storages {
		if remap[s.Bus] >= 0 {
			s.Bus = remap[s.Bus]
			out.Storages = append(out.Storages, s)
		}
	}
	for _, e := range n.ExtGrids {
		if remap[e.Bus] >= 0 {
			e.Bus = remap[e.Bus]
			out.ExtGrids = append(out.ExtGrids, e)
		}
	}
	for _, d := range n.DCLines {
		if remap[d.FromBus] >= 0 && remap[d.ToBus] >= 0 {
			d.FromBus = remap[d.FromBus]
			d.ToBus = remap[d.ToBus]
			out.DCLines = append(out.DCLines, d)
		}
	}
	return out
}

// Summary is the one-line shape of the net for startup logging.
func (n *Network) Summary() string {
	return fmt.Sprintf("%d buses, %d lines, %d trafos, %d gen (PV), %d sgen (PQ), %d storage, %d loads, %d ext grids, %d dclines",
		len(n.Buses), len(n.Lines), len(n.Trafos), len(n.Gens), len(n.SGens),
		len(n.Storages), len(n.Loads), len(n.ExtGrids), len(n.DCLines))
}
