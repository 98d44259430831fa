package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

// Filter accepts or rejects a decomposed item by its highest voltage.
// A nil filter keeps everything.
type Filter func(maxV float64) bool

// ConnRecord is one raw line or cable record after property extraction,
// before circuit decomposition. Multi-value tags (frequency, circuits,
// cables) stay in their raw "a;b" form, voltages are in volts and
// capacities are keyed by the voltage they apply to.
type ConnRecord struct {
	ID          string
	Type        ConnType
	Voltages    []float64
	CapacityMVA map[float64]float64
	AmpacityA   map[float64]float64
	DLR         map[float64]DLR
	Frequency   string
	Circuits    string
	Cables      string
	Operator    string
	Geometry    []geo.Coord // (lat, lon) polyline
	LengthM     float64     // 0 means derive from geometry
}

// Connection is a transmission line or cable with its decomposed
// circuits. Start and end node ids stay empty until the merge stage
// resolves endpoints against substations and branches.
type Connection struct {
	ID        string
	Type      ConnType
	Circuits  []*Circuit
	Operator  string
	Geometry  []geo.Coord
	LengthM   float64
	StartNode string
	EndNode   string
}

// StartPoint returns the first geometry point.
func (c *Connection) StartPoint() geo.Coord {
	return c.Geometry[0]
}

// EndPoint returns the last geometry point.
func (c *Connection) EndPoint() geo.Coord {
	return c.Geometry[len(c.Geometry)-1]
}

// MaxV returns the highest circuit voltage.
func (c *Connection) MaxV() float64 {
	max := 0.0
	for _, circ := range c.Circuits {
		if circ.Voltage > max {
			max = circ.Voltage
		}
	}
	return max
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s, %d circuits, %dm, %s", c.Type, c.ID, len(c.Circuits), int(c.LengthM), c.Operator)
}

// NormalizeID strips the quoting and "way/" prefixing seen in raw ids.
func NormalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) >= 2 && id[0] == '"' && id[len(id)-1] == '"' {
		id = id[1 : len(id)-1]
	}
	id = strings.TrimPrefix(id, "way/")
	return id
}

// NewConnection decomposes a raw record into circuits and assembles the
// connection. Errors carry the reason a record cannot be used; callers
// skip and count them.
func NewConnection(rec ConnRecord, keep Filter) (*Connection, error) {
	id := NormalizeID(rec.ID)

	if len(rec.Geometry) < 2 {
		return nil, fmt.Errorf("conn %s: %w", id, ErrNoGeometry)
	}

	circuits, connType, err := decompose(id, rec, keep)
	if err != nil {
		return nil, err
	}

	length := rec.LengthM
	if length <= 0 {
		length = geo.PathLengthM(rec.Geometry)
	}

	conn := &Connection{
		ID:       id,
		Type:     connType,
		Circuits: circuits,
		Operator: rec.Operator,
		Geometry: rec.Geometry,
		LengthM:  length,
	}

	if keep != nil && !keep(conn.MaxV()) {
		return nil, fmt.Errorf("conn %s: %w", id, ErrFiltered)
	}
	return conn, nil
}

// frequencyPhases maps supply frequency to conductor-group size: three
// cables per AC circuit, two for 16.7 Hz rail, one per DC pole.
var frequencyPhases = map[float64]int{
	50:    3,
	16.7:  2,
	16.67: 2,
	0:     1,
}

var listSep = regexp.MustCompile(`[;,]`)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := listSep.Split(s, -1)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad numeric tag %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad count tag %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func sumInts(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

func containsFloat(v []float64, x float64) bool {
	for _, f := range v {
		if f == x {
			return true
		}
	}
	return false
}

func indexOfFloat(v []float64, x float64) int {
	for i, f := range v {
		if f == x {
			return i
		}
	}
	return -1
}

// decompose splits a record's declared voltages, frequencies, circuit
// and cable counts into individual circuits. Grid records are noisy, so
// the split leans on conventions: three cables per AC circuit, two for
// rail, one per DC pole, round-robin voltage assignment when the record
// does not say which circuit runs at which level.
func decompose(id string, rec ConnRecord, keep Filter) ([]*Circuit, ConnType, error) {
	connType := rec.Type

	if len(rec.Voltages) == 0 {
		return nil, connType, &NoVoltageError{ID: id}
	}

	// Rail supply is often tagged along with grid voltages but circuits
	// here standardize on grid levels. Dropped before assignment.
	voltages := make([]float64, 0, len(rec.Voltages))
	for _, v := range rec.Voltages {
		if v != RailVoltage {
			voltages = append(voltages, v)
		}
	}
	if len(voltages) == 0 {
		return nil, connType, &NoVoltageError{ID: id}
	}

	hadFreqTag := rec.Frequency != ""
	frequencies, err := parseFloats(rec.Frequency)
	if err != nil {
		return nil, connType, fmt.Errorf("conn %s: %w", id, err)
	}
	if len(frequencies) == 0 {
		frequencies = []float64{50}
	}

	cablesList, err := parseInts(rec.Cables)
	if err != nil {
		return nil, connType, fmt.Errorf("conn %s: %w", id, err)
	}
	circuitsList, err := parseInts(rec.Circuits)
	if err != nil {
		return nil, connType, fmt.Errorf("conn %s: %w", id, err)
	}

	cables := sumInts(cablesList)
	circuits := sumInts(circuitsList)

	if circuits > 0 && len(cablesList) > circuits {
		return nil, connType, &CircuitCountError{ID: id, Detail: "more cable groups than circuits"}
	}

	// A frequency tag of 0 claims DC. Records where the cable count per
	// circuit is three and a grid voltage is present are mistagged AC.
	if rec.Frequency == "0" {
		div := circuits
		if div == 0 {
			div = 1
		}
		gridVoltage := false
		for _, v := range voltages {
			if v == 110000 || v == 220000 || v == 380000 {
				gridVoltage = true
				break
			}
		}
		if cables/div == 3 && gridVoltage {
			frequencies = []float64{50}
		} else if connType == ConnLine {
			connType = ConnHVDCLine
		} else {
			connType = ConnHVDCCable
		}
	}

	// A cable breakdown like "9;3" with a bare circuit total of 4 means
	// the circuits split 3/1 across the groups.
	if len(cablesList) > 1 && len(circuitsList) <= 1 {
		cand := make([]int, 0, len(cablesList))
		for _, cc := range cablesList {
			if cc%3 == 0 {
				cand = append(cand, cc/3)
			}
		}
		if sumInts(cand) >= circuits && len(cand) == len(cablesList) {
			circuitsList = cand
			circuits = sumInts(cand)
		} else if circuits == 0 {
			circuits = len(cablesList)
		}
	}

	// Assume three-phase for missing counts.
	if cables > 0 {
		if circuits == 0 {
			circuits = cables / 3
		}
	} else if circuits > 0 {
		cables = circuits * 3
	} else {
		circuits = 1
		cables = 3
	}

	if len(circuitsList) == 0 {
		circuitsList = []int{circuits}
	}

	numCircuits := circuits
	if len(voltages) > numCircuits {
		numCircuits = len(voltages)
	}
	if len(frequencies) > numCircuits {
		numCircuits = len(frequencies)
	}

	// Maps circuit index to voltage group when the record declares a
	// circuit split.
	var ci2vi []int
	if len(circuitsList) > 1 {
		for gi, cc := range circuitsList {
			for j := 0; j < cc; j++ {
				ci2vi = append(ci2vi, gi)
			}
		}
	}

	remByFreq := make(map[float64]int, len(frequencies))
	for i, f := range frequencies {
		remByFreq[f] = circuitsList[i%len(circuitsList)]
	}
	unused := append([]float64(nil), frequencies...)

	var out []*Circuit
	built := 0
	remCables := cables
	remCircuits := numCircuits
	vi, fi := 0, 0

	for remCircuits > 0 {
		f := -1.0

		switch {
		case remCables%3 == 0 && remCables%2 == 0:
			if len(circuitsList) > 1 && len(frequencies) > 1 {
				f = mostRemaining(remByFreq, frequencies)
			} else {
				flist := unused
				if len(flist) == 0 {
					flist = frequencies
				}
				f = flist[fi%len(flist)]
				fi++
			}

		case containsFloat(frequencies, 50) && (remCables%3 == 0 || remCables%2 != 0):
			f = 50

		case containsFloat(frequencies, 0):
			f = 0

		case !hadFreqTag && remCables%2 == 0:
			// Railway supply if grid power does not fit.
			f = 16.7

		case firstRailFreq(frequencies) > 0 && remCables%2 == 0:
			f = firstRailFreq(frequencies)

		default:
			// An odd leftover is usually an earth wire riding along.
			if (remCables-1)%3 == 0 {
				remCables--
				continue
			}
			return nil, connType, &PowerFrequencyError{ID: id, Frequency: rec.Frequency}
		}

		phases, ok := frequencyPhases[f]
		if !ok {
			return nil, connType, &PowerFrequencyError{ID: id, Frequency: rec.Frequency}
		}

		// The declared cable budget bounds the split. Stop once it
		// cannot cover another circuit.
		if remCables < phases {
			break
		}

		if i := indexOfFloat(unused, f); i >= 0 {
			unused = append(unused[:i], unused[i+1:]...)
		}
		if _, ok := remByFreq[f]; ok {
			remByFreq[f]--
		}

		var voltage float64
		if phases == 3 || phases == 1 {
			idx := vi
			if len(circuitsList) > 1 {
				if vi >= len(ci2vi) {
					return nil, connType, &CircuitCountError{ID: id, Detail: "circuit split shorter than circuit count"}
				}
				idx = ci2vi[vi]
			}
			voltage = voltages[idx%len(voltages)]
			vi++
		} else {
			voltage = RailVoltage
		}

		maxCpp := remCables / phases
		targetCpp := int(math.RoundToEven(float64(maxCpp) / float64(remCircuits)))
		if len(circuitsList) > 1 && len(frequencies) > 1 {
			if gi := indexOfFloat(frequencies, f); gi >= 0 && gi < len(circuitsList) && circuitsList[gi] < targetCpp {
				targetCpp = circuitsList[gi]
			}
		}
		cCables := phases
		if phases*targetCpp > cCables {
			cCables = phases * targetCpp
		}

		circ, err := NewCircuit(voltage, f, phases, cCables, StandardWire(connType, voltage))
		if err != nil {
			return nil, connType, err
		}
		built++
		if keep == nil || keep(circ.Voltage) {
			out = append(out, circ)
		}

		remCables -= cCables
		remCircuits--
	}

	if len(out) == 0 {
		if built > 0 {
			// Decomposition worked, the voltage floor dropped it.
			return nil, connType, fmt.Errorf("conn %s: %w", id, ErrFiltered)
		}
		return nil, connType, &NoValidCircuitError{ID: id}
	}

	apportionCapacity(connType, out, rec)

	return out, connType, nil
}

// mostRemaining picks the frequency with the most unassigned circuits,
// first declared wins ties.
func mostRemaining(remByFreq map[float64]int, order []float64) float64 {
	best := order[0]
	for _, f := range order[1:] {
		if remByFreq[f] > remByFreq[best] {
			best = f
		}
	}
	return best
}

// firstRailFreq returns the first declared frequency strictly between
// DC and grid frequency, or 0 if there is none.
func firstRailFreq(frequencies []float64) float64 {
	for _, f := range frequencies {
		if f > 0 && f < 50 {
			return f
		}
	}
	return 0
}

// apportionCapacity spreads rated capacity, ampacity and DLR ranges
// across the circuits running at the rated voltage, proportional to
// their system counts, and refines the conductor type to match.
func apportionCapacity(connType ConnType, circuits []*Circuit, rec ConnRecord) {
	for capV, capMVA := range rec.CapacityMVA {
		systems := 0
		for _, c := range circuits {
			if c.Voltage == capV {
				systems += c.Systems
			}
		}
		if systems == 0 {
			continue
		}
		n := float64(systems)

		capPerSystem := capMVA / n

		ampacity := rec.AmpacityA[capV]
		if ampacity == 0 && capV > 0 {
			ampacity = capMVA * 1e6 / capV
		}
		ampPerSystem := ampacity / n

		dlr := rec.DLR[capV]
		dlrPerSystem := DLR{MinA: dlr.MinA / n, MaxA: dlr.MaxA / n}

		for _, c := range circuits {
			if c.Voltage != capV {
				continue
			}
			cn := float64(c.Systems)
			c.CapacityMVA = capPerSystem * cn
			c.AmpacityA = ampPerSystem * cn
			c.DLR = DLR{MinA: dlrPerSystem.MinA * cn, MaxA: dlrPerSystem.MaxA * cn}
			c.Wire = WireForAmpacity(connType, c.Voltage, ampPerSystem)
		}
	}
}
