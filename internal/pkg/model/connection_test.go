package model

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

func testGeometry() []geo.Coord {
	return []geo.Coord{geo.NewCoord(52.0, 13.0), geo.NewCoord(52.1, 13.1)}
}

func keepEHV(maxV float64) bool {
	return maxV >= 200000
}

func TestPlainLineDefaultsToOneCircuit(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:       "way/1001",
		Type:     ConnLine,
		Voltages: []float64{380000},
		Geometry: testGeometry(),
	}, nil)
	assert.NilError(t, err)

	assert.Equal(t, conn.ID, "1001")
	assert.Equal(t, len(conn.Circuits), 1)

	c := conn.Circuits[0]
	assert.Equal(t, c.Voltage, 380000.0)
	assert.Equal(t, c.Frequency, 50.0)
	assert.Equal(t, c.Phases, 3)
	assert.Equal(t, c.Cables, 3)
	assert.Equal(t, c.Systems, 1)
	assert.Equal(t, c.Wire.Name, "490-AL1/64-ST1A 380.0")
	assert.Assert(t, conn.LengthM > 0)
}

func TestCableGroupsImplyCircuitSplit(t *testing.T) {
	// Cable groups 9;3 with a bare circuit total of 4 split 3/1 across
	// the two voltage levels.
	conn, err := NewConnection(ConnRecord{
		ID:       "2002",
		Type:     ConnLine,
		Voltages: []float64{380000, 110000},
		Circuits: "4",
		Cables:   "9;3",
		Geometry: testGeometry(),
	}, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(conn.Circuits), 4)

	byVoltage := map[float64]int{}
	total := 0
	for _, c := range conn.Circuits {
		byVoltage[c.Voltage]++
		total += c.Cables
	}
	assert.Equal(t, byVoltage[380000.0], 3)
	assert.Equal(t, byVoltage[110000.0], 1)
	assert.Equal(t, total, 12)
}

func TestVoltageFilterDropsCircuits(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:       "2003",
		Type:     ConnLine,
		Voltages: []float64{380000, 110000},
		Circuits: "4",
		Cables:   "9;3",
		Geometry: testGeometry(),
	}, keepEHV)
	assert.NilError(t, err)

	assert.Equal(t, len(conn.Circuits), 3)
	for _, c := range conn.Circuits {
		assert.Equal(t, c.Voltage, 380000.0)
	}
}

func TestFilteredConnection(t *testing.T) {
	_, err := NewConnection(ConnRecord{
		ID:       "2004",
		Type:     ConnLine,
		Voltages: []float64{110000},
		Geometry: testGeometry(),
	}, keepEHV)
	assert.Assert(t, errors.Is(err, ErrFiltered))
}

func TestNoUsableVoltage(t *testing.T) {
	_, err := NewConnection(ConnRecord{
		ID:       "2005",
		Type:     ConnLine,
		Voltages: []float64{RailVoltage},
		Geometry: testGeometry(),
	}, nil)

	var nv *NoVoltageError
	assert.Assert(t, errors.As(err, &nv))
	assert.Equal(t, nv.ID, "2005")
}

func TestHVDCDetection(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:        "3001",
		Type:      ConnCable,
		Voltages:  []float64{400000},
		Frequency: "0",
		Circuits:  "1",
		Cables:    "2",
		Geometry:  testGeometry(),
	}, nil)
	assert.NilError(t, err)

	assert.Equal(t, conn.Type, ConnHVDCCable)
	assert.Equal(t, len(conn.Circuits), 1)
	c := conn.Circuits[0]
	assert.Equal(t, c.Frequency, 0.0)
	assert.Equal(t, c.Phases, 1)
	assert.Equal(t, c.Systems, 2)
}

func TestZeroFrequencyWithGridLayoutIsAC(t *testing.T) {
	// Three cables per circuit at a grid voltage is a mistagged AC line.
	conn, err := NewConnection(ConnRecord{
		ID:        "3002",
		Type:      ConnLine,
		Voltages:  []float64{220000},
		Frequency: "0",
		Circuits:  "1",
		Cables:    "3",
		Geometry:  testGeometry(),
	}, nil)
	assert.NilError(t, err)

	assert.Equal(t, conn.Type, ConnLine)
	assert.Equal(t, conn.Circuits[0].Frequency, 50.0)
	assert.Equal(t, conn.Circuits[0].Phases, 3)
}

func TestRailwaySupplyFallback(t *testing.T) {
	// Four cables fit no three-phase layout. Without a frequency tag the
	// leftover is two-phase rail supply.
	conn, err := NewConnection(ConnRecord{
		ID:       "3003",
		Type:     ConnLine,
		Voltages: []float64{110000},
		Cables:   "4",
		Geometry: testGeometry(),
	}, nil)
	assert.NilError(t, err)

	assert.Equal(t, len(conn.Circuits), 1)
	c := conn.Circuits[0]
	assert.Equal(t, c.Frequency, 16.7)
	assert.Equal(t, c.Phases, 2)
	assert.Equal(t, c.Voltage, RailVoltage)
	assert.Equal(t, c.Cables, 4)
}

func TestEarthWireDropped(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:        "3004",
		Type:      ConnLine,
		Voltages:  []float64{220000},
		Frequency: "50",
		Cables:    "7",
		Geometry:  testGeometry(),
	}, nil)
	assert.NilError(t, err)

	total := 0
	for _, c := range conn.Circuits {
		total += c.Cables
	}
	assert.Equal(t, len(conn.Circuits), 2)
	assert.Equal(t, total, 6)
}

func TestUndecidableFrequency(t *testing.T) {
	_, err := NewConnection(ConnRecord{
		ID:        "3005",
		Type:      ConnLine,
		Voltages:  []float64{220000},
		Frequency: "60",
		Cables:    "5",
		Geometry:  testGeometry(),
	}, nil)

	var pf *PowerFrequencyError
	assert.Assert(t, errors.As(err, &pf))
}

func TestCableBudgetBoundsSplit(t *testing.T) {
	// Three declared circuits but only three cables. The split stops
	// when the budget cannot cover another circuit.
	conn, err := NewConnection(ConnRecord{
		ID:       "3006",
		Type:     ConnLine,
		Voltages: []float64{110000},
		Circuits: "3",
		Cables:   "3",
		Geometry: testGeometry(),
	}, nil)
	assert.NilError(t, err)

	total := 0
	for _, c := range conn.Circuits {
		total += c.Cables
	}
	assert.Assert(t, total <= 3, "emitted %d cables for 3 declared", total)
}

func TestCapacityApportionment(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:          "4001",
		Type:        ConnLine,
		Voltages:    []float64{380000},
		Circuits:    "2",
		Cables:      "6",
		CapacityMVA: map[float64]float64{380000: 3000},
		Geometry:    testGeometry(),
	}, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(conn.Circuits), 2)

	for _, c := range conn.Circuits {
		assert.Equal(t, c.CapacityMVA, 1500.0)
		// Ampacity derives from capacity when the record gives none.
		assert.Assert(t, c.AmpacityA > 3900 && c.AmpacityA < 4000, "got %v", c.AmpacityA)
		// The conductor refines to one that can carry the rating.
		assert.Equal(t, c.Wire.Name, "4x490-AL1/64-ST1A 380.0")
		assert.Equal(t, c.Wire.MaxIkA, 3.947)
	}
}

func TestDLRSplitsAcrossSystems(t *testing.T) {
	conn, err := NewConnection(ConnRecord{
		ID:          "4002",
		Type:        ConnLine,
		Voltages:    []float64{220000},
		Circuits:    "2",
		Cables:      "6",
		CapacityMVA: map[float64]float64{220000: 1000},
		AmpacityA:   map[float64]float64{220000: 2000},
		DLR:         map[float64]DLR{220000: {MinA: 1800, MaxA: 2600}},
		Geometry:    testGeometry(),
	}, nil)
	assert.NilError(t, err)

	for _, c := range conn.Circuits {
		assert.Equal(t, c.AmpacityA, 1000.0)
		assert.Equal(t, c.DLR, DLR{MinA: 900, MaxA: 1300})
	}
}

func TestMoreCableGroupsThanCircuits(t *testing.T) {
	_, err := NewConnection(ConnRecord{
		ID:       "4003",
		Type:     ConnLine,
		Voltages: []float64{380000},
		Circuits: "1",
		Cables:   "3;3",
		Geometry: testGeometry(),
	}, nil)

	var cc *CircuitCountError
	assert.Assert(t, errors.As(err, &cc))
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, NormalizeID("way/1234"), "1234")
	assert.Equal(t, NormalizeID(`"way/99999111"`), "99999111")
	assert.Equal(t, NormalizeID("67b04fd7"), "67b04fd7")
}

func TestNoGeometry(t *testing.T) {
	_, err := NewConnection(ConnRecord{
		ID:       "4004",
		Type:     ConnLine,
		Voltages: []float64{380000},
	}, nil)
	assert.Assert(t, errors.Is(err, ErrNoGeometry))
}
