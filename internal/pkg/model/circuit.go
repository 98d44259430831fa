package model

import "fmt"

// DLR is a dynamic line rating range in amperes.
type DLR struct {
	MinA float64
	MaxA float64
}

// Circuit is one electrical circuit carried by a connection. A circuit
// bundles one or more parallel three-phase (or two-phase rail, or DC)
// systems at a single voltage and frequency.
type Circuit struct {
	Voltage   float64 // volts
	Frequency float64 // Hz, 0 for DC
	Phases    int
	Cables    int
	Systems   int

	// Set during capacity apportionment, zero when the record gave none.
	CapacityMVA float64
	AmpacityA   float64
	DLR         DLR

	Wire WireType
}

// NewCircuit builds a circuit and derives its system count. The cable
// count must divide evenly into phases.
func NewCircuit(voltage, frequency float64, phases, cables int, wire WireType) (*Circuit, error) {
	if phases < 1 || cables%phases != 0 {
		return nil, &CablesPerPhaseError{Cables: cables, Phases: phases}
	}
	return &Circuit{
		Voltage:   voltage,
		Frequency: frequency,
		Phases:    phases,
		Cables:    cables,
		Systems:   cables / phases,
		Wire:      wire,
	}, nil
}

// MaxV returns the circuit voltage.
func (c *Circuit) MaxV() float64 {
	return c.Voltage
}

func (c *Circuit) String() string {
	return fmt.Sprintf("%gkV %d-phase, %d cables, %d systems, %gMVA, wire %s",
		c.Voltage/1000, c.Phases, c.Cables, c.Systems, c.CapacityMVA, c.Wire.Name)
}
