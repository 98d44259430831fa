package model

import "fmt"

// Generator is the aggregated generation of one energy source at one
// substation and commissioning year. Unit-level records get summed into
// these during ingest, the grid model never sees single turbines.
type Generator struct {
	ID       string
	Sub      string
	Type     string
	PowerW   float64
	CommYear int
	Name     string

	// Voltage is the level the block feeds into, picked from the
	// substation's levels by block size.
	Voltage float64
}

// GeneratorID builds the canonical id for an aggregated block.
func GeneratorID(subID, genType string, commYear int) string {
	return fmt.Sprintf("gen_%s_%s_%d", subID, genType, commYear)
}

// genVoltage picks the feed-in level: blocks over 100 MW connect at
// 220 kV or the station's top level, smaller ones at 110 kV or the
// station's bottom level.
func genVoltage(powerW float64, sub Node) float64 {
	if powerW > 100e6 {
		for _, v := range sub.Voltages() {
			if v == 220000 {
				return v
			}
		}
		return sub.MaxV()
	}
	for _, v := range sub.Voltages() {
		if v == 110000 {
			return v
		}
	}
	return sub.MinV()
}
