package model

import "math"

// WireType is a standard conductor with per-km electrical constants.
type WireType struct {
	Name      string
	ROhmPerKm float64
	XOhmPerKm float64
	CNfPerKm  float64
	MaxIkA    float64
}

// Default conductors per voltage class when no rated current is known.
var standardWires = map[string]WireType{
	"243-AL1/39-ST1A 110.0":            {"243-AL1/39-ST1A 110.0", 0.1188, 0.39, 9, 0.645},
	"490-AL1/64-ST1A 220.0":            {"490-AL1/64-ST1A 220.0", 0.059, 0.285, 10, 0.96},
	"490-AL1/64-ST1A 380.0":            {"490-AL1/64-ST1A 380.0", 0.059, 0.253, 11, 0.96},
	"N2XS(FL)2Y 1x240 RM/35 64/110 kV": {"N2XS(FL)2Y 1x240 RM/35 64/110 kV", 0.075, 0.149, 135, 0.526},
	"XLPE 1x1600 Cu 220 (rough)":       {"XLPE 1x1600 Cu 220 (rough)", 0.012, 0.12, 210, 1.3},
	"XLPE 1x2500 Cu 380 (rough)":       {"XLPE 1x2500 Cu 380 (rough)", 0.009, 0.11, 230, 2.0},
}

// Catalogs for refining the conductor once a rated current per system is
// known, ordered by ascending ampacity. Keep them sorted.
var lineWires = map[int][]WireType{
	110: {
		{"122-AL1/20-ST1A 110.0", 0.2376, 0.41, 8.5, 0.41},
		{"243-AL1/39-ST1A 110.0", 0.1188, 0.39, 9, 0.645},
		{"490-AL1/64-ST1A 110.0", 0.059, 0.37, 9.5, 0.96},
	},
	220: {
		{"490-AL1/64-ST1A 220.0", 0.059, 0.285, 10, 0.96},
		{"2x490-AL1/64-ST1A 220.0", 0.0295, 0.26, 11, 1.92},
		{"4x490-AL1/64-ST1A 220.0", 0.015, 0.24, 12, 3.84},
	},
	380: {
		{"490-AL1/64-ST1A 380.0", 0.059, 0.253, 11, 0.96},
		{"2x490-AL1/64-ST1A 380.0", 0.0295, 0.23, 12, 1.92},
		{"4x490-AL1/64-ST1A 380.0", 0.015, 0.21, 13, 3.84},
	},
}

var cableWires = map[int][]WireType{
	110: {
		{"N2XS(FL)2Y 1x240 RM/35 64/110 kV", 0.075, 0.149, 135, 0.526},
		{"N2XS(FL)2Y 1x400 RM/35 64/110 kV", 0.0575, 0.144, 155, 0.652},
		{"N2XS(FL)2Y 1x630 RM/35 64/110 kV", 0.0367, 0.135, 175, 0.809},
	},
	220: {
		{"XLPE 1x1200 Cu 220 (rough)", 0.016, 0.13, 195, 1.1},
		{"XLPE 1x1600 Cu 220 (rough)", 0.012, 0.12, 210, 1.3},
		{"XLPE 1x2500 Cu 220 (rough)", 0.0095, 0.115, 225, 1.6},
	},
	380: {
		{"XLPE 1x1600 Cu 380 (rough)", 0.012, 0.118, 215, 1.5},
		{"XLPE 1x2500 Cu 380 (rough)", 0.009, 0.11, 230, 2.0},
		{"XLPE 2x2500 Cu 380 (rough)", 0.0045, 0.1, 260, 4.0},
	},
}

// voltageClass buckets a voltage in volts into the 110/220/380 catalog
// classes.
func voltageClass(voltage float64) int {
	switch {
	case voltage < 150000:
		return 110
	case voltage < 250000:
		return 220
	default:
		return 380
	}
}

// StandardWire returns the default conductor for a connection kind and
// voltage. Only overhead AC lines get line conductors, everything else
// is treated as cable.
func StandardWire(t ConnType, voltage float64) WireType {
	var name string
	switch voltageClass(voltage) {
	case 110:
		if t == ConnLine {
			name = "243-AL1/39-ST1A 110.0"
		} else {
			name = "N2XS(FL)2Y 1x240 RM/35 64/110 kV"
		}
	case 220:
		if t == ConnLine {
			name = "490-AL1/64-ST1A 220.0"
		} else {
			name = "XLPE 1x1600 Cu 220 (rough)"
		}
	default:
		if t == ConnLine {
			name = "490-AL1/64-ST1A 380.0"
		} else {
			name = "XLPE 1x2500 Cu 380 (rough)"
		}
	}
	w := standardWires[name]
	w.MaxIkA = round3(w.MaxIkA)
	return w
}

// WireForAmpacity picks the lightest conductor in the catalog that can
// carry ampacityPerSystemA, falling back to the heaviest. The returned
// type carries the actual per-system rating, not the catalog one.
func WireForAmpacity(t ConnType, voltage, ampacityPerSystemA float64) WireType {
	catalog := cableWires
	if t == ConnLine {
		catalog = lineWires
	}
	list := catalog[voltageClass(voltage)]

	kA := ampacityPerSystemA / 1000
	w := list[len(list)-1]
	for _, cand := range list {
		if cand.MaxIkA > kA {
			w = cand
			break
		}
	}
	w.MaxIkA = round3(kA)
	return w
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
