package powernet

import (
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Preprocess folds the mined tables into builder form: reactive demand
// from the fixed power factor, unit generators merged per station and
// fuel, bundled conductors folded into single equivalent circuits with
// a parallel count, and standard short-circuit parameters stamped on
// every transformer. Mutates md in place.
func Preprocess(md *ModelData) {
	tanPhi := math.Tan(math.Acos(PowerFactor))
	for i := range md.Loads {
		md.Loads[i].QMVAR = md.Loads[i].PMW * tanPhi
	}

	md.Generators = mergeGenerators(md.Generators)
	md.Connections = foldConnections(md.Connections)

	for i := range md.Transformers {
		md.Transformers[i].VkPercent = TrafoVkPercent
		md.Transformers[i].VkrPercent = TrafoVkrPercent
		md.Transformers[i].PfeKW = TrafoPfeKW
		md.Transformers[i].I0Percent = TrafoI0Percent
	}

	log.Printf("[PowerNet] preprocessed: %d generator blocks, %d circuits",
		len(md.Generators), len(md.Connections))
}

// mergeGenerators sums unit records per (bus, fuel). Voltage setpoints
// average, the commissioning year of the first unit survives.
func mergeGenerators(gens []GenRecord) []GenRecord {
	type key struct{ bus, typ string }
	type agg struct {
		p, sn, vmSum float64
		count        int
		first        GenRecord
	}

	groups := make(map[key]*agg)
	for _, g := range gens {
		k := key{g.BusID, g.Type}
		a, ok := groups[k]
		if !ok {
			a = &agg{first: g}
			groups[k] = a
		}
		a.p += g.PMW
		a.sn += g.SnMVA
		a.vmSum += g.VmPu
		a.count++
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bus != keys[j].bus {
			return keys[i].bus < keys[j].bus
		}
		return keys[i].typ < keys[j].typ
	})

	out := make([]GenRecord, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		part := "gen"
		if fields := strings.Split(a.first.Name, "_"); len(fields) > 1 {
			part = fields[1]
		}
		out = append(out, GenRecord{
			BusID:    k.bus,
			Type:     k.typ,
			Name:     "merged_" + part + "_" + strconv.Itoa(a.count) + "units",
			PMW:      a.p,
			SnMVA:    a.sn,
			VmPu:     a.vmSum / float64(a.count),
			CommYear: a.first.CommYear,
		})
	}
	return out
}

// foldConnections divides per-km impedance by the conductor bundle
// count, scales charging and ampacity up by it, then collapses
// identical circuits between the same terminals into one row with a
// summed parallel count.
func foldConnections(conns []ConnRecord) []ConnRecord {
	adjusted := make([]ConnRecord, len(conns))
	for i, c := range conns {
		if c.CablesPerPhase <= 0 {
			c.CablesPerPhase = 1
		}
		c.ROhmPerKm /= c.CablesPerPhase
		c.XOhmPerKm /= c.CablesPerPhase
		c.CNfPerKm *= c.CablesPerPhase
		c.MaxIKA *= c.CablesPerPhase
		c.Parallel = 1
		adjusted[i] = c
	}

	byKey := make(map[string]int)
	var out []ConnRecord
	for _, c := range adjusted {
		k := connGroupKey(c)
		if i, ok := byKey[k]; ok {
			out[i].Parallel += c.Parallel
			continue
		}
		byKey[k] = len(out)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FromBusID != b.FromBusID {
			return a.FromBusID < b.FromBusID
		}
		if a.ToBusID != b.ToBusID {
			return a.ToBusID < b.ToBusID
		}
		if a.LengthKm != b.LengthKm {
			return a.LengthKm < b.LengthKm
		}
		if a.ROhmPerKm != b.ROhmPerKm {
			return a.ROhmPerKm < b.ROhmPerKm
		}
		if a.XOhmPerKm != b.XOhmPerKm {
			return a.XOhmPerKm < b.XOhmPerKm
		}
		if a.MaxIKA != b.MaxIKA {
			return a.MaxIKA < b.MaxIKA
		}
		return a.LineType < b.LineType
	})
	return out
}

func connGroupKey(c ConnRecord) string {
	fields := []string{
		c.FromBusID, c.ToBusID,
		strconv.FormatFloat(c.LengthKm, 'g', -1, 64),
		strconv.FormatFloat(c.ROhmPerKm, 'g', -1, 64),
		strconv.FormatFloat(c.XOhmPerKm, 'g', -1, 64),
		strconv.FormatFloat(c.CNfPerKm, 'g', -1, 64),
		strconv.FormatFloat(c.MaxIKA, 'g', -1, 64),
		c.LineType, c.ACDCType,
	}
	return strings.Join(fields, "\x00")
}
