package study

import (
	"fmt"
	"sort"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"github.com/ohmwork/gridcore/internal/pkg/scenario"
	"gonum.org/v1/gonum/stat"
)

// VoltageLevelStats summarizes the solved voltage profile at one
// nominal level.
type VoltageLevelStats struct {
	VnKV  float64
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// VoltageStats groups the bus results by nominal voltage.
func VoltageStats(net *powernet.Network) []VoltageLevelStats {
	byLevel := make(map[float64][]float64)
	for i := range net.ResBuses {
		vn := net.Buses[i].VnKV
		byLevel[vn] = append(byLevel[vn], net.ResBuses[i].VmPu)
	}

	levels := make([]float64, 0, len(byLevel))
	for vn := range byLevel {
		levels = append(levels, vn)
	}
	sort.Float64s(levels)

	out := make([]VoltageLevelStats, 0, len(levels))
	for _, vn := range levels {
		vms := byLevel[vn]
		s := VoltageLevelStats{VnKV: vn, Count: len(vms), Min: vms[0], Max: vms[0]}
		for _, vm := range vms {
			if vm < s.Min {
				s.Min = vm
			}
			if vm > s.Max {
				s.Max = vm
			}
		}
		s.Mean = stat.Mean(vms, nil)
		out = append(out, s)
	}
	return out
}

// LoadingQuantile returns the q-quantile of line loadings in percent.
func LoadingQuantile(net *powernet.Network, q float64) float64 {
	if len(net.ResLines) == 0 {
		return 0
	}
	loadings := make([]float64, len(net.ResLines))
	for i := range net.ResLines {
		loadings[i] = net.ResLines[i].LoadingPercent
	}
	sort.Float64s(loadings)
	return stat.Quantile(q, stat.Empirical, loadings, nil)
}

const worstCaseTable = 10

// Issues walks a solved network for voltage violations and thermal
// overloads. Worst offenders are named, the rest counted.
func Issues(net *powernet.Network) []string {
	var out []string

	type busV struct {
		idx int
		vm  float64
	}
	var low, high []busV
	for i := range net.ResBuses {
		vm := net.ResBuses[i].VmPu
		if vm < scenario.BusMinVmPu {
			low = append(low, busV{i, vm})
		} else if vm > scenario.BusMaxVmPu {
			high = append(high, busV{i, vm})
		}
	}
	if len(low) > 0 {
		sort.Slice(low, func(a, b int) bool { return low[a].vm < low[b].vm })
		out = append(out, fmt.Sprintf("%d buses below %.2f pu", len(low), scenario.BusMinVmPu))
		for i, b := range low {
			if i == worstCaseTable {
				break
			}
			out = append(out, fmt.Sprintf("  low voltage %s (%.0f kV): %.4f pu",
				net.Buses[b.idx].Name, net.Buses[b.idx].VnKV, b.vm))
		}
	}
	if len(high) > 0 {
		sort.Slice(high, func(a, b int) bool { return high[a].vm > high[b].vm })
		out = append(out, fmt.Sprintf("%d buses above %.2f pu", len(high), scenario.BusMaxVmPu))
		for i, b := range high {
			if i == worstCaseTable {
				break
			}
			out = append(out, fmt.Sprintf("  high voltage %s (%.0f kV): %.4f pu",
				net.Buses[b.idx].Name, net.Buses[b.idx].VnKV, b.vm))
		}
	}

	type overload struct {
		name    string
		loading float64
	}
	var lines []overload
	for i := range net.ResLines {
		if net.ResLines[i].LoadingPercent > 100 {
			lines = append(lines, overload{net.Lines[i].Name, net.ResLines[i].LoadingPercent})
		}
	}
	if len(lines) > 0 {
		sort.Slice(lines, func(a, b int) bool { return lines[a].loading > lines[b].loading })
		out = append(out, fmt.Sprintf("%d lines overloaded", len(lines)))
		for i, l := range lines {
			if i == worstCaseTable {
				break
			}
			out = append(out, fmt.Sprintf("  line overload %s: %.1f%%", l.name, l.loading))
		}
	}

	var trafos []overload
	for i := range net.ResTrafos {
		if net.ResTrafos[i].LoadingPercent > 100 {
			trafos = append(trafos, overload{net.Trafos[i].Name, net.ResTrafos[i].LoadingPercent})
		}
	}
	if len(trafos) > 0 {
		sort.Slice(trafos, func(a, b int) bool { return trafos[a].loading > trafos[b].loading })
		out = append(out, fmt.Sprintf("%d transformers overloaded", len(trafos)))
		for i, tr := range trafos {
			if i == worstCaseTable {
				break
			}
			out = append(out, fmt.Sprintf("  trafo overload %s: %.1f%%", tr.name, tr.loading))
		}
	}
	return out
}

// Diagnose explains a non-converged run: power balance, topology
// shape and voltage control density, the three usual suspects.
func Diagnose(net *powernet.Network) []string {
	var out []string

	totalGen := 0.0
	for _, g := range net.Gens {
		totalGen += g.PMW
	}
	for _, g := range net.SGens {
		totalGen += g.PMW
	}
	totalLoad := 0.0
	for _, l := range net.Loads {
		totalLoad += l.PMW
	}

	ratio := 0.0
	if totalLoad > 0 {
		ratio = totalGen / totalLoad
	}
	out = append(out, fmt.Sprintf("power balance: gen %.1f MW, load %.1f MW, ratio %.3f", totalGen, totalLoad, ratio))
	if ratio < 0.90 {
		out = append(out, "generation significantly below load")
	} else if ratio > 1.20 {
		out = append(out, "generation significantly above load, expect voltage issues")
	}

	levels := make(map[float64]bool)
	for _, b := range net.Buses {
		levels[b.VnKV] = true
	}
	sorted := make([]float64, 0, len(levels))
	for vn := range levels {
		sorted = append(sorted, vn)
	}
	sort.Float64s(sorted)
	out = append(out, fmt.Sprintf("topology: %d buses, %d lines, %d trafos, voltage levels %v",
		len(net.Buses), len(net.Lines), len(net.Trafos), sorted))

	out = append(out, fmt.Sprintf("voltage control: %d ext grids, %d PV gens, %d PQ gens",
		len(net.ExtGrids), len(net.Gens), len(net.SGens)))
	if len(net.Buses) > 0 {
		density := float64(len(net.Gens)) / float64(len(net.Buses))
		if density > 0.25 {
			out = append(out, fmt.Sprintf("high PV density %.3f, voltage control conflicts likely", density))
		}
	}
	return out
}
