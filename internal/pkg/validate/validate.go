/*
Package validate runs the pre-solve checks over a power network and
repairs what it can: mistagged bus voltages, stray islands, degenerate
branches and reference conflicts. Repairs mutate the network in place,
the summary records every correction.
*/
package validate

import (
	"fmt"
	"log"
	"sort"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

// Noise floor for total line impedance. Below it the admittance
// matrix goes singular.
const impedanceFloorOhm = 1e-6

// Band the generation/load ratio must fall into before a run is worth
// solving.
const (
	minBalanceRatio = 0.90
	maxBalanceRatio = 1.20
)

const (
	reasonSameVoltage = "same_voltage_level"
	reasonZeroRating  = "zero_rated_power"
	reasonOnExtGrid   = "on_external_grid_bus"
)

// SkippedLine records a line dropped for near-zero impedance.
type SkippedLine struct {
	Index     int
	Name      string
	RTotalOhm float64
	XTotalOhm float64
}

// SkippedTrafo records a transformer dropped as degenerate.
type SkippedTrafo struct {
	Index     int
	Name      string
	VoltageKV float64
	Reason    string
}

// SkippedGen records a generator dropped over a reference conflict.
type SkippedGen struct {
	Index  int
	Name   string
	Bus    int
	Reason string
}

// Skipped collects every element the repair removed.
type Skipped struct {
	Lines  []SkippedLine
	Trafos []SkippedTrafo
	Gens   []SkippedGen
}

// Stats counts the elements that survived.
type Stats struct {
	Buses    int
	Lines    int
	Trafos   int
	PVGens   int
	PQGens   int
	Storages int
	Loads    int
	ExtGrids int
	DCLines  int
}

// Summary is the full repair report.
type Summary struct {
	Valid   bool
	Issues  []string
	Skipped Skipped
	Stats   Stats
}

// Repair runs every check in order and mutates net in place. The flag
// is false only when the network came out structurally unsolvable:
// recoverable findings land in the issue list instead.
func Repair(net *powernet.Network) (bool, Summary) {
	c := &checker{net: net}

	c.reconcileVoltages()
	c.removeIslands()
	c.dropZeroImpedanceLines()
	c.dropDegenerateTrafos()
	c.resolveReferenceConflicts()
	c.checkBalance()

	valid := true
	if len(net.Buses) == 0 {
		c.issue("no buses remain after repair")
		valid = false
	}
	if len(net.ExtGrids) == 0 {
		c.issue("no external grid remains, nothing holds the reference")
		valid = false
	}

	if len(c.issues) == 0 {
		log.Println("[Validate] all checks passed")
	} else {
		log.Printf("[Validate] %d issues handled", len(c.issues))
	}

	return valid, Summary{
		Valid:   valid,
		Issues:  c.issues,
		Skipped: c.skipped,
		Stats: Stats{
			Buses:    len(net.Buses),
			Lines:    len(net.Lines),
			Trafos:   len(net.Trafos),
			PVGens:   len(net.Gens),
			PQGens:   len(net.SGens),
			Storages: len(net.Storages),
			Loads:    len(net.Loads),
			ExtGrids: len(net.ExtGrids),
			DCLines:  len(net.DCLines),
		},
	}
}

type checker struct {
	net     *powernet.Network
	issues  []string
	skipped Skipped
}

func (c *checker) issue(format string, args ...interface{}) {
	c.issues = append(c.issues, fmt.Sprintf(format, args...))
}

// reconcileVoltages trusts the circuits over the bus tags: a bus whose
// tagged voltage disagrees with the strict majority of its line
// neighbors takes the majority voltage. Votes count against the tags
// as loaded, the pass is order independent.
func (c *checker) reconcileVoltages() {
	net := c.net
	if len(net.Lines) == 0 {
		return
	}

	orig := make([]float64, len(net.Buses))
	for i := range net.Buses {
		orig[i] = net.Buses[i].VnKV
	}
	votes := make([]map[float64]int, len(net.Buses))
	vote := func(bus int, vn float64) {
		if votes[bus] == nil {
			votes[bus] = make(map[float64]int)
		}
		votes[bus][vn]++
	}
	for _, l := range net.Lines {
		vote(l.FromBus, orig[l.ToBus])
		vote(l.ToBus, orig[l.FromBus])
	}

	changed := 0
	for i := range net.Buses {
		best, count, total := majority(votes[i])
		if total == 0 || best == orig[i] {
			continue
		}
		// A lone incident line is not evidence enough to override
		// the tag.
		if count >= 2 && count*2 > total {
			net.Buses[i].VnKV = best
			changed++
		}
	}
	if changed > 0 {
		c.issue("Reconciled %d bus voltages from incident lines", changed)
	}
}

// majority returns the most voted voltage, its count and the total
// vote count. Ties resolve to the lower voltage.
func majority(votes map[float64]int) (float64, int, int) {
	var vns []float64
	total := 0
	for vn, n := range votes {
		vns = append(vns, vn)
		total += n
	}
	sort.Float64s(vns)

	best, count := 0.0, 0
	for _, vn := range vns {
		if votes[vn] > count {
			best, count = vn, votes[vn]
		}
	}
	return best, count, total
}

// removeIslands keeps the largest connected component. Everything on a
// minor island drops, dependent elements included.
func (c *checker) removeIslands() {
	net := c.net
	if len(net.Buses) == 0 {
		return
	}

	comp := powernet.Components(net)
	sizes := make(map[int]int)
	for _, root := range comp {
		sizes[root]++
	}
	if len(sizes) <= 1 {
		return
	}

	main, mainSize := 0, 0
	for root, size := range sizes {
		if size > mainSize || (size == mainSize && root < main) {
			main, mainSize = root, size
		}
	}
	keep := make(map[int]bool, mainSize)
	for i, root := range comp {
		if root == main {
			keep[i] = true
		}
	}

	removed := len(net.Buses) - mainSize
	*net = *net.SelectSubnet(keep)
	c.issue("Removed %d islands (%d buses)", len(sizes)-1, removed)
}

func (c *checker) dropZeroImpedanceLines() {
	net := c.net
	if len(net.Lines) == 0 {
		return
	}

	kept := net.Lines[:0]
	dropped := 0
	for i := range net.Lines {
		l := net.Lines[i]
		rTot := l.ROhmPerKm * l.LengthKm
		xTot := l.XOhmPerKm * l.LengthKm
		if rTot < impedanceFloorOhm && xTot < impedanceFloorOhm {
			c.skipped.Lines = append(c.skipped.Lines, SkippedLine{
				Index: i, Name: l.Name, RTotalOhm: rTot, XTotalOhm: xTot,
			})
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	net.Lines = kept
	if dropped > 0 {
		c.issue("Skipped %d lines with near-zero impedance", dropped)
	}
}

// dropDegenerateTrafos removes transformers whose sides resolved to
// the same voltage, a state reconciliation can produce, and zero-rated
// units. Voltages come from the bus table, not the nameplate.
func (c *checker) dropDegenerateTrafos() {
	net := c.net
	if len(net.Trafos) == 0 {
		return
	}

	kept := net.Trafos[:0]
	sameV, zeroSn := 0, 0
	for i := range net.Trafos {
		tr := net.Trafos[i]
		hv := net.Buses[tr.HvBus].VnKV
		lv := net.Buses[tr.LvBus].VnKV
		if hv != lv && tr.SnMVA != 0 {
			kept = append(kept, tr)
			continue
		}
		if hv == lv {
			sameV++
			c.skipped.Trafos = append(c.skipped.Trafos, SkippedTrafo{
				Index: i, Name: tr.Name, VoltageKV: hv, Reason: reasonSameVoltage,
			})
		} else {
			c.skipped.Trafos = append(c.skipped.Trafos, SkippedTrafo{
				Index: i, Name: tr.Name, Reason: reasonZeroRating,
			})
		}
		if tr.SnMVA == 0 {
			zeroSn++
		}
	}
	net.Trafos = kept
	if sameV > 0 {
		c.issue("Skipped %d transformers (same voltage)", sameV)
	}
	if zeroSn > 0 {
		c.issue("Skipped %d transformers (zero rating)", zeroSn)
	}
}

// resolveReferenceConflicts enforces one reference per bus: duplicate
// external grids collapse to the first, voltage-controlled generators
// leave slack buses, conflicting setpoints on one bus average out.
func (c *checker) resolveReferenceConflicts() {
	net := c.net

	seen := make(map[int]bool)
	dupBuses := make(map[int]bool)
	keptExt := net.ExtGrids[:0]
	for i := range net.ExtGrids {
		eg := net.ExtGrids[i]
		if seen[eg.Bus] {
			dupBuses[eg.Bus] = true
			continue
		}
		seen[eg.Bus] = true
		keptExt = append(keptExt, eg)
	}
	net.ExtGrids = keptExt
	if len(dupBuses) > 0 {
		c.issue("%d buses have duplicate external grids", len(dupBuses))
	}

	if len(net.Gens) > 0 {
		conflictBuses := make(map[int]bool)
		keptGens := net.Gens[:0]
		for i := range net.Gens {
			g := net.Gens[i]
			if seen[g.Bus] {
				conflictBuses[g.Bus] = true
				c.skipped.Gens = append(c.skipped.Gens, SkippedGen{
					Index: i, Name: g.Name, Bus: g.Bus, Reason: reasonOnExtGrid,
				})
				continue
			}
			keptGens = append(keptGens, g)
		}
		net.Gens = keptGens
		if len(conflictBuses) > 0 {
			c.issue("Removed %d PV generators (on ext_grid buses)", len(conflictBuses))
		}
	}

	if len(net.Gens) > 0 {
		byBus := make(map[int][]int)
		for i, g := range net.Gens {
			byBus[g.Bus] = append(byBus[g.Bus], i)
		}
		conflicted := 0
		for _, idxs := range byBus {
			if len(idxs) < 2 {
				continue
			}
			distinct := false
			sum := 0.0
			for _, i := range idxs {
				if net.Gens[i].VmPu != net.Gens[idxs[0]].VmPu {
					distinct = true
				}
				sum += net.Gens[i].VmPu
			}
			if !distinct {
				continue
			}
			mean := sum / float64(len(idxs))
			for _, i := range idxs {
				net.Gens[i].VmPu = mean
			}
			conflicted++
		}
		if conflicted > 0 {
			c.issue("%d buses had conflicting voltage setpoints (resolved)", conflicted)
		}
	}
}

// checkBalance flags a generation/load ratio outside the plausible
// band. Flag only, dispatch limits are scenario business.
func (c *checker) checkBalance() {
	net := c.net

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

	if totalLoad == 0 {
		c.issue("Total load is zero")
		return
	}
	ratio := totalGen / totalLoad
	if ratio < minBalanceRatio || ratio > maxBalanceRatio {
		c.issue("Generation at %.1f%% of load", ratio*100)
	}
}
