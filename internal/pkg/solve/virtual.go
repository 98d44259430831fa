package solve

import (
	"fmt"
	"sort"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

// VirtualSolver is a deterministic stand-in for the external engine.
// It balances power exactly by construction: the power flow dispatches
// elements at their setpoints and the slack absorbs the mismatch, the
// OPF dispatches the merit order from the poly cost table. Voltages
// and loadings come from the override maps, or flat defaults.
type VirtualSolver struct {
	// FailPF and FailOPF fail that many attempts before converging,
	// which exercises the driver's fallback ladder.
	FailPF  int
	FailOPF int

	// BusVm and LineLoading override the flat result profile per
	// element index.
	BusVm       map[int]float64
	LineLoading map[int]float64

	// LossFraction of total load is booked as line losses. Zero means
	// the default 1%.
	LossFraction float64
}

const defaultLineLoadingPercent = 40.0

func (v *VirtualSolver) lossFraction() float64 {
	if v.LossFraction > 0 {
		return v.LossFraction
	}
	return 0.01
}

func (v *VirtualSolver) check(net *powernet.Network) error {
	if len(net.Buses) == 0 {
		return fmt.Errorf("virtual solver: empty network")
	}
	if len(net.ExtGrids) == 0 {
		return fmt.Errorf("virtual solver: no external grid holds the reference")
	}
	return nil
}

// SolvePF fills the result tables for a fixed-dispatch power flow.
func (v *VirtualSolver) SolvePF(net *powernet.Network, opt Options) (Result, error) {
	if err := v.check(net); err != nil {
		return Result{}, err
	}
	if v.FailPF > 0 {
		v.FailPF--
		net.Converged = false
		return Result{Converged: false, Algorithm: opt.Algorithm, Init: opt.Init}, nil
	}

	totalLoad := v.fillLoadsAndState(net)
	totalGen := 0.0
	for i := range net.Gens {
		net.ResGens[i] = powernet.ResGen{PMW: net.Gens[i].PMW, VmPu: v.vm(net.Gens[i].Bus)}
		totalGen += net.Gens[i].PMW
	}
	for i := range net.SGens {
		net.ResSGens[i] = powernet.ResSGen{PMW: net.SGens[i].PMW}
		totalGen += net.SGens[i].PMW
	}
	for i := range net.Storages {
		net.ResStorages[i] = powernet.ResStorage{PMW: net.Storages[i].PMW}
		totalGen += net.Storages[i].PMW
	}
	v.fillSlack(net, totalLoad+v.lossFraction()*totalLoad-totalGen)

	net.Converged = true
	return Result{Converged: true, Algorithm: opt.Algorithm, Init: opt.Init, Iterations: 3}, nil
}

// SolveOPF dispatches the merit order against the scaled demand and
// books the resulting cost.
func (v *VirtualSolver) SolveOPF(net *powernet.Network, opt Options) (Result, error) {
	if err := v.check(net); err != nil {
		return Result{}, err
	}
	if v.FailOPF > 0 {
		v.FailOPF--
		net.OPFConverged = false
		return Result{Converged: false, Algorithm: opt.Algorithm, Init: opt.Init}, nil
	}

	totalLoad := v.fillLoadsAndState(net)
	demand := totalLoad * (1 + v.lossFraction())

	units := v.dispatchable(net)
	dispatch := make([]float64, len(units))

	// Every unit starts at its lower bound, the merit order fills the
	// rest. Negative lower bounds (storage charging, imports running
	// backwards) only engage when demand runs short.
	assigned := 0.0
	for i, u := range units {
		dispatch[i] = u.minP
		if dispatch[i] < 0 {
			dispatch[i] = 0
		}
		assigned += dispatch[i]
	}
	remaining := demand - assigned

	if remaining > 0 {
		for i := range units {
			room := units[i].maxP - dispatch[i]
			if room <= 0 {
				continue
			}
			take := room
			if take > remaining {
				take = remaining
			}
			dispatch[i] += take
			remaining -= take
			if remaining <= 0 {
				break
			}
		}
	} else if remaining < 0 {
		for i := len(units) - 1; i >= 0 && remaining < 0; i-- {
			floor := units[i].minP
			give := dispatch[i] - floor
			if give <= 0 {
				continue
			}
			if give > -remaining {
				give = -remaining
			}
			dispatch[i] -= give
			remaining += give
		}
	}

	cost := 0.0
	for i, u := range units {
		p := dispatch[i]
		cost += u.c1*p + u.c2*p*p
		switch u.table {
		case powernet.ElementGen:
			net.ResGens[u.index] = powernet.ResGen{PMW: p, VmPu: v.vm(net.Gens[u.index].Bus)}
		case powernet.ElementSGen:
			net.ResSGens[u.index] = powernet.ResSGen{PMW: p}
		case powernet.ElementStorage:
			net.ResStorages[u.index] = powernet.ResStorage{PMW: p}
		}
	}

	slackP := remaining
	v.fillSlack(net, slackP)
	cost += slackCost(net, slackP)

	net.Converged = true
	net.OPFConverged = true
	net.ResCost = cost
	return Result{Converged: true, Algorithm: opt.Algorithm, Init: opt.Init, Iterations: 7}, nil
}

// fillLoadsAndState allocates results, writes voltages, loads and line
// losses, and returns total load.
func (v *VirtualSolver) fillLoadsAndState(net *powernet.Network) float64 {
	net.AllocResults()

	for i := range net.Buses {
		net.ResBuses[i] = powernet.ResBus{VmPu: v.vm(i)}
	}

	totalLoad := 0.0
	for i := range net.Loads {
		net.ResLoads[i] = powernet.ResLoad{PMW: net.Loads[i].PMW, QMVAR: net.Loads[i].QMVAR}
		totalLoad += net.Loads[i].PMW
	}

	if len(net.Lines) > 0 {
		perLine := v.lossFraction() * totalLoad / float64(len(net.Lines))
		for i := range net.Lines {
			loading := defaultLineLoadingPercent
			if l, ok := v.LineLoading[i]; ok {
				loading = l
			}
			net.ResLines[i] = powernet.ResLine{PlMW: perLine, LoadingPercent: loading}
		}
	}
	for i := range net.Trafos {
		net.ResTrafos[i] = powernet.ResTrafo{LoadingPercent: defaultLineLoadingPercent / 2}
	}
	return totalLoad
}

func (v *VirtualSolver) fillSlack(net *powernet.Network, totalP float64) {
	if len(net.ExtGrids) == 0 {
		return
	}
	share := totalP / float64(len(net.ExtGrids))
	for i := range net.ExtGrids {
		net.ResExtGrids[i] = powernet.ResExtGrid{PMW: share}
	}
}

func (v *VirtualSolver) vm(bus int) float64 {
	if vm, ok := v.BusVm[bus]; ok {
		return vm
	}
	return 1.0
}

type dispatchUnit struct {
	table string
	index int
	minP  float64
	maxP  float64
	c1    float64
	c2    float64
}

// dispatchable collects the controllable units with their cost terms,
// cheapest first. Elements without a cost row price at the 50 EUR/MWh
// default.
func (v *VirtualSolver) dispatchable(net *powernet.Network) []dispatchUnit {
	costs := make(map[string]powernet.PolyCost)
	for _, pc := range net.PolyCosts {
		costs[fmt.Sprintf("%s/%d", pc.ElementType, pc.Element)] = pc
	}
	lookup := func(table string, i int) (float64, float64) {
		if pc, ok := costs[fmt.Sprintf("%s/%d", table, i)]; ok {
			return pc.C1, pc.C2
		}
		return 50, 0
	}

	var units []dispatchUnit
	for i, g := range net.Gens {
		c1, c2 := lookup(powernet.ElementGen, i)
		units = append(units, dispatchUnit{powernet.ElementGen, i, g.MinPMW, g.MaxPMW, c1, c2})
	}
	for i, g := range net.SGens {
		c1, c2 := lookup(powernet.ElementSGen, i)
		units = append(units, dispatchUnit{powernet.ElementSGen, i, g.MinPMW, g.MaxPMW, c1, c2})
	}
	for i, st := range net.Storages {
		c1, c2 := lookup(powernet.ElementStorage, i)
		units = append(units, dispatchUnit{powernet.ElementStorage, i, st.MinPMW, st.MaxPMW, c1, c2})
	}

	sort.SliceStable(units, func(a, b int) bool {
		if units[a].c1 != units[b].c1 {
			return units[a].c1 < units[b].c1
		}
		if units[a].table != units[b].table {
			return units[a].table < units[b].table
		}
		return units[a].index < units[b].index
	})
	return units
}

func slackCost(net *powernet.Network, p float64) float64 {
	for _, pc := range net.PolyCosts {
		if pc.ElementType == powernet.ElementExtGrid {
			return pc.C1*p + pc.C2*p*p
		}
	}
	return 0
}
