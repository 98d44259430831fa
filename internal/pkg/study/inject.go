package study

import (
	"fmt"
	"log"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

const (
	virtualGenName = "VIRTUAL_INJECTION_TEST"
	virtualGenType = "virtual_injection"

	// injectionCapMW bounds the probe; a result at the cap means the
	// grid, not the probe, was never the constraint.
	injectionCapMW = 5000.0

	// injectionCostC1 prices virtual energy far below everything else,
	// so the optimizer pushes the injection as high as the grid allows.
	injectionCostC1 = -1000.0

	injectionMinVnKV   = 110.0
	criticalLoadingPct = 80.0
)

// InjectionResult reports how much generation the grid can absorb at
// one connection point.
type InjectionResult struct {
	BusName        string  `json:"busName"`
	BusVnKV        float64 `json:"busVnKV"`
	DistanceKm     float64 `json:"distanceKm"`
	CapacityMW     float64 `json:"capacityMW"`
	Converged      bool    `json:"converged"`
	LimitingFactor string  `json:"limitingFactor"`
}

// RunInjection probes the hosting capacity at the given coordinate,
// on top of an already solved scenario: a cheap virtual generator is
// attached to the nearest transmission bus and the optimizer reports
// how far it can push before the surrounding grid binds.
func (e *Engine) RunInjection(lat, lon float64, scenarioName string) (InjectionResult, error) {
	solved, ok := e.solved[scenarioName]
	if !ok {
		return InjectionResult{}, fmt.Errorf("injection needs a converged run of %q first", scenarioName)
	}

	busIdx, distKm, err := nearestTransmissionBus(solved, lat, lon)
	if err != nil {
		return InjectionResult{}, err
	}
	bus := solved.Buses[busIdx]
	log.Printf("[Study] injection probe at %s (%.0f kV), %.1f km from (%.4f, %.4f)",
		bus.Name, bus.VnKV, distKm, lat, lon)

	net := solved.Copy()
	attachVirtualGen(net, busIdx)
	constrainAroundLoaded(net, busIdx)

	result := InjectionResult{BusName: bus.Name, BusVnKV: bus.VnKV, DistanceKm: distKm}

	if _, err := e.driver.RunOPF(net, e.config.WarmStart); err != nil {
		result.LimitingFactor = "no convergence with injection"
		return result, nil
	}

	result.Converged = true
	result.CapacityMW = net.ResGens[len(net.ResGens)-1].PMW
	result.LimitingFactor = limitingFactor(net, result.CapacityMW)

	log.Printf("[Study] hosting capacity at %s: %.0f MW (%s)",
		bus.Name, result.CapacityMW, result.LimitingFactor)
	return result, nil
}

// nearestTransmissionBus finds the closest bus at transmission level;
// lower levels cannot take utility-scale injections.
func nearestTransmissionBus(net *powernet.Network, lat, lon float64) (int, float64, error) {
	target := geo.NewCoord(lat, lon)
	best := -1
	bestDeg := 0.0
	for i, b := range net.Buses {
		if b.VnKV < injectionMinVnKV {
			continue
		}
		d := target.DegreeDistance(geo.NewCoord(b.Lat, b.Lon))
		if best < 0 || d < bestDeg {
			best = i
			bestDeg = d
		}
	}
	if best < 0 {
		return 0, 0, fmt.Errorf("no bus at %.0f kV or above", injectionMinVnKV)
	}
	return best, bestDeg * 111.0, nil
}

// attachVirtualGen appends the probe generator and its cost row.
func attachVirtualGen(net *powernet.Network, bus int) {
	net.Gens = append(net.Gens, powernet.Gen{
		Name:         virtualGenName,
		Bus:          bus,
		Type:         virtualGenType,
		VmPu:         1.0,
		MinPMW:       0,
		MaxPMW:       injectionCapMW,
		Controllable: true,
	})
	net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
		ElementType: powernet.ElementGen,
		Element:     len(net.Gens) - 1,
		C1:          injectionCostC1,
	})
}

// constrainAroundLoaded tightens the loading limits near the probe:
// already critical lines hold their limit, lines touching the probe
// bus get a little headroom over today's loading so the optimizer can
// use them without license to overload them.
func constrainAroundLoaded(net *powernet.Network, bus int) {
	for i := range net.Lines {
		loading := 0.0
		if i < len(net.ResLines) {
			loading = net.ResLines[i].LoadingPercent
		}
		switch {
		case loading > criticalLoadingPct:
			net.Lines[i].MaxLoadingPercent = 100
		case net.Lines[i].FromBus == bus || net.Lines[i].ToBus == bus:
			limit := loading + 20
			if limit < 100 {
				limit = 100
			}
			net.Lines[i].MaxLoadingPercent = limit
		}
	}
}

func limitingFactor(net *powernet.Network, capacity float64) string {
	if capacity >= injectionCapMW-10 {
		return "probe cap reached, grid not binding"
	}
	for i := range net.ResLines {
		limit := net.Lines[i].MaxLoadingPercent
		if limit <= 0 {
			limit = 100
		}
		if net.ResLines[i].LoadingPercent >= limit*0.98 {
			return fmt.Sprintf("line %s at %.1f%% of its limit",
				net.Lines[i].Name, net.ResLines[i].LoadingPercent)
		}
	}
	for i := range net.ResBuses {
		vm := net.ResBuses[i].VmPu
		if vm > net.Buses[i].MaxVmPu && net.Buses[i].MaxVmPu > 0 {
			return fmt.Sprintf("voltage at %s (%.4f pu)", net.Buses[i].Name, vm)
		}
	}
	return "dispatch economics"
}
