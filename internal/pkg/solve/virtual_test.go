package solve

import (
	"math"
	"testing"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"gotest.tools/v3/assert"
)

func TestVirtualPFBalances(t *testing.T) {
	net := driverNet()
	v := &VirtualSolver{}

	res, err := v.SolvePF(net, DefaultOptions())
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
	assert.Assert(t, net.Converged)

	// slack covers load plus losses minus dispatched generation
	wantSlack := 480*1.01 - 500
	assert.Assert(t, math.Abs(net.ResExtGrids[0].PMW-wantSlack) < 1e-9)
	assert.Equal(t, net.ResBuses[0].VmPu, 1.0)
	assert.Equal(t, net.ResLoads[0].PMW, 480.0)
}

func TestVirtualPFOverrides(t *testing.T) {
	net := driverNet()
	v := &VirtualSolver{
		BusVm:       map[int]float64{1: 0.93},
		LineLoading: map[int]float64{0: 112},
	}

	_, err := v.SolvePF(net, DefaultOptions())
	assert.NilError(t, err)
	assert.Equal(t, net.ResBuses[1].VmPu, 0.93)
	assert.Equal(t, net.ResLines[0].LoadingPercent, 112.0)
}

func TestVirtualOPFMeritOrder(t *testing.T) {
	net := &powernet.Network{
		Buses: []powernet.Bus{{ID: "a", VnKV: 380}, {ID: "b", VnKV: 380}},
		Lines: []powernet.Line{
			{FromBus: 0, ToBus: 1, LengthKm: 50, ROhmPerKm: 0.03, XOhmPerKm: 0.26},
		},
		Gens: []powernet.Gen{
			{Name: "gas", Bus: 0, Type: "natural gas", MaxPMW: 400},
			{Name: "wind", Bus: 0, Type: "wind_onshore", MaxPMW: 300},
		},
		Loads:    []powernet.Load{{Name: "l", Bus: 1, PMW: 500}},
		ExtGrids: []powernet.ExtGrid{{Bus: 0, VmPu: 1.0}},
		PolyCosts: []powernet.PolyCost{
			{ElementType: powernet.ElementGen, Element: 0, C1: 90},
			{ElementType: powernet.ElementGen, Element: 1, C1: 0},
		},
	}

	v := &VirtualSolver{}
	res, err := v.SolveOPF(net, DefaultOptions())
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
	assert.Assert(t, net.OPFConverged)

	// wind runs flat out before gas enters
	assert.Equal(t, net.ResGens[1].PMW, 300.0)
	wantGas := 500*1.01 - 300
	assert.Assert(t, math.Abs(net.ResGens[0].PMW-wantGas) < 1e-9)
	assert.Assert(t, math.Abs(net.ResExtGrids[0].PMW) < 1e-9)
	assert.Assert(t, net.ResCost > 0)
}

func TestVirtualOPFChargeOnlyStorageAbsorbs(t *testing.T) {
	// Generation floor above demand, the charge-only storage has to
	// take the surplus before the slack does.
	net := &powernet.Network{
		Buses: []powernet.Bus{{ID: "a", VnKV: 380}},
		Gens: []powernet.Gen{
			{Name: "g", Bus: 0, Type: "coal", MinPMW: 400, MaxPMW: 400},
		},
		Storages: []powernet.Storage{
			{Name: "bat", Bus: 0, Type: "storage", MinPMW: -200, MaxPMW: 0},
		},
		Loads:    []powernet.Load{{Name: "l", Bus: 0, PMW: 300}},
		ExtGrids: []powernet.ExtGrid{{Bus: 0, VmPu: 1.0}},
		PolyCosts: []powernet.PolyCost{
			{ElementType: powernet.ElementGen, Element: 0, C1: 40},
			{ElementType: powernet.ElementStorage, Element: 0, C1: 10},
		},
	}

	v := &VirtualSolver{}
	_, err := v.SolveOPF(net, DefaultOptions())
	assert.NilError(t, err)

	assert.Equal(t, net.ResGens[0].PMW, 400.0)
	surplus := 400 - 300*1.01
	assert.Assert(t, math.Abs(net.ResStorages[0].PMW-(-surplus)) < 1e-9)
}

func TestVirtualSolverStructuralErrors(t *testing.T) {
	v := &VirtualSolver{}

	_, err := v.SolvePF(&powernet.Network{}, DefaultOptions())
	assert.Assert(t, err != nil)

	noRef := &powernet.Network{Buses: []powernet.Bus{{ID: "a", VnKV: 380}}}
	_, err = v.SolveOPF(noRef, DefaultOptions())
	assert.Assert(t, err != nil)
}
