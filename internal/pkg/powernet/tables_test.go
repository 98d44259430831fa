package powernet

import (
	"testing"

	"gotest.tools/v3/assert"
)

func fourBusNet() *Network {
	return &Network{
		Name: "test",
		Buses: []Bus{
			{ID: "a_380", Name: "A", VnKV: 380},
			{ID: "b_380", Name: "B", VnKV: 380},
			{ID: "c_220", Name: "C", VnKV: 220},
			{ID: "d_380", Name: "D", VnKV: 380},
		},
		Lines: []Line{
			{Name: "l1", FromBus: 0, ToBus: 2, LengthKm: 10},
			{Name: "l2", FromBus: 1, ToBus: 3, LengthKm: 20},
		},
		Trafos:   []Trafo{{Name: "t1", HvBus: 0, LvBus: 1, SnMVA: 600}},
		Gens:     []Gen{{Name: "g1", Bus: 1, PMW: 100}},
		SGens:    []SGen{{Name: "s1", Bus: 2, PMW: 50}},
		Loads:    []Load{{Name: "ld1", Bus: 3, PMW: 80}},
		Storages: []Storage{{Name: "st1", Bus: 2, MaxPMW: 30}},
		ExtGrids: []ExtGrid{{Name: "eg1", Bus: 0, Type: GridMainSlack, VmPu: 1}},
		DCLines:  []DCLine{{Name: "dc1", FromBus: 0, ToBus: 2, MaxPMW: 2000}},
	}
}

func TestCopyIsolation(t *testing.T) {
	base := fourBusNet()
	base.AllocResults()
	base.ResBuses[0].VmPu = 1.01

	cp := base.Copy()
	cp.Buses[0].Name = "changed"
	cp.Gens[0].PMW = 999
	cp.Lines = append(cp.Lines, Line{Name: "l3", FromBus: 0, ToBus: 1})
	cp.ResBuses[0].VmPu = 0.5
	cp.Converged = true

	assert.Equal(t, base.Buses[0].Name, "A")
	assert.Equal(t, base.Gens[0].PMW, 100.0)
	assert.Equal(t, len(base.Lines), 2)
	assert.Equal(t, base.ResBuses[0].VmPu, 1.01)
	assert.Equal(t, base.Converged, false)
	assert.Equal(t, cp.Buses[0].Name, "changed")
}

func TestAllocResults(t *testing.T) {
	net := fourBusNet()
	net.AllocResults()

	assert.Equal(t, len(net.ResBuses), 4)
	assert.Equal(t, len(net.ResLines), 2)
	assert.Equal(t, len(net.ResTrafos), 1)
	assert.Equal(t, len(net.ResGens), 1)
	assert.Equal(t, len(net.ResSGens), 1)
	assert.Equal(t, len(net.ResLoads), 1)
	assert.Equal(t, len(net.ResStorages), 1)
	assert.Equal(t, len(net.ResExtGrids), 1)
	assert.Equal(t, len(net.ResDCLines), 1)

	net.Converged = true
	net.ResCost = 42
	net.ClearResults()
	assert.Equal(t, len(net.ResBuses), 0)
	assert.Equal(t, net.Converged, false)
	assert.Equal(t, net.ResCost, 0.0)
}

func TestSelectSubnetRemaps(t *testing.T) {
	net := fourBusNet()

	// Drop bus 1: everything touching it goes, references shift down.
	sub := net.SelectSubnet(map[int]bool{0: true, 2: true, 3: true})

	assert.Equal(t, len(sub.Buses), 3)
	assert.Equal(t, sub.Buses[1].ID, "c_220")

	assert.Equal(t, len(sub.Lines), 1)
	assert.Equal(t, sub.Lines[0].Name, "l1")
	assert.Equal(t, sub.Lines[0].FromBus, 0)
	assert.Equal(t, sub.Lines[0].ToBus, 1)

	assert.Equal(t, len(sub.Trafos), 0)
	assert.Equal(t, len(sub.Gens), 0)

	assert.Equal(t, len(sub.Loads), 1)
	assert.Equal(t, sub.Loads[0].Bus, 2)

	assert.Equal(t, len(sub.Storages), 1)
	assert.Equal(t, sub.Storages[0].Bus, 1)

	assert.Equal(t, len(sub.ExtGrids), 1)
	assert.Equal(t, sub.ExtGrids[0].Bus, 0)

	assert.Equal(t, len(sub.DCLines), 1)
	assert.Equal(t, sub.DCLines[0].ToBus, 1)

	// Original untouched.
	assert.Equal(t, len(net.Buses), 4)
	assert.Equal(t, net.Lines[0].ToBus, 2)
}

func TestBusByID(t *testing.T) {
	net := fourBusNet()

	idx, ok := net.BusByID("c_220")
	assert.Equal(t, ok, true)
	assert.Equal(t, idx, 2)

	_, ok = net.BusByID("missing")
	assert.Equal(t, ok, false)
}
