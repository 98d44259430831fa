package study

import (
	"strings"
	"testing"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"gotest.tools/v3/assert"
)

func analyzedNet() *powernet.Network {
	net := &powernet.Network{
		Buses: []powernet.Bus{
			{Name: "hv1", VnKV: 380}, {Name: "hv2", VnKV: 380},
			{Name: "mv1", VnKV: 110}, {Name: "mv2", VnKV: 110},
		},
		Lines: []powernet.Line{
			{Name: "l1", FromBus: 0, ToBus: 1},
			{Name: "l2", FromBus: 1, ToBus: 2},
			{Name: "l3", FromBus: 2, ToBus: 3},
			{Name: "l4", FromBus: 0, ToBus: 3},
		},
		Trafos: []powernet.Trafo{{Name: "t1", HvBus: 1, LvBus: 2}},
	}
	net.AllocResults()
	return net
}

func TestVoltageStatsGroupsByLevel(t *testing.T) {
	net := analyzedNet()
	net.ResBuses[0].VmPu = 1.00
	net.ResBuses[1].VmPu = 1.02
	net.ResBuses[2].VmPu = 0.96
	net.ResBuses[3].VmPu = 0.98

	stats := VoltageStats(net)
	assert.Equal(t, len(stats), 2)
	assert.Equal(t, stats[0].VnKV, 110.0)
	assert.Equal(t, stats[0].Count, 2)
	assert.Equal(t, stats[0].Mean, 0.97)
	assert.Equal(t, stats[1].VnKV, 380.0)
	assert.Equal(t, stats[1].Max, 1.02)
}

func TestLoadingQuantile(t *testing.T) {
	net := analyzedNet()
	for i, l := range []float64{10, 20, 30, 40} {
		net.ResLines[i].LoadingPercent = l
	}
	assert.Equal(t, LoadingQuantile(net, 0.5), 20.0)
	assert.Equal(t, LoadingQuantile(net, 1.0), 40.0)
}

func TestIssuesCleanNetwork(t *testing.T) {
	net := analyzedNet()
	for i := range net.ResBuses {
		net.ResBuses[i].VmPu = 1.0
	}
	assert.Equal(t, len(Issues(net)), 0)
}

func TestIssuesFlagsViolations(t *testing.T) {
	net := analyzedNet()
	net.ResBuses[0].VmPu = 0.91
	net.ResBuses[1].VmPu = 1.00
	net.ResBuses[2].VmPu = 1.07
	net.ResBuses[3].VmPu = 1.00
	net.ResLines[0].LoadingPercent = 131
	net.ResTrafos[0].LoadingPercent = 104

	issues := Issues(net)
	joined := strings.Join(issues, "\n")
	assert.Assert(t, strings.Contains(joined, "1 buses below 0.95 pu"))
	assert.Assert(t, strings.Contains(joined, "hv1"))
	assert.Assert(t, strings.Contains(joined, "1 buses above 1.05 pu"))
	assert.Assert(t, strings.Contains(joined, "1 lines overloaded"))
	assert.Assert(t, strings.Contains(joined, "l1: 131.0%"))
	assert.Assert(t, strings.Contains(joined, "1 transformers overloaded"))
}

func TestDiagnoseReportsBalance(t *testing.T) {
	net := analyzedNet()
	net.Gens = []powernet.Gen{{Name: "g", Bus: 0, PMW: 400}}
	net.Loads = []powernet.Load{{Name: "l", Bus: 1, PMW: 500}}

	lines := Diagnose(net)
	joined := strings.Join(lines, "\n")
	assert.Assert(t, strings.Contains(joined, "ratio 0.800"))
	assert.Assert(t, strings.Contains(joined, "generation significantly below load"))
	assert.Assert(t, strings.Contains(joined, "4 buses, 4 lines, 1 trafos"))
}
