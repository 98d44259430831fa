package study

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/ohmwork/gridcore/internal/pkg/msg"
	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"github.com/ohmwork/gridcore/internal/pkg/scenario"
	"github.com/ohmwork/gridcore/internal/pkg/solve"
	"gotest.tools/v3/assert"
)

func studyBase() *powernet.Network {
	return &powernet.Network{
		Name: "base",
		Buses: []powernet.Bus{
			{ID: "alpha_380", Name: "Alpha 380", VnKV: 380, Lat: 52.50, Lon: 13.40},
			{ID: "beta_380", Name: "Beta 380", VnKV: 380, Lat: 52.60, Lon: 13.50},
			{ID: "gamma_110", Name: "Gamma 110", VnKV: 110, Lat: 52.70, Lon: 13.60},
		},
		Lines: []powernet.Line{
			{Name: "alpha-beta", FromBus: 0, ToBus: 1, LengthKm: 40, ROhmPerKm: 0.03, XOhmPerKm: 0.26, MaxIKA: 1.96, Parallel: 1},
		},
		Trafos: []powernet.Trafo{
			{Name: "beta 380/110", HvBus: 1, LvBus: 2, SnMVA: 300, VnHvKV: 380, VnLvKV: 110, VkPercent: 12, VkrPercent: 0.25},
		},
		Gens: []powernet.Gen{
			{Name: "coal plant", Bus: 0, Type: "coal", VmPu: 1.0, SnMVA: 700, NameplatePMW: 600},
		},
		SGens: []powernet.SGen{
			{Name: "pv park", Bus: 2, Type: scenario.TypeSolar, NameplatePMW: 400},
		},
		Storages: []powernet.Storage{
			{Name: "battery", Bus: 1, Type: scenario.TypeStorage, NameplatePMW: 100, MaxEMWh: 400},
		},
		Loads: []powernet.Load{
			{Name: "city", Bus: 1, NameplatePMW: 180, NameplateQMVAR: 40},
		},
		ExtGrids: []powernet.ExtGrid{
			{Name: "slack", Bus: 0, Type: powernet.GridMainSlack, VmPu: 1.0, SlackWeight: 1},
		},
	}
}

func testEngine(t *testing.T, solver solve.Solver, config Config) *Engine {
	t.Helper()
	eng, err := New(studyBase(), solver, config)
	assert.NilError(t, err)
	return eng
}

func TestRunScenarioExportsResults(t *testing.T) {
	dir := t.TempDir()
	eng := testEngine(t, &solve.VirtualSolver{}, Config{OutputDir: dir, WarmStart: true})

	s, ok := scenario.Get("14.pv_avg_wind_avg_load_avg")
	assert.Assert(t, ok)

	r, err := eng.RunScenario(s)
	assert.NilError(t, err)
	assert.Assert(t, r.Converged)
	assert.Assert(t, math.Abs(r.TotalLoadMW-180*1.22) < 1e-9)
	assert.Assert(t, r.TotalCostEURh > 0)

	_, kept := eng.Solved(s.Name)
	assert.Assert(t, kept)

	for _, name := range []string{
		"bus_results.csv", "line_results.csv", "transformer_results.csv",
		"power_balance.txt", "summary.txt", "visualization_data.json",
	} {
		_, err := os.Stat(filepath.Join(dir, s.Name, name))
		assert.NilError(t, err)
	}
	// nothing overloaded, so no report
	_, err = os.Stat(filepath.Join(dir, s.Name, "overload_report.csv"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestRunScenarioNonConvergenceIsAResult(t *testing.T) {
	eng := testEngine(t, &solve.VirtualSolver{FailOPF: 1}, Config{WarmStart: false})

	s, _ := scenario.Get("14.pv_avg_wind_avg_load_avg")
	r, err := eng.RunScenario(s)
	assert.NilError(t, err)
	assert.Assert(t, !r.Converged)

	_, kept := eng.Solved(s.Name)
	assert.Assert(t, !kept)
}

func TestRunScenarioPublishesResult(t *testing.T) {
	eng := testEngine(t, &solve.VirtualSolver{}, Config{WarmStart: true})

	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	ch, err := eng.Publisher().Subscribe(pid, msg.Result)
	assert.NilError(t, err)

	s, _ := scenario.Get("1.pv_low_wind_low_load_low")
	_, err = eng.RunScenario(s)
	assert.NilError(t, err)

	m := <-ch
	r, ok := m.Payload().(ScenarioResult)
	assert.Assert(t, ok)
	assert.Equal(t, r.Scenario, s.Name)
}

func TestRunAllWritesComparison(t *testing.T) {
	dir := t.TempDir()
	eng := testEngine(t, &solve.VirtualSolver{}, Config{
		OutputDir: dir,
		WarmStart: true,
		Scenarios: []string{"1.pv_low_wind_low_load_low", "27.pv_high_wind_high_load_high"},
	})

	results, err := eng.RunAll()
	assert.NilError(t, err)
	assert.Equal(t, len(results), 2)
	assert.Equal(t, results[0].Scenario, "1.pv_low_wind_low_load_low")

	data, err := os.ReadFile(filepath.Join(dir, "scenario_comparison.csv"))
	assert.NilError(t, err)
	assert.Assert(t, len(data) > 0)
}

func TestRunAllUnknownScenario(t *testing.T) {
	eng := testEngine(t, &solve.VirtualSolver{}, Config{Scenarios: []string{"no_such_scenario"}})
	_, err := eng.RunAll()
	assert.ErrorContains(t, err, "no_such_scenario")
}
