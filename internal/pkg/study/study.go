/*
Package study orchestrates the scenario runs over the validated base
network: parameterize, optimize with the fallback driver, collect the
result tables, export, compare. Converged scenario networks are kept
for warm starts and the injection probe.
*/
package study

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ohmwork/gridcore/internal/pkg/metrics"
	"github.com/ohmwork/gridcore/internal/pkg/msg"
	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"github.com/ohmwork/gridcore/internal/pkg/scenario"
	"github.com/ohmwork/gridcore/internal/pkg/solve"
)

// Config selects what the engine runs and where results land.
type Config struct {
	OutputDir         string   `json:"outputDir"`
	Scenarios         []string `json:"scenarios"`
	WarmStart         bool     `json:"warmStart"`
	RunInjection      bool     `json:"runInjection"`
	InjectionLat      float64  `json:"injectionLat"`
	InjectionLon      float64  `json:"injectionLon"`
	InjectionScenario string   `json:"injectionScenario"`
}

// DefaultConfig runs the full library with warm starts.
func DefaultConfig() Config {
	return Config{
		OutputDir:         "results",
		WarmStart:         true,
		InjectionScenario: "14.pv_avg_wind_avg_load_avg",
	}
}

// LoadConfig overlays a JSON config file onto the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	jsonConfig, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ScenarioResult is one row of the comparison table, and the payload
// published on the result feed.
type ScenarioResult struct {
	Scenario           string  `json:"scenario"`
	Converged          bool    `json:"converged"`
	SolveTimeS         float64 `json:"solveTimeS"`
	TotalGenMW         float64 `json:"totalGenMW"`
	TotalLoadMW        float64 `json:"totalLoadMW"`
	StorageDischargeMW float64 `json:"storageDischargeMW"`
	StorageChargeMW    float64 `json:"storageChargeMW"`
	NetImportMW        float64 `json:"netImportMW"`
	GenLoadRatio       float64 `json:"genLoadRatio"`
	RenewablePct       float64 `json:"renewablePct"`
	TotalCostEURh      float64 `json:"totalCostEURh"`
	LossesMW           float64 `json:"lossesMW"`
	LossPct            float64 `json:"lossPct"`
	MaxLineLoadingPct  float64 `json:"maxLineLoadingPct"`
	OverloadedLines    int     `json:"overloadedLines"`
	VoltageViolations  int     `json:"voltageViolations"`
}

// Engine drives the study over one base network.
type Engine struct {
	config Config
	base   *powernet.Network
	driver *solve.Driver
	pub    *msg.PubSub
	solved map[string]*powernet.Network
}

// New builds an engine around the validated base network and a solver.
func New(base *powernet.Network, solver solve.Solver, config Config) (*Engine, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		base:   base,
		driver: solve.NewDriver(solver),
		pub:    msg.NewPublisher(pid),
		solved: make(map[string]*powernet.Network),
	}, nil
}

// Publisher exposes the result feed for downstream handlers.
func (e *Engine) Publisher() *msg.PubSub {
	return e.pub
}

// Solved returns the converged network for a scenario, if the run kept
// one.
func (e *Engine) Solved(name string) (*powernet.Network, bool) {
	net, ok := e.solved[name]
	return net, ok
}

// RunScenario parameterizes, optimizes and exports one scenario. Non-
// convergence is reported in the result, not as an error; errors are
// reserved for export failures.
func (e *Engine) RunScenario(s scenario.Scenario) (ScenarioResult, error) {
	net, info := scenario.Apply(e.base, s)

	start := time.Now()
	_, err := e.driver.RunOPF(net, e.config.WarmStart)
	elapsed := time.Since(start).Seconds()

	result := e.collectResult(net, info, elapsed)
	result.Scenario = s.Name

	if err != nil {
		var nc *solve.NoConvergenceError
		if !errors.As(err, &nc) {
			return result, err
		}
		log.Printf("[Study] scenario %s failed to converge", s.Name)
		for _, line := range Diagnose(net) {
			log.Println("[Study]  ", line)
		}
		metrics.ScenarioRuns.WithLabelValues("diverged").Inc()
		return result, nil
	}

	metrics.ScenarioRuns.WithLabelValues("converged").Inc()
	e.solved[s.Name] = net

	for _, line := range Issues(net) {
		log.Println("[Study]", line)
	}

	if e.config.OutputDir != "" {
		exp := NewExporter(net, filepath.Join(e.config.OutputDir, s.Name))
		if err := exp.ExportAll(); err != nil {
			return result, fmt.Errorf("export %s: %w", s.Name, err)
		}
	}

	e.pub.Publish(msg.Result, result)
	return result, nil
}

// RunAll walks the configured scenario list (default: the full
// library, in study order), then writes the comparison table.
func (e *Engine) RunAll() ([]ScenarioResult, error) {
	lib := scenario.Library()
	names := e.config.Scenarios
	if len(names) == 0 {
		names = scenario.Order()
	}

	log.Printf("[Study] running %d scenarios", len(names))
	var results []ScenarioResult
	for i, name := range names {
		s, ok := lib[name]
		if !ok {
			return results, fmt.Errorf("unknown scenario %q", name)
		}
		log.Printf("[Study] [%d/%d] %s", i+1, len(names), name)

		r, err := e.RunScenario(s)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		logResult(r)
	}

	if e.config.OutputDir != "" {
		if err := writeComparison(results, filepath.Join(e.config.OutputDir, "scenario_comparison.csv")); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) collectResult(net *powernet.Network, info scenario.Info, elapsed float64) ScenarioResult {
	r := ScenarioResult{
		Converged:    net.OPFConverged,
		SolveTimeS:   elapsed,
		TotalLoadMW:  info.TotalLoadMW,
		GenLoadRatio: info.GenLoadRatio,
		RenewablePct: info.RenewablePct,
	}
	if !net.OPFConverged {
		return r
	}

	for i := range net.ResGens {
		if net.Gens[i].Type == powernet.GridBorder {
			r.NetImportMW += net.ResGens[i].PMW
		} else {
			r.TotalGenMW += net.ResGens[i].PMW
		}
	}
	for i := range net.ResSGens {
		r.TotalGenMW += net.ResSGens[i].PMW
	}
	for i := range net.ResStorages {
		p := net.ResStorages[i].PMW
		if p > 0 {
			r.StorageDischargeMW += p
		} else {
			r.StorageChargeMW += -p
		}
	}
	for i := range net.ResExtGrids {
		r.NetImportMW += net.ResExtGrids[i].PMW
	}

	for _, rl := range net.ResLines {
		r.LossesMW += rl.PlMW
		if rl.LoadingPercent > r.MaxLineLoadingPct {
			r.MaxLineLoadingPct = rl.LoadingPercent
		}
		if rl.LoadingPercent > 100 {
			r.OverloadedLines++
		}
	}
	for _, rt := range net.ResTrafos {
		r.LossesMW += rt.PlMW
	}
	if r.TotalLoadMW > 0 {
		r.LossPct = r.LossesMW / r.TotalLoadMW * 100
	}

	for _, rb := range net.ResBuses {
		if rb.VmPu < scenario.BusMinVmPu || rb.VmPu > scenario.BusMaxVmPu {
			r.VoltageViolations++
		}
	}
	r.TotalCostEURh = net.ResCost
	return r
}

func logResult(r ScenarioResult) {
	status := "converged"
	if !r.Converged {
		status = "FAILED"
	}
	log.Printf("[Study]   %s cost=%.0f EUR/h gen=%.1f MW import=%.1f MW losses=%.1f MW (%.2f%%) maxload=%.1f%%",
		status, r.TotalCostEURh, r.TotalGenMW, r.NetImportMW, r.LossesMW, r.LossPct, r.MaxLineLoadingPct)
}

var comparisonHeader = []string{
	"scenario", "converged", "solve_time_s", "total_gen_mw", "total_load_mw",
	"storage_discharge_mw", "storage_charge_mw", "net_import_mw",
	"gen_load_ratio", "renewable_pct", "total_cost_eur_per_h", "losses_mw",
	"loss_pct", "max_line_loading_pct", "overloaded_lines", "voltage_violations",
}

func writeComparison(results []ScenarioResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(comparisonHeader); err != nil {
		f.Close()
		return err
	}
	for _, r := range results {
		row := []string{
			r.Scenario,
			strconv.FormatBool(r.Converged),
			f2(r.SolveTimeS), f2(r.TotalGenMW), f2(r.TotalLoadMW),
			f2(r.StorageDischargeMW), f2(r.StorageChargeMW), f2(r.NetImportMW),
			f2(r.GenLoadRatio), f2(r.RenewablePct), f2(r.TotalCostEURh),
			f2(r.LossesMW), f2(r.LossPct), f2(r.MaxLineLoadingPct),
			strconv.Itoa(r.OverloadedLines), strconv.Itoa(r.VoltageViolations),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	log.Println("[Study] comparison table written to", path)
	return f.Close()
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
