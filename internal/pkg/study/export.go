package study

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"github.com/ohmwork/gridcore/internal/pkg/scenario"
)

// Exporter writes the solved result tables of one scenario into its
// output directory: CSV tables for analysis, a text summary, and a
// JSON bundle for the map view.
type Exporter struct {
	net *powernet.Network
	dir string
}

func NewExporter(net *powernet.Network, dir string) *Exporter {
	return &Exporter{net: net, dir: dir}
}

// ExportAll writes the full result set. The overload report only
// appears when there is something to report.
func (e *Exporter) ExportAll() error {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return err
	}
	steps := []func() error{
		e.exportBuses,
		e.exportLines,
		e.exportTrafos,
		e.exportOverloads,
		e.exportBalance,
		e.exportSummary,
		e.exportVisualization,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeCSV(name string, header []string, rows [][]string) error {
	f, err := os.Create(filepath.Join(e.dir, name))
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for _, row := range rows {
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
	return f.Close()
}

func (e *Exporter) exportBuses() error {
	header := []string{"name", "vn_kv", "vm_pu", "va_deg", "p_mw", "q_mvar", "lat", "lon"}
	rows := make([][]string, 0, len(e.net.Buses))
	for i, b := range e.net.Buses {
		r := e.net.ResBuses[i]
		rows = append(rows, []string{
			b.Name, f2(b.VnKV), f4(r.VmPu), f4(r.VaDeg), f2(r.PMW), f2(r.QMVAR),
			f6(b.Lat), f6(b.Lon),
		})
	}
	return e.writeCSV("bus_results.csv", header, rows)
}

func (e *Exporter) exportLines() error {
	header := []string{
		"name", "from_bus", "to_bus", "length_km",
		"p_from_mw", "q_from_mvar", "p_to_mw", "q_to_mvar",
		"pl_mw", "i_from_ka", "loading_percent",
	}
	rows := make([][]string, 0, len(e.net.Lines))
	for i, l := range e.net.Lines {
		r := e.net.ResLines[i]
		rows = append(rows, []string{
			l.Name, e.net.Buses[l.FromBus].Name, e.net.Buses[l.ToBus].Name, f2(l.LengthKm),
			f2(r.PFromMW), f2(r.QFromMVAR), f2(r.PToMW), f2(r.QToMVAR),
			f4(r.PlMW), f4(r.IFromKA), f2(r.LoadingPercent),
		})
	}
	return e.writeCSV("line_results.csv", header, rows)
}

func (e *Exporter) exportTrafos() error {
	header := []string{
		"name", "hv_bus", "lv_bus", "sn_mva",
		"p_hv_mw", "q_hv_mvar", "pl_mw", "loading_percent",
	}
	rows := make([][]string, 0, len(e.net.Trafos))
	for i, tr := range e.net.Trafos {
		r := e.net.ResTrafos[i]
		rows = append(rows, []string{
			tr.Name, e.net.Buses[tr.HvBus].Name, e.net.Buses[tr.LvBus].Name, f2(tr.SnMVA),
			f2(r.PHvMW), f2(r.QHvMVAR), f4(r.PlMW), f2(r.LoadingPercent),
		})
	}
	return e.writeCSV("transformer_results.csv", header, rows)
}

func (e *Exporter) exportOverloads() error {
	header := []string{"element", "name", "loading_percent", "limit_percent"}
	var rows [][]string
	for i := range e.net.ResLines {
		if e.net.ResLines[i].LoadingPercent > 100 {
			rows = append(rows, []string{
				"line", e.net.Lines[i].Name,
				f2(e.net.ResLines[i].LoadingPercent), f2(e.net.Lines[i].MaxLoadingPercent),
			})
		}
	}
	for i := range e.net.ResTrafos {
		if e.net.ResTrafos[i].LoadingPercent > 100 {
			rows = append(rows, []string{
				"trafo", e.net.Trafos[i].Name,
				f2(e.net.ResTrafos[i].LoadingPercent), "100.00",
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return e.writeCSV("overload_report.csv", header, rows)
}

func (e *Exporter) exportBalance() error {
	var gen, importP, storageOut, storageIn, load, losses float64
	for i := range e.net.ResGens {
		if e.net.Gens[i].Type == powernet.GridBorder {
			importP += e.net.ResGens[i].PMW
		} else {
			gen += e.net.ResGens[i].PMW
		}
	}
	for i := range e.net.ResSGens {
		gen += e.net.ResSGens[i].PMW
	}
	for i := range e.net.ResStorages {
		p := e.net.ResStorages[i].PMW
		if p > 0 {
			storageOut += p
		} else {
			storageIn += -p
		}
	}
	for i := range e.net.ResExtGrids {
		importP += e.net.ResExtGrids[i].PMW
	}
	for i := range e.net.ResLoads {
		load += e.net.ResLoads[i].PMW
	}
	for i := range e.net.ResLines {
		losses += e.net.ResLines[i].PlMW
	}
	for i := range e.net.ResTrafos {
		losses += e.net.ResTrafos[i].PlMW
	}

	f, err := os.Create(filepath.Join(e.dir, "power_balance.txt"))
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "POWER BALANCE\n")
	fmt.Fprintf(f, "=============\n")
	fmt.Fprintf(f, "generation:        %10.1f MW\n", gen)
	fmt.Fprintf(f, "storage discharge: %10.1f MW\n", storageOut)
	fmt.Fprintf(f, "net import:        %10.1f MW\n", importP)
	fmt.Fprintf(f, "load:              %10.1f MW\n", load)
	fmt.Fprintf(f, "storage charge:    %10.1f MW\n", storageIn)
	fmt.Fprintf(f, "losses:            %10.1f MW\n", losses)
	mismatch := gen + storageOut + importP - load - storageIn - losses
	fmt.Fprintf(f, "mismatch:          %10.3f MW\n", mismatch)
	return f.Close()
}

func (e *Exporter) exportSummary() error {
	f, err := os.Create(filepath.Join(e.dir, "summary.txt"))
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "NETWORK SUMMARY\n")
	fmt.Fprintf(f, "===============\n")
	fmt.Fprintf(f, "%s\n\n", e.net.Summary())
	fmt.Fprintf(f, "opf converged: %v\n", e.net.OPFConverged)
	fmt.Fprintf(f, "total cost:    %.1f EUR/h\n\n", e.net.ResCost)

	fmt.Fprintf(f, "VOLTAGE PROFILE\n")
	for _, s := range VoltageStats(e.net) {
		fmt.Fprintf(f, "  %6.0f kV: %4d buses, vm %.4f .. %.4f (mean %.4f)\n",
			s.VnKV, s.Count, s.Min, s.Max, s.Mean)
	}

	fmt.Fprintf(f, "\nLINE LOADING\n")
	fmt.Fprintf(f, "  median: %.1f %%\n", LoadingQuantile(e.net, 0.5))
	fmt.Fprintf(f, "  p95:    %.1f %%\n", LoadingQuantile(e.net, 0.95))

	issues := Issues(e.net)
	fmt.Fprintf(f, "\nISSUES (%d)\n", len(issues))
	for _, line := range issues {
		fmt.Fprintf(f, "  %s\n", line)
	}
	return f.Close()
}

// visBus and visLine carry just what the map front end needs.
type visBus struct {
	Name  string  `json:"name"`
	VnKV  float64 `json:"vnKV"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	VmPu  float64 `json:"vmPu"`
	PMW   float64 `json:"pMW"`
	Issue string  `json:"issue,omitempty"`
}

type visLine struct {
	Name           string  `json:"name"`
	FromLat        float64 `json:"fromLat"`
	FromLon        float64 `json:"fromLon"`
	ToLat          float64 `json:"toLat"`
	ToLon          float64 `json:"toLon"`
	VnKV           float64 `json:"vnKV"`
	LoadingPercent float64 `json:"loadingPercent"`
	PMW            float64 `json:"pMW"`
}

func (e *Exporter) exportVisualization() error {
	buses := make([]visBus, 0, len(e.net.Buses))
	for i, b := range e.net.Buses {
		r := e.net.ResBuses[i]
		vb := visBus{
			Name: b.Name, VnKV: b.VnKV, Lat: b.Lat, Lon: b.Lon,
			VmPu: r.VmPu, PMW: r.PMW,
		}
		if r.VmPu < scenario.BusMinVmPu {
			vb.Issue = "undervoltage"
		} else if r.VmPu > scenario.BusMaxVmPu {
			vb.Issue = "overvoltage"
		}
		buses = append(buses, vb)
	}

	lines := make([]visLine, 0, len(e.net.Lines))
	for i, l := range e.net.Lines {
		r := e.net.ResLines[i]
		from := e.net.Buses[l.FromBus]
		to := e.net.Buses[l.ToBus]
		lines = append(lines, visLine{
			Name:    l.Name,
			FromLat: from.Lat, FromLon: from.Lon,
			ToLat: to.Lat, ToLon: to.Lon,
			VnKV:           from.VnKV,
			LoadingPercent: r.LoadingPercent,
			PMW:            r.PFromMW,
		})
	}

	payload := struct {
		Converged bool      `json:"converged"`
		CostEURh  float64   `json:"costEURh"`
		Buses     []visBus  `json:"buses"`
		Lines     []visLine `json:"lines"`
	}{e.net.OPFConverged, e.net.ResCost, buses, lines}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.dir, "visualization_data.json"), data, 0644)
}

func f4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func f6(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
