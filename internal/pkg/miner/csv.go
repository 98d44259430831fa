package miner

import (
	"bufio"
	"encoding/json"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// The model CSVs use ';' as delimiter because free-text fields (names,
// operators) are full of commas. Semicolons inside a cell are rewritten.
const csvDelim = ";"

// Escape replaces the delimiter inside a cell value.
func Escape(text string) string {
	return strings.ReplaceAll(text, ";", "_&_")
}

type csvFile struct {
	f *os.File
	w *bufio.Writer
}

func newCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c := &csvFile{f: f, w: bufio.NewWriter(f)}
	c.Row(header...)
	return c, nil
}

func (c *csvFile) Row(cells ...string) {
	c.w.WriteString(strings.Join(cells, csvDelim))
	c.w.WriteByte('\n')
}

func (c *csvFile) Close() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// fstr formats a float the shortest way that round-trips.
func fstr(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// fstrOrEmpty hides unset numeric fields.
func fstrOrEmpty(v float64) string {
	if v == 0 {
		return ""
	}
	return fstr(v)
}

func kvStr(voltage float64) string {
	return strconv.Itoa(int(voltage) / 1000)
}

// lengthKm rounds to metre precision and clamps to the 50 m minimum the
// solver needs for per-km line parameters.
func lengthKm(lengthM float64) float64 {
	km := math.RoundToEven(lengthM) / 1000
	if km < 0.05 {
		km = 0.05
	}
	return km
}

// WriteBuses exports one bus row per node and voltage level.
func WriteBuses(reg *model.Registry, path string) error {
	csv, err := newCSV(path, []string{"bus_id", "name", "vn_kv", "lat", "lon"})
	if err != nil {
		return err
	}

	for _, id := range reg.NodeIDs() {
		n, ok := reg.Node(id)
		if !ok {
			continue
		}
		name := n.Name()
		if name == "" {
			name = id
		}
		for _, v := range n.Voltages() {
			csv.Row(
				model.BusID(id, v),
				Escape(name),
				kvStr(v),
				fstr(n.Coords().Lat),
				fstr(n.Coords().Lon),
			)
		}
	}

	if err := csv.Close(); err != nil {
		return err
	}
	log.Println("[Miner] wrote bus CSV to", path)
	return nil
}

// WriteConnections exports one row per resolved circuit, plus the wire
// parameter supplement keyed by way id.
func WriteConnections(reg *model.Registry, path, wiredataPath string) error {
	csv, err := newCSV(path, []string{
		"from_bus_id", "to_bus_id", "length_km",
		"r_ohm_per_km", "x_ohm_per_km", "c_nf_per_km", "max_i_ka",
		"capacity_mva", "dlr_min_a", "dlr_max_a",
		"name", "parallel_cables_per_phase", "line_type", "ac_dc_type",
		"switch_group", "commissioning_year", "geographic_coordinates",
	})
	if err != nil {
		return err
	}

	wiredata, err := newCSV(wiredataPath, []string{
		"line_way_id", "from_way_id", "to_way_id", "length_km",
		"r_ohm_per_km", "x_ohm_per_km", "c_nf_per_km", "max_i_ka",
		"parallel_cables_per_phase", "voltage_kV", "frequency",
	})
	if err != nil {
		csv.Close()
		return err
	}

	for _, id := range reg.ConnIDs() {
		c, ok := reg.Conn(id)
		if !ok || c.StartNode == "" || c.EndNode == "" {
			continue
		}

		km := fstr(lengthKm(c.LengthM))
		geometry := marshalGeometry(c)
		wayID := "way/" + c.ID

		lineType := "overhead"
		if c.Type == model.ConnCable || c.Type == model.ConnHVDCCable {
			lineType = "underground"
		}

		for _, circ := range c.Circuits {
			acdc := "AC"
			if circ.Frequency <= 0 {
				acdc = "DC"
			}
			csv.Row(
				model.BusID(c.StartNode, circ.Voltage),
				model.BusID(c.EndNode, circ.Voltage),
				km,
				fstr(circ.Wire.ROhmPerKm),
				fstr(circ.Wire.XOhmPerKm),
				fstr(circ.Wire.CNfPerKm),
				fstr(circ.Wire.MaxIkA),
				fstrOrEmpty(circ.CapacityMVA),
				fstrOrEmpty(circ.DLR.MinA),
				fstrOrEmpty(circ.DLR.MaxA),
				wayID,
				strconv.Itoa(circ.Systems),
				lineType,
				acdc,
				"", // switch_group
				"", // commissioning_year
				geometry,
			)
			wiredata.Row(
				wayID,
				c.StartNode,
				c.EndNode,
				km,
				fstr(circ.Wire.ROhmPerKm),
				fstr(circ.Wire.XOhmPerKm),
				fstr(circ.Wire.CNfPerKm),
				fstr(circ.Wire.MaxIkA),
				strconv.Itoa(circ.Systems),
				kvStr(circ.Voltage),
				fstr(circ.Frequency),
			)
		}
	}

	if err := csv.Close(); err != nil {
		wiredata.Close()
		return err
	}
	if err := wiredata.Close(); err != nil {
		return err
	}
	log.Println("[Miner] wrote connection CSVs to", path)
	return nil
}

// marshalGeometry emits the polyline back in (lon, lat) order, the form
// the raw exports use.
func marshalGeometry(c *model.Connection) string {
	pts := make([][]float64, len(c.Geometry))
	for i, coord := range c.Geometry {
		pts[i] = []float64{coord.Lon, coord.Lat}
	}
	raw, err := json.Marshal(pts)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// WriteTransformers exports the generated transformer chains.
func WriteTransformers(reg *model.Registry, path string) error {
	csv, err := newCSV(path, []string{
		"transformer_count", "transformer_id", "hv_bus_id", "lv_bus_id",
		"sn_mva", "tap_side", "vertical_capacity", "commissioning_year",
	})
	if err != nil {
		return err
	}

	for _, id := range reg.TrafoIDs() {
		tr, ok := reg.Trafo(id)
		if !ok {
			continue
		}
		count := 0
		if sub, ok := reg.Substation(tr.Sub); ok {
			count = len(sub.Transformers())
		}
		csv.Row(
			strconv.Itoa(count),
			tr.ID,
			tr.HvBus,
			tr.LvBus,
			fstr(math.Floor(tr.PowerVA/1e6)),
			"", // tap_side
			"", // vertical_capacity
			"", // commissioning_year
		)
	}

	if err := csv.Close(); err != nil {
		return err
	}
	log.Println("[Miner] wrote transformer CSV to", path)
	return nil
}

// WriteGenerators exports the aggregated generation blocks.
func WriteGenerators(reg *model.Registry, path string) error {
	csv, err := newCSV(path, []string{
		"bus_id", "generator_name", "p_mw", "vm_pu", "sn_mva",
		"generation_type", "commissioning_year",
	})
	if err != nil {
		return err
	}

	for _, id := range reg.GenIDs() {
		g, ok := reg.Gen(id)
		if !ok {
			continue
		}
		mw := fstr(g.PowerW / 1e6)
		csv.Row(
			model.BusID(g.Sub, g.Voltage),
			Escape(g.Name),
			mw,
			"1",
			mw,
			g.Type,
			strconv.Itoa(g.CommYear),
		)
	}

	if err := csv.Close(); err != nil {
		return err
	}
	log.Println("[Miner] wrote generator CSV to", path)
	return nil
}

// WriteLoads exports regional demand split evenly over the substations
// serving each region. Returns total and substation-assigned demand so
// the caller can sanity check how much load the model actually carries.
func WriteLoads(reg *model.Registry, path string) (totalMW, assignedMW float64, err error) {
	csv, err := newCSV(path, []string{"bus_id", "p_mw", "q_mvar", "load_name", "load_type"})
	if err != nil {
		return 0, 0, err
	}

	for _, id := range reg.LoadIDs() {
		l, ok := reg.Load(id)
		if !ok {
			continue
		}
		totalMW += l.PowerMW

		subs := l.SubList()
		if len(subs) == 0 {
			continue
		}
		assignedMW += l.PowerMW

		name := "NUTS " + l.ID + " full year all-week mean"
		if strings.HasPrefix(l.ID, "nep_") {
			name = "NEP load " + l.ID
		}
		sector := Escape(strings.Join(l.SectorList(), "+"))
		share := fstr(l.PowerMW / float64(len(subs)))

		for _, subID := range subs {
			n, ok := reg.Node(subID)
			if !ok {
				continue
			}
			csv.Row(
				model.BusID(subID, n.MinV()),
				share,
				"0",
				name,
				sector,
			)
		}
	}

	if err := csv.Close(); err != nil {
		return 0, 0, err
	}
	log.Println("[Miner] wrote load CSV to", path)
	return totalMW, assignedMW, nil
}
