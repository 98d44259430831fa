package powernet

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// ModelData is the raw intermediate model as mined, one slice per CSV.
// Preprocess folds it into the form the builder consumes.
type ModelData struct {
	Buses        []BusRecord
	Connections  []ConnRecord
	Generators   []GenRecord
	Loads        []LoadRecord
	Transformers []TrafoRecord
	ExtGrids     []ExtGridSpec
	HVDCProjects []HVDCRecord
}

// BusRecord mirrors one buses.csv row.
type BusRecord struct {
	BusID string
	Name  string
	VnKV  float64
	Lat   float64
	Lon   float64
}

// ConnRecord mirrors one connections.csv row. Parallel starts at 1 and
// is summed up when identical circuits collapse during preprocessing.
type ConnRecord struct {
	FromBusID      string
	ToBusID        string
	LengthKm       float64
	ROhmPerKm      float64
	XOhmPerKm      float64
	CNfPerKm       float64
	MaxIKA         float64
	Name           string
	CablesPerPhase float64
	LineType       string
	ACDCType       string
	SwitchGroup    string
	CommYear       string
	GeoCoords      string
	Parallel       int
}

// GenRecord mirrors one generators.csv row.
type GenRecord struct {
	BusID    string
	Name     string
	PMW      float64
	VmPu     float64
	SnMVA    float64
	Type     string
	CommYear string
}

// LoadRecord mirrors one loads.csv row.
type LoadRecord struct {
	BusID    string
	PMW      float64
	QMVAR    float64
	Name     string
	LoadType string
}

// TrafoRecord mirrors one transformers.csv row. The short-circuit
// parameters are stamped during preprocessing, the mined table carries
// only rating and terminals.
type TrafoRecord struct {
	ID         string
	HvBusID    string
	LvBusID    string
	SnMVA      float64
	VkPercent  float64
	VkrPercent float64
	PfeKW      float64
	I0Percent  float64
}

// ExtGridSpec is one external_grids.csv row resolved against defaults.
// GridType main_slack yields the slack ext grid, everything else a
// cost-bearing border generator.
type ExtGridSpec struct {
	BusID       string
	GridType    string
	VmPu        float64
	VaDeg       float64
	SlackWeight float64
	MaxPMW      float64
	MinPMW      float64
	Country     string
}

// HVDCRecord is one hvdc_projects.csv row, terminals given
// geographically and snapped to the nearest 380 kV bus at build time.
type HVDCRecord struct {
	Name       string
	FromLat    float64
	FromLon    float64
	ToLat      float64
	ToLon      float64
	CapacityMW float64
	InService  bool
}

// External grid types.
const (
	GridMainSlack = "main_slack"
	GridBorder    = "border"
)

const extGridPLimitMW = 999999

// LoadModel reads the intermediate model from dir. The five model
// tables and external_grids.csv are mandatory, hvdc_projects.csv is
// optional. At least one external grid row must be present, the
// network is unsolvable without a slack.
func LoadModel(dir string) (*ModelData, error) {
	md := &ModelData{}

	t, err := readTable(filepath.Join(dir, "buses.csv"))
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.Buses = append(md.Buses, BusRecord{
			BusID: t.str(i, "bus_id"),
			Name:  t.str(i, "name"),
			VnKV:  t.f64(i, "vn_kv", 0),
			Lat:   t.f64(i, "lat", 0),
			Lon:   t.f64(i, "lon", 0),
		})
	}

	t, err = readTable(filepath.Join(dir, "connections.csv"))
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.Connections = append(md.Connections, ConnRecord{
			FromBusID:      t.str(i, "from_bus_id"),
			ToBusID:        t.str(i, "to_bus_id"),
			LengthKm:       t.f64(i, "length_km", 0),
			ROhmPerKm:      t.f64(i, "r_ohm_per_km", 0),
			XOhmPerKm:      t.f64(i, "x_ohm_per_km", 0),
			CNfPerKm:       t.f64(i, "c_nf_per_km", 0),
			MaxIKA:         t.f64(i, "max_i_ka", 0),
			Name:           t.str(i, "name"),
			CablesPerPhase: t.f64(i, "parallel_cables_per_phase", 1),
			LineType:       t.str(i, "line_type"),
			ACDCType:       t.str(i, "ac_dc_type"),
			SwitchGroup:    t.str(i, "switch_group"),
			CommYear:       t.str(i, "commissioning_year"),
			GeoCoords:      t.str(i, "geographic_coordinates"),
			Parallel:       1,
		})
	}

	t, err = readTable(filepath.Join(dir, "generators.csv"))
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.Generators = append(md.Generators, GenRecord{
			BusID:    t.str(i, "bus_id"),
			Name:     t.str(i, "generator_name"),
			PMW:      t.f64(i, "p_mw", 0),
			VmPu:     t.f64(i, "vm_pu", 1),
			SnMVA:    t.f64(i, "sn_mva", 0),
			Type:     t.str(i, "generation_type"),
			CommYear: t.str(i, "commissioning_year"),
		})
	}

	t, err = readTable(filepath.Join(dir, "loads.csv"))
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.Loads = append(md.Loads, LoadRecord{
			BusID:    t.str(i, "bus_id"),
			PMW:      t.f64(i, "p_mw", 0),
			QMVAR:    t.f64(i, "q_mvar", 0),
			Name:     t.str(i, "load_name"),
			LoadType: t.str(i, "load_type"),
		})
	}

	t, err = readTable(filepath.Join(dir, "transformers.csv"))
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.Transformers = append(md.Transformers, TrafoRecord{
			ID:      t.str(i, "transformer_id"),
			HvBusID: t.str(i, "hv_bus_id"),
			LvBusID: t.str(i, "lv_bus_id"),
			SnMVA:   t.f64(i, "sn_mva", 0),
		})
	}

	t, err = readTable(filepath.Join(dir, "external_grids.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("external grids file not found: %s (at least one slack bus must be defined)", filepath.Join(dir, "external_grids.csv"))
		}
		return nil, err
	}
	for i := 0; i < t.len(); i++ {
		md.ExtGrids = append(md.ExtGrids, ExtGridSpec{
			BusID:    t.str(i, "bus_id"),
			GridType: t.strDefault(i, "grid_type", GridBorder),
			VmPu:     t.f64(i, "vm_pu", DefaultSlackVmPu),
			MaxPMW:   t.f64(i, "max_p_mw", extGridPLimitMW),
			MinPMW:   t.f64(i, "min_p_mw", -extGridPLimitMW),
			Country:  t.strDefault(i, "country", "Unknown"),
		})
	}
	if len(md.ExtGrids) == 0 {
		return nil, fmt.Errorf("external_grids.csv is empty, at least one slack bus must be defined")
	}

	t, err = readTable(filepath.Join(dir, "hvdc_projects.csv"))
	switch {
	case os.IsNotExist(err):
		log.Println("[PowerNet] no HVDC projects file found (skipping)")
	case err != nil:
		return nil, err
	default:
		for i := 0; i < t.len(); i++ {
			md.HVDCProjects = append(md.HVDCProjects, HVDCRecord{
				Name:       t.str(i, "name"),
				FromLat:    t.f64(i, "from_lat", 0),
				FromLon:    t.f64(i, "from_lon", 0),
				ToLat:      t.f64(i, "to_lat", 0),
				ToLon:      t.f64(i, "to_lon", 0),
				CapacityMW: t.f64(i, "capacity_mw", 0),
				InService:  t.str(i, "in_service") == "true",
			})
		}
		log.Println("[PowerNet] found HVDC projects file:", len(md.HVDCProjects), "lines")
	}

	log.Printf("[PowerNet] loaded %d buses, %d connections, %d generators, %d loads, %d transformers, %d external grids",
		len(md.Buses), len(md.Connections), len(md.Generators), len(md.Loads),
		len(md.Transformers), len(md.ExtGrids))
	return md, nil
}

// csvTable is a header-keyed view on one ';'-separated file.
type csvTable struct {
	cols map[string]int
	rows [][]string
}

func readTable(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: missing header row", path)
	}

	t := &csvTable{cols: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		t.cols[name] = i
	}
	return t, nil
}

func (t *csvTable) len() int { return len(t.rows) }

func (t *csvTable) str(row int, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(t.rows[row]) {
		return ""
	}
	return t.rows[row][i]
}

func (t *csvTable) strDefault(row int, col, def string) string {
	if s := t.str(row, col); s != "" {
		return s
	}
	return def
}

// f64 parses a cell, empty cells and missing columns fall back to def.
func (t *csvTable) f64(row int, col string, def float64) float64 {
	s := t.str(row, col)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
