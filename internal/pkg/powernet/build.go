package powernet

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
)

// Modeler builds the static base network (nameplate capacities) from
// the intermediate model tables.
type Modeler struct {
	cfg Config
}

// NewModeler returns a builder over cfg.
func NewModeler(cfg Config) *Modeler {
	return &Modeler{cfg: cfg}
}

// Config returns the active settings.
func (m *Modeler) Config() Config {
	return m.cfg
}

// BaseNetwork returns the cached base network when one exists, else
// rebuilds from the model CSVs. A cache that fails to decode is logged
// and rebuilt, never fatal.
func (m *Modeler) BaseNetwork() (*Network, []ExtGridSpec, error) {
	if !m.cfg.RebuildCache {
		net, specs, err := LoadCache(m.cfg.CachePath)
		if err == nil {
			log.Printf("[PowerNet] base network loaded from cache: %s", net.Summary())
			return net, specs, nil
		}
		if !os.IsNotExist(err) {
			log.Printf("[PowerNet] cache load failed (%v), falling back to rebuild", err)
		}
	}
	return m.Rebuild()
}

// Rebuild runs the full build: load, preprocess, external grid setup,
// assembly, connectivity pruning, and caches the result.
func (m *Modeler) Rebuild() (*Network, []ExtGridSpec, error) {
	md, err := LoadModel(m.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	Preprocess(md)

	specs, err := m.ExternalGrids(md)
	if err != nil {
		return nil, nil, err
	}

	net := m.Assemble(md, specs)
	net, err = m.pruneIslands(net)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[PowerNet] base network ready: %s", net.Summary())

	if err := SaveCache(m.cfg.CachePath, net, specs); err != nil {
		log.Printf("[PowerNet] cache write failed: %v", err)
	} else {
		log.Println("[PowerNet] network cached at", m.cfg.CachePath)
	}
	return net, specs, nil
}

// ExternalGrids resolves the configured external grid rows against the
// model: duplicate buses are an error, rows naming unknown buses are
// skipped. When no main slack survives, one is selected automatically.
func (m *Modeler) ExternalGrids(md *ModelData) ([]ExtGridSpec, error) {
	seen := make(map[string]bool)
	var dups []string
	for _, spec := range md.ExtGrids {
		if seen[spec.BusID] {
			dups = append(dups, spec.BusID)
		}
		seen[spec.BusID] = true
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("duplicate bus_ids in external_grids.csv: %v", dups)
	}

	known := make(map[string]bool, len(md.Buses))
	for _, b := range md.Buses {
		known[b.BusID] = true
	}

	var specs []ExtGridSpec
	haveSlack := false
	for _, spec := range md.ExtGrids {
		if !known[spec.BusID] {
			log.Printf("[PowerNet] external grid bus %s not found, skipping", spec.BusID)
			continue
		}
		if spec.GridType == GridMainSlack {
			spec.VaDeg = DefaultSlackVaDeg
			spec.SlackWeight = 1.0
			haveSlack = true
		} else {
			spec.VaDeg = 0
			spec.SlackWeight = 0
		}
		specs = append(specs, spec)
	}

	if !haveSlack {
		slack, ok := m.autoSelectSlack(md)
		if !ok {
			return nil, fmt.Errorf("no slack bus configured and none selectable")
		}
		specs = append(specs, slack)
	}

	log.Printf("[PowerNet] %d external grids configured", len(specs))
	return specs, nil
}

// autoSelectSlack picks a slack among the best-connected 380 kV buses
// (220 kV fallback), closest to the configured reference point.
func (m *Modeler) autoSelectSlack(md *ModelData) (ExtGridSpec, bool) {
	candidates := busesAtLevel(md.Buses, 380)
	if len(candidates) == 0 {
		candidates = busesAtLevel(md.Buses, 220)
	}
	if len(candidates) == 0 {
		return ExtGridSpec{}, false
	}

	counts := make(map[string]int)
	for _, c := range md.Connections {
		counts[c.FromBusID] += c.Parallel
		counts[c.ToBusID] += c.Parallel
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return counts[candidates[i].BusID] > counts[candidates[j].BusID]
	})
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	ref := geo.Coord{Lat: m.cfg.SlackRefLat, Lon: m.cfg.SlackRefLon}
	best := 0
	bestDist := math.Inf(1)
	for i, b := range candidates {
		d := ref.DegreeDistance(geo.Coord{Lat: b.Lat, Lon: b.Lon})
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	pick := candidates[best]
	log.Printf("[PowerNet] auto-selected slack: %s (%d connections)", pick.Name, counts[pick.BusID])
	return ExtGridSpec{
		BusID:       pick.BusID,
		GridType:    GridMainSlack,
		VmPu:        DefaultSlackVmPu,
		VaDeg:       DefaultSlackVaDeg,
		SlackWeight: 1.0,
		MaxPMW:      extGridPLimitMW,
		MinPMW:      -extGridPLimitMW,
		Country:     "Germany",
	}, true
}

func busesAtLevel(buses []BusRecord, vnKV float64) []BusRecord {
	var out []BusRecord
	for _, b := range buses {
		if b.VnKV == vnKV {
			out = append(out, b)
		}
	}
	return out
}

// Assemble builds the table set from the preprocessed model. Only
// buses at the standard voltage levels enter; every branch needs both
// ends alive.
func (m *Modeler) Assemble(md *ModelData, specs []ExtGridSpec) *Network {
	net := &Network{Name: "German Grid Base"}

	levels := make(map[float64]bool)
	for _, v := range StandardVoltageLevels {
		levels[v] = true
	}

	busIdx := make(map[string]int)
	for _, b := range md.Buses {
		if !levels[b.VnKV] {
			continue
		}
		busIdx[b.BusID] = len(net.Buses)
		net.Buses = append(net.Buses, Bus{
			ID: b.BusID, Name: b.Name, VnKV: b.VnKV, Lat: b.Lat, Lon: b.Lon,
		})
	}

	extGridBuses := make(map[int]bool)
	for _, spec := range specs {
		idx, ok := busIdx[spec.BusID]
		if !ok {
			continue
		}
		if spec.GridType == GridMainSlack {
			net.ExtGrids = append(net.ExtGrids, ExtGrid{
				Name:        "ExtGrid_" + spec.Country,
				Bus:         idx,
				Type:        GridMainSlack,
				VmPu:        spec.VmPu,
				VaDeg:       spec.VaDeg,
				SlackWeight: spec.SlackWeight,
				MinPMW:      spec.MinPMW,
				MaxPMW:      spec.MaxPMW,
			})
		} else {
			sn := math.Max(math.Abs(spec.MaxPMW), math.Abs(spec.MinPMW))
			if sn == 0 {
				sn = 1000
			}
			net.Gens = append(net.Gens, Gen{
				Name:           "Border_" + spec.Country,
				Bus:            idx,
				Type:           GridBorder,
				VmPu:           spec.VmPu,
				SnMVA:          sn,
				MinPMW:         spec.MinPMW,
				MaxPMW:         spec.MaxPMW,
				NameplatePMW:   sn,
				NameplateSnMVA: sn,
				Controllable:   true,
			})
		}
		extGridBuses[idx] = true
	}

	for _, c := range md.Connections {
		from, okF := busIdx[c.FromBusID]
		to, okT := busIdx[c.ToBusID]
		if !okF || !okT {
			continue
		}
		net.Lines = append(net.Lines, Line{
			Name:           c.Name,
			FromBus:        from,
			ToBus:          to,
			LengthKm:       c.LengthKm,
			ROhmPerKm:      c.ROhmPerKm,
			XOhmPerKm:      c.XOhmPerKm,
			CNfPerKm:       c.CNfPerKm,
			MaxIKA:         c.MaxIKA,
			Parallel:       c.Parallel,
			CablesPerPhase: c.CablesPerPhase,
			LineType:       c.LineType,
			ACDCType:       c.ACDCType,
			GeoCoords:      c.GeoCoords,
		})
	}

	for _, tr := range md.Transformers {
		hv, okH := busIdx[tr.HvBusID]
		lv, okL := busIdx[tr.LvBusID]
		if !okH || !okL {
			continue
		}
		net.Trafos = append(net.Trafos, Trafo{
			Name:       tr.ID,
			HvBus:      hv,
			LvBus:      lv,
			SnMVA:      tr.SnMVA,
			VnHvKV:     net.Buses[hv].VnKV,
			VnLvKV:     net.Buses[lv].VnKV,
			VkPercent:  tr.VkPercent,
			VkrPercent: tr.VkrPercent,
			PfeKW:      tr.PfeKW,
			I0Percent:  tr.I0Percent,
		})
	}

	m.addHVDC(net, md)
	m.addGenerationAndDemand(net, md, busIdx, extGridBuses)
	return net
}

// addHVDC snaps each in-service corridor onto the nearest 380 kV buses
// and books converter losses plus symmetric reactive support.
func (m *Modeler) addHVDC(net *Network, md *ModelData) {
	if len(md.HVDCProjects) == 0 {
		return
	}
	var hv []int
	for i := range net.Buses {
		if net.Buses[i].VnKV == 380 {
			hv = append(hv, i)
		}
	}
	if len(hv) == 0 {
		return
	}
	log.Println("[PowerNet] integrating HVDC projects")

	nearest := func(lat, lon float64) int {
		at := geo.Coord{Lat: lat, Lon: lon}
		best, bestDist := hv[0], math.Inf(1)
		for _, idx := range hv {
			b := net.Buses[idx]
			if d := at.DegreeDistance(geo.Coord{Lat: b.Lat, Lon: b.Lon}); d < bestDist {
				best, bestDist = idx, d
			}
		}
		return best
	}

	count := 0
	for _, p := range md.HVDCProjects {
		if !p.InService {
			continue
		}
		capMW := p.CapacityMW
		net.DCLines = append(net.DCLines, DCLine{
			Name:         p.Name,
			FromBus:      nearest(p.FromLat, p.FromLon),
			ToBus:        nearest(p.ToLat, p.ToLon),
			PMW:          capMW,
			LossPercent:  1.5,
			LossMW:       0.5,
			VmFromPu:     1.0,
			VmToPu:       1.0,
			MaxPMW:       capMW,
			MinQFromMVAR: -capMW * 0.5,
			MaxQFromMVAR: capMW * 0.5,
			MinQToMVAR:   -capMW * 0.5,
			MaxQToMVAR:   capMW * 0.5,
			InService:    true,
		})
		count++
	}
	log.Printf("[PowerNet] added %d HVDC corridors", count)
}

// addGenerationAndDemand places every generation block as storage, PV
// gen or PQ sgen, and every load with its nameplate demand.
func (m *Modeler) addGenerationAndDemand(net *Network, md *ModelData, busIdx map[string]int, extGridBuses map[int]bool) {
	pv := m.pvBuses(net, md, busIdx, extGridBuses)

	for _, g := range md.Generators {
		idx, ok := busIdx[g.BusID]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(g.Type), "storage") {
			net.Storages = append(net.Storages, Storage{
				Name:           g.Name,
				Bus:            idx,
				Type:           g.Type,
				SnMVA:          g.SnMVA,
				MaxEMWh:        g.SnMVA * 2,
				MaxPMW:         g.PMW,
				MinPMW:         -g.PMW,
				NameplatePMW:   g.PMW,
				NameplateSnMVA: g.SnMVA,
				Controllable:   true,
			})
			continue
		}
		if pv[idx] {
			net.Gens = append(net.Gens, Gen{
				Name:           g.Name,
				Bus:            idx,
				Type:           g.Type,
				PMW:            g.PMW,
				VmPu:           g.VmPu,
				SnMVA:          g.SnMVA,
				NameplatePMW:   g.PMW,
				NameplateSnMVA: g.SnMVA,
				Controllable:   true,
			})
		} else {
			net.SGens = append(net.SGens, SGen{
				Name:           g.Name,
				Bus:            idx,
				Type:           g.Type,
				PMW:            g.PMW,
				SnMVA:          g.SnMVA,
				NameplatePMW:   g.PMW,
				NameplateSnMVA: g.SnMVA,
				Controllable:   true,
			})
		}
	}

	for _, l := range md.Loads {
		idx, ok := busIdx[l.BusID]
		if !ok {
			continue
		}
		net.Loads = append(net.Loads, Load{
			Name:           l.Name,
			Bus:            idx,
			PMW:            l.PMW,
			QMVAR:          l.QMVAR,
			Scaling:        1.0,
			NameplatePMW:   l.PMW,
			NameplateQMVAR: l.QMVAR,
		})
	}
}

// pvBuses selects which generator buses run voltage-controlled. Buses
// already held by an external grid or border station never do.
func (m *Modeler) pvBuses(net *Network, md *ModelData, busIdx map[string]int, extGridBuses map[int]bool) map[int]bool {
	strategy := m.cfg.PVStrategy
	if strategy == "" {
		strategy = PVVoltageBased
	}
	pvLevels := m.cfg.PVVoltageLevels
	if len(pvLevels) == 0 {
		pvLevels = []float64{380}
	}

	pv := make(map[int]bool)
	for _, g := range md.Generators {
		idx, ok := busIdx[g.BusID]
		if !ok || extGridBuses[idx] {
			continue
		}
		v := net.Buses[idx].VnKV
		switch strategy {
		case PVMixed:
			if v == 220 || v == 380 {
				pv[idx] = true
			}
		case PVVoltageBased:
			for _, lvl := range pvLevels {
				if v == lvl {
					pv[idx] = true
					break
				}
			}
		case PVAllGenBuses:
			pv[idx] = true
		}
	}
	return pv
}

// DisconnectedBus is one audit entry for a bus dropped by the
// connectivity check.
type DisconnectedBus struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	VnKV float64 `json:"vn_kv"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// pruneIslands keeps the largest connected component and writes the
// dropped buses to a JSON side file for the map layer. The side file
// is removed again when the network is fully connected.
func (m *Modeler) pruneIslands(net *Network) (*Network, error) {
	discPath := filepath.Join(m.cfg.OutputDir, "disconnected_buses.json")

	comp := Components(net)
	sizes := make(map[int]int)
	for _, c := range comp {
		sizes[c]++
	}
	if len(sizes) <= 1 {
		log.Println("[PowerNet] network is fully connected")
		if err := os.Remove(discPath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		return net, nil
	}

	main, mainSize := 0, 0
	for c, size := range sizes {
		if size > mainSize || (size == mainSize && c < main) {
			main, mainSize = c, size
		}
	}
	log.Printf("[PowerNet] found %d components, keeping largest (%d buses)", len(sizes), mainSize)

	keep := make(map[int]bool)
	var disc []DisconnectedBus
	for i, c := range comp {
		if c == main {
			keep[i] = true
			continue
		}
		b := net.Buses[i]
		disc = append(disc, DisconnectedBus{
			ID: b.ID, Name: b.Name, VnKV: b.VnKV, Lat: b.Lat, Lon: b.Lon,
		})
	}
	log.Printf("[PowerNet] removing %d disconnected buses", len(disc))

	if err := os.MkdirAll(m.cfg.OutputDir, 0755); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(disc)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(discPath, raw, 0644); err != nil {
		return nil, err
	}

	return net.SelectSubnet(keep), nil
}

// Components labels every bus with its connected component root.
// Lines, transformers and DC corridors all count as edges.
func Components(net *Network) []int {
	parent := make([]int, len(net.Buses))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for _, l := range net.Lines {
		union(l.FromBus, l.ToBus)
	}
	for _, t := range net.Trafos {
		union(t.HvBus, t.LvBus)
	}
	for _, d := range net.DCLines {
		union(d.FromBus, d.ToBus)
	}

	out := make([]int, len(parent))
	for i := range parent {
		out[i] = find(i)
	}
	return out
}
