package scenario

import (
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

// Operating envelope the optimization runs under.
const (
	BusMinVmPu            = 0.95
	BusMaxVmPu            = 1.05
	MaxLineLoadingPercent = 100.0
)

// Reactive capability as a share of rated power. Machines absorb a
// little less than they deliver, border stations get the wide band.
const (
	genQRatio     = 0.33
	sgenQRatio    = 0.33
	storageQRatio = 0.3
	borderQRatio  = 0.6
	qAbsorbDerate = 0.8
)

// Slack and auxiliary cost terms. The steep slack curve keeps the
// reference bus out of the merit order until nothing else balances.
const (
	slackCostC1   = 1000.0
	slackCostC2   = 0.1
	storageCostC1 = 10.0
	storageCostC2 = 0.01
	dcLineCostC1  = 1.0
)

// Renewable sources for the dispatch share report.
var renewableTypes = map[string]bool{
	TypeSolar:        true,
	TypeWindOnshore:  true,
	TypeWindOffshore: true,
	TypeWater:        true,
	TypeBiomass:      true,
}

// Info summarizes what the scenario did to the network.
type Info struct {
	Name           string
	Description    string
	LoadScale      float64
	TotalGenMW     float64
	TotalLoadMW    float64
	GenByType      map[string]float64
	RenewableGenMW float64
	RenewablePct   float64
	GenLoadRatio   float64
}

// Apply parameterizes a copy of the base network for the scenario:
// dispatch bounds from nameplate times capacity factor, storage bounds
// by mode, uniform load scaling and a fresh cost surface. The base
// network itself is never touched.
func Apply(base *powernet.Network, s Scenario) (*powernet.Network, Info) {
	net := base.Copy()
	net.Name = s.Name
	net.ClearResults()

	byType := make(map[string]float64)

	for i := range net.Gens {
		g := &net.Gens[i]
		if g.Type == powernet.GridBorder {
			continue
		}
		actual := nameplate(g.NameplatePMW, g.PMW) * s.factor(g.Type)
		g.PMW = actual
		g.MaxPMW = actual
		g.MinPMW = 0.5 * actual
		byType[g.Type] += actual
	}
	for i := range net.SGens {
		g := &net.SGens[i]
		actual := nameplate(g.NameplatePMW, g.PMW) * s.factor(g.Type)
		g.PMW = actual
		g.MaxPMW = actual
		g.MinPMW = 0.5 * actual
		byType[g.Type] += actual
	}
	for i := range net.Storages {
		st := &net.Storages[i]
		actual := nameplate(st.NameplatePMW, st.PMW) * s.factor(st.Type)
		st.PMW = actual
		switch s.StorageMode {
		case StorageChargeOnly:
			st.MaxPMW = 0
			st.MinPMW = -actual
		case StorageDischargeOnly:
			st.MaxPMW = actual
			st.MinPMW = 0
		default:
			st.MaxPMW = actual
			st.MinPMW = -actual
		}
		byType[st.Type] += actual
	}

	scale := s.LoadScale
	if scale == 0 {
		scale = 1.0
	}
	totalLoad := 0.0
	for i := range net.Loads {
		l := &net.Loads[i]
		l.Scaling = scale
		l.PMW = l.NameplatePMW * scale
		l.QMVAR = l.NameplateQMVAR * scale
		totalLoad += l.PMW
	}

	setupConstraints(net, s)
	setupCosts(net, s)

	totalGen, renewable := 0.0, 0.0
	for t, p := range byType {
		totalGen += p
		if renewableTypes[t] {
			renewable += p
		}
	}

	info := Info{
		Name:           s.Name,
		Description:    s.Description,
		LoadScale:      scale,
		TotalGenMW:     totalGen,
		TotalLoadMW:    totalLoad,
		GenByType:      byType,
		RenewableGenMW: renewable,
	}
	if totalGen > 0 {
		info.RenewablePct = renewable / totalGen * 100
	}
	if totalLoad > 0 {
		info.GenLoadRatio = totalGen / totalLoad
	}
	return net, info
}

// factor resolves the capacity factor for a generation type. Missing
// types dispatch at nameplate, the repair pass flags the imbalance.
func (s Scenario) factor(genType string) float64 {
	if cf, ok := s.CapacityFactors[genType]; ok {
		return cf
	}
	return 1.0
}

func nameplate(installed, p float64) float64 {
	if installed > 0 {
		return installed
	}
	return p
}

// setupConstraints stamps voltage bands, reactive capability and
// thermal limits onto the scenario copy.
func setupConstraints(net *powernet.Network, s Scenario) {
	for i := range net.Buses {
		net.Buses[i].MinVmPu = BusMinVmPu
		net.Buses[i].MaxVmPu = BusMaxVmPu
	}

	for i := range net.Gens {
		g := &net.Gens[i]
		if g.Type == powernet.GridBorder {
			q := g.SnMVA * borderQRatio
			if g.SnMVA == 0 {
				q = 9999
			}
			g.MinQMVAR = -q
			g.MaxQMVAR = q
			continue
		}
		sn := g.SnMVA
		if sn == 0 {
			sn = g.PMW / 0.9
		}
		g.MinQMVAR = -sn * genQRatio * qAbsorbDerate
		g.MaxQMVAR = sn * genQRatio
	}
	for i := range net.SGens {
		g := &net.SGens[i]
		g.MinQMVAR = -g.PMW * sgenQRatio * qAbsorbDerate
		g.MaxQMVAR = g.PMW * sgenQRatio
	}
	for i := range net.Storages {
		st := &net.Storages[i]
		sn := st.SnMVA
		if sn == 0 {
			sn = st.NameplatePMW
		}
		st.MinQMVAR = -sn * storageQRatio
		st.MaxQMVAR = sn * storageQRatio
	}

	for i := range net.Lines {
		net.Lines[i].MaxLoadingPercent = MaxLineLoadingPercent
	}
}

// setupCosts rebuilds the poly cost table from the scenario cost maps.
func setupCosts(net *powernet.Network, s Scenario) {
	net.PolyCosts = net.PolyCosts[:0]

	genCosts := s.GenerationCosts
	if genCosts == nil {
		genCosts = DefaultGenerationCosts
	}
	importCosts := s.ImportCosts
	if importCosts == nil {
		importCosts = StandardPrices
	}
	defaultCost := 50.0
	if c, ok := genCosts["default"]; ok {
		defaultCost = c
	}

	for i := range net.Gens {
		g := net.Gens[i]
		if g.Type == powernet.GridBorder {
			p := matchImportCost(g.Name, importCosts)
			net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
				ElementType: powernet.ElementGen, Element: i, C1: p.C1, C2: p.C2,
			})
			continue
		}
		net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
			ElementType: powernet.ElementGen, Element: i,
			C1: MatchGenerationCost(g.Type, genCosts, defaultCost),
		})
	}
	for i := range net.SGens {
		net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
			ElementType: powernet.ElementSGen, Element: i,
			C1: MatchGenerationCost(net.SGens[i].Type, genCosts, defaultCost),
		})
	}
	for i := range net.Storages {
		net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
			ElementType: powernet.ElementStorage, Element: i,
			C1: storageCostC1, C2: storageCostC2,
		})
	}
	for i := range net.DCLines {
		if net.DCLines[i].InService {
			net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
				ElementType: powernet.ElementDCLine, Element: i, C1: dcLineCostC1,
			})
		}
	}
	for i := range net.ExtGrids {
		net.ExtGrids[i].Controllable = true
		net.PolyCosts = append(net.PolyCosts, powernet.PolyCost{
			ElementType: powernet.ElementExtGrid, Element: i,
			C1: slackCostC1, C2: slackCostC2,
		})
	}
}

// matchImportCost resolves a border station to its country price row.
// Station names carry the country ("Border_France").
func matchImportCost(name string, prices map[string]CostParams) CostParams {
	country := strings.TrimPrefix(name, "Border_")
	for k, v := range prices {
		if k != "default" && strings.Contains(country, k) {
			return v
		}
	}
	if p, ok := prices["default"]; ok {
		return p
	}
	return CostParams{C1: 0, C2: 0.02}
}

// MatchGenerationCost resolves a generation type to its marginal cost:
// exact key first, then separator-normalized substring match in either
// direction, then the default.
func MatchGenerationCost(genType string, costs map[string]float64, def float64) float64 {
	if c, ok := costs[genType]; ok {
		return c
	}
	clean := normalizeType(genType)
	for k, c := range costs {
		if k == "default" {
			continue
		}
		if strings.Contains(genType, k) {
			return c
		}
		kc := normalizeType(k)
		if strings.Contains(clean, kc) || strings.Contains(kc, clean) {
			return c
		}
	}
	return def
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "_", " ")
	return strings.ReplaceAll(t, "-", " ")
}
