/*
Package scenario parameterizes the base network for one study case:
capacity factors per generation type, load scaling, storage dispatch
mode and the OPF cost surface. Application is pure, the cached base
network never changes.
*/
package scenario

import "fmt"

// Generation type keys as they appear in the model tables.
const (
	TypeSolar        = "solar radiant energy"
	TypeWindOnshore  = "wind_onshore"
	TypeWindOffshore = "wind_offshore"
	TypeWater        = "water"
	TypeBiomass      = "biomass"
	TypeStorage      = "storage"
)

// StorageMode bounds storage dispatch during the optimization.
type StorageMode string

const (
	StorageBidirectional StorageMode = "bidirectional"
	StorageChargeOnly    StorageMode = "charge_only"
	StorageDischargeOnly StorageMode = "discharge_only"
)

// CostParams is one linear-quadratic cost curve, EUR/MWh terms.
type CostParams struct {
	C1 float64 `json:"c1"`
	C2 float64 `json:"c2"`
}

// Scenario is one study case over the base network.
type Scenario struct {
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	LoadScale       float64               `json:"loadScale"`
	CapacityFactors map[string]float64    `json:"capacityFactors"`
	GenerationCosts map[string]float64    `json:"generationCosts"`
	ImportCosts     map[string]CostParams `json:"importCosts"`
	StorageMode     StorageMode           `json:"storageMode"`
}

// Overrides carries per-scenario deviations from the default tables.
type Overrides struct {
	CFs    map[string]float64
	Prices map[string]CostParams
}

/// Create builds a scenario from the headline variables: solar, onshore
// and offshore wind capacity factors plus the load scale. Everything
// else starts from the default tables and takes the overrides on top.
func Create(name string, pv, wOn, wOff, load float64, ov Overrides) Scenario {
	cfs := copyFactors(BaseCapacityFactors)
	cfs[TypeSolar] = pv
	cfs[TypeWindOnshore] = wOn
	cfs[TypeWindOffshore] = wOff
	for k, v := range ov.CFs {
		cfs[k] = v
	}

	prices := copyPrices(StandardPrices)
	for k, v := range ov.Prices {
		prices[k] = v
	}

	desc := fmt.Sprintf("PV:%.2f | W_On:%.2f | W_Off:%.2f | Load:%.2f", pv, wOn, wOff, load)
	if len(ov.Prices) > 0 {
		desc += fmt.Sprintf(" | CustomPrices(%d)", len(ov.Prices))
	}

	return Scenario{
		Name:            name,
		Description:     desc,
		LoadScale:       load,
		CapacityFactors: cfs,
		GenerationCosts: copyFactors(DefaultGenerationCosts),
		ImportCosts:     prices,
		StorageMode:     StorageBidirectional,
	}
}

func (s Scenario) clone() Scenario {
	out := s
	out.CapacityFactors = copyFactors(s.CapacityFactors)
	out.GenerationCosts = copyFactors(s.GenerationCosts)
	out.ImportCosts = copyPrices(s.ImportCosts)
	return out
}

func copyFactors(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyPrices(src map[string]CostParams) map[string]CostParams {
	out := make(map[string]CostParams, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
