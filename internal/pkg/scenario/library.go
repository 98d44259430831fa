package scenario

import "fmt"

// BaseCapacityFactors are the fallback dispatch factors per generation
// type, used where a scenario says nothing more specific.
var BaseCapacityFactors = map[string]float64{
	TypeSolar:            0.07,
	TypeWindOnshore:      0.20,
	TypeWindOffshore:     0.37,
	TypeWater:            0.37,
	TypeBiomass:          0.55,
	"warmth":             0.19,
	"non-biogenic waste": 0.34,
	"natural gas":        0.15,
	"coal":               0.35,
	"brown coal":         0.45,
	"petroleum products": 0.12,
	"other gases":        0.10,
	TypeStorage:          0.08,
	"hydrogen":           0.01,
	"pumped storage":     0.00,
}

// DefaultGenerationCosts are marginal costs in EUR/MWh per type.
var DefaultGenerationCosts = map[string]float64{
	TypeSolar:            0,
	TypeWindOnshore:      0,
	TypeWindOffshore:     0,
	TypeWater:            0,
	TypeBiomass:          50,
	"non-biogenic waste": 20,
	"warmth":             20,
	"brown coal":         40,
	"coal":               70,
	"natural gas":        90,
	"other gases":        90,
	"petroleum products": 100,
	"hydrogen":           120,
	TypeStorage:          10,
	"default":            50,
}

// StandardPrices is the border/import price template per country.
var StandardPrices = map[string]CostParams{
	"default":     {C1: 70, C2: 0.01},
	"Germany":     {C1: 70, C2: 0.01},
	"France":      {C1: 65, C2: 0.01},
	"Denmark":     {C1: 65, C2: 0.01},
	"Poland":      {C1: 80, C2: 0.01},
	"Austria":     {C1: 75, C2: 0.01},
	"Switzerland": {C1: 80, C2: 0.01},
	"Czechia":     {C1: 70, C2: 0.01},
	"Luxembourg":  {C1: 70, C2: 0.01},
	"Netherlands": {C1: 70, C2: 0.01},
	"Sweden":      {C1: 50, C2: 0.01},
	"Norway":      {C1: 50, C2: 0.01},
	"Belgium":     {C1: 72, C2: 0.01},
}

// Representative capacity-factor and load levels behind the study
// grid. The avg column tracks a typical hour of the 2024/25 reference
// year, low and high bracket it.
var (
	levelNames = []string{"low", "avg", "high"}

	pvLevels      = map[string]float64{"low": 0.00, "avg": 0.22, "high": 0.29}
	windOnLevels  = map[string]float64{"low": 0.10, "avg": 0.31, "high": 0.54}
	windOffLevels = map[string]float64{"low": 0.15, "avg": 0.40, "high": 0.60}
	loadLevels    = map[string]float64{"low": 0.93, "avg": 1.22, "high": 1.46}
)

// The battery variants reparameterize this grid member.
const batteryBase = "14.pv_avg_wind_avg_load_avg"

type batteryVariant struct {
	name   string
	mode   StorageMode
	cf     float64
	suffix string
}

var batteryVariants = []batteryVariant{
	{"avg_day_charge_low", StorageChargeOnly, 0.20, " | Mode: Charge Low"},
	{"avg_day_charge_high", StorageChargeOnly, 0.70, " | Mode: Charge High"},
	{"avg_day_discharge_low", StorageDischargeOnly, 0.20, " | Mode: Discharge Low"},
	{"avg_day_discharge_high", StorageDischargeOnly, 0.70, " | Mode: Discharge High"},
}

func buildLibrary() (map[string]Scenario, []string) {
	lib := make(map[string]Scenario)
	var order []string

	n := 0
	for _, pv := range levelNames {
		for _, wind := range levelNames {
			for _, ld := range levelNames {
				n++
				name := fmt.Sprintf("%d.pv_%s_wind_%s_load_%s", n, pv, wind, ld)
				lib[name] = Create(name,
					pvLevels[pv], windOnLevels[wind], windOffLevels[wind],
					loadLevels[ld], Overrides{})
				order = append(order, name)
			}
		}
	}

	base := lib[batteryBase]
	for _, v := range batteryVariants {
		s := base.clone()
		s.Name = v.name
		s.StorageMode = v.mode
		s.CapacityFactors[TypeStorage] = v.cf
		s.Description += v.suffix
		lib[v.name] = s
		order = append(order, v.name)
	}

	return lib, order
}

// Library returns the standard study set: the 27-member grid over PV,
// wind and load levels plus the four battery dispatch variants.
func Library() map[string]Scenario {
	lib, _ := buildLibrary()
	return lib
}

// Order returns the library names in study order.
func Order() []string {
	_, order := buildLibrary()
	return order
}

// Get looks a scenario up by name.
func Get(name string) (Scenario, bool) {
	lib, _ := buildLibrary()
	s, ok := lib[name]
	return s, ok
}
