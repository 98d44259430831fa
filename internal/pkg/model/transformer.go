package model

import "fmt"

// Transformer couples two voltage levels inside a substation. Ids embed
// the station and the coupled levels, with a counter to keep parallel
// units apart.
type Transformer struct {
	ID      string
	Sub     string
	HvV     float64
	LvV     float64
	PowerVA float64
	HvBus   string
	LvBus   string
}

func (t *Transformer) String() string {
	return fmt.Sprintf("%s: %g MVA %gkV <-> %gkV", t.ID, t.PowerVA/1e6, t.HvV/1000, t.LvV/1000)
}

// trafoPowerVA estimates unit power from the high voltage side.
func trafoPowerVA(hvV float64) float64 {
	if hvV > 200000 {
		return 600e6
	}
	return 80e6
}
