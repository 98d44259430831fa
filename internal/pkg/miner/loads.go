package miner

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// rawCountyLoad is one sector demand record of the county statistics
// collection.
type rawCountyLoad struct {
	NutsID     string `json:"name_short"`
	Year       int    `json:"year"`
	Sector     string `json:"sector"`
	Statistics struct {
		Year struct {
			Overall struct {
				Mean float64 `json:"mean"`
			} `json:"overall"`
		} `json:"year"`
	} `json:"statistics"`
}

// ImportCountyLoads folds the per-sector county demand records for the
// statistics window nearest the target year into regional loads. The
// dataset carries one entry per five-year window.
func ImportCountyLoads(reg *model.Registry, path string, year int) (int, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var raws []rawCountyLoad
	if err := json.Unmarshal(raw, &raws); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	window := 5 * int(math.RoundToEven(float64(year)/5))

	count := 0
	for _, rl := range raws {
		if rl.NutsID == "" || rl.Year != window {
			continue
		}
		reg.AddLoad(rl.NutsID, rl.Statistics.Year.Overall.Mean, rl.Sector)
		count++
	}

	log.Println("[Miner] imported", count, "county demand records for window", window)
	return count, nil
}

// rawLargeLoad is one planned large consumer record.
type rawLargeLoad struct {
	OID struct {
		Hex string `json:"$oid"`
	} `json:"_id"`
	Type              string      `json:"Type"`
	CommissioningDate interface{} `json:"CommissioningDate"`
	PowerCapacity     float64     `json:"PowerCapacity"`
	ConsumptionMinMW  float64     `json:"EstimatedConsumptionMin"`
	ConsumptionMaxMW  float64     `json:"EstimatedConsumptionMax"`
	Lat               float64     `json:"Lat"`
	Lon               float64     `json:"Long"`
}

func (l *rawLargeLoad) commYear() int {
	switch v := l.CommissioningDate.(type) {
	case float64:
		return int(v)
	case string:
		var y int
		fmt.Sscanf(v, "%d", &y)
		return y
	default:
		return 0
	}
}

// ImportLargeLoads adds planned large consumers on top of the county
// statistics. Existing consumers are already inside the county data, so
// only dated future entries count, plus big data centers without a
// date, those are missing from the statistics.
func ImportLargeLoads(reg *model.Registry, path string, year int) (int, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var raws []rawLargeLoad
	if err := json.Unmarshal(raw, &raws); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	count := 0
	for _, rl := range raws {
		comm := rl.commYear()
		undatedDC := rl.Type == "Data Center" && rl.ConsumptionMaxMW >= 20
		if comm == 0 && !undatedDC {
			continue
		}
		if comm == 0 {
			comm = 2000
		}
		if year > 0 && comm > year {
			continue
		}

		var powerMW float64
		switch {
		case rl.PowerCapacity > 0:
			powerMW = rl.PowerCapacity
		case rl.ConsumptionMinMW > 0 || rl.ConsumptionMaxMW > 0:
			powerMW = (rl.ConsumptionMinMW + rl.ConsumptionMaxMW) / 2
		default:
			log.Println("[Miner] large load without power data:", rl.OID.Hex)
			continue
		}

		id := "nep_" + rl.OID.Hex
		reg.AddLoad(id, powerMW, rl.Type)

		if subID, ok := reg.NearestSub(geo.NewCoord(rl.Lat, rl.Lon)); ok {
			reg.AttachLoad(id, subID)
		}
		count++
	}

	log.Println("[Miner] imported", count, "large consumer records")
	return count, nil
}

// AssignRegions tags every substation with the county polygon it sits
// in and links it to that county's load. Substations outside every
// polygon stay untagged, offshore platforms mostly.
func AssignRegions(reg *model.Registry, regionsPath string) (int, error) {
	regions, err := LoadPolygons(regionsPath)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, id := range reg.NodeIDs() {
		n, ok := reg.Node(id)
		if !ok || n.Type() != model.NodeSubstation {
			continue
		}
		f, ok := regions.Find(n.Coords())
		if !ok {
			continue
		}
		nuts, _ := f.Properties["NUTS"].(string)
		if nuts == "" {
			continue
		}
		reg.SetRegion(id, nuts)
		reg.AttachLoad(nuts, id)
		assigned++
	}

	log.Println("[Miner] assigned", assigned, "substations to county regions")
	return assigned, nil
}
