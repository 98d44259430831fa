package miner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// rawFeature is one exported line or cable record: a flat tag map plus
// a (lon, lat) polyline.
type rawFeature struct {
	Properties map[string]interface{} `json:"properties"`
	Geometry   [][]float64            `json:"geometry"`
}

// ImportStats counts how a raw collection split into kept and skipped
// records. Skips are per reason so a shrinking dataset is traceable to
// the tag problem that caused it.
type ImportStats struct {
	Loaded     int
	Filtered   int
	Virtual    int
	NoVoltage  int
	NoCircuit  int
	BadFreq    int
	BadCount   int
	NoGeometry int
	Duplicate  int
}

func (s ImportStats) Skipped() int {
	return s.Filtered + s.Virtual + s.NoVoltage + s.NoCircuit + s.BadFreq + s.BadCount + s.NoGeometry + s.Duplicate
}

func (s ImportStats) String() string {
	return fmt.Sprintf("%d loaded, %d filtered, %d no voltage, %d no circuit, %d bad frequency, %d bad count, %d no geometry, %d duplicate",
		s.Loaded, s.Filtered, s.NoVoltage, s.NoCircuit, s.BadFreq, s.BadCount, s.NoGeometry, s.Duplicate)
}

// countSkip sorts a record error into its stats bucket. Unknown errors
// are not skippable, those abort the import.
func (s *ImportStats) countSkip(id string, err error) error {
	var (
		noVolt   *model.NoVoltageError
		noCirc   *model.NoValidCircuitError
		badFreq  *model.PowerFrequencyError
		badCount *model.CircuitCountError
	)
	switch {
	case errors.Is(err, model.ErrFiltered):
		s.Filtered++
	case errors.Is(err, model.ErrAlreadyExists):
		s.Duplicate++
		log.Println("[Miner] duplicate record:", id)
	case errors.Is(err, model.ErrNoGeometry):
		s.NoGeometry++
	case errors.As(err, &noVolt):
		s.NoVoltage++
	case errors.As(err, &noCirc):
		s.NoCircuit++
	case errors.As(err, &badFreq):
		s.BadFreq++
		log.Println("[Miner] skipping record:", err)
	case errors.As(err, &badCount):
		s.BadCount++
		log.Println("[Miner] skipping record:", err)
	default:
		return fmt.Errorf("record %s: %w", id, err)
	}
	return nil
}

// ImportConnections reads an exported line or cable collection and adds
// every decomposable record to the registry.
func ImportConnections(reg *model.Registry, path string, typ model.ConnType, keep model.Filter) (ImportStats, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return ImportStats{}, err
	}

	var features []rawFeature
	if err := json.Unmarshal(raw, &features); err != nil {
		return ImportStats{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var stats ImportStats
	for _, f := range features {
		rec := connRecord(f.Properties, f.Geometry, typ)
		if _, err := reg.AddConnection(rec, keep); err != nil {
			if err := stats.countSkip(rec.ID, err); err != nil {
				return stats, err
			}
			continue
		}
		stats.Loaded++
	}
	return stats, nil
}

// ImportSubstations reads the exported substation collection. Entries
// with a virtual id prefix are synthetic markers, not stations.
func ImportSubstations(reg *model.Registry, path string, keep model.Filter) (ImportStats, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return ImportStats{}, err
	}

	var raws []map[string]interface{}
	if err := json.Unmarshal(raw, &raws); err != nil {
		return ImportStats{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var stats ImportStats
	for _, props := range raws {
		id := propString(props, "Id")
		if strings.HasPrefix(id, "way/Vir") {
			stats.Virtual++
			continue
		}

		rec := model.SubRecord{
			ID:       model.NormalizeID(id),
			Name:     propString(props, "Name"),
			Operator: propString(props, "Operator"),
			Lat:      propFloat(props, "Latitude"),
			Lon:      propFloat(props, "Longitude"),
			Voltages: flagVoltages(props),
		}

		if _, err := reg.AddSubstation(rec, keep); err != nil {
			if err := stats.countSkip(rec.ID, err); err != nil {
				return stats, err
			}
			continue
		}
		stats.Loaded++
	}
	return stats, nil
}

// connRecord extracts the typed fields out of a raw tag map. Voltage
// tags are numbered, capacity and ampacity tags carry the kV level they
// apply to in the tag name.
func connRecord(props map[string]interface{}, geometry [][]float64, typ model.ConnType) model.ConnRecord {
	rec := model.ConnRecord{
		ID:          model.NormalizeID(propString(props, "Id")),
		Type:        typ,
		CapacityMVA: make(map[float64]float64),
		AmpacityA:   make(map[float64]float64),
		Frequency:   propString(props, "Frequency"),
		Circuits:    propString(props, "Circuits"),
		Cables:      propString(props, "Cables"),
		Operator:    propString(props, "Operator"),
		Geometry:    flipGeometry(geometry),
	}

	dlrMin := make(map[float64]float64)
	dlrMax := make(map[float64]float64)

	for _, key := range sortedMapKeys(props) {
		val := propFloat(props, key)
		if val == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(key, "Voltage_"):
			rec.Voltages = append(rec.Voltages, val)
		case strings.HasPrefix(key, "Rated_Capacity_"):
			if v, ok := tagKV(key, "Rated_Capacity_"); ok {
				rec.CapacityMVA[v] = val
			}
		case strings.HasPrefix(key, "Maximum_Current_Imax_"):
			if v, ok := tagKV(key, "Maximum_Current_Imax_"); ok {
				rec.AmpacityA[v] = val
			}
		case strings.HasPrefix(key, "DLR_Min_"):
			if v, ok := tagKV(key, "DLR_Min_"); ok {
				dlrMin[v] = val
			}
		case strings.HasPrefix(key, "DLR_Max_C"):
			// DLR_Max_Current_* is a different tag family.
		case strings.HasPrefix(key, "DLR_Max_"):
			if v, ok := tagKV(key, "DLR_Max_"); ok {
				dlrMax[v] = val
			}
		}
	}

	if len(dlrMin) > 0 {
		rec.DLR = make(map[float64]model.DLR, len(dlrMin))
		for v, min := range dlrMin {
			rec.DLR[v] = model.DLR{MinA: min, MaxA: dlrMax[v]}
		}
	}

	return rec
}

// flagVoltages collects the boolean KV<level> flags of a substation
// record into voltages in volts.
func flagVoltages(props map[string]interface{}) []float64 {
	var voltages []float64
	for _, key := range sortedMapKeys(props) {
		if !strings.HasPrefix(key, "KV") {
			continue
		}
		set, ok := props[key].(bool)
		if !ok || !set {
			continue
		}
		kv, err := strconv.Atoi(key[2:])
		if err != nil {
			continue
		}
		voltages = append(voltages, float64(kv)*1000)
	}
	return voltages
}

// tagKV parses the kV level off a tag name, "Rated_Capacity_380" is
// the 380000 V entry. The level is the leading digits of the suffix.
func tagKV(key, prefix string) (float64, bool) {
	suffix := strings.TrimPrefix(key, prefix)
	i := 0
	for i < len(suffix) && suffix[i] >= '0' && suffix[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	kv, err := strconv.Atoi(suffix[:i])
	if err != nil {
		return 0, false
	}
	return float64(kv) * 1000, true
}

// flipGeometry converts exported (lon, lat) pairs into coords.
func flipGeometry(geometry [][]float64) []geo.Coord {
	coords := make([]geo.Coord, 0, len(geometry))
	for _, pt := range geometry {
		if len(pt) < 2 {
			continue
		}
		coords = append(coords, geo.NewCoord(pt[1], pt[0]))
	}
	return coords
}

// propString reads a tag that is usually a string but shows up as a
// number for some records.
func propString(props map[string]interface{}, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// propFloat reads a numeric tag, tolerating string-encoded numbers.
func propFloat(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
