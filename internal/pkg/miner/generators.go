package miner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// rawGenerator is one unit record off the generator master data dump.
type rawGenerator struct {
	Status       string     `json:"UnitOperationalStatus"`
	EnergySource string     `json:"EnergySource"`
	Commission   *mongoDate `json:"CommissionDate"`
	Latitude     float64    `json:"Latitude"`
	Longitude    float64    `json:"Longitude"`
	GrossPowerKW float64    `json:"GrossPower"`
	LocationNr   string     `json:"LocationMaStRNumber"`
}

// mongoDate handles both extended JSON date encodings seen in dumps,
// an ISO string and a {"$numberLong": ms} wrapper.
type mongoDate struct {
	Date interface{} `json:"$date"`
}

func (d *mongoDate) Year() int {
	if d == nil {
		return 0
	}
	switch v := d.Date.(type) {
	case string:
		if len(v) >= 4 {
			if y, err := strconv.Atoi(v[:4]); err == nil {
				return y
			}
		}
	case map[string]interface{}:
		if raw, ok := v["$numberLong"].(string); ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return time.Unix(ms/1000, 0).UTC().Year()
			}
		}
	}
	return 0
}

// loadSubLocations maps grid location numbers onto station ids.
func loadSubLocations(path string) (map[string]string, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		ID   string   `json:"Id"`
		Locs []string `json:"GridLocation"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m := make(map[string]string)
	for _, e := range entries {
		subID := model.NormalizeID(e.ID)
		for _, loc := range e.Locs {
			m[loc] = subID
		}
	}
	return m, nil
}

// PolygonSet wraps a GeoJSON polygon collection for point containment
// checks. The ocean mask and the county regions both come in as one.
type PolygonSet struct {
	fc *geojson.FeatureCollection
}

// LoadPolygons reads a GeoJSON feature collection of polygons.
func LoadPolygons(path string) (*PolygonSet, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &PolygonSet{fc: fc}, nil
}

// Contains reports whether any polygon covers the point.
func (s *PolygonSet) Contains(c geo.Coord) bool {
	_, ok := s.Find(c)
	return ok
}

// Find returns the first feature whose polygon covers the point.
func (s *PolygonSet) Find(c geo.Coord) (*geojson.Feature, bool) {
	if s == nil || s.fc == nil {
		return nil, false
	}
	pt := c.Point()
	for _, f := range s.fc.Features {
		if geometryContains(f.Geometry, pt) {
			return f, true
		}
	}
	return nil, false
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

// GeneratorAggregate is station id -> energy source -> commission year
// -> gross power in W. Years are JSON object keys, so strings.
type GeneratorAggregate map[string]map[string]map[string]float64

func (a GeneratorAggregate) add(subID, genType string, year int, powerW float64) {
	types, ok := a[subID]
	if !ok {
		types = make(map[string]map[string]float64)
		a[subID] = types
	}
	years, ok := types[genType]
	if !ok {
		years = make(map[string]float64)
		types[genType] = years
	}
	years[strconv.Itoa(year)] += powerW
}

// PreprocessGenerators folds the unit dump, millions of records, into
// per-station aggregates and caches them as JSON. Units resolve to a
// station through the grid location mapping when that station is still
// in the model, otherwise to the nearest station.
func PreprocessGenerators(reg *model.Registry, jsonlPath, cachePath, subLocPath string, oceans *PolygonSet) error {
	locs := map[string]string{}
	if subLocPath != "" {
		var err error
		locs, err = loadSubLocations(subLocPath)
		if err != nil {
			return err
		}
	}

	f, err := os.Open(jsonlPath)
	if err != nil {
		return err
	}
	defer f.Close()

	agg := make(GeneratorAggregate)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSuffix(line, ",")
		if line == "" {
			continue
		}

		var rec rawGenerator
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("generator line %d: %w", n+1, err)
		}

		n++
		if n%200000 == 0 {
			log.Println("[Miner] processed", n, "generator records")
		}

		if rec.Status == "in planning" {
			continue
		}

		at := geo.NewCoord(rec.Latitude, rec.Longitude)

		genType := rec.EnergySource
		if genType == "wind" && oceans != nil {
			if oceans.Contains(at) {
				genType = "wind_offshore"
			} else {
				genType = "wind_onshore"
			}
		}

		subID, ok := locs[rec.LocationNr]
		if ok {
			// The location mapping references stations that island
			// pruning may have removed.
			if _, live := reg.Node(subID); !live {
				ok = false
			}
		}
		if !ok {
			subID, ok = reg.NearestSub(at)
			if !ok {
				return fmt.Errorf("no substation for generator at %s", at)
			}
		}

		agg.add(subID, genType, rec.Commission.Year(), rec.GrossPowerKW*1000)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	log.Println("[Miner] aggregated", n, "generator records onto", len(agg), "substations")

	raw, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(cachePath, raw, 0644)
}

// AttachGenerators loads the aggregate cache into the registry.
func AttachGenerators(reg *model.Registry, cachePath string) (int, error) {
	raw, err := ioutil.ReadFile(cachePath)
	if err != nil {
		return 0, err
	}

	var agg GeneratorAggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return 0, fmt.Errorf("parse %s: %w", cachePath, err)
	}

	count := 0
	for _, subID := range sortedMapKeys(agg) {
		for _, genType := range sortedMapKeys(agg[subID]) {
			for _, yearStr := range sortedMapKeys(agg[subID][genType]) {
				year, _ := strconv.Atoi(yearStr)
				powerW := agg[subID][genType][yearStr]
				if _, err := reg.AttachGenerator(subID, genType, powerW, year, ""); err != nil {
					// Stale cache entries point at stations pruned on
					// a later run. Re-run the preprocess to clear them.
					log.Println("[Miner] dropping generation block:", err)
					continue
				}
				count++
			}
		}
	}
	return count, nil
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
