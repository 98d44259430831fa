package miner

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

func TestMongoDateYear(t *testing.T) {
	var iso mongoDate
	assert.NilError(t, json.Unmarshal([]byte(`{"$date": "2004-07-01T00:00:00Z"}`), &iso))
	assert.Equal(t, iso.Year(), 2004)

	var wrapped mongoDate
	assert.NilError(t, json.Unmarshal([]byte(`{"$date": {"$numberLong": "1088640000000"}}`), &wrapped))
	assert.Equal(t, wrapped.Year(), 2004)

	var missing *mongoDate
	assert.Equal(t, missing.Year(), 0)
}

func TestGeneratorAggregateFolds(t *testing.T) {
	agg := make(GeneratorAggregate)
	agg.add("100", "wind_onshore", 2010, 2e6)
	agg.add("100", "wind_onshore", 2010, 1e6)
	agg.add("100", "solar", 2010, 5e5)

	assert.Equal(t, agg["100"]["wind_onshore"]["2010"], 3e6)
	assert.Equal(t, agg["100"]["solar"]["2010"], 5e5)
}

func TestPolygonSetContains(t *testing.T) {
	path := writeTemp(t, "oceans.geojson", `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {},
			"geometry": {"type": "Polygon",
				"coordinates": [[[6, 53], [8, 53], [8, 56], [6, 56], [6, 53]]]}
		}]
	}`)

	oceans, err := LoadPolygons(path)
	assert.NilError(t, err)
	assert.Assert(t, oceans.Contains(geo.NewCoord(54.5, 7.5)))
	assert.Assert(t, !oceans.Contains(geo.NewCoord(52.0, 13.0)))
}

func TestPreprocessGenerators(t *testing.T) {
	reg := model.NewRegistry()
	mkSub(t, reg, "100", geo.NewCoord(52.0, 13.0), 110000, 220000)
	mkSub(t, reg, "200", geo.NewCoord(48.0, 10.0), 110000, 380000)

	dir := t.TempDir()
	oceanPath := filepath.Join(dir, "oceans.geojson")
	assert.NilError(t, ioutil.WriteFile(oceanPath, []byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {},
			"geometry": {"type": "Polygon",
				"coordinates": [[[6, 53], [8, 53], [8, 56], [6, 56], [6, 53]]]}
		}]
	}`), 0644))
	oceans, err := LoadPolygons(oceanPath)
	assert.NilError(t, err)

	subLocPath := filepath.Join(dir, "sublocs.json")
	assert.NilError(t, ioutil.WriteFile(subLocPath, []byte(`[
		{"Id": "way/200", "GridLocation": ["LOC1"]},
		{"Id": "way/999", "GridLocation": ["LOC2"]}
	]`), 0644))

	jsonlPath := filepath.Join(dir, "generators.jsonl")
	assert.NilError(t, ioutil.WriteFile(jsonlPath, []byte(
		`{"UnitOperationalStatus": "in operation", "EnergySource": "wind", "CommissionDate": {"$date": "2004-07-01T00:00:00Z"}, "Latitude": 54.5, "Longitude": 7.5, "GrossPower": 3000},
{"UnitOperationalStatus": "in operation", "EnergySource": "wind", "CommissionDate": {"$date": "2010-05-01T00:00:00Z"}, "Latitude": 52.1, "Longitude": 13.1, "GrossPower": 2000},

{"UnitOperationalStatus": "in operation", "EnergySource": "wind", "CommissionDate": {"$date": "2010-11-01T00:00:00Z"}, "Latitude": 52.1, "Longitude": 13.1, "GrossPower": 1000}
{"UnitOperationalStatus": "in planning", "EnergySource": "solar", "CommissionDate": {"$date": "2030-01-01T00:00:00Z"}, "Latitude": 52.0, "Longitude": 13.0, "GrossPower": 9999}
{"UnitOperationalStatus": "in operation", "EnergySource": "coal", "CommissionDate": {"$date": {"$numberLong": "1088640000000"}}, "Latitude": 52.0, "Longitude": 13.0, "GrossPower": 500000, "LocationMaStRNumber": "LOC1"}
{"UnitOperationalStatus": "in operation", "EnergySource": "gas", "CommissionDate": {"$date": "1999-01-01T00:00:00Z"}, "Latitude": 48.1, "Longitude": 10.1, "GrossPower": 100000, "LocationMaStRNumber": "LOC2"}
`), 0644))

	cachePath := filepath.Join(dir, "generators_aggregate.json")
	assert.NilError(t, PreprocessGenerators(reg, jsonlPath, cachePath, subLocPath, oceans))

	raw, err := ioutil.ReadFile(cachePath)
	assert.NilError(t, err)
	var agg GeneratorAggregate
	assert.NilError(t, json.Unmarshal(raw, &agg))

	// Offshore unit classified by the ocean mask, attached to the
	// nearest station.
	assert.Equal(t, agg["100"]["wind_offshore"]["2004"], 3e6)
	// Two onshore units of the same station and year fold.
	assert.Equal(t, agg["100"]["wind_onshore"]["2010"], 3e6)
	// Grid location mapping beats proximity while the station is live.
	assert.Equal(t, agg["200"]["coal"]["2004"], 5e8)
	// Mapping to a station outside the model falls back to proximity.
	assert.Equal(t, agg["200"]["gas"]["1999"], 1e8)

	_, planned := agg["100"]["solar"]
	assert.Assert(t, !planned)
}

func TestAttachGenerators(t *testing.T) {
	reg := model.NewRegistry()
	mkSub(t, reg, "100", geo.NewCoord(52.0, 13.0), 220000, 380000)

	cachePath := writeTemp(t, "generators_aggregate.json",
		`{"100": {"coal": {"2005": 500000000}}, "999": {"gas": {"2001": 1000000}}}`)

	count, err := AttachGenerators(reg, cachePath)
	assert.NilError(t, err)
	assert.Equal(t, count, 1)

	g, ok := reg.Gen("gen_100_coal_2005")
	assert.Assert(t, ok)
	assert.Equal(t, g.PowerW, 5e8)
	assert.Equal(t, g.Voltage, 220000.0)
	assert.Equal(t, g.CommYear, 2005)
}
