package miner

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

func TestImportCountyLoadsPicksStatisticsWindow(t *testing.T) {
	path := writeTemp(t, "counties.json", `[
		{"name_short": "DE1", "year": 2025, "sector": "industry",
		 "statistics": {"year": {"overall": {"mean": 60}}}},
		{"name_short": "DE1", "year": 2025, "sector": "household",
		 "statistics": {"year": {"overall": {"mean": 40}}}},
		{"name_short": "DE1", "year": 2020, "sector": "industry",
		 "statistics": {"year": {"overall": {"mean": 99}}}},
		{"name_short": "", "year": 2025, "sector": "industry",
		 "statistics": {"year": {"overall": {"mean": 11}}}},
		{"name_short": "DE2", "year": 2025, "sector": "industry",
		 "statistics": {"year": {"overall": {"mean": 30}}}}
	]`)

	reg := model.NewRegistry()
	count, err := ImportCountyLoads(reg, path, 2026)
	assert.NilError(t, err)
	assert.Equal(t, count, 3)

	de1, ok := reg.Load("DE1")
	assert.Assert(t, ok)
	assert.Equal(t, de1.PowerMW, 100.0)
	assert.DeepEqual(t, de1.SectorList(), []string{"household", "industry"})

	de2, ok := reg.Load("DE2")
	assert.Assert(t, ok)
	assert.Equal(t, de2.PowerMW, 30.0)
}

func TestImportLargeLoads(t *testing.T) {
	reg := model.NewRegistry()
	mkSub(t, reg, "100", geo.NewCoord(52.0, 13.0))

	path := writeTemp(t, "large.json", `[
		{"_id": {"$oid": "aaa"}, "Type": "Factory", "CommissioningDate": 2030,
		 "PowerCapacity": 50, "Lat": 52.0, "Long": 13.0},
		{"_id": {"$oid": "bbb"}, "Type": "Data Center",
		 "EstimatedConsumptionMin": 20, "EstimatedConsumptionMax": 40,
		 "Lat": 52.0, "Long": 13.001},
		{"_id": {"$oid": "ccc"}, "Type": "Factory", "CommissioningDate": 2040,
		 "PowerCapacity": 10, "Lat": 52.0, "Long": 13.0},
		{"_id": {"$oid": "ddd"}, "Type": "Factory", "PowerCapacity": 10,
		 "Lat": 52.0, "Long": 13.0},
		{"_id": {"$oid": "eee"}, "Type": "Factory", "CommissioningDate": "2031-01-01",
		 "Lat": 52.0, "Long": 13.0}
	]`)

	count, err := ImportLargeLoads(reg, path, 2035)
	assert.NilError(t, err)
	assert.Equal(t, count, 2)

	factory, ok := reg.Load("nep_aaa")
	assert.Assert(t, ok)
	assert.Equal(t, factory.PowerMW, 50.0)
	assert.DeepEqual(t, factory.SubList(), []string{"100"})

	// Undated data center above the size threshold, power from the
	// consumption estimate.
	dc, ok := reg.Load("nep_bbb")
	assert.Assert(t, ok)
	assert.Equal(t, dc.PowerMW, 30.0)

	_, ok = reg.Load("nep_ccc")
	assert.Assert(t, !ok)
	_, ok = reg.Load("nep_ddd")
	assert.Assert(t, !ok)
	_, ok = reg.Load("nep_eee")
	assert.Assert(t, !ok)
}

func TestAssignRegions(t *testing.T) {
	path := writeTemp(t, "counties.geojson", `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"NUTS": "DE300"},
			"geometry": {"type": "Polygon",
				"coordinates": [[[12, 51], [14, 51], [14, 53], [12, 53], [12, 51]]]}
		}]
	}`)

	reg := model.NewRegistry()
	mkSub(t, reg, "100", geo.NewCoord(52.0, 13.0))
	mkSub(t, reg, "200", geo.NewCoord(40.0, 5.0))
	reg.AddLoad("DE300", 100, "industry")

	assigned, err := AssignRegions(reg, path)
	assert.NilError(t, err)
	assert.Equal(t, assigned, 1)

	n, _ := reg.Node("100")
	assert.Equal(t, n.Region(), "DE300")

	l, _ := reg.Load("DE300")
	assert.DeepEqual(t, l.SubList(), []string{"100"})

	out, _ := reg.Node("200")
	assert.Equal(t, out.Region(), "")
}
