package miner

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ohmwork/gridcore/internal/pkg/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NilError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConnRecordExtraction(t *testing.T) {
	props := map[string]interface{}{
		"Id":                       float64(184010752),
		"Cables":                   "6",
		"Circuits":                 "2",
		"Frequency":                nil,
		"Operator":                 "Amprion;Westnetz",
		"Voltage_1":                float64(380000),
		"Voltage_2":                float64(220000),
		"Rated_Capacity_380":       float64(1790),
		"Maximum_Current_Imax_380": float64(2720),
		"DLR_Min_380":              float64(2000),
		"DLR_Max_380":              float64(3000),
		"DLR_Max_Current":          float64(999),
	}
	geometry := [][]float64{{13.0, 52.0}, {13.01, 52.0}}

	rec := connRecord(props, geometry, model.ConnLine)

	assert.Equal(t, rec.ID, "184010752")
	assert.DeepEqual(t, rec.Voltages, []float64{380000, 220000})
	assert.Equal(t, rec.CapacityMVA[380000], 1790.0)
	assert.Equal(t, rec.AmpacityA[380000], 2720.0)
	assert.Equal(t, rec.DLR[380000].MinA, 2000.0)
	assert.Equal(t, rec.DLR[380000].MaxA, 3000.0)
	assert.Equal(t, len(rec.DLR), 1)
	assert.Equal(t, rec.Operator, "Amprion;Westnetz")
	assert.Equal(t, rec.Frequency, "")
	assert.Equal(t, rec.Geometry[0].Lat, 52.0)
	assert.Equal(t, rec.Geometry[0].Lon, 13.0)
}

func TestFlagVoltages(t *testing.T) {
	props := map[string]interface{}{
		"Id":    "way/123",
		"KV380": true,
		"KV220": false,
		"KV110": true,
		"Name":  "Example",
	}
	assert.DeepEqual(t, flagVoltages(props), []float64{110000, 380000})
}

func TestTagKV(t *testing.T) {
	v, ok := tagKV("Rated_Capacity_380", "Rated_Capacity_")
	assert.Assert(t, ok)
	assert.Equal(t, v, 380000.0)

	_, ok = tagKV("Rated_Capacity_", "Rated_Capacity_")
	assert.Assert(t, !ok)
}

func TestPropStringCoercesNumbers(t *testing.T) {
	props := map[string]interface{}{
		"Circuits": float64(3),
		"Cables":   "9;3",
		"Gone":     nil,
	}
	assert.Equal(t, propString(props, "Circuits"), "3")
	assert.Equal(t, propString(props, "Cables"), "9;3")
	assert.Equal(t, propString(props, "Gone"), "")
	assert.Equal(t, propString(props, "Missing"), "")
}

func TestImportConnectionsCountsSkips(t *testing.T) {
	path := writeTemp(t, "lines.json", `[
		{"properties": {"Id": 1, "Voltage_1": 380000, "Cables": "6", "Circuits": "2", "Frequency": "50", "Operator": "Op"},
		 "geometry": [[13.0, 52.0], [13.01, 52.0]]},
		{"properties": {"Id": 2, "Voltage_1": 110000, "Cables": "3", "Circuits": "1", "Frequency": "50", "Operator": "Op"},
		 "geometry": [[13.0, 52.0], [13.01, 52.0]]},
		{"properties": {"Id": 3, "Cables": "3", "Circuits": "1", "Frequency": "50", "Operator": "Op"},
		 "geometry": [[13.0, 52.0], [13.01, 52.0]]},
		{"properties": {"Id": 4, "Voltage_1": 380000, "Cables": "6", "Circuits": "2", "Frequency": "50", "Operator": "Op"},
		 "geometry": [[13.0, 52.0]]}
	]`)

	reg := model.NewRegistry()
	keep := func(maxV float64) bool { return maxV >= 200000 }

	stats, err := ImportConnections(reg, path, model.ConnLine, keep)
	assert.NilError(t, err)

	assert.Equal(t, stats.Loaded, 1)
	assert.Equal(t, stats.Filtered, 1)
	assert.Equal(t, stats.NoVoltage, 1)
	assert.Equal(t, stats.NoGeometry, 1)

	c, ok := reg.Conn("1")
	assert.Assert(t, ok)
	assert.Equal(t, len(c.Circuits), 2)
}

func TestImportSubstationsSkipsVirtual(t *testing.T) {
	path := writeTemp(t, "substations.json", `[
		{"Id": "way/100", "Name": "Nord", "Operator": "Op", "Latitude": 52.5, "Longitude": 13.3, "KV380": true, "KV110": true},
		{"Id": "way/Vir123", "Name": "Marker", "Latitude": 52.6, "Longitude": 13.4, "KV380": true},
		{"Id": "way/200", "Name": "Leer", "Latitude": 52.7, "Longitude": 13.5}
	]`)

	reg := model.NewRegistry()
	stats, err := ImportSubstations(reg, path, nil)
	assert.NilError(t, err)

	assert.Equal(t, stats.Loaded, 1)
	assert.Equal(t, stats.Virtual, 1)
	assert.Equal(t, stats.NoVoltage, 1)

	s, ok := reg.Substation("100")
	assert.Assert(t, ok)
	assert.Equal(t, s.Name(), "Nord")
	assert.DeepEqual(t, s.Voltages(), []float64{110000, 380000})
}
