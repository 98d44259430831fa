package powernet

import (
	"encoding/json"
	"io/ioutil"
)

// Model physics and solver defaults. The transformer short-circuit
// set is the standard 380/220 kV coupling transformer, demand follows
// a fixed power factor.
const (
	PowerFactor = 0.98

	TrafoVkPercent  = 12.5
	TrafoVkrPercent = 0.35
	TrafoPfeKW      = 60.0
	TrafoI0Percent  = 0.1

	DefaultSlackVmPu  = 1.0
	DefaultSlackVaDeg = 0.0
)

// StandardVoltageLevels limits the transmission model to the grid
// levels the analysis runs on.
var StandardVoltageLevels = []float64{220, 380}

// PV control strategies for generator buses.
const (
	PVVoltageBased = "voltage_based"
	PVMixed        = "mixed"
	PVAllGenBuses  = "all_gen_buses"
)

// Config ties the builder to its file locations and control strategy.
type Config struct {
	DataDir         string    `json:"dataDir"`
	OutputDir       string    `json:"outputDir"`
	CachePath       string    `json:"cachePath"`
	RebuildCache    bool      `json:"rebuildCache"`
	PVStrategy      string    `json:"pvStrategy"`
	PVVoltageLevels []float64 `json:"pvVoltageLevels"`
	SlackRefLat     float64   `json:"slackRefLat"`
	SlackRefLon     float64   `json:"slackRefLon"`
}

// DefaultConfig places the model next to the miner output and anchors
// the automatic slack pick near the load center of the grid.
func DefaultConfig() Config {
	return Config{
		DataDir:         "data/intermediate_model",
		OutputDir:       "results",
		CachePath:       "data/cache/base_net.gob",
		PVStrategy:      PVVoltageBased,
		PVVoltageLevels: []float64{380},
		SlackRefLat:     50.1,
		SlackRefLon:     8.7,
	}
}

// LoadConfig overlays a JSON config file onto the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	jsonConfig, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
