/*
Package miner builds the intermediate grid model out of the raw record
cache: circuit decomposition, geographic merge, island pruning, and the
CSV export the analysis side consumes.
*/
package miner

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ohmwork/gridcore/internal/pkg/metrics"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// Config ties the pipeline to its data locations and merge tolerances.
type Config struct {
	DataDir       string  `json:"dataDir"`
	ModelDir      string  `json:"modelDir"`
	SeedNode      string  `json:"seedNode"`
	VoltageFloorV float64 `json:"voltageFloorV"`
	BranchTolM    float64 `json:"branchToleranceM"`
	SubTolM       float64 `json:"substationToleranceM"`
	FuseTolM      float64 `json:"fuseToleranceM"`
	TargetYear    int     `json:"targetYear"`
	OceanFile     string  `json:"oceanFile"`
	RegionFile    string  `json:"regionFile"`
	LargeLoadFile string  `json:"largeLoadFile"`
}

// DefaultConfig returns the tolerances and locations the pipeline was
// tuned with.
func DefaultConfig() Config {
	return Config{
		DataDir:       "data/db_cache",
		ModelDir:      "data/intermediate_model",
		VoltageFloorV: 200000,
		BranchTolM:    10,
		SubTolM:       500,
		FuseTolM:      50,
	}
}

// Miner is the pipeline state: one registry filled and reduced in
// stages.
type Miner struct {
	config Config
	reg    *model.Registry
}

// New returns a configured Miner. Settings missing from the file keep
// their defaults.
func New(configPath string) (*Miner, error) {
	config := DefaultConfig()
	if configPath != "" {
		raw, err := ioutil.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}
	return FromConfig(config), nil
}

// FromConfig returns a Miner over a fresh registry.
func FromConfig(config Config) *Miner {
	return &Miner{config: config, reg: model.NewRegistry()}
}

// Registry exposes the model under construction.
func (m *Miner) Registry() *model.Registry {
	return m.reg
}

// Config returns the active settings.
func (m *Miner) Config() Config {
	return m.config
}

func (m *Miner) keep() model.Filter {
	floor := m.config.VoltageFloorV
	if floor <= 0 {
		return nil
	}
	return func(maxV float64) bool { return maxV >= floor }
}

func (m *Miner) dataFile(name string) string {
	return filepath.Join(m.config.DataDir, name)
}

func (m *Miner) modelFile(name string) string {
	return filepath.Join(m.config.ModelDir, name)
}

// Run executes the full pipeline. With prepOnly the run stops after
// rebuilding the generator aggregate cache. That pass walks millions of
// unit records and its output is reused by every later run.
func (m *Miner) Run(prepOnly bool) error {
	if err := m.Ingest(); err != nil {
		return err
	}
	if err := m.BuildModel(); err != nil {
		return err
	}
	if prepOnly {
		return m.PrepareGenerators()
	}
	if err := m.AttachGeneration(); err != nil {
		return err
	}
	return m.AttachDemand()
}

// Ingest decomposes the raw line, cable and substation records into
// the registry.
func (m *Miner) Ingest() error {
	keep := m.keep()

	lines, err := ImportConnections(m.reg, m.dataFile("transmissionlines.json"), model.ConnLine, keep)
	if err != nil {
		return err
	}
	log.Println("[Miner] lines:", lines)
	observeImport("line", lines)

	cables, err := ImportConnections(m.reg, m.dataFile("transmissioncables.json"), model.ConnCable, keep)
	if err != nil {
		return err
	}
	log.Println("[Miner] cables:", cables)
	observeImport("cable", cables)

	subs, err := ImportSubstations(m.reg, m.dataFile("substations.json"), keep)
	if err != nil {
		return err
	}
	log.Println("[Miner] substations:", subs)
	observeImport("substation", subs)

	log.Println("[Miner] import done,", len(m.reg.Conns()), "connections,", len(m.reg.Nodes()), "nodes")
	return nil
}

// observeImport books one collection's import stats into the pipeline
// counters.
func observeImport(kind string, stats ImportStats) {
	metrics.RecordsImported.WithLabelValues(kind).Add(float64(stats.Loaded))
	skips := map[string]int{
		"filtered":      stats.Filtered,
		"virtual":       stats.Virtual,
		"no_voltage":    stats.NoVoltage,
		"no_circuit":    stats.NoCircuit,
		"bad_frequency": stats.BadFreq,
		"bad_count":     stats.BadCount,
		"no_geometry":   stats.NoGeometry,
		"duplicate":     stats.Duplicate,
	}
	for reason, n := range skips {
		if n > 0 {
			metrics.RecordsSkipped.WithLabelValues(kind, reason).Add(float64(n))
		}
	}
}

// BuildModel merges, prunes and exports the intermediate model CSVs.
func (m *Miner) BuildModel() error {
	merge := Resolve(m.reg, m.config.BranchTolM, m.config.SubTolM, m.config.FuseTolM)
	log.Println("[Miner] merge:", merge.SubJoins, "substation joins,", merge.BranchJoins, "branches")

	prune := PruneIslands(m.reg, m.config.SeedNode)
	log.Println("[Miner] island filter kept", prune.NodesKept, "nodes,", prune.ConnsKept, "conns, deleted",
		prune.NodesDeleted, "nodes,", prune.ConnsDeleted, "conns")

	if err := os.MkdirAll(m.config.ModelDir, 0755); err != nil {
		return err
	}
	if err := WriteDeletionLog(m.reg, m.config.ModelDir); err != nil {
		return err
	}

	if err := WriteBuses(m.reg, m.modelFile("buses.csv")); err != nil {
		return err
	}
	if err := WriteConnections(m.reg, m.modelFile("connections.csv"), m.modelFile("connections_wiredata.csv")); err != nil {
		return err
	}
	if err := WriteTransformers(m.reg, m.modelFile("transformers.csv")); err != nil {
		return err
	}

	if refs := m.reg.AuditRefs(); len(refs) > 0 {
		return fmt.Errorf("null references in connections: %v", refs)
	}
	return nil
}

// PrepareGenerators rebuilds the generator aggregate cache.
func (m *Miner) PrepareGenerators() error {
	var oceans *PolygonSet
	if m.config.OceanFile != "" {
		var err error
		oceans, err = LoadPolygons(m.config.OceanFile)
		if err != nil {
			return err
		}
	}
	log.Println("[Miner] pre-processing generator units, this takes a while")
	return PreprocessGenerators(m.reg,
		m.dataFile("generators.jsonl"),
		m.dataFile("generators_aggregate.json"),
		m.dataFile("substation-grid-locations.json"),
		oceans)
}

// AttachGeneration loads the aggregate cache and exports the generator
// CSV.
func (m *Miner) AttachGeneration() error {
	n, err := AttachGenerators(m.reg, m.dataFile("generators_aggregate.json"))
	if err != nil {
		return err
	}
	log.Println("[Miner] attached", n, "generation blocks")
	return WriteGenerators(m.reg, m.modelFile("generators.csv"))
}

// AttachDemand imports regional and large consumer demand, ties it to
// substations and exports the load CSV.
func (m *Miner) AttachDemand() error {
	year := m.config.TargetYear
	if year == 0 {
		year = time.Now().Year()
	}

	if _, err := ImportCountyLoads(m.reg, m.dataFile("load-analysis-counties.json"), year); err != nil {
		return err
	}
	if m.config.LargeLoadFile != "" {
		if _, err := ImportLargeLoads(m.reg, m.dataFile(m.config.LargeLoadFile), year); err != nil {
			return err
		}
	}
	if m.config.RegionFile != "" {
		if _, err := AssignRegions(m.reg, m.config.RegionFile); err != nil {
			return err
		}
	}

	total, assigned, err := WriteLoads(m.reg, m.modelFile("loads.csv"))
	if err != nil {
		return err
	}
	log.Printf("[Miner] total demand %.3f GW, on-model %.3f GW", total/1000, assigned/1000)
	return nil
}
