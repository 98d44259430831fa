package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ohmwork/gridcore/internal/pkg/feed"
	"github.com/ohmwork/gridcore/internal/pkg/fetch"
	"github.com/ohmwork/gridcore/internal/pkg/metrics"
	"github.com/ohmwork/gridcore/internal/pkg/miner"
	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"github.com/ohmwork/gridcore/internal/pkg/solve"
	"github.com/ohmwork/gridcore/internal/pkg/study"
	"github.com/ohmwork/gridcore/internal/pkg/validate"
)

type app struct {
	configDir    string
	forceFetch   bool
	rebuildCache bool
}

func main() {
	configDir := flag.String("config", "config", "config directory")
	stagesFlag := flag.String("stages", "", "stages to run: fetch,prep,model,study (default inferred from artifacts)")
	forceFetch := flag.Bool("force-fetch", false, "re-download collections already cached")
	rebuildCache := flag.Bool("rebuild-cache", false, "rebuild the base network cache")
	inject := flag.String("inject", "", "hosting capacity probe at lat,lon")
	flag.Parse()

	// credentials (MONGO_URI) live in .env, never in config files
	godotenv.Load()

	log.Println("[Main] Starting gridcore v0.1.0")
	a := app{
		configDir:    *configDir,
		forceFetch:   *forceFetch,
		rebuildCache: *rebuildCache,
	}

	stages := strings.Split(*stagesFlag, ",")
	if *stagesFlag == "" {
		stages = a.inferStages()
		log.Println("[Main] stages inferred:", strings.Join(stages, ","))
	}

	for _, stage := range stages {
		var err error
		switch strings.TrimSpace(stage) {
		case "fetch":
			err = a.runFetch()
		case "prep":
			err = a.runMiner(true)
		case "model":
			err = a.runMiner(false)
		case "study":
			err = a.runStudy(*inject)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			log.Fatalf("[Main] stage %s: %v", stage, err)
		}
	}
	log.Println("[Main] done")
}

// configPath resolves a component config file, empty when absent so
// the component falls back to its defaults.
func (a app) configPath(name string) string {
	path := filepath.Join(a.configDir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// inferStages works backwards from the artifacts on disk: a missing
// raw cache means fetch, a missing aggregate cache means prep, missing
// model CSVs mean model. The study always runs.
func (a app) inferStages() []string {
	fetcher, err := fetch.New(a.configPath("fetch.json"))
	if err != nil {
		log.Fatal("[Main]", err)
	}
	m, err := miner.New(a.configPath("miner.json"))
	if err != nil {
		log.Fatal("[Main]", err)
	}

	var stages []string
	if _, err := os.Stat(fetcher.CachePath("substations")); err != nil {
		stages = append(stages, "fetch")
	}
	aggregate := filepath.Join(m.Config().DataDir, "generators_aggregate.json")
	if _, err := os.Stat(aggregate); err != nil {
		stages = append(stages, "prep")
	}
	loads := filepath.Join(m.Config().ModelDir, "loads.csv")
	if _, err := os.Stat(loads); err != nil {
		stages = append(stages, "model")
	}
	return append(stages, "study")
}

func (a app) runFetch() error {
	fetcher, err := fetch.New(a.configPath("fetch.json"))
	if err != nil {
		return err
	}
	return fetcher.Run(context.Background(), a.forceFetch)
}

func (a app) runMiner(prepOnly bool) error {
	m, err := miner.New(a.configPath("miner.json"))
	if err != nil {
		return err
	}
	return m.Run(prepOnly)
}

func (a app) runStudy(inject string) error {
	netCfg := powernet.DefaultConfig()
	if path := a.configPath("powernet.json"); path != "" {
		var err error
		if netCfg, err = powernet.LoadConfig(path); err != nil {
			return err
		}
	}
	netCfg.RebuildCache = netCfg.RebuildCache || a.rebuildCache

	log.Println("[Main] building base network")
	base, _, err := powernet.NewModeler(netCfg).BaseNetwork()
	if err != nil {
		return err
	}
	log.Println("[Main] base network:", base.Summary())

	valid, summary := validate.Repair(base)
	for _, issue := range summary.Issues {
		log.Println("[Main] repair:", issue)
	}
	if !valid {
		return fmt.Errorf("base network failed validation")
	}
	metrics.ModelBuses.Set(float64(len(base.Buses)))
	metrics.ModelLines.Set(float64(len(base.Lines)))

	studyCfg := study.DefaultConfig()
	if path := a.configPath("study.json"); path != "" {
		if studyCfg, err = study.LoadConfig(path); err != nil {
			return err
		}
	}

	eng, err := study.New(base, &solve.VirtualSolver{}, studyCfg)
	if err != nil {
		return err
	}

	var handler feed.Handler
	if path := a.configPath("feed.json"); path != "" {
		handler, err = feed.New(path, eng.Publisher())
	} else {
		handler, err = feed.FromConfig(feed.Config{}, eng.Publisher())
	}
	if err != nil {
		return err
	}
	go handler.Process()
	defer handler.Stop()

	if _, err := eng.RunAll(); err != nil {
		return err
	}

	lat, lon, probe := parseInject(inject)
	if !probe && studyCfg.RunInjection {
		lat, lon, probe = studyCfg.InjectionLat, studyCfg.InjectionLon, true
	}
	if probe {
		r, err := eng.RunInjection(lat, lon, studyCfg.InjectionScenario)
		if err != nil {
			return err
		}
		log.Printf("[Main] hosting capacity: %.0f MW at %s (%s)",
			r.CapacityMW, r.BusName, r.LimitingFactor)
	}
	return nil
}

func parseInject(s string) (float64, float64, bool) {
	if s == "" {
		return 0, 0, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		log.Fatalf("[Main] -inject wants lat,lon, got %q", s)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		log.Fatalf("[Main] -inject wants lat,lon, got %q", s)
	}
	return lat, lon, true
}
