/*
Package webservice serves a finished study over HTTP: the run list,
the per-scenario result tables, the map bundle and the comparison
table, straight from the exporter's output directory.
*/
package webservice

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ohmwork/gridcore/internal/pkg/metrics"
)

type Config struct {
	Port       int    `json:"Port"`
	ResultsDir string `json:"ResultsDir"`
}

type Service struct {
	config Config
}

func New(configPath string) (*Service, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	return FromConfig(cfg), nil
}

func FromConfig(cfg Config) *Service {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	return &Service{config: cfg}
}

// Router wires the endpoints. Result tables are served as the files
// the exporter wrote, the scenario path segment is validated against
// traversal.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.baseHandler).Methods("GET")
	r.HandleFunc("/runs", s.runsHandler).Methods("GET")
	r.HandleFunc("/runs/{scenario}/summary", s.fileHandler("summary.txt", "text/plain; charset=UTF-8")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/balance", s.fileHandler("power_balance.txt", "text/plain; charset=UTF-8")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/buses", s.fileHandler("bus_results.csv", "text/csv")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/lines", s.fileHandler("line_results.csv", "text/csv")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/transformers", s.fileHandler("transformer_results.csv", "text/csv")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/overloads", s.fileHandler("overload_report.csv", "text/csv")).Methods("GET")
	r.HandleFunc("/runs/{scenario}/map", s.fileHandler("visualization_data.json", "application/json; charset=UTF-8")).Methods("GET")
	r.HandleFunc("/comparison", s.comparisonHandler).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	return r
}

// ListenAndServe blocks on the configured port.
func (s *Service) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Println("[Webservice] serving", s.config.ResultsDir, "on", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Service) baseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// runsHandler lists the scenario directories that hold exported
// results.
func (s *Service) runsHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.ResultsDir)
	if err != nil {
		http.Error(w, "no results", http.StatusNotFound)
		return
	}
	runs := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.config.ResultsDir, e.Name(), "summary.txt")); err == nil {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
}

// fileHandler serves one exported file out of the scenario directory.
func (s *Service) fileHandler(name, contentType string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		scenario := mux.Vars(r)["scenario"]
		if !safeSegment(scenario) {
			http.Error(w, "bad scenario name", http.StatusBadRequest)
			return
		}
		path := filepath.Join(s.config.ResultsDir, scenario, name)
		data, err := os.ReadFile(path)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func (s *Service) comparisonHandler(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(s.config.ResultsDir, "scenario_comparison.csv"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(data)
}

// safeSegment rejects anything that could escape the results dir.
func safeSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\") && !strings.Contains(name, "..")
}
