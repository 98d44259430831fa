package main

import (
	"flag"
	"log"

	"github.com/ohmwork/gridcore/internal/pkg/webservice"
)

func main() {
	configPath := flag.String("config", "config/webservice.json", "config file")
	flag.Parse()

	service, err := webservice.New(*configPath)
	if err != nil {
		log.Println("[Webservice]", err, "- using defaults")
		service = webservice.FromConfig(webservice.Config{})
	}
	log.Fatal(service.ListenAndServe())
}
