/*
Package feed pushes scenario results onto a NATS subject tree, so
dashboards and downstream consumers can follow a study run live. With
no server configured the handler is inert.
*/
package feed

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/ohmwork/gridcore/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Handler forwards result messages from the study publisher to NATS.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	stop   chan bool
}

type Config struct {
	Server        string `json:"Server"`
	SubjectPrefix string `json:"SubjectPrefix"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Enabled reports whether a server is configured. A disabled handler
// still drains its inbox so the publisher never blocks.
func (h Handler) Enabled() bool {
	return h.config.Server != ""
}

// New loads the handler config and subscribes to the result topic.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	return FromConfig(cfg, system)
}

// FromConfig wires the handler to an already built config.
func FromConfig(cfg Config, system msg.Publisher) (Handler, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "gridcore"
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox, err := system.Subscribe(pid, msg.Result)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool),
	}, nil
}

func (h *Handler) Stop() {
	h.stop <- true
}

// Process runs the forwarding loop until Stop. Without a server it
// drains and drops.
func (h Handler) Process() {
	if !h.Enabled() {
		log.Println("[Feed] no NATS server configured, result feed disabled")
		h.drain()
		return
	}

	log.Println("[Feed] Process Started, server", h.config.Server)
	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		log.Printf("[Feed] connect failed: %v, result feed disabled", err)
		h.drain()
		return
	}
	defer nc.Close()

loop:
	for {
		select {
		case m := <-h.inbox:
			data, err := json.Marshal(m.Payload())
			if err != nil {
				log.Printf("[Feed] drop unmarshalable payload: %v", err)
				continue
			}
			subject := subjectFor(h.config.SubjectPrefix, data)
			if err := nc.Publish(subject, data); err != nil {
				log.Printf("[Feed] publish to %s failed: %v", subject, err)
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[Feed] Process Shutdown")
}

func (h Handler) drain() {
	for {
		select {
		case <-h.inbox:
		case <-h.stop:
			return
		}
	}
}

// subjectFor derives the subject from the payload's scenario field:
// <prefix>.result.<scenario>, or <prefix>.result when the payload
// carries none.
func subjectFor(prefix string, data []byte) string {
	var probe struct {
		Scenario string `json:"scenario"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Scenario == "" {
		return prefix + ".result"
	}
	return prefix + ".result." + probe.Scenario
}
