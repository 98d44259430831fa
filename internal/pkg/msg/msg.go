// Package msg decouples the pipeline from its downstream consumers:
// components publish onto topics, handlers subscribe by PID.
package msg

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic partitions the message stream.
type Topic int

const (
	Status Topic = iota
	Config
	Result
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Config:
		return "config"
	case Result:
		return "result"
	}
	return "unknown"
}

// Publisher is an interface for objects that allow subscription to
// their events.
type Publisher interface {
	Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error)
	Unsubscribe(pid uuid.UUID)
}

// Msg is one published event.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function.
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID.
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the topic the message was published on.
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data.
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans published messages out to per-topic subscribers.
type PubSub struct {
	mux     *sync.Mutex
	pid     uuid.UUID
	subs    map[Topic]map[uuid.UUID]chan Msg
	stopped bool
}

// NewPublisher returns a PubSub publishing under the given PID.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.Mutex{},
		pid:  pid,
		subs: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID returns the publisher's PID.
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe registers pid for a topic and returns its channel.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.stopped {
		return nil, fmt.Errorf("publisher %v is stopped", p.pid)
	}
	if _, ok := p.subs[topic]; !ok {
		p.subs[topic] = make(map[uuid.UUID]chan Msg)
	}
	if _, ok := p.subs[topic][pid]; ok {
		return nil, fmt.Errorf("pid %v already subscribed to topic %v", pid, topic)
	}
	ch := make(chan Msg, 50)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Unsubscribe drops pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subs {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish sends payload to every subscriber of the topic. A subscriber
// with a full inbox misses the message rather than stalling the
// pipeline.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subs[topic] {
		select {
		case ch <- Msg{p.pid, topic, payload}:
		default:
		}
	}
}

// Stop closes every subscriber channel.
func (p *PubSub) Stop() {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.stopped = true
	for _, subs := range p.subs {
		for pid, ch := range subs {
			close(ch)
			delete(subs, pid)
		}
	}
}
