package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nodefleet/fleetview/pkg/ticklog"
)

// Subscription ties a live feed to local state. Start is idempotent; Stop is safe
// without a prior Start. Once Stop returns no further delivery reaches the sink.
// Sinks must not call Stop themselves.
type Subscription interface {
	Start() error
	Stop()
}

// LogSpec selects one smart-contract log stream on a Bob node.
type LogSpec struct {
	SCIndex int `json:"scIndex"`
	LogType int `json:"logType"`
}

// ServiceLogRequest is the payload of service-log subscribe and unsubscribe.
type ServiceLogRequest struct {
	Service string `json:"service"`
	Host    string `json:"host"`
}

// ServiceLogFrame is an inbound service-log chunk.
type ServiceLogFrame struct {
	Service string `json:"service"`
	Host    string `json:"host,omitempty"`
	Log     string `json:"log"`
}

// BobLogRequest is the payload of bob-log subscribe and unsubscribe. The server
// matches unsubscribes on the whole description, so both carry the full list.
type BobLogRequest struct {
	BobHost       string        `json:"bobHost"`
	SubscribeData SubscribeData `json:"subscribeData"`
}

type SubscribeData struct {
	Action        string    `json:"action"`
	Subscriptions []LogSpec `json:"subscriptions"`
}

// ServiceLogSubscription tails the textual log of one service on one host.
type ServiceLogSubscription struct {
	ch      Channel
	service string
	host    string
	sink    func(line string)

	mu         sync.Mutex
	subscribed bool
	detach     func()
}

// NewServiceLogSubscription delivers each unescaped line of the service's log to sink.
func NewServiceLogSubscription(ch Channel, service, host string, sink func(line string)) *ServiceLogSubscription {
	return &ServiceLogSubscription{ch: ch, service: service, host: host, sink: sink}
}

func (s *ServiceLogSubscription) key() string {
	return "service|" + s.service + "|" + s.host
}

func (s *ServiceLogSubscription) request() ServiceLogRequest {
	return ServiceLogRequest{Service: s.service, Host: s.host}
}

func (s *ServiceLogSubscription) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	s.detach = s.ch.Listen(EventServiceLog, s.deliver)
	if err := s.ch.Emit(EventSubscribeServiceLog, s.request()); err != nil {
		s.detach()
		s.detach = nil
		return fmt.Errorf("subscribe to %s on %s: %w", s.service, s.host, err)
	}
	if r, ok := s.ch.(Replayer); ok {
		r.Retain(s.key(), EventSubscribeServiceLog, s.request())
	}
	s.subscribed = true
	return nil
}

func (s *ServiceLogSubscription) deliver(data json.RawMessage) {
	var frame ServiceLogFrame
	if json.Unmarshal(data, &frame) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed || frame.Service != s.service {
		return
	}
	for _, line := range SplitLogLines(frame.Log) {
		s.sink(line)
	}
}

func (s *ServiceLogSubscription) Stop() {
	s.mu.Lock()
	if !s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = false
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	detach()
	if r, ok := s.ch.(Replayer); ok {
		r.Release(s.key())
	}
	if err := s.ch.Emit(EventUnsubscribeServiceLog, s.request()); err != nil {
		log.Printf("[STREAM] Unsubscribe %s on %s: %v", s.service, s.host, err)
	}
}

// TickLogSubscription streams structured tick logs from one Bob node into an
// aggregator.
type TickLogSubscription struct {
	ch      Channel
	bobHost string
	specs   []LogSpec
	agg     *ticklog.Aggregator

	mu         sync.Mutex
	subscribed bool
	detach     func()
}

func NewTickLogSubscription(ch Channel, bobHost string, specs []LogSpec, agg *ticklog.Aggregator) *TickLogSubscription {
	cp := make([]LogSpec, len(specs))
	copy(cp, specs)
	return &TickLogSubscription{ch: ch, bobHost: bobHost, specs: cp, agg: agg}
}

// BobHost is the node this subscription streams from.
func (s *TickLogSubscription) BobHost() string { return s.bobHost }

func (s *TickLogSubscription) key() string {
	return "bob|" + s.bobHost
}

func (s *TickLogSubscription) request(action string) BobLogRequest {
	return BobLogRequest{
		BobHost:       s.bobHost,
		SubscribeData: SubscribeData{Action: action, Subscriptions: s.specs},
	}
}

func (s *TickLogSubscription) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	s.detach = s.ch.Listen(EventBobLog, s.deliver)
	if err := s.ch.Emit(EventSubscribeBobLog, s.request("subscribe")); err != nil {
		s.detach()
		s.detach = nil
		return fmt.Errorf("subscribe to tick logs on %s: %w", s.bobHost, err)
	}
	if r, ok := s.ch.(Replayer); ok {
		r.Retain(s.key(), EventSubscribeBobLog, s.request("subscribe"))
	}
	s.subscribed = true
	return nil
}

// hostedFrame is the optional wrapped form of a bob-log frame.
type hostedFrame struct {
	BobHost string          `json:"bobHost"`
	Data    json.RawMessage `json:"data"`
}

func (s *TickLogSubscription) deliver(data json.RawMessage) {
	frame := []byte(data)
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"bobHost"`) {
		var hf hostedFrame
		if json.Unmarshal(data, &hf) == nil && hf.BobHost != "" {
			if hf.BobHost != s.bobHost {
				return
			}
			frame = hf.Data
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return
	}
	s.agg.Handle(frame)
}

func (s *TickLogSubscription) Stop() {
	s.mu.Lock()
	if !s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = false
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	detach()
	if r, ok := s.ch.(Replayer); ok {
		r.Release(s.key())
	}
	if err := s.ch.Emit(EventUnsubscribeBobLog, s.request("unsubscribe")); err != nil {
		log.Printf("[STREAM] Unsubscribe tick logs on %s: %v", s.bobHost, err)
	}
}
