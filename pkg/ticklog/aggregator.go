package ticklog

import (
	"log"
	"sort"
	"sync"
)

const (
	// MaxTicks bounds both the retained store and the rendered view.
	MaxTicks = 100
	// CollapseThreshold is the number of logs shown for a collapsed tick.
	CollapseThreshold = 5
)

// TickEvent is every log received for one tick, in arrival order.
type TickEvent struct {
	Tick uint64
	Logs []RawLogEvent
}

// Stats counts what the aggregator did with its input.
type Stats struct {
	Events     uint64
	Duplicates uint64
	Malformed  uint64
	Evicted    uint64
}

type expansion struct {
	count    int
	expanded bool
}

// Aggregator is owned by one view. Apply may be called from the stream goroutine
// while View is called from the render loop.
type Aggregator struct {
	mu         sync.Mutex
	ticks      map[uint64]*TickEvent
	seen       map[uint64]map[uint64]struct{} // tick -> logId
	expanded   map[uint64]expansion
	subscribed bool
	maxTicks   int
	stats      Stats

	// OnEvent, if set, is called after each applied data event, outside the lock.
	OnEvent func(tick uint64)
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		ticks:    make(map[uint64]*TickEvent),
		seen:     make(map[uint64]map[uint64]struct{}),
		expanded: make(map[uint64]expansion),
		maxTicks: MaxTicks,
	}
}

// Handle decodes and applies one raw frame. Undecodable frames are counted and
// dropped.
func (a *Aggregator) Handle(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		a.mu.Lock()
		a.stats.Malformed++
		a.mu.Unlock()
		log.Printf("[TICKLOG] Dropping frame: %v", err)
		return
	}
	a.Apply(ev)
}

// Apply folds one event into the store. A welcome flips Subscribed and creates
// nothing; events without a message or tick are no-ops. A (tick, logId) pair is
// kept once, whatever digest a redelivery carries.
func (a *Aggregator) Apply(ev RawLogEvent) {
	if ev.IsWelcome() {
		a.mu.Lock()
		a.subscribed = true
		a.mu.Unlock()
		return
	}
	tick, ok := ev.Message.TickValue()
	if !ok {
		a.mu.Lock()
		a.stats.Malformed++
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	id := ev.Message.LogID
	seen, ok := a.seen[tick]
	if !ok {
		seen = make(map[uint64]struct{})
		a.seen[tick] = seen
	}
	if _, dup := seen[id]; dup {
		a.stats.Duplicates++
		a.mu.Unlock()
		return
	}
	seen[id] = struct{}{}

	te, ok := a.ticks[tick]
	if !ok {
		te = &TickEvent{Tick: tick}
		a.ticks[tick] = te
	}
	te.Logs = append(te.Logs, ev)
	a.stats.Events++
	a.evictLocked()
	cb := a.OnEvent
	a.mu.Unlock()

	if cb != nil {
		cb(tick)
	}
}

// evictLocked drops the smallest ticks until the store fits maxTicks.
func (a *Aggregator) evictLocked() {
	for len(a.ticks) > a.maxTicks {
		first := true
		var min uint64
		for t := range a.ticks {
			if first || t < min {
				min, first = t, false
			}
		}
		delete(a.ticks, min)
		delete(a.seen, min)
		delete(a.expanded, min)
		a.stats.Evicted++
	}
}

// Subscribed reports whether the welcome message has been received.
func (a *Aggregator) Subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subscribed
}

// Len returns the number of retained ticks.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ticks)
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset forgets every tick and the subscription flag.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ticks = make(map[uint64]*TickEvent)
	a.seen = make(map[uint64]map[uint64]struct{})
	a.expanded = make(map[uint64]expansion)
	a.subscribed = false
}

// View returns copies of the most recent ticks, newest first, each with its logs
// sorted by ascending logId. Equal logIds keep arrival order.
func (a *Aggregator) View() []TickEvent {
	a.mu.Lock()
	out := make([]TickEvent, 0, len(a.ticks))
	for _, te := range a.ticks {
		logs := make([]RawLogEvent, len(te.Logs))
		copy(logs, te.Logs)
		out = append(out, TickEvent{Tick: te.Tick, Logs: logs})
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tick > out[j].Tick })
	if len(out) > MaxTicks {
		out = out[:MaxTicks]
	}
	for i := range out {
		logs := out[i].Logs
		sort.SliceStable(logs, func(x, y int) bool { return logs[x].Message.LogID < logs[y].Message.LogID })
	}
	return out
}
