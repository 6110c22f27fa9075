package nodeengine

import (
	"context"
	"log"
	"time"

	"github.com/nodefleet/fleetview/pkg/api"
	"github.com/nodefleet/fleetview/pkg/stream"
)

// SnapshotSource is the management API as seen by the snapshot loop.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (api.Snapshot, error)
}

// StartSnapshotLoop polls src every interval, and early whenever the state
// store's reload flag is raised, until ctx ends.
func (e *Engine) StartSnapshotLoop(ctx context.Context, src SnapshotSource, interval time.Duration) {
	var batcher api.Batcher
	failures := 0
	poll := func() {
		e.refreshSelection(ctx)
		start := time.Now()
		snap, err := src.FetchSnapshot(ctx)
		if e.Metrics != nil {
			e.Metrics.ObserveSnapshot(time.Since(start), err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Printf("[SNAPSHOT] Poll failed (%d in a row): %v", failures, err)
			if failures == 1 {
				e.Notify(stream.LevelWarn, "Node list unavailable, showing last snapshot")
			}
			return
		}
		if failures > 0 {
			e.Notify(stream.LevelInfo, "Node list restored")
		}
		failures = 0
		e.SubmitBatch(batcher.Batch(snap, e.now()))
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	reload := time.NewTicker(time.Second)
	defer reload.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		case <-reload.C:
			if e.Store == nil {
				continue
			}
			need, err := e.Store.NeedsReload(ctx)
			if err != nil {
				log.Printf("[STATE] Reading reload flag: %v", err)
				continue
			}
			if need {
				if err := e.Store.SetNeedsReload(ctx, false); err != nil {
					log.Printf("[STATE] Clearing reload flag: %v", err)
				}
				poll()
			}
		}
	}
}

func (e *Engine) refreshSelection(ctx context.Context) {
	if e.Store == nil {
		return
	}
	sel, err := e.Store.Selected(ctx)
	if err != nil {
		log.Printf("[STATE] Reading selection: %v", err)
		return
	}
	e.SetSelected(sel)
}

// StartMetricsLoop derives the tick-log event rate shown in the panel header.
func (e *Engine) StartMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	last := e.Ticks.Stats().Events
	lastAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			events := e.Ticks.Stats().Events
			e.recordRate(events-last, now.Sub(lastAt))
			if e.Debug {
				st := e.Ticks.Stats()
				log.Printf("[METRICS] ticks=%d events=%d dup=%d malformed=%d evicted=%d rate=%.2f/s",
					e.Ticks.Len(), st.Events, st.Duplicates, st.Malformed, st.Evicted, e.EventRate())
			}
			last, lastAt = events, now
		}
	}
}

func (e *Engine) recordRate(delta uint64, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	e.statsMu.Lock()
	e.eventRate = float64(delta) / interval.Seconds()
	e.statsMu.Unlock()
}

func (e *Engine) EventRate() float64 {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.eventRate
}
