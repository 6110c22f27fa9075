package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nodefleet/fleetview/pkg/nodes"
)

// TypeBob marks points built from the Bob status feed.
const TypeBob = "bob"

// Snapshot is one poll of every read endpoint.
type Snapshot struct {
	Lite       []LiteNode
	LiteStatus []nodes.LiteStatus
	Bobs       []nodes.BobStatus
	At         time.Time
}

// FetchSnapshot polls the three endpoints concurrently. The Lite node list is
// required. A failing status endpoint is logged and leaves its part empty, so
// nodes still show up, only inactive.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	var (
		s                  Snapshot
		wg                 sync.WaitGroup
		liteErr, statusErr error
		bobErr             error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.Lite, liteErr = c.LiteNodes(ctx)
	}()
	go func() {
		defer wg.Done()
		s.LiteStatus, statusErr = c.LiteStatuses(ctx)
	}()
	go func() {
		defer wg.Done()
		s.Bobs, bobErr = c.BobStatuses(ctx)
	}()
	wg.Wait()

	if liteErr != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot: %w", liteErr)
	}
	if statusErr != nil {
		log.Printf("[SNAPSHOT] Lite status unavailable: %v", statusErr)
	}
	if bobErr != nil {
		log.Printf("[SNAPSHOT] Bob status unavailable: %v", bobErr)
	}
	s.At = time.Now()
	return s, nil
}

// Points derives plottable points from a snapshot as of now. Check-in nodes are
// judged by their last check-in, every other Lite node by its last tick change.
// Bob nodes not already listed as Lite nodes are appended with Type "bob".
// The first occurrence of a server wins.
func (s Snapshot) Points(now time.Time) []nodes.NodePoint {
	lastChanged := make(map[string]time.Time, len(s.LiteStatus))
	for _, st := range s.LiteStatus {
		lastChanged[st.Server] = st.LastTickChanged
	}

	seen := make(map[string]bool, len(s.Lite)+len(s.Bobs))
	out := make([]nodes.NodePoint, 0, len(s.Lite)+len(s.Bobs))
	for _, n := range s.Lite {
		if n.Server == "" || seen[n.Server] {
			continue
		}
		seen[n.Server] = true
		p := nodes.NodePoint{
			Server:        n.Server,
			Lat:           n.Lat,
			Lon:           n.Lon,
			IsBM:          n.IsBM,
			IsCheckinNode: n.IsCheckinNode,
			Type:          n.Type,
			LastCheckinAt: n.LastCheckinAt.Time(),
		}
		if p.IsCheckinNode {
			p.IsActive = nodes.IsActiveAt(p.LastCheckinAt, now)
		} else {
			p.IsActive = nodes.IsActiveAt(lastChanged[n.Server], now)
		}
		out = append(out, p)
	}
	for _, b := range s.Bobs {
		if b.Server == "" || seen[b.Server] {
			continue
		}
		seen[b.Server] = true
		out = append(out, nodes.NodePoint{
			Server:   b.Server,
			Lat:      b.Lat,
			Lon:      b.Lon,
			Type:     TypeBob,
			IsActive: nodes.IsActiveAt(b.LastTickChanged, now),
		})
	}
	return out
}

// Batcher numbers successive snapshots so consumers can tell batches apart.
type Batcher struct {
	mu   sync.Mutex
	next uint64
}

func (b *Batcher) Batch(s Snapshot, now time.Time) nodes.Batch {
	b.mu.Lock()
	b.next++
	id := b.next
	b.mu.Unlock()
	return nodes.Batch{ID: id, Points: s.Points(now), At: now}
}
