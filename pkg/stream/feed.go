package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/nodefleet/fleetview/pkg/config"
	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

// BobLister returns the current Bob node statuses.
type BobLister interface {
	BobStatuses(ctx context.Context) ([]nodes.BobStatus, error)
}

// LogSpecs converts configured subscriptions to their wire form.
func LogSpecs(subs []config.SubscriptionSpec) []LogSpec {
	specs := make([]LogSpec, 0, len(subs))
	for _, s := range subs {
		specs = append(specs, LogSpec{SCIndex: s.SCIndex, LogType: s.LogType})
	}
	return specs
}

// OpenTickFeed picks a candidate Bob node and starts streaming its tick logs into
// agg. Any failure is reported through notify and leaves nothing subscribed; it
// is never retried here.
func OpenTickFeed(ctx context.Context, lister BobLister, ch Channel, specs []LogSpec, agg *ticklog.Aggregator, rng *rand.Rand, notify Notifier) (*TickLogSubscription, error) {
	if notify == nil {
		notify = LogNotifier{}
	}
	bobs, err := lister.BobStatuses(ctx)
	if err != nil {
		notify.Notify(LevelError, fmt.Sprintf("Unable to load Bob nodes: %v", err))
		return nil, fmt.Errorf("list bob nodes: %w", err)
	}
	candidate, err := nodes.SelectCandidate(bobs, rng)
	if err != nil {
		if errors.Is(err, nodes.ErrNoCandidate) {
			notify.Notify(LevelError, "No Bob node is close enough to the network tick to stream from")
		}
		return nil, err
	}

	log.Printf("[STREAM] Streaming tick logs from %s (tick %d)", candidate.Server, candidate.CurrentFetchingTick)
	sub := NewTickLogSubscription(ch, candidate.Server, specs, agg)
	if err := sub.Start(); err != nil {
		notify.Notify(LevelError, fmt.Sprintf("Unable to subscribe to %s: %v", candidate.Server, err))
		return nil, err
	}
	return sub, nil
}
