package stream

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nodefleet/fleetview/pkg/ticklog"
)

func TestSessionShutdownSendsUnsubscribe(t *testing.T) {
	received := make(chan Envelope, 16)
	srv := newBobServer(t, received)
	defer srv.Close()

	c := NewWSChannel("ws"+strings.TrimPrefix(srv.URL, "http"), "secret")
	sess := StartSession(c)
	defer sess.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	defer waitCancel()
	if err := c.WaitConnected(waitCtx); err != nil {
		t.Fatalf("WaitConnected failed: %v", err)
	}

	agg := ticklog.NewAggregator()
	sub := NewTickLogSubscription(c, "bob-1", testSpecs, agg)
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sess.Track(sub)
	waitFor(t, "tick 9", func() bool { return agg.Len() == 1 })

	// The caller going away must not take the connection with it.
	cancel()
	sess.Shutdown()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-received:
			if env.Event != EventUnsubscribeBobLog {
				continue
			}
			var req BobLogRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				t.Fatalf("decode unsubscribe: %v", err)
			}
			if req.BobHost != "bob-1" || req.SubscribeData.Action != "unsubscribe" || len(req.SubscribeData.Subscriptions) != len(testSpecs) {
				t.Errorf("unsubscribe = %+v; want full mirror of subscribe", req)
			}
			if err := c.Emit(EventSubscribeBobLog, nil); err != ErrClosed {
				t.Errorf("Emit after Shutdown = %v; want ErrClosed", err)
			}
			return
		case <-deadline:
			t.Fatalf("no %s received after Shutdown", EventUnsubscribeBobLog)
		}
	}
}

func TestSessionTrackAfterShutdown(t *testing.T) {
	c := NewWSChannel("ws://127.0.0.1:1/none", "")
	sess := StartSession(c)
	sess.Shutdown()
	sess.Shutdown()

	mem := newMemChannel()
	sub := NewTickLogSubscription(mem, "bob", testSpecs, ticklog.NewAggregator())
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sess.Track(sub)

	got := mem.emitted()
	if len(got) != 2 || got[1].event != EventUnsubscribeBobLog {
		t.Errorf("emitted %+v; want subscribe then unsubscribe", got)
	}
	if n := mem.listenerCount(EventBobLog); n != 0 {
		t.Errorf("%d listeners after Track on a shut session; want 0", n)
	}
}
