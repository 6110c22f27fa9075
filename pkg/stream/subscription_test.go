package stream

import (
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/nodefleet/fleetview/pkg/ticklog"
)

var testSpecs = []LogSpec{{SCIndex: 0, LogType: 0}, {SCIndex: 1, LogType: 3}}

func TestTickLogScenario(t *testing.T) {
	ch := newMemChannel()
	agg := ticklog.NewAggregator()
	sub := NewTickLogSubscription(ch, "bob-1.example", testSpecs, agg)

	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.push(EventBobLog, strconv.Quote(`{"type":"welcome"}`))
	if !agg.Subscribed() || agg.Len() != 0 {
		t.Fatalf("after welcome: Subscribed() = %v, Len() = %d; want true, 0", agg.Subscribed(), agg.Len())
	}

	ch.push(EventBobLog, strconv.Quote(`{"message":{"tick":100,"logId":2,"logDigest":"b"}}`))
	ch.push(EventBobLog, `{"message":{"tick":100,"logId":1,"logDigest":"a"}}`)

	view := agg.View()
	if len(view) != 1 || view[0].Tick != 100 {
		t.Fatalf("View() = %+v; want one tick 100", view)
	}
	if view[0].Logs[0].Message.LogID != 1 || view[0].Logs[1].Message.LogID != 2 {
		t.Errorf("logs ordered %d,%d; want 1,2", view[0].Logs[0].Message.LogID, view[0].Logs[1].Message.LogID)
	}
}

func TestTickLogStartIdempotent(t *testing.T) {
	ch := newMemChannel()
	sub := NewTickLogSubscription(ch, "bob", testSpecs, ticklog.NewAggregator())
	for i := 0; i < 3; i++ {
		if err := sub.Start(); err != nil {
			t.Fatalf("Start #%d failed: %v", i, err)
		}
	}
	if n := len(ch.emitted()); n != 1 {
		t.Errorf("emitted %d requests; want 1", n)
	}
	if n := ch.listenerCount(EventBobLog); n != 1 {
		t.Errorf("%d listeners; want 1", n)
	}
}

func TestTickLogStopMirrorsSubscribe(t *testing.T) {
	ch := newMemChannel()
	sub := NewTickLogSubscription(ch, "bob", testSpecs, ticklog.NewAggregator())
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, ok := ch.retained["bob|bob"]; !ok {
		t.Errorf("subscribe request not retained for replay")
	}
	sub.Stop()

	got := ch.emitted()
	if len(got) != 2 {
		t.Fatalf("emitted %d requests; want 2", len(got))
	}
	sreq := got[0].payload.(BobLogRequest)
	ureq := got[1].payload.(BobLogRequest)
	if got[0].event != EventSubscribeBobLog || got[1].event != EventUnsubscribeBobLog {
		t.Errorf("events = %s, %s; want %s, %s", got[0].event, got[1].event, EventSubscribeBobLog, EventUnsubscribeBobLog)
	}
	if sreq.SubscribeData.Action != "subscribe" || ureq.SubscribeData.Action != "unsubscribe" {
		t.Errorf("actions = %s, %s", sreq.SubscribeData.Action, ureq.SubscribeData.Action)
	}
	if ureq.BobHost != sreq.BobHost || !reflect.DeepEqual(ureq.SubscribeData.Subscriptions, sreq.SubscribeData.Subscriptions) {
		t.Errorf("unsubscribe %+v does not mirror subscribe %+v", ureq, sreq)
	}
	if _, ok := ch.retained["bob|bob"]; ok {
		t.Errorf("subscribe request still retained after Stop")
	}
}

func TestTickLogStrayEventAfterStop(t *testing.T) {
	ch := newMemChannel()
	agg := ticklog.NewAggregator()
	sub := NewTickLogSubscription(ch, "bob", testSpecs, agg)
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deliver := sub.deliver
	sub.Stop()

	if n := ch.listenerCount(EventBobLog); n != 0 {
		t.Errorf("%d listeners after Stop; want 0", n)
	}

	ch.push(EventBobLog, `{"message":{"tick":1,"logId":1}}`)
	// A frame already in flight when Stop ran must not land either.
	deliver([]byte(`{"message":{"tick":2,"logId":1}}`))

	if agg.Len() != 0 {
		t.Errorf("Len() = %d after stray events; want 0", agg.Len())
	}
}

func TestTickLogStopWithoutStart(t *testing.T) {
	ch := newMemChannel()
	sub := NewTickLogSubscription(ch, "bob", testSpecs, ticklog.NewAggregator())
	sub.Stop()
	if n := len(ch.emitted()); n != 0 {
		t.Errorf("Stop without Start emitted %d requests; want 0", n)
	}
}

func TestTickLogStartFailureLeavesUnsubscribed(t *testing.T) {
	ch := newMemChannel()
	ch.failEmit = ErrNotConnected
	sub := NewTickLogSubscription(ch, "bob", testSpecs, ticklog.NewAggregator())
	if err := sub.Start(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Start error = %v; want ErrNotConnected", err)
	}
	if n := ch.listenerCount(EventBobLog); n != 0 {
		t.Errorf("%d listeners after failed Start; want 0", n)
	}

	ch.failEmit = nil
	if err := sub.Start(); err != nil {
		t.Fatalf("retry Start failed: %v", err)
	}
}

func TestTickLogHostFilter(t *testing.T) {
	ch := newMemChannel()
	agg := ticklog.NewAggregator()
	sub := NewTickLogSubscription(ch, "bob-a", testSpecs, agg)
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ch.push(EventBobLog, `{"bobHost":"bob-b","data":{"message":{"tick":1,"logId":1}}}`)
	ch.push(EventBobLog, `{"bobHost":"bob-a","data":{"message":{"tick":2,"logId":1}}}`)

	view := agg.View()
	if len(view) != 1 || view[0].Tick != 2 {
		t.Errorf("View() = %+v; want only tick 2", view)
	}
}

func TestServiceLogSubscription(t *testing.T) {
	ch := newMemChannel()
	var lines []string
	sub := NewServiceLogSubscription(ch, "lite-node", "10.0.0.1", func(l string) { lines = append(lines, l) })
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sub.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	ch.push(EventServiceLog, `{"service":"other","log":"ignored\\n"}`)
	ch.push(EventServiceLog, `{"service":"lite-node","log":"tick 1\\n\\ntick 2\\n"}`)

	want := []string{"tick 1", "tick 2"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q; want %q", lines, want)
	}

	sub.Stop()
	ch.push(EventServiceLog, `{"service":"lite-node","log":"after stop"}`)
	if len(lines) != 2 {
		t.Errorf("received %d lines after Stop; want 2", len(lines))
	}

	got := ch.emitted()
	if len(got) != 2 || got[1].event != EventUnsubscribeServiceLog {
		t.Fatalf("emitted %+v; want subscribe then unsubscribe", got)
	}
	if got[0].payload != got[1].payload {
		t.Errorf("unsubscribe %+v does not mirror subscribe %+v", got[1].payload, got[0].payload)
	}
}
