package ticklog

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func u64(v uint64) *uint64 { return &v }

func dataEvent(tick, logID uint64) RawLogEvent {
	return RawLogEvent{Message: &LogMessage{
		Tick:        u64(tick),
		LogID:       logID,
		LogDigest:   fmt.Sprintf("d-%d-%d", tick, logID),
		LogTypename: "QU_TRANSFER",
	}}
}

func logIDs(te TickEvent) []uint64 {
	ids := make([]uint64, 0, len(te.Logs))
	for _, l := range te.Logs {
		ids = append(ids, l.Message.LogID)
	}
	return ids
}

func TestWelcomeThenOutOfOrderLogs(t *testing.T) {
	a := NewAggregator()

	a.Handle([]byte(`{"type":"welcome"}`))
	if !a.Subscribed() {
		t.Fatalf("Subscribed() = false after welcome; want true")
	}
	if a.Len() != 0 {
		t.Fatalf("welcome created %d ticks; want 0", a.Len())
	}

	a.Handle([]byte(`{"message":{"tick":100,"logId":2,"logDigest":"b","timestamp":"t","logTypename":"X","type":1,"body":{"amount":5}}}`))
	a.Handle([]byte(`{"message":{"tick":100,"logId":1,"logDigest":"a","timestamp":"t","logTypename":"X","type":1,"body":{}}}`))

	view := a.View()
	if len(view) != 1 {
		t.Fatalf("View() has %d ticks; want 1", len(view))
	}
	if view[0].Tick != 100 {
		t.Errorf("View()[0].Tick = %d; want 100", view[0].Tick)
	}
	if got := logIDs(view[0]); !reflect.DeepEqual(got, []uint64{1, 2}) {
		t.Errorf("logIds = %v; want [1 2]", got)
	}
}

func TestStringEncodedFrame(t *testing.T) {
	a := NewAggregator()
	a.Handle([]byte(`"{\"message\":{\"tick\":7,\"logId\":3,\"logDigest\":\"x\"}}"`))
	view := a.View()
	if len(view) != 1 || view[0].Tick != 7 {
		t.Fatalf("View() = %+v; want one tick 7", view)
	}
}

func TestMalformedIsNoop(t *testing.T) {
	a := NewAggregator()
	a.Handle([]byte(`not json`))
	a.Handle([]byte(`{}`))
	a.Handle([]byte(`{"message":{"logId":1}}`))
	a.Apply(RawLogEvent{})

	if a.Len() != 0 {
		t.Errorf("Len() = %d after malformed input; want 0", a.Len())
	}
	if a.Subscribed() {
		t.Errorf("Subscribed() = true; want false")
	}
	if got := a.Stats().Malformed; got != 4 {
		t.Errorf("Stats().Malformed = %d; want 4", got)
	}
}

func TestDuplicateRedelivery(t *testing.T) {
	a := NewAggregator()
	a.Apply(dataEvent(5, 1))
	a.Apply(dataEvent(5, 1))
	a.Apply(dataEvent(5, 2))

	view := a.View()
	if got := logIDs(view[0]); !reflect.DeepEqual(got, []uint64{1, 2}) {
		t.Errorf("logIds = %v; want [1 2]", got)
	}
	if got := a.Stats().Duplicates; got != 1 {
		t.Errorf("Stats().Duplicates = %d; want 1", got)
	}
}

func TestDuplicateIgnoresDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
	}{
		{"changed digest", "other"},
		{"empty digest", ""},
	}
	for _, tt := range tests {
		a := NewAggregator()
		a.Apply(dataEvent(5, 1))
		again := dataEvent(5, 1)
		again.Message.LogDigest = tt.digest
		a.Apply(again)

		view := a.View()
		if len(view) != 1 || len(view[0].Logs) != 1 {
			t.Errorf("%s: View() = %+v; want one log for tick 5", tt.name, view)
			continue
		}
		if got := view[0].Logs[0].Message.LogDigest; got != "d-5-1" {
			t.Errorf("%s: kept digest %q; want first delivery d-5-1", tt.name, got)
		}
		if got := a.Stats().Duplicates; got != 1 {
			t.Errorf("%s: Stats().Duplicates = %d; want 1", tt.name, got)
		}
	}

	a := NewAggregator()
	a.Apply(dataEvent(5, 1))
	a.Apply(dataEvent(6, 1))
	if got := a.Stats().Duplicates; got != 0 {
		t.Errorf("same logId on another tick: Stats().Duplicates = %d; want 0", got)
	}
}

func TestArrivalOrderIndependence(t *testing.T) {
	var events []RawLogEvent
	for tick := uint64(1); tick <= 20; tick++ {
		for id := uint64(0); id < 8; id++ {
			events = append(events, dataEvent(tick, id))
		}
	}

	reference := NewAggregator()
	for _, ev := range events {
		reference.Apply(ev)
	}
	want := reference.View()

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 10; run++ {
		shuffled := make([]RawLogEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		a := NewAggregator()
		for _, ev := range shuffled {
			a.Apply(ev)
		}
		got := a.View()
		if len(got) != len(want) {
			t.Fatalf("run %d: %d ticks; want %d", run, len(got), len(want))
		}
		for i := range got {
			if got[i].Tick != want[i].Tick || !reflect.DeepEqual(logIDs(got[i]), logIDs(want[i])) {
				t.Errorf("run %d: tick %d = %v; want tick %d = %v", run, got[i].Tick, logIDs(got[i]), want[i].Tick, logIDs(want[i]))
			}
		}
	}
}

func TestBoundedAndSortedDescending(t *testing.T) {
	a := NewAggregator()
	rng := rand.New(rand.NewSource(3))
	ticks := rng.Perm(250)
	for _, tk := range ticks {
		a.Apply(dataEvent(uint64(tk)+1000, 1))
		view := a.View()
		if len(view) > MaxTicks {
			t.Fatalf("View() length %d exceeds %d", len(view), MaxTicks)
		}
		for i := 1; i < len(view); i++ {
			if view[i-1].Tick <= view[i].Tick {
				t.Fatalf("View() not descending at %d: %d then %d", i, view[i-1].Tick, view[i].Tick)
			}
		}
	}

	if a.Len() != MaxTicks {
		t.Errorf("Len() = %d; want %d", a.Len(), MaxTicks)
	}
	view := a.View()
	if view[0].Tick != 1249 || view[len(view)-1].Tick != 1150 {
		t.Errorf("retained range = [%d..%d]; want [1150..1249]", view[len(view)-1].Tick, view[0].Tick)
	}
	if got := a.Stats().Evicted; got != 150 {
		t.Errorf("Stats().Evicted = %d; want 150", got)
	}
}

func TestLateEventForOlderTick(t *testing.T) {
	a := NewAggregator()
	a.Apply(dataEvent(200, 1))
	a.Apply(dataEvent(199, 1))
	a.Apply(dataEvent(200, 2))

	view := a.View()
	if len(view) != 2 || view[0].Tick != 200 || view[1].Tick != 199 {
		t.Fatalf("View() ticks = %v; want [200 199]", []uint64{view[0].Tick, view[1].Tick})
	}
}

func TestOnEventCallback(t *testing.T) {
	a := NewAggregator()
	var got []uint64
	a.OnEvent = func(tick uint64) { got = append(got, tick) }
	a.Apply(dataEvent(1, 1))
	a.Apply(dataEvent(1, 1))
	a.Apply(RawLogEvent{Type: TypeWelcome})
	a.Apply(dataEvent(2, 1))
	if !reflect.DeepEqual(got, []uint64{1, 2}) {
		t.Errorf("OnEvent ticks = %v; want [1 2]", got)
	}
}

func TestReset(t *testing.T) {
	a := NewAggregator()
	a.Apply(RawLogEvent{Type: TypeWelcome})
	a.Apply(dataEvent(1, 1))
	a.Reset()
	if a.Len() != 0 || a.Subscribed() {
		t.Errorf("after Reset: Len() = %d, Subscribed() = %v; want 0, false", a.Len(), a.Subscribed())
	}
}
