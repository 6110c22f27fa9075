package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/utils"
)

var now = time.UnixMilli(1_700_000_000_000)

func ms(d time.Duration) int64 { return now.Add(-d).UnixMilli() }

func newTestServer(t *testing.T, skipStatus bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/lite-nodes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"server": "1.1.1.1", "lat": 52.5, "lon": 13.4, "isBM": false, "type": "lite", "isCheckinNode": false},
			{"server": "2.2.2.2", "lat": 48.8, "lon": 2.3, "isBM": true, "isCheckinNode": false},
			{"server": "3.3.3.3", "lat": 40.7, "lon": -74.0, "isCheckinNode": true, "lastCheckinAt": ms(30 * time.Second)},
			{"server": "4.4.4.4", "lat": 35.6, "lon": 139.6, "isCheckinNode": true, "lastCheckinAt": nil},
			{"server": "1.1.1.1", "lat": 0, "lon": 0},
		})
	})
	mux.HandleFunc("/lite-nodes/status", func(w http.ResponseWriter, r *http.Request) {
		if skipStatus {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"server": "1.1.1.1", "lastTickChanged": ms(10 * time.Second), "tick": 100},
			{"server": "2.2.2.2", "lastTickChanged": ms(10 * time.Minute), "tick": 90},
		})
	})
	mux.HandleFunc("/bob-nodes/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"server": "5.5.5.5", "currentFetchingTick": 1234, "lastTickChanged": ms(5 * time.Second), "lat": -33.9, "lon": 151.2},
			{"server": "1.1.1.1", "currentFetchingTick": 1200, "lastTickChanged": ms(5 * time.Second)},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSnapshotPoints(t *testing.T) {
	srv := newTestServer(t, false)
	c := NewClient(srv.URL+"/", "tok", time.Second)

	s, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	pts := s.Points(now)
	want := map[string]struct {
		active bool
		typ    string
	}{
		"1.1.1.1": {true, "lite"},
		"2.2.2.2": {false, ""},
		"3.3.3.3": {true, ""},
		"4.4.4.4": {false, ""},
		"5.5.5.5": {true, TypeBob},
	}
	if len(pts) != len(want) {
		t.Fatalf("len(Points) = %d; want %d (%+v)", len(pts), len(want), pts)
	}
	for _, p := range pts {
		w, ok := want[p.Server]
		if !ok {
			t.Errorf("unexpected point %s", p.Server)
			continue
		}
		if p.IsActive != w.active || p.Type != w.typ {
			t.Errorf("%s: active=%v type=%q; want active=%v type=%q", p.Server, p.IsActive, p.Type, w.active, w.typ)
		}
	}
	if pts[0].Lat != 52.5 {
		t.Errorf("first occurrence of 1.1.1.1 should win, got lat %v", pts[0].Lat)
	}
	if got := nodes.MarkerColor(pts[1]); got != nodes.ColorBareMetal {
		t.Errorf("MarkerColor(2.2.2.2) = %v; want bare metal", got)
	}
}

func TestFetchSnapshotToleratesStatusFailure(t *testing.T) {
	srv := newTestServer(t, true)
	s, err := NewClient(srv.URL, "tok", time.Second).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	for _, p := range s.Points(now) {
		if p.Server == "1.1.1.1" && p.IsActive {
			t.Error("1.1.1.1 active without status data")
		}
	}
}

func TestClientErrors(t *testing.T) {
	srv := newTestServer(t, false)

	_, err := NewClient(srv.URL, "wrong", time.Second).LiteNodes(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("LiteNodes(bad token) = %v; want StatusError 401", err)
	}

	c := NewClient(srv.URL+"/missing", "tok", time.Second)
	if _, err := c.BobStatuses(context.Background()); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("BobStatuses(missing) = %v; want ErrNotFound", err)
	}
}

func TestBobStatuses(t *testing.T) {
	srv := newTestServer(t, false)
	bobs, err := NewClient(srv.URL, "tok", time.Second).BobStatuses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(bobs) != 2 || bobs[0].CurrentFetchingTick != 1234 || !bobs[0].LastTickChanged.Equal(now.Add(-5*time.Second)) {
		t.Errorf("BobStatuses = %+v", bobs)
	}
}

func TestEpochMillis(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`1700000000000`, 1700000000000},
		{`"1700000000000"`, 1700000000000},
		{`"2023-11-14T22:13:20Z"`, 1700000000000},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tt := range tests {
		var m EpochMillis
		if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
			continue
		}
		if int64(m) != tt.want {
			t.Errorf("Unmarshal(%s) = %d; want %d", tt.in, m, tt.want)
		}
	}
	var m EpochMillis
	if err := json.Unmarshal([]byte(`"yesterday"`), &m); err == nil {
		t.Error("Unmarshal(yesterday) = nil error; want error")
	}
	if !EpochMillis(0).Time().IsZero() {
		t.Error("EpochMillis(0).Time() is not zero")
	}
}

func TestBatcher(t *testing.T) {
	var b Batcher
	s := Snapshot{Lite: []LiteNode{{Server: "a"}}}
	b1 := b.Batch(s, now)
	b2 := b.Batch(s, now)
	if b1.ID == b2.ID || b2.ID != b1.ID+1 {
		t.Errorf("batch IDs %d, %d; want consecutive", b1.ID, b2.ID)
	}
	if len(b2.Points) != 1 {
		t.Errorf("len(Points) = %d; want 1", len(b2.Points))
	}
}
