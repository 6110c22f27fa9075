package nodes

import (
	"errors"
	"math/rand"
	"testing"
)

func TestSelectCandidateWithinTolerance(t *testing.T) {
	bobs := []BobStatus{
		{Server: "head", CurrentFetchingTick: 1000},
		{Server: "close", CurrentFetchingTick: 960},
		{Server: "edge", CurrentFetchingTick: 950},
		{Server: "behind", CurrentFetchingTick: 949},
		{Server: "idle", CurrentFetchingTick: 0},
	}
	allowed := map[string]bool{"head": true, "close": true, "edge": true}

	rng := rand.New(rand.NewSource(7))
	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		c, err := SelectCandidate(bobs, rng)
		if err != nil {
			t.Fatalf("SelectCandidate failed: %v", err)
		}
		if !allowed[c.Server] {
			t.Fatalf("SelectCandidate picked %s, outside tolerance", c.Server)
		}
		seen[c.Server]++
	}
	for s := range allowed {
		if seen[s] == 0 {
			t.Errorf("candidate %s never selected in 300 draws", s)
		}
	}
}

func TestSelectCandidateSmallTicks(t *testing.T) {
	bobs := []BobStatus{
		{Server: "a", CurrentFetchingTick: 10},
		{Server: "b", CurrentFetchingTick: 0},
	}
	c, err := SelectCandidate(bobs, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("SelectCandidate failed: %v", err)
	}
	if c.Server != "a" {
		t.Errorf("SelectCandidate = %s; want a", c.Server)
	}
}

func TestSelectCandidateNone(t *testing.T) {
	tests := [][]BobStatus{
		nil,
		{},
		{{Server: "a"}, {Server: "b"}},
	}
	for _, bobs := range tests {
		if _, err := SelectCandidate(bobs, nil); !errors.Is(err, ErrNoCandidate) {
			t.Errorf("SelectCandidate(%v) error = %v; want ErrNoCandidate", bobs, err)
		}
	}
}

func TestCandidates(t *testing.T) {
	bobs := []BobStatus{
		{Server: "a", CurrentFetchingTick: 1000},
		{Server: "b", CurrentFetchingTick: 949},
		{Server: "c", CurrentFetchingTick: 950},
		{Server: "d"},
	}
	got := Candidates(bobs)
	if len(got) != 2 || got[0].Server != "a" || got[1].Server != "c" {
		t.Errorf("Candidates(%v) = %v; want [a c]", bobs, got)
	}
}
