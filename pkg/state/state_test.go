package state

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nodefleet/fleetview/pkg/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Selected(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Selected() on empty store = (%v, %v)", got, err)
	}

	if err := s.SetSelected(ctx, []string{"b", "a", "", "b"}); err != nil {
		t.Fatalf("SetSelected: %v", err)
	}
	got, err = s.Selected(ctx)
	if err != nil || !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Selected() = (%v, %v); want [a b]", got, err)
	}

	if err := s.SetSelected(ctx, []string{"c"}); err != nil {
		t.Fatalf("SetSelected: %v", err)
	}
	got, _ = s.Selected(ctx)
	if !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Selected() after replace = %v; want [c]", got)
	}

	for _, v := range []bool{true, false, true} {
		if err := s.SetNeedsReload(ctx, v); err != nil {
			t.Fatalf("SetNeedsReload(%v): %v", v, err)
		}
		if got, err := s.NeedsReload(ctx); err != nil || got != v {
			t.Errorf("NeedsReload() = (%v, %v); want %v", got, err, v)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := Open(config.StateConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestBadgerStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "state-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	path := filepath.Join(dir, "state")

	s, err := Open(config.StateConfig{Backend: "badger", Path: path})
	if err != nil {
		t.Fatalf("Open(badger): %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	got, _ := s.Selected(context.Background())
	if !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Selected() after reopen = %v; want [c]", got)
	}
	if v, _ := s.NeedsReload(context.Background()); !v {
		t.Error("reload flag lost on reopen")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(config.StateConfig{Backend: "etcd"}); err == nil {
		t.Error("Open(etcd) = nil error; want error")
	}
}
