// Package state keeps the client's process-wide state: which servers the user
// has selected and whether the node list needs a reload. It is passed around
// explicitly rather than living in globals.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nodefleet/fleetview/pkg/config"
)

type Store interface {
	Selected(ctx context.Context) ([]string, error)
	SetSelected(ctx context.Context, servers []string) error
	NeedsReload(ctx context.Context) (bool, error)
	SetNeedsReload(ctx context.Context, v bool) error
	Close() error
}

// Open returns the backend named in cfg.
func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(cfg.Path)
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// normalize sorts and de-duplicates servers, dropping empty names.
func normalize(servers []string) []string {
	out := make([]string, 0, len(servers))
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type MemoryStore struct {
	mu       sync.Mutex
	selected []string
	reload   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Selected(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.selected...), nil
}

func (m *MemoryStore) SetSelected(_ context.Context, servers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = normalize(servers)
	return nil
}

func (m *MemoryStore) NeedsReload(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload, nil
}

func (m *MemoryStore) SetNeedsReload(_ context.Context, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reload = v
	return nil
}

func (m *MemoryStore) Close() error { return nil }
