package state

import (
	"context"
	"fmt"

	"github.com/nodefleet/fleetview/pkg/utils"
)

const (
	badgerSelectedPrefix = "selected/"
	badgerReloadKey      = "reload"
)

// BadgerStore persists state in a local badger database so the selection
// survives restarts.
type BadgerStore struct {
	disk *utils.DiskStore
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	disk, err := utils.OpenDiskStore(path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &BadgerStore{disk: disk}, nil
}

func (b *BadgerStore) Selected(context.Context) ([]string, error) {
	var out []string
	err := b.disk.ForEach(badgerSelectedPrefix, func(k, _ []byte) error {
		out = append(out, string(k[len(badgerSelectedPrefix):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	return out, nil
}

func (b *BadgerStore) SetSelected(_ context.Context, servers []string) error {
	if err := b.disk.DeletePrefix(badgerSelectedPrefix); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	entries := make(map[string][]byte, len(servers))
	for _, s := range normalize(servers) {
		entries[badgerSelectedPrefix+s] = []byte{1}
	}
	if len(entries) == 0 {
		return nil
	}
	if err := b.disk.BatchSet(entries); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

func (b *BadgerStore) NeedsReload(context.Context) (bool, error) {
	v, err := b.disk.Get(badgerReloadKey)
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

func (b *BadgerStore) SetNeedsReload(_ context.Context, v bool) error {
	if !v {
		return b.disk.Delete(badgerReloadKey)
	}
	return b.disk.Set(badgerReloadKey, []byte{1})
}

func (b *BadgerStore) Close() error {
	return b.disk.Close()
}
