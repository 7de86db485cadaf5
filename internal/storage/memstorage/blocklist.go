package memstorage

import (
	"context"
	"sync"
)

// Blocklist is the in-process counterpart of the redis blocklist.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[string]map[string]struct{}
}

func NewBlocklist() *Blocklist {
	return &Blocklist{entries: make(map[string]map[string]struct{})}
}

func (b *Blocklist) Contains(ctx context.Context, kind, value string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[kind][value]
	return ok, nil
}

func (b *Blocklist) Add(ctx context.Context, kind, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries[kind] == nil {
		b.entries[kind] = make(map[string]struct{})
	}
	b.entries[kind][value] = struct{}{}
	return nil
}

func (b *Blocklist) Remove(ctx context.Context, kind, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries[kind], value)
	return nil
}
