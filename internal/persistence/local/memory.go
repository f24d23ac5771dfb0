package local

import (
	"context"
	"sync"
)

// MemoryBackend keeps the document in memory. Setting FailWith makes every
// Save fail, which is how tests simulate a full or broken device store.
type MemoryBackend struct {
	mu       sync.Mutex
	raw      []byte
	FailWith error
}

// Load implements Backend.
func (b *MemoryBackend) Load(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.raw == nil {
		return nil, nil
	}
	return append([]byte(nil), b.raw...), nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWith != nil {
		return b.FailWith
	}
	b.raw = append([]byte(nil), raw...)
	return nil
}
