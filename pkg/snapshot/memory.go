package snapshot

import (
	"fmt"
	"sync"
)

// MemoryBackend keeps snapshots in a map. Safe for concurrent use.
type MemoryBackend struct {
	mu    sync.Mutex
	slots map[string]*[2][]byte
	locks map[string]chan struct{}

	// FailWrite, when set, is consulted before every WriteAtomic and can
	// inject storage failures in tests.
	FailWrite func(handle string, slot Slot) error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		slots: make(map[string]*[2][]byte),
		locks: make(map[string]chan struct{}),
	}
}

func (b *MemoryBackend) Read(handle string, slot Slot) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[handle]
	if !ok || s[slot] == nil {
		return nil, fmt.Errorf("%s %s: %w", handle, slot, ErrNotExist)
	}
	return append([]byte(nil), s[slot]...), nil
}

func (b *MemoryBackend) WriteAtomic(handle string, slot Slot, data []byte) error {
	if b.FailWrite != nil {
		if err := b.FailWrite(handle, slot); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[handle]
	if !ok {
		s = new([2][]byte)
		b.slots[handle] = s
	}
	s[slot] = append([]byte{}, data...)
	return nil
}

func (b *MemoryBackend) Remove(handle string, slot Slot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.slots[handle]; ok {
		s[slot] = nil
	}
	return nil
}

func (b *MemoryBackend) Exists(handle string, slot Slot) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[handle]
	return ok && s[slot] != nil, nil
}

func (b *MemoryBackend) Promote(handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[handle]
	if !ok || s[Previous] == nil {
		return fmt.Errorf("%s %s: %w", handle, Previous, ErrNotExist)
	}
	s[Current], s[Previous] = s[Previous], nil
	return nil
}

func (b *MemoryBackend) Lock(handle string) (func(), error) {
	b.mu.Lock()
	ch, ok := b.locks[handle]
	if !ok {
		ch = make(chan struct{}, 1)
		b.locks[handle] = ch
	}
	b.mu.Unlock()

	ch <- struct{}{}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
