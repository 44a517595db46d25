package session

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedMutex serializes work per session without a global lock. Entries are
// created lazily and reference-counted so the map does not grow with every
// session ever seen.
//
// The zero value is not usable; construct with NewKeyedMutex.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the mutex for id and returns its unlock function. The caller
// must invoke the returned function exactly once, typically via defer.
func (k *KeyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, id)
			}
			k.mu.Unlock()
		})
	}
}

// Len reports the number of live entries. Test hook.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
