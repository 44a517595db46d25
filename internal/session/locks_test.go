package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()
	id := uuid.New()

	const workers = 20
	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(id)
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("observed %d concurrent holders of the same key, want 1", maxSeen)
	}
}

func TestKeyedMutexDifferentKeysDoNotContend(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := km.Lock(a)
	defer unlockA()

	// Locking a different key must not block while a is held.
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock(b)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutexEntriesAreReclaimed(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(uuid.New())
			unlock()
		}()
	}
	wg.Wait()

	if n := km.Len(); n != 0 {
		t.Errorf("%d lock entries remain after all unlocks, want 0", n)
	}
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()
	id := uuid.New()

	unlock := km.Lock(id)
	unlock()
	unlock() // second call must be a no-op, not a panic or double unlock

	// The key must be lockable again.
	unlock2 := km.Lock(id)
	unlock2()

	if n := km.Len(); n != 0 {
		t.Errorf("%d lock entries remain, want 0", n)
	}
}
