package api

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEntityLocksSerializePerID(t *testing.T) {
	locks := newEntityLocks()
	id := uuid.New()

	const workers = 16
	const rounds = 50

	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				unlock := locks.lock(id)
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*rounds {
		t.Fatalf("counter = %d, want %d", counter, workers*rounds)
	}
}

func TestEntityLocksIndependentIDs(t *testing.T) {
	locks := newEntityLocks()
	first := uuid.New()
	second := uuid.New()

	unlockFirst := locks.lock(first)
	defer unlockFirst()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock(second)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("locking an unrelated id blocked behind a held lock")
	}
}

func TestEntityLocksReleaseRemovesEntry(t *testing.T) {
	locks := newEntityLocks()
	id := uuid.New()

	unlock := locks.lock(id)
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("lock table holds %d entries after release, want 0", len(locks.locks))
	}
}
