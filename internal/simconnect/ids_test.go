package simconnect

import (
	"sync"
	"testing"
)

func TestSequence_Increments(t *testing.T) {
	s := NewSequence(0)
	for want := uint32(1); want <= 5; want++ {
		if got := s.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
}

func TestSequence_WrapsAtCeiling(t *testing.T) {
	s := NewSequence(3)
	want := []uint32{1, 2, 3, 1, 2, 3, 1}
	for i, w := range want {
		if got := s.Next(); got != w {
			t.Fatalf("call %d: Next() = %d, want %d", i, got, w)
		}
	}
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	s := NewSequence(0)
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, perWorker)
			for range perWorker {
				local = append(local, s.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
}
