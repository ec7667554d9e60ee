package lru

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ipshard/edgelru/internal/keyhash"
)

func newTestShard(t *testing.T, capacity uint64) *Shard[string, int] {
	t.Helper()
	s, err := NewShard[string, int](capacity, 4, keyhash.NewGenericHasher[string]())
	if err != nil {
		t.Fatalf("NewShard: %v", err)
	}
	return s
}

// Scenario: fill-and-evict at capacity 3. Inserting a 4th distinct key must
// evict exactly the least-recently-used one.
func TestFillAndEvictCapacity3(t *testing.T) {
	s := newTestShard(t, 3)

	s.Insert("a", 1)
	s.Insert("b", 2)
	s.Insert("c", 3)
	s.Insert("d", 4)

	if s.Size() != 3 {
		t.Fatalf("expected size 3, got %d", s.Size())
	}
	if _, ok := s.Find("a"); ok {
		t.Fatal("oldest key 'a' should have been evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		h, ok := s.Find(k)
		if !ok {
			t.Fatalf("expected %q to still be present", k)
		}
		h.Release()
	}
}

// Scenario: accessing a key promotes it, saving it from the next eviction.
func TestPromotionPreventsEviction(t *testing.T) {
	s := newTestShard(t, 2)

	s.Insert("a", 1)
	s.Insert("b", 2)

	h, ok := s.Find("a")
	if !ok {
		t.Fatal("expected to find 'a'")
	}
	h.Release()

	s.Insert("c", 3) // must evict 'b', the true LRU now, not 'a'

	if _, ok := s.Find("b"); ok {
		t.Fatal("'b' should have been evicted after 'a' was promoted")
	}
	if _, ok := s.Find("a"); !ok {
		t.Fatal("'a' should have survived eviction after promotion")
	}
}

// Scenario: a handle obtained before an eviction races with that eviction
// must keep returning its pinned value until released.
func TestHandleSurvivesEvictionOnCapacityOneShard(t *testing.T) {
	s := newTestShard(t, 1)
	s.Insert("a", 100)

	h, ok := s.Find("a")
	if !ok {
		t.Fatal("expected to find 'a'")
	}

	s.Insert("b", 200) // evicts 'a' while h is still outstanding

	if h.Empty() {
		t.Fatal("handle must not be empty after its node is evicted")
	}
	if got := h.Value(); got != 100 {
		t.Fatalf("expected pinned value 100, got %d", got)
	}
	h.Release()

	if _, ok := s.Find("a"); ok {
		t.Fatal("'a' must not be reachable through Find after eviction")
	}
	hb, ok := s.Find("b")
	if !ok {
		t.Fatal("'b' must be present")
	}
	hb.Release()
}

func TestEraseRemovesEntryAndShrinksSize(t *testing.T) {
	s := newTestShard(t, 4)
	s.Insert("a", 1)
	s.Insert("b", 2)

	if n := s.Erase("a"); n != 1 {
		t.Fatalf("expected Erase to report 1, got %d", n)
	}
	if n := s.Erase("a"); n != 0 {
		t.Fatalf("expected second Erase to report 0, got %d", n)
	}
	if s.Size() != 1 {
		t.Fatalf("expected size 1 after erase, got %d", s.Size())
	}
}

func TestClearEmptiesShardButNotOutstandingHandles(t *testing.T) {
	s := newTestShard(t, 4)
	s.Insert("a", 1)
	h, ok := s.Find("a")
	if !ok {
		t.Fatal("expected to find 'a'")
	}

	s.Clear()

	if s.Size() != 0 {
		t.Fatalf("expected size 0 after Clear, got %d", s.Size())
	}
	if got := h.Value(); got != 1 {
		t.Fatalf("handle obtained before Clear must still see its value, got %d", got)
	}
	h.Release()

	if _, ok := s.Find("a"); ok {
		t.Fatal("'a' must not be found after Clear")
	}
}

func TestInsertOverwriteDoesNotGrowSize(t *testing.T) {
	s := newTestShard(t, 4)
	s.Insert("a", 1)
	isNew := s.Insert("a", 2)
	if isNew {
		t.Fatal("overwriting insert must report false")
	}
	if s.Size() != 1 {
		t.Fatalf("expected size to stay 1, got %d", s.Size())
	}
	h, ok := s.Find("a")
	if !ok {
		t.Fatal("expected to find 'a'")
	}
	if got := h.Value(); got != 2 {
		t.Fatalf("expected overwritten value 2, got %d", got)
	}
	h.Release()
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	s := newTestShard(t, 4)

	var mu sync.Mutex
	calls := 0
	fn := func(ctx context.Context, key string) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return 42, nil
	}

	var wg sync.WaitGroup
	const concurrency = 32
	results := make([]int, concurrency)
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			defer wg.Done()
			v, err := s.GetOrCompute(context.Background(), "shared-key", fn)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
			results[idx] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		if v != 42 {
			t.Fatalf("expected every caller to observe computed value 42, got %d", v)
		}
	}
	if calls != 1 {
		t.Fatalf("concurrent misses must collapse into exactly one call to fn, got %d", calls)
	}
}

// Scenario: a concurrent insert/find/erase workload at a fixed capacity
// never leaves the live count above that capacity.
func TestConcurrentWorkloadRespectsCapacity(t *testing.T) {
	const capacity = 256
	const workers = 16
	const opsPerWorker = 2000

	s := newTestShard(t, capacity)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("k-%d-%d", id, i%64)
				s.Insert(key, i)
				if h, ok := s.Find(key); ok {
					h.Release()
				}
				if i%17 == 0 {
					s.Erase(key)
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Size() > capacity {
		t.Fatalf("size %d exceeded capacity %d", s.Size(), capacity)
	}
}
