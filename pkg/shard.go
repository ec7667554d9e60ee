// Package lru implements a thread-safe, bounded, sharded LRU cache. Shard is
// the single concurrent LRU engine; ShardedLru (in sharded.go) routes across
// many of them. Both keep a striped, lockable hash table plus the
// options/metrics conventions used throughout this module, but implement
// strict doubly-linked LRU eviction rather than an approximate policy,
// since this cache favors exact recency order and handle-safe concurrent
// eviction.
package lru

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ipshard/edgelru/internal/keyhash"
	"github.com/ipshard/edgelru/internal/nodepool"
	"github.com/ipshard/edgelru/internal/reclist"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type bucket[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*nodepool.Node[K, V]
}

// Shard is a single concurrent, capacity-bounded LRU. It is safe for
// concurrent use by multiple goroutines.
type Shard[K comparable, V any] struct {
	capacity uint64
	size     atomic.Uint64

	hasher keyhash.Hasher[K]

	buckets    []*bucket[K, V]
	bucketMask uint64

	listMu sync.Mutex
	list   *reclist.List[K, V]

	pool *nodepool.Pool[K, V]

	clearMu sync.RWMutex

	cfg     *config[K, V]
	metrics metricsSink
	group   singleflight.Group
}

// NewShard constructs a single shard with the given capacity (the strict
// maximum number of live entries) and a hint for the number of hash-index
// buckets to stripe across (rounded up to a power of two, minimum 1).
func NewShard[K comparable, V any](capacity uint64, bucketHint int, hasher keyhash.Hasher[K], opts ...Option[K, V]) (*Shard[K, V], error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if bucketHint < 1 {
		bucketHint = 1
	}
	n := nextPowerOfTwo(bucketHint)

	cfg := applyOptions(opts)
	s := &Shard[K, V]{
		capacity:   capacity,
		hasher:     hasher,
		buckets:    make([]*bucket[K, V], n),
		bucketMask: uint64(n - 1),
		list:       reclist.New[K, V](),
		pool:       nodepool.NewPool[K, V](),
		cfg:        cfg,
		metrics:    newMetricsSink(cfg.registry, 0),
	}
	for i := range s.buckets {
		s.buckets[i] = &bucket[K, V]{m: make(map[K]*nodepool.Node[K, V])}
	}
	return s, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *Shard[K, V]) bucketFor(key K) *bucket[K, V] {
	h := s.hasher.Hash(key)
	return s.buckets[h&s.bucketMask]
}

// Insert places key->value at the most-recently-used position, overwriting
// any existing entry for key. It reports true if a new entry was created,
// false if an existing one was overwritten in place.
//
// The bucket lock is held across both the map mutation and the paired list
// mutation (promote-to-front or link-in), never just the map half. That
// keeps "present in the map" and "linked in the list" atomic with respect
// to evictOne/Erase, which claim and unlink under the same per-key bucket
// lock: neither can observe, let alone unlink, a node mid-update here.
func (s *Shard[K, V]) Insert(key K, value V) bool {
	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	b := s.bucketFor(key)

	b.mu.Lock()
	if existing, ok := b.m[key]; ok && existing.State() == nodepool.Live {
		existing.StoreValue(value)
		s.listMu.Lock()
		s.list.MoveToFront(existing)
		s.listMu.Unlock()
		b.mu.Unlock()
		s.metrics.Insert()
		return false
	}

	node := s.pool.Get(key, value)
	b.m[key] = node
	s.listMu.Lock()
	s.list.PushFront(node)
	s.listMu.Unlock()
	b.mu.Unlock()

	newSize := s.size.Add(1)
	s.metrics.Insert()
	s.metrics.SetSize(newSize)

	if newSize > s.capacity {
		s.evictOne()
	}
	return true
}

// Find looks up key, pinning and returning a Handle if present. The
// returned Handle must be released by the caller.
//
// The bucket read-lock is held across the recency-promotion step too, so a
// concurrent evictOne/Erase (which need the bucket write lock to unlink)
// cannot remove the node out from under the promotion.
func (s *Shard[K, V]) Find(key K) (*Handle[K, V], bool) {
	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	b := s.bucketFor(key)

	b.mu.RLock()
	node, ok := b.m[key]
	if ok {
		node.Pin()
		s.listMu.Lock()
		if node.State() == nodepool.Live {
			s.list.MoveToFront(node)
		}
		s.listMu.Unlock()
	}
	b.mu.RUnlock()

	if !ok {
		s.metrics.Miss()
		return nil, false
	}
	s.metrics.Hit()

	return &Handle[K, V]{shard: s, node: node}, true
}

// Erase removes key if present, returning 1 if it was removed, 0 otherwise.
func (s *Shard[K, V]) Erase(key K) int {
	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	b := s.bucketFor(key)

	b.mu.Lock()
	node, ok := b.m[key]
	if !ok {
		b.mu.Unlock()
		return 0
	}
	if !node.TryClaim() {
		// Lost the race to a concurrent eviction of the same node; the
		// evicting path already owns removal and bookkeeping for it.
		b.mu.Unlock()
		return 1
	}
	delete(b.m, key)
	s.listMu.Lock()
	s.list.Remove(node)
	s.listMu.Unlock()
	b.mu.Unlock()

	s.size.Add(^uint64(0))
	s.metrics.Erase()
	s.metrics.SetSize(s.size.Load())

	value := node.LoadValue()
	s.finishRemoval(node)
	s.invokeOnEvict(key, value, ReasonErased)
	return 1
}

// evictOne removes the current least-recently-used entry, if any. Called
// from Insert while holding clearMu for read. The claim and the map/list
// removal happen under the victim's own bucket lock, the same lock Insert's
// overwrite path and Erase hold for their map/list updates, so this can
// never unlink a node that another goroutine is mid-promotion or
// mid-overwrite on.
func (s *Shard[K, V]) evictOne() {
	for {
		s.listMu.Lock()
		victim := s.list.PeekBack()
		s.listMu.Unlock()

		if victim == nil {
			return
		}

		b := s.bucketFor(victim.Key)
		b.mu.Lock()
		if cur, ok := b.m[victim.Key]; !ok || cur != victim {
			// The tail identity changed since we peeked (already replaced
			// or removed by someone else); retry against the current tail.
			b.mu.Unlock()
			continue
		}
		if !victim.TryClaim() {
			b.mu.Unlock()
			continue
		}
		delete(b.m, victim.Key)
		s.listMu.Lock()
		s.list.Remove(victim)
		s.listMu.Unlock()
		b.mu.Unlock()

		s.size.Add(^uint64(0))
		s.metrics.Evict()
		s.metrics.SetSize(s.size.Load())

		value := victim.LoadValue()
		s.finishRemoval(victim)
		s.invokeOnEvict(victim.Key, value, ReasonEvicted)
		return
	}
}

// finishRemoval drops the node's index/list-ownership reference, reclaiming
// it into the pool immediately if no Handle is currently pinning it.
func (s *Shard[K, V]) finishRemoval(node *nodepool.Node[K, V]) {
	if node.Unpin() {
		if node.MarkFree() {
			s.pool.Put(node)
		}
	}
}

// releaseNode is called by Handle.Release.
func (s *Shard[K, V]) releaseNode(node *nodepool.Node[K, V]) {
	if node.Unpin() {
		if node.MarkFree() {
			s.pool.Put(node)
		}
	}
}

func (s *Shard[K, V]) invokeOnEvict(key K, value V, reason EjectReason) {
	if s.cfg.onEvict == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.cfg.logger.Error("lru: onEvict callback panicked", zap.Any("recover", r))
		}
	}()
	s.cfg.onEvict(key, value, reason)
}

// Clear removes every entry from the shard. Handles already outstanding at
// the time of the call continue to see their pinned values.
//
// onEvict callbacks run after every bucket lock and the list lock have been
// released, mirroring Erase and evictOne; the clear barrier is still held
// exclusively while they run.
func (s *Shard[K, V]) Clear() {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()

	type clearedEntry struct {
		key   K
		value V
		node  *nodepool.Node[K, V]
	}
	var cleared []clearedEntry

	for _, b := range s.buckets {
		b.mu.Lock()
		for key, node := range b.m {
			delete(b.m, key)
			if node.TryClaim() {
				cleared = append(cleared, clearedEntry{key: key, value: node.LoadValue(), node: node})
			}
		}
		b.mu.Unlock()
	}

	s.listMu.Lock()
	s.list.Clear()
	s.listMu.Unlock()

	s.size.Store(0)
	s.metrics.SetSize(0)
	s.cfg.logger.Info("lru: shard cleared")

	for _, c := range cleared {
		s.finishRemoval(c.node)
		s.invokeOnEvict(c.key, c.value, ReasonCleared)
	}
}

// Size returns the current number of live entries.
func (s *Shard[K, V]) Size() uint64 { return s.size.Load() }

// Capacity returns the configured maximum number of live entries.
func (s *Shard[K, V]) Capacity() uint64 { return s.capacity }

// GetOrCompute returns the cached value for key, computing and caching it
// via fn on a miss. Concurrent misses for the same key are collapsed into a
// single call to fn via a per-shard singleflight group.
func (s *Shard[K, V]) GetOrCompute(ctx context.Context, key K, fn func(context.Context, K) (V, error)) (V, error) {
	if h, ok := s.Find(key); ok {
		defer h.Release()
		return h.Value(), nil
	}

	groupKey := strconv.FormatUint(s.hasher.Hash(key), 16)
	v, err, _ := s.group.Do(groupKey, func() (any, error) {
		if h, ok := s.Find(key); ok {
			defer h.Release()
			return h.Value(), nil
		}
		value, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		s.Insert(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
