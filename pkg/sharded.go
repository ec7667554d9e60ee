package lru

import (
	"context"
	"math"
	"runtime"

	"github.com/ipshard/edgelru/internal/keyhash"
)

// shardRouteShift is the number of high bits of a 64-bit hash consumed by
// shard routing, following an upper-16-bits convention so shard selection
// and intra-shard bucket selection (which consumes low bits) never alias
// against each other.
const shardRouteShift = 64 - 16

// ShardedLru partitions an LRU cache across shardCount independent Shard
// instances, routing each key deterministically by the upper bits of its
// hash. It provides no global recency order across shards — each shard is
// strictly LRU on its own.
type ShardedLru[K comparable, V any] struct {
	shards []*Shard[K, V]
	hasher keyhash.Hasher[K]
}

// NewSharded constructs a ShardedLru with totalCapacity entries split across
// shardCount shards (0 means choose runtime.GOMAXPROCS(0), floored at 1).
// Any remainder from dividing totalCapacity by shardCount is added to
// shard 0.
func NewSharded[K comparable, V any](totalCapacity uint64, shardCount int, hasher keyhash.Hasher[K], opts ...Option[K, V]) (*ShardedLru[K, V], error) {
	if totalCapacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if shardCount < 0 {
		return nil, ErrInvalidShardCount
	}

	parallelism := runtime.GOMAXPROCS(0)
	if parallelism < 1 {
		parallelism = 1
	}
	if shardCount == 0 {
		shardCount = parallelism
	}
	if uint64(shardCount) > totalCapacity {
		shardCount = int(totalCapacity)
	}
	if shardCount < 1 {
		shardCount = 1
	}

	bucketHint := bucketCountFor(shardCount, parallelism)

	base := totalCapacity / uint64(shardCount)
	remainder := totalCapacity % uint64(shardCount)

	sl := &ShardedLru[K, V]{
		shards: make([]*Shard[K, V], shardCount),
		hasher: hasher,
	}
	for i := 0; i < shardCount; i++ {
		cap := base
		if i == 0 {
			cap += remainder
		}
		shard, err := NewShard[K, V](cap, bucketHint, hasher, opts...)
		if err != nil {
			return nil, err
		}
		sl.shards[i] = shard
	}
	return sl, nil
}

// bucketCountFor implements the clamped ceil(log2(shardCount/parallelism) +
// 0.5) formula, floored at 4 for any input (including shardCount <
// parallelism, where the raw formula would go negative).
func bucketCountFor(shardCount, parallelism int) int {
	const floor = 4
	if parallelism < 1 {
		parallelism = 1
	}
	ratio := float64(shardCount) / float64(parallelism)
	n := int(math.Ceil(math.Log2(ratio) + 0.5))
	if n < floor {
		n = floor
	}
	return n
}

func (sl *ShardedLru[K, V]) shardFor(key K) *Shard[K, V] {
	h := sl.hasher.Hash(key)
	idx := (h >> shardRouteShift) % uint64(len(sl.shards))
	return sl.shards[idx]
}

// Insert delegates to the shard owning key. See Shard.Insert.
func (sl *ShardedLru[K, V]) Insert(key K, value V) bool {
	return sl.shardFor(key).Insert(key, value)
}

// Find delegates to the shard owning key. See Shard.Find.
func (sl *ShardedLru[K, V]) Find(key K) (*Handle[K, V], bool) {
	return sl.shardFor(key).Find(key)
}

// Erase delegates to the shard owning key. See Shard.Erase.
func (sl *ShardedLru[K, V]) Erase(key K) int {
	return sl.shardFor(key).Erase(key)
}

// Clear clears every shard.
func (sl *ShardedLru[K, V]) Clear() {
	for _, s := range sl.shards {
		s.Clear()
	}
}

// Size returns the total number of live entries across all shards.
func (sl *ShardedLru[K, V]) Size() uint64 {
	var total uint64
	for _, s := range sl.shards {
		total += s.Size()
	}
	return total
}

// SizeOf returns the live entry count of shard idx, or 0 if idx is out of
// range.
func (sl *ShardedLru[K, V]) SizeOf(idx int) uint64 {
	if idx < 0 || idx >= len(sl.shards) {
		return 0
	}
	return sl.shards[idx].Size()
}

// Capacity returns the total configured capacity across all shards.
func (sl *ShardedLru[K, V]) Capacity() uint64 {
	var total uint64
	for _, s := range sl.shards {
		total += s.Capacity()
	}
	return total
}

// CapacityOf returns the configured capacity of shard idx, or 0 if idx is
// out of range.
func (sl *ShardedLru[K, V]) CapacityOf(idx int) uint64 {
	if idx < 0 || idx >= len(sl.shards) {
		return 0
	}
	return sl.shards[idx].Capacity()
}

// ShardCount returns the number of shards.
func (sl *ShardedLru[K, V]) ShardCount() int { return len(sl.shards) }

// GetOrCompute delegates to the shard owning key. See Shard.GetOrCompute.
func (sl *ShardedLru[K, V]) GetOrCompute(ctx context.Context, key K, fn func(context.Context, K) (V, error)) (V, error) {
	return sl.shardFor(key).GetOrCompute(ctx, key, fn)
}
