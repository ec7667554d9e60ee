// Package bench provides reproducible micro-benchmarks for edgelru.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks use the cache's primary key shape — IPv4 socket addresses —
// so results reflect the production workload (client-IP keyed decisions)
// rather than a generic scalar key:
//   - Key   – keyhash.IPAddr (fixed-size, cheap to hash)
//   - Value – 64-byte struct (large enough to matter, small enough for cache)
//
// We measure:
//  1. Insert          – write-only workload
//  2. Find            – read-only workload (after warm-up)
//  3. FindParallel    – highly concurrent reads (b.RunParallel)
//  4. GetOrCompute     – 90% hits, 10% misses with compute cost
//
// NOTE: Unit tests live in pkg/*_test.go; this file is only for performance.
package bench

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/ipshard/edgelru/internal/keyhash"
	lru "github.com/ipshard/edgelru/pkg"
)

type value64 struct {
	_ [64]byte
}

const (
	capacity = 1 << 20 // 1M entries total
	shards   = 16
	keys     = 1 << 20 // 1M keys in the dataset
)

func newTestCache() *lru.ShardedLru[keyhash.IPAddr, value64] {
	c, err := lru.NewSharded[keyhash.IPAddr, value64](capacity, shards, keyhash.IPHasher())
	if err != nil {
		panic(err)
	}
	return c
}

// global dataset reused across benches to avoid reallocating large slices.
var ds = func() []keyhash.IPAddr {
	arr := make([]keyhash.IPAddr, keys)
	for i := range arr {
		var b [4]byte
		w := rand.Uint32()
		b[0], b[1], b[2], b[3] = byte(w>>24), byte(w>>16), byte(w>>8), byte(w)
		arr[i] = keyhash.NewV4(b, uint16(rand.Uint32()))
	}
	return arr
}()

func BenchmarkInsert(b *testing.B) {
	c := newTestCache()
	val := value64{}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := ds[i&(keys-1)]
		c.Insert(key, val)
	}
}

func BenchmarkFind(b *testing.B) {
	c := newTestCache()
	val := value64{}
	for _, k := range ds {
		c.Insert(k, val)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		if h, ok := c.Find(k); ok {
			h.Release()
		}
	}
}

func BenchmarkFindParallel(b *testing.B) {
	c := newTestCache()
	val := value64{}
	for _, k := range ds {
		c.Insert(k, val)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			if h, ok := c.Find(ds[idx]); ok {
				h.Release()
			}
		}
	})
}

func BenchmarkGetOrCompute(b *testing.B) {
	c := newTestCache()
	val := value64{}
	// Preload 90% of keys to simulate mixed hit/miss.
	for i, k := range ds {
		if i%10 != 0 {
			c.Insert(k, val)
		}
	}
	var computeCnt atomic.Uint64
	compute := func(ctx context.Context, key keyhash.IPAddr) (value64, error) {
		computeCnt.Add(1)
		return val, nil
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		_, _ = c.GetOrCompute(context.Background(), k, compute)
	}
	b.ReportMetric(float64(computeCnt.Load())/float64(b.N)*100, "miss-%")
}

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}
