package lru

import (
	"sync/atomic"

	"github.com/ipshard/edgelru/internal/nodepool"
)

// Handle is a scoped read pin on a cached entry (the ConstAccessor). While
// held, the node will not be recycled, even if it is concurrently evicted
// from the shard. The pin does not freeze the value: an overwriting Insert
// of the same key swaps the node's value in place, and Value then returns
// the new value. Release must
// be called exactly once per Handle obtained from Find; calling it more
// than once is harmless.
type Handle[K comparable, V any] struct {
	shard *Shard[K, V]
	node  *nodepool.Node[K, V]
	done  atomic.Bool
}

// Empty reports whether the handle holds no pin — true for a zero Handle,
// one that found no entry, or one that has been released.
func (h *Handle[K, V]) Empty() bool {
	return h == nil || h.node == nil || h.done.Load()
}

// Value returns the pinned entry's current value. It panics if the handle
// is empty, the Go equivalent of dereferencing a null accessor.
func (h *Handle[K, V]) Value() V {
	if h.Empty() {
		panic("lru: Value called on an empty Handle")
	}
	return h.node.LoadValue()
}

// Release drops the pin. Safe to call multiple times or concurrently; only
// the first call has any effect.
func (h *Handle[K, V]) Release() {
	if h.Empty() {
		return
	}
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.shard.releaseNode(h.node)
}
