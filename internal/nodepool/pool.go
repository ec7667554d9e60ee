// Package nodepool implements the cache's node lifecycle and a recycling
// free list for them. It replaces the experimental-arena allocator the
// original cache used (gated behind goexperiment.arenas, unavailable outside
// an experimental toolchain) with a plain Go object pool: nodes are reused
// once they are provably unreachable, instead of being carved out of a
// preallocated byte arena. The state machine below is what makes reuse safe
// under concurrent Find/Insert/Erase/eviction.
package nodepool

import (
	"sync"
	"sync/atomic"
)

// State is a node's position in its lifecycle. The zero value is Live;
// nodes handed out by a Pool are always Live, and nodes sitting idle in a
// Pool are Free and unreachable from any shard.
type State uint32

const (
	// Live: linked into both the hash index and the recency list.
	Live State = iota
	// Evicting: unlinked from both, but may still be referenced by
	// outstanding handles obtained before eviction began.
	Evicting
	// Free: returned to the pool, or not yet claimed from it.
	Free
)

// Node is the unit stored in a shard. Prev/Next are owned exclusively by
// internal/reclist and must not be touched elsewhere. Key is fixed at
// construction; Value is swapped atomically so concurrent readers never
// observe a torn value.
type Node[K comparable, V any] struct {
	Key   K
	value atomic.Pointer[V]

	state State32
	refs  atomic.Int32
	freed atomic.Bool

	Prev *Node[K, V]
	Next *Node[K, V]
}

// State32 is an atomic wrapper around State, since atomic.Uint32 cannot be
// embedded with a named underlying type directly.
type State32 struct {
	v atomic.Uint32
}

func (s *State32) Load() State          { return State(s.v.Load()) }
func (s *State32) Store(v State)        { s.v.Store(uint32(v)) }
func (s *State32) CAS(old, new State) bool {
	return s.v.CompareAndSwap(uint32(old), uint32(new))
}

// LoadValue returns the node's current value.
func (n *Node[K, V]) LoadValue() V {
	p := n.value.Load()
	if p == nil {
		var zero V
		return zero
	}
	return *p
}

// StoreValue atomically swaps in a new value.
func (n *Node[K, V]) StoreValue(v V) {
	n.value.Store(&v)
}

// State returns the node's current lifecycle state.
func (n *Node[K, V]) State() State { return n.state.Load() }

// TryClaim attempts to move the node from Live to Evicting, returning true
// exactly once to whichever of {Erase, a concurrent eviction pass} calls it
// first. The loser must not unlink or decrement any counters.
func (n *Node[K, V]) TryClaim() bool {
	return n.state.CAS(Live, Evicting)
}

// Pin increments the node's reference count. Must be called while the node
// is known Live or Evicting and reachable (i.e. while still holding the
// bucket lock that guarded the lookup). A freshly constructed node starts
// with a reference count of 1, representing the hash index/recency list's
// own ownership of it; callers that unlink a node from the index and list
// must release that reference with Unpin exactly once, the same as any
// Handle does.
func (n *Node[K, V]) Pin() {
	n.refs.Add(1)
}

// Unpin releases one reference. It returns true if this call observed the
// node newly eligible for reclamation (refcount reached zero and the node
// is Evicting) — in which case the caller should return it to a Pool
// exactly once.
func (n *Node[K, V]) Unpin() bool {
	remaining := n.refs.Add(-1)
	return remaining == 0 && n.state.Load() == Evicting
}

// MarkFree transitions an Evicting node (with no outstanding refs) to Free
// and returns true the first time it is called for this node, guarding
// against the node being returned to its pool twice.
func (n *Node[K, V]) MarkFree() bool {
	if !n.freed.CompareAndSwap(false, true) {
		return false
	}
	n.state.Store(Free)
	return true
}

// reset prepares a recycled node for reuse with a new key/value.
func (n *Node[K, V]) reset(key K, value V) {
	n.Key = key
	n.value.Store(&value)
	n.refs.Store(1)
	n.freed.Store(false)
	n.state.Store(Live)
	n.Prev = nil
	n.Next = nil
}

// Pool is a free list of recycled nodes, avoiding continuous allocation and
// GC churn at the multi-million-entry scale this cache targets.
type Pool[K comparable, V any] struct {
	mu   sync.Mutex
	free []*Node[K, V]
}

// NewPool constructs an empty node pool.
func NewPool[K comparable, V any]() *Pool[K, V] {
	return &Pool[K, V]{}
}

// Get returns a Live node carrying key/value, reusing a freed node if one is
// available, allocating a fresh one otherwise.
func (p *Pool[K, V]) Get(key K, value V) *Node[K, V] {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		node := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		node.reset(key, value)
		return node
	}
	p.mu.Unlock()
	node := &Node[K, V]{}
	node.reset(key, value)
	return node
}

// Put returns a Free node to the pool for reuse. The caller must only call
// this once MarkFree has returned true for the node.
func (p *Pool[K, V]) Put(node *Node[K, V]) {
	node.Prev, node.Next = nil, nil
	p.mu.Lock()
	p.free = append(p.free, node)
	p.mu.Unlock()
}
