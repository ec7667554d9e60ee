// Package reclist implements the per-shard recency list: a sentinel doubly
// linked list over *nodepool.Node values, ordered most-recently-used at the
// head and least-recently-used at the tail. Its append/remove shape is
// adapted from a circular eviction-candidate ring used for a CLOCK-Pro
// policy, generalized here to a plain sentinel list since strict LRU only
// ever needs head/tail access, not a full ring scan.
//
// Every method requires the caller to hold the shard's list lock; this
// package does no locking of its own so that callers can batch several list
// mutations (e.g. unlink-then-relink for promotion) under one acquisition.
package reclist

import "github.com/ipshard/edgelru/internal/nodepool"

// List is a sentinel-bounded doubly linked list of nodes for one shard.
type List[K comparable, V any] struct {
	head nodepool.Node[K, V]
	tail nodepool.Node[K, V]
	size int
}

// New returns an empty list with its sentinels linked to each other.
func New[K comparable, V any]() *List[K, V] {
	l := &List[K, V]{}
	l.head.Next = &l.tail
	l.tail.Prev = &l.head
	return l
}

// PushFront links n at the most-recently-used end. n must not currently be
// linked into any list.
func (l *List[K, V]) PushFront(n *nodepool.Node[K, V]) {
	n.Prev = &l.head
	n.Next = l.head.Next
	l.head.Next.Prev = n
	l.head.Next = n
	l.size++
}

// unlink removes n from wherever it currently sits. n must be linked.
func (l *List[K, V]) unlink(n *nodepool.Node[K, V]) {
	n.Prev.Next = n.Next
	n.Next.Prev = n.Prev
	n.Prev = nil
	n.Next = nil
	l.size--
}

// Remove unlinks n from the list.
func (l *List[K, V]) Remove(n *nodepool.Node[K, V]) {
	l.unlink(n)
}

// MoveToFront promotes an already-linked node to the most-recently-used end.
func (l *List[K, V]) MoveToFront(n *nodepool.Node[K, V]) {
	l.unlink(n)
	l.PushFront(n)
}

// PeekBack returns the current least-recently-used node, or nil if the list
// is empty. It does not unlink the node — the caller must still claim and
// remove it, handling the race against a concurrent promotion of the same
// node.
func (l *List[K, V]) PeekBack() *nodepool.Node[K, V] {
	if l.size == 0 {
		return nil
	}
	return l.tail.Prev
}

// Len returns the number of linked nodes.
func (l *List[K, V]) Len() int { return l.size }

// Clear unlinks every node, resetting the list to empty. It does not free
// the nodes themselves — the caller is responsible for driving them through
// the nodepool state machine.
func (l *List[K, V]) Clear() {
	l.head.Next = &l.tail
	l.tail.Prev = &l.head
	l.size = 0
}
