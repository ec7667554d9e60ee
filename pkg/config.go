package lru

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EjectReason describes why a node left the cache, passed to an OnEvict
// callback. Strict LRU has no TTL or weight-based reasons to distinguish,
// so there are only the three causes below.
type EjectReason int

const (
	// ReasonEvicted means the node was evicted to make room for an insert.
	ReasonEvicted EjectReason = iota
	// ReasonErased means the node was removed by an explicit Erase call.
	ReasonErased
	// ReasonCleared means the node was removed by a Clear call.
	ReasonCleared
)

func (r EjectReason) String() string {
	switch r {
	case ReasonEvicted:
		return "evicted"
	case ReasonErased:
		return "erased"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// OnEvictFunc is invoked whenever a node leaves a shard, after it has been
// fully unlinked but while its value is still available. It must not call
// back into the shard that invoked it.
type OnEvictFunc[K comparable, V any] func(key K, value V, reason EjectReason)

// config holds the options shared by Shard and ShardedLru.
type config[K comparable, V any] struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	onEvict  OnEvictFunc[K, V]
}

func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{logger: zap.NewNop()}
}

// Option configures a Shard or ShardedLru at construction time.
type Option[K comparable, V any] func(*config[K, V])

// WithLogger attaches a structured logger used for Clear and
// eviction-hook-panic-recovery events. The hot path never logs.
func WithLogger[K comparable, V any](logger *zap.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers per-shard Prometheus counters/gauges against reg.
func WithMetrics[K comparable, V any](reg prometheus.Registerer) Option[K, V] {
	return func(c *config[K, V]) {
		c.registry = reg
	}
}

// WithOnEvict installs a callback invoked on every node removal (eviction,
// erase, or clear). Callbacks run synchronously on the caller's goroutine,
// after the bucket and list locks are released but while the shard's clear
// barrier is still held (read-held for eviction and erase, write-held for
// Clear); a panicking callback is recovered and logged, never allowed to
// corrupt shard state.
func WithOnEvict[K comparable, V any](fn OnEvictFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.onEvict = fn
	}
}

func applyOptions[K comparable, V any](opts []Option[K, V]) *config[K, V] {
	c := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	// ErrInvalidCapacity is returned when a constructor is given a zero
	// total or per-shard capacity.
	ErrInvalidCapacity = errors.New("lru: capacity must be at least 1")
	// ErrInvalidShardCount is returned when a negative shard count is
	// supplied (0 is valid and means "choose automatically").
	ErrInvalidShardCount = errors.New("lru: shard count must not be negative")
)
