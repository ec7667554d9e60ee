// Package keyhash provides the hash and equality primitives the cache uses
// to route keys to shards and buckets. The IPAddr hasher mirrors the
// twang_mix64 + hash_combine scheme used by the socket-address hasher this
// cache's sharding strategy was modeled on, so that distribution across
// shards behaves the same way under IPv4/IPv6 traffic.
package keyhash

import "hash/maphash"

// Hasher customizes how a key type is hashed and compared. Hash must be a
// pure function of its argument: routing correctness depends on a key
// always hashing to the same value for its entire lifetime in the cache.
type Hasher[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

// mix64 is the Thomas Wang 64-bit integer avalanche.
func mix64(key uint64) uint64 {
	key = (^key) + (key << 21)
	key = key ^ (key >> 24)
	key = key + (key << 3) + (key << 8)
	key = key ^ (key >> 14)
	key = key + (key << 2) + (key << 4)
	key = key ^ (key >> 28)
	key = key + (key << 31)
	return key
}

// combine folds x into seed the way boost::hash_combine does.
func combine(seed, x uint64) uint64 {
	return seed ^ (x + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2))
}

// Family distinguishes IPv4 from IPv6 addresses within an IPAddr.
type Family uint8

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

// IPAddr is a fixed-size, comparable key type representing a client address.
// V4 addresses occupy the first 4 bytes of Addr, zero-padded; V6 addresses
// occupy all 16. Two IPAddr values of different families are never equal,
// even if their address bytes happen to coincide. Port is carried as a
// plain payload field only — it does not participate in Hash or Equal, so
// two entries that differ only by port collide to the same cache key.
type IPAddr struct {
	Family Family
	Port   uint16
	Addr   [16]byte
}

// NewV4 builds an IPAddr from a 4-byte IPv4 address and port.
func NewV4(addr [4]byte, port uint16) IPAddr {
	var a IPAddr
	a.Family = FamilyV4
	a.Port = port
	copy(a.Addr[:4], addr[:])
	return a
}

// NewV6 builds an IPAddr from a 16-byte IPv6 address and port.
func NewV6(addr [16]byte, port uint16) IPAddr {
	return IPAddr{Family: FamilyV6, Port: port, Addr: addr}
}

// Hash implements Hasher[IPAddr] semantics directly as a method so IPAddr
// can be used as a key with IPHasher() without extra allocation. Only the
// family and address bytes are mixed in; Port is not part of the key's
// identity.
func (a IPAddr) Hash() uint64 {
	seed := mix64(uint64(a.Family))
	switch a.Family {
	case FamilyV4:
		word := uint64(a.Addr[0])<<24 | uint64(a.Addr[1])<<16 | uint64(a.Addr[2])<<8 | uint64(a.Addr[3])
		seed = combine(seed, mix64(word))
	default:
		for i := 0; i < 16; i += 8 {
			word := beUint64(a.Addr[i : i+8])
			seed = combine(seed, mix64(word))
		}
	}
	return seed
}

func beUint64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// Equal compares family first, then only the in-use address bytes. The
// unused tail of a V4 address is always zero on both operands, so a whole-
// array comparison is equivalent to comparing just the first 4 bytes. Port
// is excluded, matching Hash.
func (a IPAddr) Equal(b IPAddr) bool {
	return a.Family == b.Family && a.Addr == b.Addr
}

// ipHasher implements Hasher[IPAddr] over the methods above.
type ipHasher struct{}

func (ipHasher) Hash(k IPAddr) uint64   { return k.Hash() }
func (ipHasher) Equal(a, b IPAddr) bool { return a.Equal(b) }

// IPHasher returns the canonical Hasher for IPAddr keys.
func IPHasher() Hasher[IPAddr] { return ipHasher{} }

// genericHasher adapts hash/maphash to any comparable key type, for use in
// benchmarks and examples that are not IP-address-keyed. The seed is fixed
// once at construction, matching the requirement that Hash stay a pure
// function of the key for the hasher's lifetime.
type genericHasher[K comparable] struct {
	seed maphash.Seed
}

// NewGenericHasher returns a Hasher for any comparable key type, backed by
// hash/maphash. Two different genericHasher instances will generally
// disagree on the hash of the same key; do not compare hashes produced by
// different instances.
func NewGenericHasher[K comparable]() Hasher[K] {
	return genericHasher[K]{seed: maphash.MakeSeed()}
}

func (h genericHasher[K]) Hash(key K) uint64 {
	switch v := any(key).(type) {
	case string:
		var mh maphash.Hash
		mh.SetSeed(h.seed)
		_, _ = mh.WriteString(v)
		return mh.Sum64()
	case []byte:
		var mh maphash.Hash
		mh.SetSeed(h.seed)
		_, _ = mh.Write(v)
		return mh.Sum64()
	case uint64:
		return mixWithSeed(h.seed, v)
	case int64:
		return mixWithSeed(h.seed, uint64(v))
	case int:
		return mixWithSeed(h.seed, uint64(v))
	case uint32:
		return mixWithSeed(h.seed, uint64(v))
	default:
		var mh maphash.Hash
		mh.SetSeed(h.seed)
		_, _ = mh.WriteString(anyToString(v))
		return mh.Sum64()
	}
}

func (h genericHasher[K]) Equal(a, b K) bool { return a == b }

func mixWithSeed(seed maphash.Seed, x uint64) uint64 {
	var mh maphash.Hash
	mh.SetSeed(seed)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(x >> (8 * i))
	}
	_, _ = mh.Write(buf[:])
	return mh.Sum64()
}

func anyToString(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return ""
}
