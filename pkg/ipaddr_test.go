package lru

import (
	"testing"

	"github.com/ipshard/edgelru/internal/keyhash"
)

type decision struct {
	Allow  bool
	Reason string
}

func TestShardedLruWithIPAddrKeys(t *testing.T) {
	sl, err := NewSharded[keyhash.IPAddr, decision](1024, 4, keyhash.IPHasher())
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}

	client := keyhash.NewV4([4]byte{203, 0, 113, 7}, 443)
	sl.Insert(client, decision{Allow: true, Reason: "ok"})

	h, ok := sl.Find(client)
	if !ok {
		t.Fatal("expected to find client decision by IP key")
	}
	defer h.Release()

	if got := h.Value(); !got.Allow || got.Reason != "ok" {
		t.Fatalf("unexpected decision: %+v", got)
	}
}

func TestShardedLruDistinguishesV4AndV6WithSameBytes(t *testing.T) {
	sl, err := NewSharded[keyhash.IPAddr, int](16, 2, keyhash.IPHasher())
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}

	var v6bytes [16]byte
	v6bytes[12], v6bytes[13], v6bytes[14], v6bytes[15] = 10, 0, 0, 1

	v4 := keyhash.NewV4([4]byte{10, 0, 0, 1}, 80)
	v6 := keyhash.NewV6(v6bytes, 80)

	sl.Insert(v4, 1)
	sl.Insert(v6, 2)

	h4, ok := sl.Find(v4)
	if !ok {
		t.Fatal("expected v4 entry")
	}
	if h4.Value() != 1 {
		t.Fatalf("expected v4 value 1, got %d", h4.Value())
	}
	h4.Release()

	h6, ok := sl.Find(v6)
	if !ok {
		t.Fatal("expected v6 entry")
	}
	if h6.Value() != 2 {
		t.Fatalf("expected v6 value 2, got %d", h6.Value())
	}
	h6.Release()
}
