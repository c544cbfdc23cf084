package redisstore

import (
	"context"
	"testing"
	"time"
)

func TestTTLExpiry_GetMissesExpired(t *testing.T) {
	rc, mr := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	c := NewCache(rc, 2*time.Second, 0)
	if err := c.Set(ctx, "ttl-key", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "ttl-key")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("pre expiry got=%q ok=%v err=%v", got, ok, err)
	}

	mr.FastForward(3 * time.Second)

	_, ok, err = c.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ttl-key to be absent after expiry")
	}
}

func TestSet_OverwriteResetsTTL(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()
	c := NewCache(rc, 2*time.Second, 0)

	_ = c.Set(ctx, "k", []byte("a"))
	mr.FastForward(1500 * time.Millisecond)
	_ = c.Set(ctx, "k", []byte("b"))
	mr.FastForward(1500 * time.Millisecond)

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "b" {
		t.Fatalf("got=%q ok=%v err=%v", got, ok, err)
	}
}
