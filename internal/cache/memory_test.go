package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T) (*MemoryCache, *time.Time) {
	t.Helper()
	c := NewMemoryCache(time.Hour)
	t.Cleanup(func() { c.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}

	// returned slice is a copy
	got[0] = 'x'
	again, _ := c.Get(ctx, "k")
	if string(again) != "v" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c, now := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Hour)

	*now = now.Add(59 * time.Minute)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("Get before TTL: %v", err)
	}

	*now = now.Add(time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after TTL: err = %v, want ErrCacheMiss", err)
	}

	c.removeExpired()
	if n := c.Len(); n != 0 {
		t.Errorf("Len after sweep = %d, want 0", n)
	}
}

func TestMemoryCacheZeroTTLIsNoop(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("zero TTL stored the entry: err = %v", err)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Clear(ctx)
	if n := c.Len(); n != 0 {
		t.Errorf("Len after Clear = %d, want 0", n)
	}
}
