package availability

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(300 * time.Second)

	if _, ok := c.Get(ctx, "unknown"); ok {
		t.Error("unseen model reported as cached")
	}

	c.Set(ctx, "m1", true)
	c.Set(ctx, "m2", false)

	if avail, ok := c.Get(ctx, "m1"); !ok || !avail {
		t.Errorf("m1: got (%v, %v), want (true, true)", avail, ok)
	}
	if avail, ok := c.Get(ctx, "m2"); !ok || avail {
		t.Errorf("m2: got (%v, %v), want (false, true)", avail, ok)
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(300 * time.Second)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "m1", false)

	c.now = func() time.Time { return base.Add(299 * time.Second) }
	if _, ok := c.Get(ctx, "m1"); !ok {
		t.Error("entry expired before the TTL elapsed")
	}

	c.now = func() time.Time { return base.Add(301 * time.Second) }
	if _, ok := c.Get(ctx, "m1"); ok {
		t.Error("entry survived past the TTL")
	}
}

func TestMemoryCacheSetRefreshesEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10 * time.Second)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "m1", false)

	c.now = func() time.Time { return base.Add(8 * time.Second) }
	c.Set(ctx, "m1", true)

	c.now = func() time.Time { return base.Add(15 * time.Second) }
	if avail, ok := c.Get(ctx, "m1"); !ok || !avail {
		t.Errorf("refreshed entry: got (%v, %v), want (true, true)", avail, ok)
	}
}
