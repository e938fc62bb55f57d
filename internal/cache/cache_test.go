package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryProviderSetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }

	ok, err := m.SetNX(ctx, "k", []byte("v"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to claim key, got %v %v", ok, err)
	}
	ok, _ = m.SetNX(ctx, "k", []byte("w"), time.Minute)
	if ok {
		t.Fatalf("expected second SetNX to be rejected")
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected stored value v, got %q %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry miss, got %v", err)
	}
	if ok, _ := m.SetNX(ctx, "k", []byte("w"), 0); !ok {
		t.Fatalf("expected SetNX to claim expired key")
	}
}

func TestMemoryProviderSweepsUnreadExpiredKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		if ok, _ := m.SetNX(ctx, fmt.Sprintf("notify:1:spike:%d", i), []byte("1"), time.Second); !ok {
			t.Fatalf("expected claim %d", i)
		}
	}
	_ = m.Set(ctx, "roster:all", []byte("r"), 0)

	now = now.Add(2 * sweepInterval)
	if ok, _ := m.SetNX(ctx, "notify:1:spike:fresh", []byte("1"), time.Second); !ok {
		t.Fatalf("expected fresh claim")
	}
	m.mu.Lock()
	size := len(m.entries)
	m.mu.Unlock()
	if size != 2 {
		t.Fatalf("expected expired keys swept leaving 2 entries, got %d", size)
	}
}

func TestMemoryProviderDelAndClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryProvider()
	_ = m.Set(ctx, "a", []byte("1"), 0)
	_ = m.Set(ctx, "b", []byte("2"), 0)

	if err := m.Del(ctx, "a"); err != nil {
		t.Fatalf("Del returned error: %v", err)
	}
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after Del, got %v", err)
	}
	_ = m.Close()
	if _, err := m.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after Close, got %v", err)
	}
}

func TestNoopProviderNeverStores(t *testing.T) {
	ctx := context.Background()
	var p Provider = NoopProvider{}
	_ = p.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestNewRedisProviderRequiresAddr(t *testing.T) {
	if _, err := NewRedisProvider(RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestNormaliseDurations(t *testing.T) {
	cfg := RedisConfig{ReadTimeout: time.Second}
	normaliseDurations(&cfg)
	if cfg.DialTimeout != 5*time.Second || cfg.ReadTimeout != time.Second || cfg.MaxRetries != 3 || cfg.PoolSize != 10 {
		t.Fatalf("unexpected normalised config %+v", cfg)
	}
}
