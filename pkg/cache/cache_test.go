package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalCache(t *testing.T) {
	config := LocalConfig{
		MaxSize:           100,
		DefaultExpiration: 5 * time.Minute,
	}

	cache := NewLocalCache(config)
	defer cache.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Errorf("Failed to set cache: %v", err)
		}
		if got, exists := cache.Get(ctx, "k"); !exists {
			t.Error("Cache value not found")
		} else if got != "v" {
			t.Errorf("Expected v, got %v", got)
		}
	})

	t.Run("Expiration", func(t *testing.T) {
		_ = cache.Set(ctx, "short", 1, 10*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		if _, exists := cache.Get(ctx, "short"); exists {
			t.Error("expired value still present")
		}
	})

	t.Run("Increment", func(t *testing.T) {
		n, err := cache.Increment(ctx, "counter", 2)
		if err != nil || n != 2 {
			t.Errorf("Increment = %d, %v", n, err)
		}
		n, _ = cache.Increment(ctx, "counter", 3)
		if n != 5 {
			t.Errorf("Expected 5, got %d", n)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "gone", true, time.Minute)
		_ = cache.Delete(ctx, "gone")
		if cache.Exists(ctx, "gone") {
			t.Error("deleted key still exists")
		}
	})
}

func TestGoCacheTTL(t *testing.T) {
	cache := NewGoCache(LocalConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
	defer cache.Close()

	ctx := context.Background()
	_ = cache.Set(ctx, "k", "v", time.Minute)

	_, ttl, found := cache.GetWithTTL(ctx, "k")
	if !found {
		t.Fatal("value not found")
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	if _, err := NewCache(Config{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
