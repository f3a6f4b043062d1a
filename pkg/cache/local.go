package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 基于 LRU 的进程内缓存
type localCache struct {
	config LocalConfig
	lru    *lru.Cache[string, *cacheItem]
	mu     sync.Mutex // 保护 Increment 的读改写
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time // 零值表示永不过期
}

func (it *cacheItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1024
	}
	l, _ := lru.New[string, *cacheItem](size)
	return &localCache{config: config, lru: l}
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return item.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	item := &cacheItem{value: value}
	if expiration > 0 {
		item.expiration = time.Now().Add(expiration)
	}
	lc.lru.Add(key, item)
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, 0, false
	}
	now := time.Now()
	if item.expired(now) {
		lc.lru.Remove(key)
		return nil, 0, false
	}
	if item.expiration.IsZero() {
		return item.value, 0, true
	}
	return item.value, item.expiration.Sub(now), true
}

func (lc *localCache) Increment(ctx context.Context, key string, value int64) (int64, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var current int64
	if v, ok := lc.Get(ctx, key); ok {
		if n, ok := v.(int64); ok {
			current = n
		}
	}
	current += value
	lc.lru.Add(key, &cacheItem{value: current})
	return current, nil
}

func (lc *localCache) Close() error {
	lc.lru.Purge()
	return nil
}
