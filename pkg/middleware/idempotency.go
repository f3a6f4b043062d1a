package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"SafeBuddyGuardian/pkg/cache"

	"github.com/gin-gonic/gin"
)

type IdemStore interface {
	Set(key string, ttl time.Duration) bool // return true if set, false if exists
}

// cacheIdemStore 基于 pkg/cache 的幂等键存储（可落 Redis，多实例共享）
type cacheIdemStore struct {
	c cache.Cache
}

func (s *cacheIdemStore) Set(key string, ttl time.Duration) bool {
	ctx := context.Background()
	if s.c.Exists(ctx, "idem:"+key) {
		return false
	}
	_ = s.c.Set(ctx, "idem:"+key, true, ttl)
	return true
}

// NewCacheIdemStore 用缓存实现幂等键存储
func NewCacheIdemStore(c cache.Cache) IdemStore { return &cacheIdemStore{c: c} }

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Store      IdemStore
}

// IdempotencyMiddleware 拒绝幂等窗口内的重复请求（SOS 按钮连点保护）
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return func(c *gin.Context) {
		if cfg.Store == nil {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			// 兜底以请求体生成哈希作为幂等键
			b, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(strings.NewReader(string(b)))
			h := sha256.Sum256(b)
			key = hex.EncodeToString(h[:])
		}
		if !cfg.Store.Set(key, cfg.TTL) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
			return
		}
		c.Next()
	}
}
