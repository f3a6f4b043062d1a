package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置
//
// Rate: "300-M"、"10-S" 等 ulule/limiter 速率串。
// SkipPaths 前缀匹配；SOS 激活等急救路径必须始终放行。
type RateLimiterConfig struct {
	Rate        string   `json:"rate"`
	SkipPaths   []string `json:"skip_paths"`
	AddHeaders  bool     `json:"add_headers"`
	DenyStatus  int      `json:"deny_status"` // 默认 429
	DenyMessage string   `json:"deny_message"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

func NewPrometheusObserver() *PrometheusObserver {
	return &PrometheusObserver{
		allow: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter 面向实例的限流器
type RateLimiter struct {
	mu       sync.RWMutex
	cfg      RateLimiterConfig
	store    limiter.Store
	limiter  *limiter.Limiter
	observer MetricsObserver
}

// NewRateLimiter 构造限流器；store 为空时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) (*RateLimiter, error) {
	if store == nil {
		store = memory.NewStore()
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		cfg:     cfg,
		store:   store,
		limiter: limiter.New(store, rate),
	}, nil
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// SetConfig 运行时更新配置（/system/rate-limiter/config）
func (l *RateLimiter) SetConfig(cfg RateLimiterConfig) error {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.limiter = limiter.New(l.store, rate)
	return nil
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		l.mu.RLock()
		cfg := l.cfg
		lim := l.limiter
		obs := l.observer
		l.mu.RUnlock()

		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		route := c.FullPath()
		if route == "" {
			route = path
		}

		lctx, err := lim.Get(c, c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		}
		if lctx.Reached {
			if obs != nil {
				obs.OnDeny(route)
			}
			retry := time.Until(time.Unix(lctx.Reset, 0))
			if retry > 0 {
				c.Header("Retry-After", retry.Truncate(time.Second).String())
			}
			status := cfg.DenyStatus
			if status == 0 {
				status = http.StatusTooManyRequests
			}
			msg := cfg.DenyMessage
			if msg == "" {
				msg = "too many requests"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		if obs != nil {
			obs.OnAllow(route)
		}
		c.Next()
	}
}
