package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/chanlock/clog"
)

// limiterWrapper 包装 rate.Limiter 并记录最后访问时间
type limiterWrapper struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// standaloneLimiter 单机限流器实现（非导出）
type standaloneLimiter struct {
	cfg      *Config
	logger   clog.Logger
	metrics  *limiterMetrics
	limiters sync.Map // map[string]*limiterWrapper
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStandalone(cfg *Config, logger clog.Logger, m *limiterMetrics) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup(cfg.CleanupInterval, cfg.IdleTimeout)

	logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout))
	return l
}

// Allow 尝试获取 1 个令牌
func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

// AllowN 尝试获取 N 个令牌
func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.Valid() || n <= 0 {
		return false, ErrInvalidLimit
	}

	wrapper := l.getLimiter(key, limit)

	wrapper.mu.Lock()
	now := time.Now()
	allowed := wrapper.limiter.AllowN(now, n)
	wrapper.lastSeen = now
	wrapper.mu.Unlock()

	l.metrics.observe(ctx, ModeStandalone, allowed, nil)
	l.logger.Debug("rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Float64("rate", limit.Rate),
		clog.Int("burst", limit.Burst),
		clog.Int("requested", n))
	return allowed, nil
}

// getLimiter 获取或创建指定 key 的限流器，规则不同的同名键互不影响
func (l *standaloneLimiter) getLimiter(key string, limit Limit) *limiterWrapper {
	cacheKey := key + ":" + strconv.FormatFloat(limit.Rate, 'g', -1, 64) + ":" + strconv.Itoa(limit.Burst)

	if v, ok := l.limiters.Load(cacheKey); ok {
		return v.(*limiterWrapper)
	}

	wrapper := &limiterWrapper{
		limiter:  rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst),
		lastSeen: time.Now(),
	}
	actual, _ := l.limiters.LoadOrStore(cacheKey, wrapper)
	return actual.(*limiterWrapper)
}

// cleanup 定期清理空闲的限流器
func (l *standaloneLimiter) cleanup(interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.evictIdle(time.Now(), idleTimeout); n > 0 {
				l.logger.Debug("cleaned up idle limiters", clog.Int("count", n))
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) evictIdle(now time.Time, idleTimeout time.Duration) int {
	count := 0
	l.limiters.Range(func(key, value any) bool {
		wrapper := value.(*limiterWrapper)
		wrapper.mu.Lock()
		idle := now.Sub(wrapper.lastSeen)
		wrapper.mu.Unlock()

		if idle > idleTimeout {
			l.limiters.Delete(key)
			count++
		}
		return true
	})
	return count
}

// Close 停止清理协程，可重复调用
func (l *standaloneLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}
