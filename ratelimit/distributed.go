package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// luaScript 基于时间戳的令牌桶
//
// KEYS[1]: 限流键
// ARGV[1]: 每秒令牌数  ARGV[2]: 桶容量  ARGV[3]: 当前时间（秒，浮点）  ARGV[4]: 本次消耗令牌数
// 键中保存"下一次可放行时间"，返回 {是否允许, 剩余令牌数}
const luaScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local interval_per_token = 1 / rate
local fill_time = capacity * interval_per_token

local last_refreshed = tonumber(redis.call("GET", KEYS[1]))
if last_refreshed == nil then
  last_refreshed = now
end

local next_available_time = math.max(last_refreshed, now)
local new_refreshed = next_available_time + requested * interval_per_token
local allow_at_most = now + fill_time

if new_refreshed <= allow_at_most then
  redis.call("SET", KEYS[1], tostring(new_refreshed), "EX", math.ceil(fill_time * 2))
  return {1, math.floor((allow_at_most - new_refreshed) / interval_per_token)}
end
return {0, math.floor((allow_at_most - next_available_time) / interval_per_token)}
`

// distributedLimiter 分布式限流器实现（非导出）
type distributedLimiter struct {
	client  redis.Cmdable
	prefix  string
	logger  clog.Logger
	metrics *limiterMetrics
	script  *redis.Script
	clock   func() time.Time
}

func newDistributed(cfg *Config, client redis.Cmdable, logger clog.Logger, m *limiterMetrics) *distributedLimiter {
	logger.Info("distributed rate limiter created", clog.String("prefix", cfg.Prefix))
	return &distributedLimiter{
		client:  client,
		prefix:  cfg.Prefix,
		logger:  logger,
		metrics: m,
		script:  redis.NewScript(luaScript),
		clock:   time.Now,
	}
}

// Allow 尝试获取 1 个令牌
func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

// AllowN 尝试获取 N 个令牌
func (l *distributedLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.Valid() || n <= 0 {
		return false, ErrInvalidLimit
	}

	now := float64(l.clock().UnixNano()) / 1e9
	result, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, limit.Rate, limit.Burst, now, n).Int64Slice()
	if err == nil && len(result) != 2 {
		err = xerrors.New("ratelimit: invalid lua script result")
	}
	if err != nil {
		l.metrics.observe(ctx, ModeDistributed, false, err)
		l.logger.Error("failed to execute rate limit script", clog.String("key", key), clog.Error(err))
		return false, xerrors.Mark(xerrors.Wrap(err, "ratelimit: execute lua script"), xerrors.ErrUnavailable)
	}

	allowed := result[0] == 1
	l.metrics.observe(ctx, ModeDistributed, allowed, nil)
	l.logger.Debug("rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int64("remaining", result[1]),
		clog.Float64("rate", limit.Rate),
		clog.Int("burst", limit.Burst),
		clog.Int("requested", n))
	return allowed, nil
}

// Close 释放资源（连接由 Connector 管理）
func (l *distributedLimiter) Close() error {
	return nil
}
