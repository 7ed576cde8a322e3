package server

import (
	"context"

	"github.com/ceyewan/chanlock/auth"
	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/ratelimit"
	"github.com/ceyewan/chanlock/stats"
)

// StatsReader 读取频道当日统计
type StatsReader interface {
	Get(ctx context.Context, name string) (stats.Stats, error)
}

// Option 服务选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	stats    StatsReader
	notifier chanlock.Notifier
	limiter  ratelimit.Limiter
	auth     auth.Authenticator
	health   func(ctx context.Context) error
}

// WithLogger 设置日志记录器，自动追加 server 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("server")
		}
	}
}

// WithMeter 设置指标收集器，同时提供 /metrics 抓取端点
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithStats 启用 /lockstats，notifier 用于把统计发到频道
func WithStats(reader StatsReader, notifier chanlock.Notifier) Option {
	return func(o *options) {
		o.stats = reader
		o.notifier = notifier
	}
}

// WithLimiter 启用按用户限流，规则见 Config.RateLimit
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}

// WithAuthenticator 启用 /api/v1 管理接口
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) {
		o.auth = a
	}
}

// WithHealthCheck 设置 /healthz 使用的后端检查
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(o *options) {
		o.health = fn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
