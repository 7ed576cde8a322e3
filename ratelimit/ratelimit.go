// Package ratelimit 为 HTTP 入口提供令牌桶限流，支持单机和分布式两种模式。
//
//   - 单机模式：基于 golang.org/x/time/rate 的内存限流，按键缓存 rate.Limiter，空闲后回收
//   - 分布式模式：基于 Redis + Lua 的令牌桶，多个实例共享配额
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeStandalone},
//		ratelimit.WithLogger(logger))
//	defer limiter.Close()
//
//	allowed, _ := limiter.Allow(ctx, "U123", ratelimit.Limit{Rate: 2, Burst: 5})
//
// Gin 中间件：
//
//	r.Use(ratelimit.GinMiddleware(limiter, keyFunc, ratelimit.Limit{Rate: 2, Burst: 5}))
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Limit 定义限流规则（令牌桶算法）
type Limit struct {
	Rate  float64 `mapstructure:"rate"`  // 每秒生成的令牌数
	Burst int     `mapstructure:"burst"` // 桶容量，即允许的突发请求数
}

// Valid 报告规则是否可用，不可用的规则等同于不限流
func (l Limit) Valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器核心接口
type Limiter interface {
	// Allow 尝试获取 1 个令牌（非阻塞）
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 N 个令牌（非阻塞）
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Close 释放限流器资源，连接由 Connector 管理，不在此关闭
	Close() error
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Mode 限流模式
type Mode string

const (
	ModeStandalone  Mode = "standalone"
	ModeDistributed Mode = "distributed"
)

// Config 限流器配置
type Config struct {
	// Mode 限流模式（默认：standalone）
	Mode Mode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// CleanupInterval 单机模式清理空闲限流器的间隔（默认：1 分钟）
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// IdleTimeout 单机模式限流器空闲超时时间（默认：5 分钟）
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// Prefix 分布式模式 Redis Key 前缀（默认："chanlock:ratelimit:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.Prefix == "" {
		c.Prefix = "chanlock:ratelimit:"
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
		return nil
	default:
		return xerrors.WithCode(ErrInvalidConfig, string(c.Mode))
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 按 Config.Mode 创建限流器，分布式模式需要 WithRedisConnector
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	m, err := newLimiterMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	o.logger.Info("creating rate limiter", clog.String("mode", string(c.Mode)))
	if c.Mode == ModeDistributed {
		if o.redisConn == nil || o.redisConn.GetClient() == nil {
			return nil, xerrors.WithCode(ErrConnectorNil, "redis_connector_required")
		}
		return newDistributed(&c, o.redisConn.GetClient(), o.logger, m), nil
	}
	return newStandalone(&c, o.logger, m), nil
}
