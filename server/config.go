package server

import (
	"time"

	"github.com/ceyewan/chanlock/ratelimit"
	"github.com/ceyewan/chanlock/xerrors"
)

// Config HTTP 入口配置
type Config struct {
	// Addr 监听地址，默认 ":4993"
	Addr string `mapstructure:"addr"`

	// ServiceName 用于链路追踪与 HTTP 指标的服务名，默认 "chanlock"
	ServiceName string `mapstructure:"service_name"`

	// TeamID 只接受该 Slack 团队的命令，为空时不校验
	TeamID string `mapstructure:"team_id"`

	// SigningSecret Slack 请求签名密钥，为空时不校验签名
	SigningSecret string `mapstructure:"signing_secret"`

	// RateLimit 按用户限流规则，Rate 或 Burst 为 0 时不限流
	RateLimit ratelimit.Limit `mapstructure:"rate_limit"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`     // 默认 5s
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`    // 默认 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 默认 10s
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":4993"
	}
	if c.ServiceName == "" {
		c.ServiceName = "chanlock"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "rate_limit must not be negative")
	}
	return nil
}
