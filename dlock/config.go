package dlock

import (
	"time"

	"github.com/ceyewan/chanlock/xerrors"
)

// Config 分布式锁配置
type Config struct {
	// Prefix 锁 Key 前缀 (默认: "chanlock:dlock:")
	Prefix string `mapstructure:"prefix"`

	// DefaultTTL 锁超时时间，持锁期间由 watchdog 续期 (默认: 30s)
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// RetryInterval Lock 模式的重试间隔 (默认: 100ms)
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "chanlock:dlock:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 30 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.DefaultTTL < time.Second {
		return xerrors.Wrapf(ErrInvalidConfig, "default_ttl %s is below 1s", c.DefaultTTL)
	}
	return nil
}
