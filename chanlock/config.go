package chanlock

import (
	"strings"
	"time"

	"github.com/ceyewan/chanlock/xerrors"
)

// Config 锁服务配置
//
// 典型配置（YAML）：
//
//	lock:
//	  prefix: "channel_lock_"
//	  waiter_prefix: "ping_"
//	  default_duration: 50m
//	  max_duration: 0s
//	  warn_window: 10m
//	  sweep_concurrency: 8
type Config struct {
	// Prefix 锁记录键前缀，键为 Prefix + 频道 ID (默认: "channel_lock_")
	Prefix string `mapstructure:"prefix"`

	// WaiterPrefix 等待者集合键前缀 (默认: "ping_")
	WaiterPrefix string `mapstructure:"waiter_prefix"`

	// DefaultDuration 请求未指定时长时使用的锁时长 (默认: 50m)
	DefaultDuration time.Duration `mapstructure:"default_duration"`

	// MaxDuration 单次请求时长上限，超出部分截断并在消息中注明 (默认: 0，不限制)
	MaxDuration time.Duration `mapstructure:"max_duration"`

	// WarnWindow 到期前多久提醒持有者 (默认: 10m)
	WarnWindow time.Duration `mapstructure:"warn_window"`

	// SweepConcurrency 一次扫描中并发处理的锁数量 (默认: 8)
	SweepConcurrency int `mapstructure:"sweep_concurrency"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "channel_lock_"
	}
	if c.WaiterPrefix == "" {
		c.WaiterPrefix = "ping_"
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 50 * time.Minute
	}
	if c.WarnWindow <= 0 {
		c.WarnWindow = 10 * time.Minute
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 8
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	c.setDefaults()

	// 扫描按 Prefix 枚举键，等待者集合不能落在同一前缀下
	if strings.HasPrefix(c.WaiterPrefix, c.Prefix) || strings.HasPrefix(c.Prefix, c.WaiterPrefix) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput,
			"chanlock: prefix %q and waiter_prefix %q overlap", c.Prefix, c.WaiterPrefix)
	}
	if c.MaxDuration < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: max_duration must not be negative")
	}
	if c.MaxDuration > 0 && c.DefaultDuration > c.MaxDuration {
		return xerrors.Wrapf(xerrors.ErrInvalidInput,
			"chanlock: default_duration %s exceeds max_duration %s", c.DefaultDuration, c.MaxDuration)
	}
	if c.DefaultDuration < time.Minute {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: default_duration must be at least 1m")
	}
	return nil
}
