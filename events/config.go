package events

import (
	"strings"

	"github.com/ceyewan/chanlock/xerrors"
)

// Driver 事件发布驱动类型
type Driver string

const (
	// DriverNone 不发布事件
	DriverNone Driver = "none"

	// DriverRedisStream 写入 Redis Stream（持久化，可回放）
	DriverRedisStream Driver = "redis_stream"

	// DriverNATSCore NATS Core 发布（无持久化）
	DriverNATSCore Driver = "nats_core"
)

// Config 事件发布配置
type Config struct {
	// Driver 底层驱动，默认 none
	Driver Driver `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Stream Redis Stream 键名，默认 "chanlock:events"
	Stream string `json:"stream" yaml:"stream" mapstructure:"stream"`

	// MaxLen Stream 最大长度，0 表示不裁剪（默认：10000）
	MaxLen int64 `json:"max_len" yaml:"max_len" mapstructure:"max_len"`

	// Approximate 是否使用近似裁剪（MAXLEN ~），默认开启
	Approximate *bool `json:"approximate" yaml:"approximate" mapstructure:"approximate"`

	// Subject NATS 主题前缀，实际主题为 <subject>.<kind>，默认 "chanlock.events"
	Subject string `json:"subject" yaml:"subject" mapstructure:"subject"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverNone
	}
	if c.Stream == "" {
		c.Stream = "chanlock:events"
	}
	if c.MaxLen == 0 {
		c.MaxLen = 10000
	}
	if c.Approximate == nil {
		approx := true
		c.Approximate = &approx
	}
	if c.Subject == "" {
		c.Subject = "chanlock.events"
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverNone, DriverRedisStream, DriverNATSCore:
	default:
		return xerrors.WithCode(ErrInvalidConfig, string(c.Driver))
	}
	if c.MaxLen < 0 {
		return ErrInvalidConfig
	}
	if strings.ContainsAny(c.Subject, " *>") || strings.HasSuffix(c.Subject, ".") {
		return ErrInvalidConfig
	}
	return nil
}
