package events

import (
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/connector"
	"github.com/ceyewan/chanlock/metrics"
)

// Option 事件发布器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	redis  connector.RedisConnector
	natsC  connector.NATSConnector
	nats   natsPublisher // 测试可直接替换
}

// WithLogger 设置日志记录器，自动追加 events 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("events")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithRedisConnector 注入 Redis 连接器（DriverRedisStream 必需）
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redis = conn
	}
}

// WithNATSConnector 注入 NATS 连接器（DriverNATSCore 必需）
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) {
		o.natsC = conn
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
