package chanlock

import (
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
)

// Option 配置锁服务的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  func() time.Time
	stats  StatsRecorder
	events EventPublisher
}

// WithLogger 设置日志记录器，自动追加 chanlock 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("chanlock")
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

// WithClock 替换时间来源，测试中用于推进时间
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithStats 设置使用统计记录器
func WithStats(stats StatsRecorder) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithEvents 设置事件发布器
func WithEvents(events EventPublisher) Option {
	return func(o *options) {
		o.events = events
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
