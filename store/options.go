package store

import "github.com/ceyewan/chanlock/clog"

// Option 配置 Redis 存储的选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	scanCount int64
}

// WithLogger 设置日志记录器，自动追加 store 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("store")
		}
	}
}

// WithScanCount 设置 SCAN 每批返回数量的提示值 (默认: 100)
func WithScanCount(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.scanCount = n
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		logger:    clog.Discard(),
		scanCount: 100,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
