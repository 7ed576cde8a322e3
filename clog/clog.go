// Package clog 为 chanlock 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 层级命名空间，每个组件通过 WithNamespace 标识自己
//   - 从 Context 提取 request_id 等字段
//   - 运行时调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	logger.Info("lock acquired", clog.String("channel", "C1"))
//
//	svcLogger := logger.WithNamespace("chanlock")
//	svcLogger.InfoContext(ctx, "sweep finished", clog.Int("locks", 3))
package clog

import (
	"fmt"
	"sync/atomic"
)

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// Must 类似 New，出错时 panic，仅用于初始化阶段
func Must(config *Config, opts ...Option) Logger {
	l, err := New(config, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

var defaultLogger atomic.Value

// Default 返回进程级默认 Logger（console 格式，info 级别，输出到 stderr）
//
// 仅作为组件未注入 Logger 时的兜底。
func Default() Logger {
	if l, ok := defaultLogger.Load().(Logger); ok {
		return l
	}
	l, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return Discard()
	}
	defaultLogger.CompareAndSwap(nil, l)
	return defaultLogger.Load().(Logger)
}

// SetDefault 替换进程级默认 Logger
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}
