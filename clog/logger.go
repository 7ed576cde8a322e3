package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 每个级别都有带 Context 和不带 Context 的版本，带 Context 的版本会
// 提取通过 WithContextField 注册的字段。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	//
	//   logger.WithNamespace("chanlock").WithNamespace("sweeper")
	//   // namespace=chanlock.sweeper
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别，对所有派生出的子 Logger 生效
	SetLevel(level Level) error

	// Flush 强制同步缓冲区的日志
	Flush()
}
