package notify

import "github.com/ceyewan/chanlock/xerrors"

var (
	// ErrNotifierNil 被包装的 Notifier 为空
	ErrNotifierNil = xerrors.New("notify: notifier is nil")

	// ErrBreakerNil 熔断器为空
	ErrBreakerNil = xerrors.New("notify: breaker is nil")

	// ErrUnknownRef 消息引用不是由本 Notifier 生成的
	ErrUnknownRef = xerrors.Wrap(xerrors.ErrNotFound, "notify: unknown message ref")
)
