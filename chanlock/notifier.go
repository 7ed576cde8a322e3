package chanlock

import (
	"context"
	"time"
)

// Notifier 向聊天系统投递消息，锁服务只提供文本，不关心投递方式
//
// 所有投递都是尽力而为：失败会被记录，但不会回滚已经完成的状态变更。
type Notifier interface {
	// PostInit 在频道中发布新的状态消息，返回用于后续更新的引用
	PostInit(ctx context.Context, name, text string) (ref string, err error)

	// Update 改写已有的状态消息，unlocked 表示锁已释放
	Update(ctx context.Context, ref, text string, unlocked bool) error

	// Direct 发送只有 user 可见的消息，name 是消息所涉及的频道
	Direct(ctx context.Context, name, text, user string) error

	// React 给状态消息添加表情
	React(ctx context.Context, ref, reaction string) error

	// Post 在频道中发布普通通知
	Post(ctx context.Context, name, text string) error
}

// StatsRecorder 记录频道使用统计，失败不影响锁操作
type StatsRecorder interface {
	MarkLock(ctx context.Context, name string, minutes int) error
	MarkExtend(ctx context.Context, name string, minutes int) error
}

// EventKind 锁生命周期事件类型
type EventKind string

const (
	EventAcquired EventKind = "acquired"
	EventExtended EventKind = "extended"
	EventQueued   EventKind = "queued"
	EventReleased EventKind = "released"
	EventExpired  EventKind = "expired"
	EventWarned   EventKind = "warned"
)

// Event 锁生命周期事件
type Event struct {
	Kind       EventKind `msgpack:"kind"`
	Name       string    `msgpack:"name"`
	Owner      string    `msgpack:"owner"`
	Actor      string    `msgpack:"actor"`
	ExpiryTime time.Time `msgpack:"expiry_time"`
	At         time.Time `msgpack:"at"`
	Waiters    []string  `msgpack:"waiters,omitempty"`
}

// EventPublisher 发布锁生命周期事件，失败不影响锁操作
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
