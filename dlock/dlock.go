// Package dlock 提供基于 Redis 的分布式互斥锁。
//
// 加锁使用 SET NX PX 写入随机 token，释放与续期通过 Lua 脚本校验 token，
// 持锁期间后台 watchdog 每 TTL/3 续期一次，进程崩溃后锁在 TTL 内自动失效。
//
// chanlock 用它保证多副本部署时同一时刻只有一个副本执行到期扫描：
//
//	locker, err := dlock.New(redisConn, &dlock.Config{Prefix: "chanlock:dlock:"},
//		dlock.WithLogger(logger))
//	ok, err := locker.TryLock(ctx, "sweep")
//	if ok {
//		defer locker.Unlock(ctx, "sweep")
//	}
package dlock

import (
	"context"

	"github.com/ceyewan/chanlock/connector"
)

// Locker 分布式锁
type Locker interface {
	// Lock 阻塞式加锁，ctx 取消时返回 ctx.Err()
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞加锁；锁被他人持有时返回 false, nil
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放锁，只有持有者才能释放
	Unlock(ctx context.Context, key string) error

	// Close 停止所有 watchdog，不释放 Redis 中的锁，连接由 Connector 管理
	Close() error
}

// New 创建 Redis 分布式锁
func New(conn connector.RedisConnector, cfg *Config, opts ...Option) (Locker, error) {
	if conn == nil || conn.GetClient() == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	m, err := newLockMetrics(o.meter)
	if err != nil {
		return nil, err
	}
	return newRedis(conn.GetClient(), &c, o.logger, m), nil
}
