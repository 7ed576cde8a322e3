package app

import (
	"context"

	"github.com/ceyewan/chanlock/dlock"
)

// sweepLockKey 所有副本共用的扫描锁
const sweepLockKey = "sweep"

// sweepGuard 用 dlock 实现 chanlock.Guard
type sweepGuard struct {
	locker dlock.Locker
	key    string
}

func (g *sweepGuard) TryAcquire(ctx context.Context) (bool, error) {
	return g.locker.TryLock(ctx, g.key)
}

func (g *sweepGuard) Release(ctx context.Context) error {
	return g.locker.Unlock(ctx, g.key)
}
