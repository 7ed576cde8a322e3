package chanlock

import (
	"context"

	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/xerrors"
)

// Waiters 每个频道一个集合，保存锁释放时需要通知的用户
type Waiters struct {
	store  store.Store
	prefix string
}

// NewWaiters 创建等待队列
func NewWaiters(s store.Store, prefix string) (*Waiters, error) {
	if s == nil {
		return nil, ErrStoreNil
	}
	if prefix == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: waiter prefix is empty")
	}
	return &Waiters{store: s, prefix: prefix}, nil
}

// Key 返回频道对应的等待集合键
func (w *Waiters) Key(name string) string {
	return w.prefix + name
}

// Add 加入等待，返回是否为新加入；重复加入返回 false
func (w *Waiters) Add(ctx context.Context, name, user string) (bool, error) {
	added, err := w.store.SetAdd(ctx, w.Key(name), user)
	return added, xerrors.Wrapf(err, "add waiter %s to %s", user, name)
}

// Drain 原子地取出全部等待者并清空集合，每次释放只调用一次
func (w *Waiters) Drain(ctx context.Context, name string) ([]string, error) {
	users, err := w.store.SetPopAll(ctx, w.Key(name))
	if err != nil {
		return nil, xerrors.Wrapf(err, "drain waiters of %s", name)
	}
	return users, nil
}

// Peek 返回等待者但不取出
func (w *Waiters) Peek(ctx context.Context, name string) ([]string, error) {
	users, err := w.store.SetMembers(ctx, w.Key(name))
	if err != nil {
		return nil, xerrors.Wrapf(err, "peek waiters of %s", name)
	}
	return users, nil
}

// restore 把已取出的等待者放回集合，用于取出之后状态变更失败的情况
func (w *Waiters) restore(ctx context.Context, name string, users []string) error {
	var errs []error
	for _, u := range users {
		if _, err := w.store.SetAdd(ctx, w.Key(name), u); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}
