package chanlock

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/xerrors"
)

// Repository 在 Lock 与存储哈希之间转换，负责"已到期且已公告即不存在"的读取规则
type Repository struct {
	store  store.Store
	prefix string
	clock  func() time.Time
	logger clog.Logger
}

// NewRepository 创建锁记录仓库
func NewRepository(s store.Store, prefix string, opts ...Option) (*Repository, error) {
	if s == nil {
		return nil, ErrStoreNil
	}
	if prefix == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: repository prefix is empty")
	}
	o := applyOptions(opts...)
	return &Repository{
		store:  s,
		prefix: prefix,
		clock:  o.clock,
		logger: o.logger.WithNamespace("repository"),
	}, nil
}

// Key 返回频道对应的存储键
func (r *Repository) Key(name string) string {
	return r.prefix + name
}

// Prefix 返回锁记录键前缀
func (r *Repository) Prefix() string {
	return r.prefix
}

// Read 读取频道的锁，锁不存在时返回 nil, nil
func (r *Repository) Read(ctx context.Context, name string) (*Lock, error) {
	return r.read(ctx, r.Key(name), name)
}

// ReadKey 以完整存储键读取锁，用于扫描时按前缀枚举得到的键
func (r *Repository) ReadKey(ctx context.Context, key string) (*Lock, error) {
	name, ok := strings.CutPrefix(key, r.prefix)
	if !ok || name == "" {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "chanlock: key %q is not a lock key", key)
	}
	return r.read(ctx, key, name)
}

func (r *Repository) read(ctx context.Context, key, name string) (*Lock, error) {
	fields, err := r.store.HashRead(ctx, key, lockFields...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read lock %s", name)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	lock, ok := decode(name, fields)
	if !ok {
		r.logger.Warn("dropping corrupt lock record", clog.String("key", key), clog.Int("fields", len(fields)))
		r.deleteQuietly(ctx, key)
		return nil, nil
	}

	if lock.stale(r.clock()) {
		r.deleteQuietly(ctx, key)
		return nil, nil
	}
	return lock, nil
}

// deleteQuietly 删除失败不影响读取结果，下一次读取仍会得到"不存在"
func (r *Repository) deleteQuietly(ctx context.Context, key string) {
	if err := r.store.HashDelete(ctx, key); err != nil {
		r.logger.Warn("failed to delete stale lock record", clog.String("key", key), clog.Error(err))
	}
}

// Keys 枚举全部锁记录键，按字典序排列
func (r *Repository) Keys(ctx context.Context) ([]string, error) {
	return r.store.KeysByPrefix(ctx, r.prefix)
}

// List 读取全部有效的锁，已到期且已公告或损坏的记录不会出现在结果中
func (r *Repository) List(ctx context.Context) ([]*Lock, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	locks := make([]*Lock, 0, len(keys))
	for _, key := range keys {
		lock, err := r.ReadKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

// Write 以一次多字段写入保存完整记录
func (r *Repository) Write(ctx context.Context, lock *Lock) error {
	if lock == nil || lock.Name == "" || lock.OwnerID == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: lock requires name and owner")
	}
	if lock.ExpiryTime.Before(lock.InitTime) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "chanlock: lock %s expires before it starts", lock.Name)
	}
	return xerrors.Wrapf(r.store.HashWriteAll(ctx, r.Key(lock.Name), lock.encode()), "write lock %s", lock.Name)
}

// Delete 删除频道的锁记录
func (r *Repository) Delete(ctx context.Context, name string) error {
	return xerrors.Wrapf(r.store.HashDelete(ctx, r.Key(name)), "delete lock %s", name)
}

// SetMessageRef 记录状态消息的引用，在通知发送成功之后调用
func (r *Repository) SetMessageRef(ctx context.Context, name, ref string) error {
	return r.setField(ctx, name, fieldMessageRef, ref)
}

// MarkOwnerWarned 标记持有者已收到本轮到期提醒
func (r *Repository) MarkOwnerWarned(ctx context.Context, name string) error {
	return r.setField(ctx, name, fieldOwnerWarned, formatFlag(true))
}

// MarkExpiryAnnounced 标记到期公告已发出，到期后记录即视为不存在
func (r *Repository) MarkExpiryAnnounced(ctx context.Context, name string) error {
	return r.setField(ctx, name, fieldExpiryAnnounced, formatFlag(true))
}

// ClaimExpiry 把 lock 对应的记录原子地标记为已公告，只有完成标记的调用者返回 true。
// 记录已被其他扫描标记，或已被重新获取、延长时返回 false。
func (r *Repository) ClaimExpiry(ctx context.Context, lock *Lock) (bool, error) {
	ok, err := r.store.HashCompareAndSwap(ctx, r.Key(lock.Name), lock.identity(), fieldExpiryAnnounced, formatFlag(true))
	return ok, xerrors.Wrapf(err, "claim expiry of lock %s", lock.Name)
}

// unclaimExpiry 撤销 ClaimExpiry，让下一轮扫描重新处理
func (r *Repository) unclaimExpiry(ctx context.Context, lock *Lock) error {
	_, err := r.store.HashCompareAndSwap(ctx, r.Key(lock.Name), lock.identity(), fieldExpiryAnnounced, formatFlag(false))
	return xerrors.Wrapf(err, "unclaim expiry of lock %s", lock.Name)
}

// DeleteClaimed 删除已被 ClaimExpiry 标记的记录；记录已被重新获取时保留，返回 false
func (r *Repository) DeleteClaimed(ctx context.Context, lock *Lock) (bool, error) {
	expect := lock.identity()
	expect[fieldExpiryAnnounced] = formatFlag(true)
	ok, err := r.store.HashDeleteIf(ctx, r.Key(lock.Name), expect)
	return ok, xerrors.Wrapf(err, "delete claimed lock %s", lock.Name)
}

func (r *Repository) setField(ctx context.Context, name, field, value string) error {
	return xerrors.Wrapf(r.store.HashWriteField(ctx, r.Key(name), field, value), "set %s on lock %s", field, name)
}
