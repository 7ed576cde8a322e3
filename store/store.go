// Package store 定义锁状态所依赖的键值存储能力，并提供基于 Redis 的实现。
//
// 存储是锁状态唯一的持久化来源，本包不做任何缓存。所有后端故障都会被标记为
// xerrors.ErrUnavailable，调用方可以据此区分"存储不可用"与"键不存在"：
//
//	fields, err := s.HashRead(ctx, "channel_lock_C1")
//	if xerrors.Is(err, xerrors.ErrUnavailable) {
//		// 存储故障，不能当作锁空闲
//	}
//	if len(fields) == 0 {
//		// 键不存在
//	}
package store

import (
	"context"

	"github.com/ceyewan/chanlock/xerrors"
)

// ErrClientNil Redis 客户端为空
var ErrClientNil = xerrors.New("store: redis client is nil")

// Store 键值存储能力：哈希字段读写、集合增删、按前缀枚举键
//
// 每个方法对应一次存储往返，单个方法内是原子的，方法之间没有事务；
// 需要"检查后修改"的调用方使用 HashCompareAndSwap 与 HashDeleteIf。
type Store interface {
	// HashRead 读取哈希字段，只返回存在的字段；fields 为空时读取全部字段。
	// 键不存在时返回空 map 和 nil 错误。
	HashRead(ctx context.Context, key string, fields ...string) (map[string]string, error)

	// HashWriteAll 以单条命令写入全部字段，读者不会看到写了一半的记录
	HashWriteAll(ctx context.Context, key string, values map[string]string) error

	// HashWriteField 写入单个字段
	HashWriteField(ctx context.Context, key, field, value string) error

	// HashDelete 删除哈希字段；fields 为空时删除整个键
	HashDelete(ctx context.Context, key string, fields ...string) error

	// HashCompareAndSwap 当 expect 的字段全部等于期望值、且 field 当前值不等于 value 时写入 field，
	// 返回是否写入。不存在的字段按空串比较。
	HashCompareAndSwap(ctx context.Context, key string, expect map[string]string, field, value string) (bool, error)

	// HashDeleteIf 当 expect 的字段全部等于期望值时删除整个键，返回是否删除。不存在的字段按空串比较。
	HashDeleteIf(ctx context.Context, key string, expect map[string]string) (bool, error)

	// HashIncrBy 字段按整数原子累加 delta，字段不存在时从 0 开始，返回累加后的值
	HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// SetAdd 向集合添加成员，返回是否为新成员
	SetAdd(ctx context.Context, key, member string) (bool, error)

	// SetPopAll 原子地取出并清空集合的全部成员
	SetPopAll(ctx context.Context, key string) ([]string, error)

	// SetMembers 返回集合成员，不修改集合
	SetMembers(ctx context.Context, key string) ([]string, error)

	// KeysByPrefix 枚举以 prefix 开头的键，结果按字典序排列
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}
