// Package stats 记录每个频道当天的锁使用统计：获取次数、延长次数、累计锁定分钟数和单次最长锁定。
//
// 统计按自然日滚动：记录的创建时间不在今天时，读取会丢弃旧记录并从零开始。
// Recorder 实现 chanlock.StatsRecorder，由锁服务在获取与延长成功后调用。
//
//	rec, _ := stats.New(st, stats.WithLogger(logger))
//	svc, _ := chanlock.New(cfg, st, notifier, chanlock.WithStats(rec))
//
//	s, _ := rec.Get(ctx, "C1")
//	fmt.Println(stats.Format(s))
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/xerrors"
)

// DefaultPrefix 统计记录键前缀
const DefaultPrefix = "channel_stats_"

const (
	fieldChannelID    = "channel_id"
	fieldCreatedTime  = "created_time"
	fieldLocksCount   = "locks_count"
	fieldExtendsCount = "extends_count"
	fieldLockMinutes  = "lock_minutes"
	fieldLongestLock  = "longest_lock"
)

var (
	ErrStoreNil  = xerrors.New("stats: store is nil")
	ErrNameEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "stats: channel name is empty")
)

// Stats 单个频道当天的统计
type Stats struct {
	Name         string
	CreatedTime  time.Time
	LocksCount   int
	ExtendsCount int
	LockMinutes  int // 获取与延长请求的分钟数之和
	LongestLock  int // 单次获取请求的最大分钟数
}

// Recorder 基于 store.Store 的统计记录器
type Recorder struct {
	store  store.Store
	prefix string
	clock  func() time.Time
	loc    *time.Location
	logger clog.Logger
}

var _ chanlock.StatsRecorder = (*Recorder)(nil)

// Option Recorder 选项
type Option func(*Recorder)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger.WithNamespace("stats")
		}
	}
}

// WithPrefix 设置键前缀 (默认: channel_stats_)
func WithPrefix(prefix string) Option {
	return func(r *Recorder) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithClock 替换时间来源
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLocation 设置判断"今天"所用的时区 (默认: time.Local)
func WithLocation(loc *time.Location) Option {
	return func(r *Recorder) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// New 创建统计记录器
func New(s store.Store, opts ...Option) (*Recorder, error) {
	if s == nil {
		return nil, ErrStoreNil
	}
	r := &Recorder{
		store:  s,
		prefix: DefaultPrefix,
		clock:  time.Now,
		loc:    time.Local,
		logger: clog.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Key 返回频道统计的存储键
func (r *Recorder) Key(name string) string {
	return r.prefix + name
}

// Get 读取频道当天的统计；记录不是今天创建的会被删除并返回空统计
func (r *Recorder) Get(ctx context.Context, name string) (Stats, error) {
	s, _, err := r.get(ctx, name)
	return s, err
}

// get 额外返回记录是否已存在于今天
func (r *Recorder) get(ctx context.Context, name string) (Stats, bool, error) {
	if strings.TrimSpace(name) == "" {
		return Stats{}, false, ErrNameEmpty
	}
	now := r.now()
	fresh := Stats{Name: name, CreatedTime: now}

	fields, err := r.store.HashRead(ctx, r.Key(name))
	if err != nil {
		return Stats{}, false, err
	}
	if len(fields) == 0 {
		return fresh, false, nil
	}

	s, ok := decode(name, fields)
	if !ok || !r.sameDay(s.CreatedTime, now) {
		// 只删除读到的那份旧记录，并发写入的今日记录保留
		expect := map[string]string{fieldCreatedTime: fields[fieldCreatedTime]}
		if _, err := r.store.HashDeleteIf(ctx, r.Key(name), expect); err != nil {
			r.logger.Warn("failed to drop outdated stats", clog.String("channel", name), clog.Error(err))
		}
		return fresh, false, nil
	}
	return s, true, nil
}

// MarkLock 记录一次获取
func (r *Recorder) MarkLock(ctx context.Context, name string, minutes int) error {
	key, err := r.today(ctx, name)
	if err != nil {
		return err
	}
	if err := r.incr(ctx, key, fieldLocksCount, 1); err != nil {
		return err
	}
	if err := r.incr(ctx, key, fieldLockMinutes, minutes); err != nil {
		return err
	}
	return r.raiseLongest(ctx, key, minutes)
}

// MarkExtend 记录一次延长
func (r *Recorder) MarkExtend(ctx context.Context, name string, minutes int) error {
	key, err := r.today(ctx, name)
	if err != nil {
		return err
	}
	if err := r.incr(ctx, key, fieldExtendsCount, 1); err != nil {
		return err
	}
	return r.incr(ctx, key, fieldLockMinutes, minutes)
}

// today 完成日期滚动并保证今天的记录带有创建时间，返回记录键
func (r *Recorder) today(ctx context.Context, name string) (string, error) {
	s, exists, err := r.get(ctx, name)
	if err != nil {
		return "", err
	}
	key := r.Key(name)
	if exists {
		return key, nil
	}
	created := strconv.FormatInt(s.CreatedTime.Unix(), 10)
	if _, err := r.store.HashCompareAndSwap(ctx, key, map[string]string{fieldCreatedTime: ""}, fieldCreatedTime, created); err != nil {
		return "", err
	}
	if err := r.store.HashWriteField(ctx, key, fieldChannelID, name); err != nil {
		return "", err
	}
	return key, nil
}

func (r *Recorder) incr(ctx context.Context, key, field string, delta int) error {
	_, err := r.store.HashIncrBy(ctx, key, field, int64(delta))
	return err
}

// raiseLongest 以比较写入把单次最长锁定提升到 minutes。
// 写入失败说明他人刚提升过该值，值只增不减，循环在有限次内结束。
func (r *Recorder) raiseLongest(ctx context.Context, key string, minutes int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := r.store.HashRead(ctx, key, fieldLongestLock)
		if err != nil {
			return err
		}
		raw := fields[fieldLongestLock]
		if cur, err := strconv.Atoi(raw); err == nil && minutes <= cur {
			return nil
		}
		ok, err := r.store.HashCompareAndSwap(ctx, key, map[string]string{fieldLongestLock: raw}, fieldLongestLock, strconv.Itoa(minutes))
		if err != nil || ok {
			return err
		}
	}
}

func (r *Recorder) now() time.Time {
	return time.Unix(r.clock().Unix(), 0)
}

func (r *Recorder) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(r.loc).Date()
	by, bm, bd := b.In(r.loc).Date()
	return ay == by && am == bm && ad == bd
}

// Format 渲染统计消息
func Format(s Stats) string {
	return fmt.Sprintf("Hello yes, see today stats:\nnumber of locks: %d\nnumber of lock extends: %d",
		s.LocksCount, s.ExtendsCount)
}

// decode 缺少创建时间的记录视为损坏；计数字段缺失或无法解析时按 0 处理
func decode(name string, fields map[string]string) (Stats, bool) {
	created, err := strconv.ParseInt(fields[fieldCreatedTime], 10, 64)
	if err != nil {
		return Stats{}, false
	}
	count := func(field string) int {
		n, err := strconv.Atoi(fields[field])
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return Stats{
		Name:         name,
		CreatedTime:  time.Unix(created, 0),
		LocksCount:   count(fieldLocksCount),
		ExtendsCount: count(fieldExtendsCount),
		LockMinutes:  count(fieldLockMinutes),
		LongestLock:  count(fieldLongestLock),
	}, true
}
