// Package chanlock 实现频道锁：一个有名字、会过期、通过共享键值存储协调的互斥锁。
//
// 每个频道最多一个持有者，锁有时长上限；锁被占用时其他请求者进入等待队列，
// 释放或到期时统一通知；到期前给持有者发送一次提醒。
//
// 基本使用：
//
//	svc, err := chanlock.New(cfg, st, notifier, chanlock.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	res := svc.Acquire(ctx, chanlock.Request{Name: "C1", UserID: "U1", Minutes: 30})
//	switch res.Outcome {
//	case chanlock.OutcomeAcquired, chanlock.OutcomeExtended:
//		// 持有锁
//	case chanlock.OutcomeQueued, chanlock.OutcomeAlreadyQueued:
//		// 锁被占用，释放时会收到通知
//	case chanlock.OutcomeFailed:
//		// 存储不可用，res.Err 可用 xerrors.Is(err, xerrors.ErrUnavailable) 判断
//	}
//
//	sweeper := chanlock.NewSweeper(svc)
//	report, err := sweeper.SweepAll(ctx) // 由外部定时调用
//
// 并发模型：
//
//	服务本身不持有任何进程内可变状态，所有状态都在存储中，每次操作重新读取。
//	读-判断-写之间没有事务，同一频道上的并发获取可能出现后写覆盖先写；
//	等待队列的加入与取出各自是原子的，等待者不会丢失也不会被重复通知。
//	到期公告以比较写入认领，并发扫描只公告一次；清理时按持有者与到期时间条件删除，
//	扫描期间被重新获取的锁会保留。
package chanlock

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/xerrors"
)

// Request 解码后的锁请求
type Request struct {
	Name       string // 频道 ID
	UserID     string
	UserName   string // 可选，仅用于展示
	Minutes    int    // 0 表示默认时长，负数取绝对值
	Annotation string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Service 锁协议的实现
type Service struct {
	cfg      *Config
	repo     *Repository
	waiters  *Waiters
	notifier Notifier

	logger  clog.Logger
	metrics *serviceMetrics
	clock   func() time.Time
	stats   StatsRecorder
	events  EventPublisher
}

// New 创建锁服务
func New(cfg *Config, s store.Store, notifier Notifier, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrStoreNil
	}
	if notifier == nil {
		return nil, ErrNotifierNil
	}

	o := applyOptions(opts...)
	m, err := newServiceMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	repo, err := NewRepository(s, c.Prefix, opts...)
	if err != nil {
		return nil, err
	}
	waiters, err := NewWaiters(s, c.WaiterPrefix)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      &c,
		repo:     repo,
		waiters:  waiters,
		notifier: notifier,
		logger:   o.logger,
		metrics:  m,
		clock:    o.clock,
		stats:    o.stats,
		events:   o.events,
	}, nil
}

// Repository 返回锁记录仓库
func (s *Service) Repository() *Repository {
	return s.repo
}

// Waiters 返回等待队列
func (s *Service) Waiters() *Waiters {
	return s.waiters
}

// Config 返回生效的配置
func (s *Service) Config() Config {
	return *s.cfg
}

// Now 返回服务时钟的当前时间，精确到秒
func (s *Service) Now() time.Time {
	return s.now()
}

// now 截断到秒，与持久化精度一致
func (s *Service) now() time.Time {
	return time.Unix(s.clock().Unix(), 0)
}

// maxRequestMinutes 不会让 time.Duration 溢出的最大分钟数
const maxRequestMinutes = int64(math.MaxInt64 / int64(time.Minute))

// duration 解析请求时长：0 为默认值，负数取绝对值；超过上限时截断并返回 capped=true。
// 先在分钟上比较再换算，任何 int 输入都不会溢出。
func (s *Service) duration(minutes int) (d time.Duration, capped bool) {
	if minutes == 0 {
		return s.cfg.DefaultDuration, false
	}
	m := int64(minutes)
	if m < 0 {
		if m == math.MinInt64 {
			m = math.MaxInt64
		} else {
			m = -m
		}
	}

	limit := maxRequestMinutes
	if s.cfg.MaxDuration > 0 {
		limit = min(limit, int64(s.cfg.MaxDuration/time.Minute))
	}
	if m > limit {
		return time.Duration(limit) * time.Minute, true
	}
	return time.Duration(m) * time.Minute, false
}

// ============================================================================
// Acquire / Extend
// ============================================================================

// Acquire 获取锁：空闲时获取，自己持有时延长，他人持有时加入等待队列
func (s *Service) Acquire(ctx context.Context, req Request) Result {
	res := s.acquire(ctx, req, false)
	s.metrics.observeOperation(ctx, "acquire", res.Outcome)
	return res
}

// Extend 延长自己持有的锁；空闲时直接获取，他人持有时拒绝且不排队
func (s *Service) Extend(ctx context.Context, req Request) Result {
	res := s.acquire(ctx, req, true)
	s.metrics.observeOperation(ctx, "extend", res.Outcome)
	return res
}

func (s *Service) acquire(ctx context.Context, req Request, extendOnly bool) Result {
	if err := req.validate(); err != nil {
		return failed(msgInvalidRequest, err)
	}

	logger := s.logger.With(clog.String("channel", req.Name), clog.String("user", req.UserID))
	now := s.now()
	d, capped := s.duration(req.Minutes)

	cur, err := s.repo.Read(ctx, req.Name)
	if err != nil {
		logger.Error("failed to read lock", clog.Error(err))
		return failed(msgFailedLock, err)
	}

	// 已到期但尚未公告的锁不阻止重新获取
	if cur == nil || cur.Expired(now) {
		return s.acquireFree(ctx, logger, req, cur, now, d, capped)
	}
	if cur.OwnerID == req.UserID {
		return s.extend(ctx, logger, req, cur, now, d, capped)
	}
	if extendOnly {
		return Result{Outcome: OutcomeForbidden, Message: forbiddenExtendMessage(cur.OwnerID), Lock: cur}
	}

	added, err := s.waiters.Add(ctx, req.Name, req.UserID)
	if err != nil {
		logger.Error("failed to queue waiter", clog.Error(err))
		return failed(msgFailedLock, err)
	}
	if !added {
		return Result{Outcome: OutcomeAlreadyQueued, Message: msgAlreadyQueued, Lock: cur}
	}

	s.publish(ctx, Event{Kind: EventQueued, Name: req.Name, Owner: cur.OwnerID, Actor: req.UserID, ExpiryTime: cur.ExpiryTime, At: now})
	logger.Info("waiter queued", clog.String("owner", cur.OwnerID))
	return Result{Outcome: OutcomeQueued, Message: msgQueued, Lock: cur}
}

func (s *Service) acquireFree(ctx context.Context, logger clog.Logger, req Request, prev *Lock, now time.Time, d time.Duration, capped bool) Result {
	lock := &Lock{
		Name:       req.Name,
		OwnerID:    req.UserID,
		OwnerName:  req.UserName,
		InitTime:   now,
		ExpiryTime: now.Add(d),
		Annotation: strings.TrimSpace(req.Annotation),
	}
	if err := s.repo.Write(ctx, lock); err != nil {
		logger.Error("failed to write lock", clog.Error(err))
		return failed(msgFailedLock, err)
	}

	// 覆盖了一把到期未公告的锁，旧的状态消息标记为已释放
	if prev != nil && prev.MessageRef != "" {
		s.updateStatus(ctx, logger, prev.MessageRef, unlockedStatus(prev), true)
	}

	minutes := int(d / time.Minute)
	s.recordStats(ctx, logger, lock.Name, minutes, false)
	s.publish(ctx, Event{Kind: EventAcquired, Name: lock.Name, Owner: lock.OwnerID, Actor: req.UserID, ExpiryTime: lock.ExpiryTime, At: now})

	text := acquiredMessage(lock, minutes)
	if capped {
		text += cappedNote(minutes)
	}
	res := Result{Outcome: OutcomeAcquired, Message: text, Lock: lock}

	ref, err := s.notifier.PostInit(ctx, lock.Name, text)
	if err != nil {
		s.metrics.observeNotifyFailure(ctx, "post_init")
		logger.Warn("failed to post lock message", clog.Error(err))
	} else {
		res.Posted = true
		lock.MessageRef = ref
		if err := s.repo.SetMessageRef(ctx, lock.Name, ref); err != nil {
			logger.Warn("failed to store message ref", clog.Error(err))
		}
	}

	logger.Info("lock acquired", clog.Int("minutes", minutes))
	res.Lock = lock.clone()
	return res
}

// extend 从当前到期时间向后顺延，保留获取时间、状态消息和备注，开始新的提醒窗口
func (s *Service) extend(ctx context.Context, logger clog.Logger, req Request, cur *Lock, now time.Time, d time.Duration, capped bool) Result {
	lock := cur.clone()
	lock.ExpiryTime = cur.ExpiryTime.Add(d)
	lock.OwnerWarned = false
	lock.ExpiryAnnounced = false
	if a := strings.TrimSpace(req.Annotation); a != "" {
		lock.Annotation = a
	}
	if req.UserName != "" {
		lock.OwnerName = req.UserName
	}

	if err := s.repo.Write(ctx, lock); err != nil {
		logger.Error("failed to extend lock", clog.Error(err))
		return failed(msgFailedLock, err)
	}

	minutes := int(d / time.Minute)
	s.recordStats(ctx, logger, lock.Name, minutes, true)
	s.publish(ctx, Event{Kind: EventExtended, Name: lock.Name, Owner: lock.OwnerID, Actor: req.UserID, ExpiryTime: lock.ExpiryTime, At: now})

	left := lock.RemainingMinutes(now)
	if lock.MessageRef != "" {
		s.updateStatus(ctx, logger, lock.MessageRef, lockedStatus(lock, left), false)
	}

	text := extendedMessage(lock, left)
	if capped {
		text += cappedNote(minutes)
	}
	res := Result{Outcome: OutcomeExtended, Message: text, Lock: lock}
	if err := s.notifier.Post(ctx, lock.Name, text); err != nil {
		s.metrics.observeNotifyFailure(ctx, "post")
		logger.Warn("failed to post extension message", clog.Error(err))
	} else {
		res.Posted = true
	}

	logger.Info("lock extended", clog.Int("minutes", minutes), clog.Time("expiry", lock.ExpiryTime))
	return res
}

// ============================================================================
// Release / Status
// ============================================================================

// Release 释放锁，只有持有者可以释放
func (s *Service) Release(ctx context.Context, req Request) Result {
	res := s.release(ctx, req)
	s.metrics.observeOperation(ctx, "release", res.Outcome)
	return res
}

func (s *Service) release(ctx context.Context, req Request) Result {
	if err := req.validate(); err != nil {
		return failed(msgInvalidRequest, err)
	}

	logger := s.logger.With(clog.String("channel", req.Name), clog.String("user", req.UserID))
	cur, err := s.repo.Read(ctx, req.Name)
	if err != nil {
		logger.Error("failed to read lock", clog.Error(err))
		return failed(msgFailedUnlock, err)
	}
	if cur == nil {
		return Result{Outcome: OutcomeNothingToRelease, Message: msgNoLock}
	}
	if cur.OwnerID != req.UserID {
		return Result{Outcome: OutcomeForbidden, Message: forbiddenReleaseMessage(cur.OwnerID), Lock: cur}
	}

	text, posted, err := s.free(ctx, logger, cur, req.UserID, false)
	if err != nil {
		return failed(msgFailedUnlock, err)
	}
	logger.Info("lock released")
	return Result{Outcome: OutcomeReleased, Message: text, Posted: posted}
}

// errExpiryClaimed 到期公告已由其他扫描认领，或锁已被重新获取
var errExpiryClaimed = xerrors.New("chanlock: expiry already claimed")

// free 释放或到期的共同流程：标记状态消息、取出等待者、变更存储、发布公告
//
// 到期时先以比较写入认领公告，并发的多次扫描只有一个能继续，其余返回 errExpiryClaimed；
// 认领后按持有者与到期时间条件删除，不会删掉期间被他人重新获取的锁，删除失败的记录在下一次读取时视为不存在。
// 释放时直接删除记录，删除失败会把已取出的等待者放回队列。公告在状态变更之后发送，发送失败不回滚。
func (s *Service) free(ctx context.Context, logger clog.Logger, lock *Lock, actor string, expired bool) (text string, posted bool, err error) {
	if expired {
		claimed, err := s.repo.ClaimExpiry(ctx, lock)
		if err != nil {
			logger.Error("failed to claim expiry", clog.Error(err))
			return "", false, err
		}
		if !claimed {
			return "", false, errExpiryClaimed
		}
	}

	if lock.MessageRef != "" {
		s.updateStatus(ctx, logger, lock.MessageRef, unlockedStatus(lock), true)
	}

	waiters, err := s.waiters.Drain(ctx, lock.Name)
	if err != nil {
		logger.Error("failed to drain waiters", clog.Error(err))
		if expired {
			if uerr := s.repo.unclaimExpiry(ctx, lock); uerr != nil {
				logger.Error("failed to unclaim expiry", clog.Error(uerr))
			}
		}
		return "", false, err
	}

	if expired {
		deleted, derr := s.repo.DeleteClaimed(ctx, lock)
		switch {
		case derr != nil:
			logger.Warn("failed to delete announced lock", clog.Error(derr))
		case !deleted:
			logger.Debug("lock re-acquired before expiry cleanup, record kept")
		}
	} else if err := s.repo.Delete(ctx, lock.Name); err != nil {
		logger.Error("failed to free lock", clog.Error(err))
		if rerr := s.waiters.restore(ctx, lock.Name, waiters); rerr != nil {
			logger.Error("failed to restore waiters", clog.Error(rerr), clog.Any("waiters", waiters))
		}
		return "", false, err
	}

	kind := EventReleased
	if expired {
		kind = EventExpired
	}
	s.publish(ctx, Event{Kind: kind, Name: lock.Name, Owner: lock.OwnerID, Actor: actor, ExpiryTime: lock.ExpiryTime, At: s.now(), Waiters: waiters})

	text = releasedMessage(waiters, expired)
	if perr := s.notifier.Post(ctx, lock.Name, text); perr != nil {
		s.metrics.observeNotifyFailure(ctx, "post")
		logger.Warn("failed to post unlock message", clog.Error(perr))
		return text, false, nil
	}
	return text, true, nil
}

// Status 返回频道当前的锁状态与等待者，不修改任何状态
func (s *Service) Status(ctx context.Context, name string) Result {
	res := s.status(ctx, name)
	s.metrics.observeOperation(ctx, "status", res.Outcome)
	return res
}

func (s *Service) status(ctx context.Context, name string) Result {
	if strings.TrimSpace(name) == "" {
		return failed(msgInvalidRequest, ErrInvalidRequest)
	}
	cur, err := s.repo.Read(ctx, name)
	if err != nil {
		return failed(msgFailedStatus, err)
	}
	if cur == nil {
		return Result{Outcome: OutcomeFree, Message: msgNoLock}
	}
	waiters, err := s.waiters.Peek(ctx, name)
	if err != nil {
		return failed(msgFailedStatus, err)
	}
	return Result{Outcome: OutcomeHeld, Message: statusMessage(cur, cur.RemainingMinutes(s.now()), waiters), Lock: cur}
}

// List 返回所有频道当前持有的锁
func (s *Service) List(ctx context.Context) ([]*Lock, error) {
	locks, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list locks", clog.Error(err))
		return nil, err
	}
	return locks, nil
}

// ============================================================================
// 旁路副作用
// ============================================================================

func (s *Service) updateStatus(ctx context.Context, logger clog.Logger, ref, text string, unlocked bool) {
	if err := s.notifier.Update(ctx, ref, text, unlocked); err != nil {
		s.metrics.observeNotifyFailure(ctx, "update")
		logger.Warn("failed to update status message", clog.Error(err), clog.String("ref", ref))
		return
	}
	if unlocked {
		if err := s.notifier.React(ctx, ref, ReactionUnlock); err != nil {
			s.metrics.observeNotifyFailure(ctx, "react")
			logger.Debug("failed to add unlock reaction", clog.Error(err))
		}
	}
}

func (s *Service) recordStats(ctx context.Context, logger clog.Logger, name string, minutes int, extend bool) {
	if s.stats == nil {
		return
	}
	var err error
	if extend {
		err = s.stats.MarkExtend(ctx, name, minutes)
	} else {
		err = s.stats.MarkLock(ctx, name, minutes)
	}
	if err != nil {
		logger.Warn("failed to record stats", clog.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", clog.String("kind", string(ev.Kind)), clog.String("channel", ev.Name), clog.Error(err))
	}
}

// IsUnavailable 报告结果是否由存储故障导致
func (r Result) IsUnavailable() bool {
	return r.Err != nil && xerrors.Is(r.Err, xerrors.ErrUnavailable)
}
