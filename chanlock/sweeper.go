package chanlock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// SweepAction 一次扫描对单个锁采取的动作
type SweepAction int

const (
	SweepNone SweepAction = iota
	SweepWarned
	SweepExpired
	SweepWarnFailed
	SweepError
)

func (a SweepAction) String() string {
	switch a {
	case SweepWarned:
		return "warned"
	case SweepExpired:
		return "expired"
	case SweepWarnFailed:
		return "warn_failed"
	case SweepError:
		return "error"
	default:
		return "none"
	}
}

// SweepReport 一次全量扫描的统计
type SweepReport struct {
	Scanned    int
	Warned     int
	Expired    int
	WarnFailed int
	Failed     int
	Duration   time.Duration

	// Skipped 其他副本正在扫描，本轮未执行
	Skipped bool
}

// Guard 多副本部署时保证同一时刻只有一个副本执行扫描
type Guard interface {
	// TryAcquire 未能取得时返回 false, nil
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweeperOption 扫描器选项
type SweeperOption func(*Sweeper)

// WithGuard 每轮 SweepAll 前先取得 g，取不到则跳过本轮
func WithGuard(g Guard) SweeperOption {
	return func(w *Sweeper) {
		w.guard = g
	}
}

// Sweeper 到期扫描器：处理到期公告和到期前提醒
//
// SweepAll 是唯一的入口，调用频率由外部决定，Run 只是按固定间隔调用 SweepAll 的便利封装。
// 重叠的多次扫描对同一把到期锁只有一次能认领公告；Guard 进一步让多副本不做重复扫描。
type Sweeper struct {
	svc         *Service
	concurrency int
	logger      clog.Logger
	guard       Guard
}

// NewSweeper 创建扫描器
func NewSweeper(svc *Service, opts ...SweeperOption) *Sweeper {
	w := &Sweeper{
		svc:         svc,
		concurrency: svc.cfg.SweepConcurrency,
		logger:      svc.logger.WithNamespace("sweeper"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SweepOne 对单个频道应用到期与提醒规则
//
// 提醒投递失败时不设置提醒标记，下一轮扫描会重试；只有存储故障会返回错误。
func (w *Sweeper) SweepOne(ctx context.Context, name string) (SweepAction, error) {
	lock, err := w.svc.repo.Read(ctx, name)
	if err != nil {
		return SweepError, err
	}
	return w.sweep(ctx, lock)
}

func (w *Sweeper) sweep(ctx context.Context, lock *Lock) (SweepAction, error) {
	if lock == nil {
		return SweepNone, nil
	}

	now := w.svc.now()
	logger := w.logger.With(clog.String("channel", lock.Name), clog.String("owner", lock.OwnerID))

	if lock.Expired(now) {
		// 已公告的记录读取时已被视为不存在，这里只处理未公告的
		if lock.ExpiryAnnounced {
			return SweepNone, nil
		}
		if _, _, err := w.svc.free(ctx, logger, lock, "", true); err != nil {
			if xerrors.Is(err, errExpiryClaimed) {
				return SweepNone, nil
			}
			return SweepError, err
		}
		logger.Info("lock expired")
		return SweepExpired, nil
	}

	if !lock.Expiring(now, w.svc.cfg.WarnWindow) || lock.OwnerWarned {
		return SweepNone, nil
	}

	minutes := lock.RemainingMinutes(now)
	if err := w.svc.notifier.Direct(ctx, lock.Name, warningMessage(lock.Name, minutes), lock.OwnerID); err != nil {
		w.svc.metrics.observeNotifyFailure(ctx, "direct")
		logger.Warn("failed to warn lock owner, will retry", clog.Error(err))
		return SweepWarnFailed, nil
	}
	if err := w.svc.repo.MarkOwnerWarned(ctx, lock.Name); err != nil {
		return SweepError, err
	}

	w.svc.publish(ctx, Event{Kind: EventWarned, Name: lock.Name, Owner: lock.OwnerID, ExpiryTime: lock.ExpiryTime, At: now})
	logger.Info("lock owner warned", clog.Int("minutes_left", minutes))
	return SweepWarned, nil
}

// SweepAll 扫描所有锁记录，单个频道失败不影响其他频道，错误合并后返回
func (w *Sweeper) SweepAll(ctx context.Context) (SweepReport, error) {
	if w.guard == nil {
		return w.sweepAll(ctx)
	}

	ok, err := w.guard.TryAcquire(ctx)
	if err != nil {
		return SweepReport{}, xerrors.Wrap(err, "acquire sweep guard")
	}
	if !ok {
		w.logger.Debug("sweep skipped, another replica is sweeping")
		return SweepReport{Skipped: true}, nil
	}
	defer func() {
		if err := w.guard.Release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("failed to release sweep guard", clog.Error(err))
		}
	}()
	return w.sweepAll(ctx)
}

func (w *Sweeper) sweepAll(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport

	keys, err := w.svc.repo.Keys(ctx)
	if err != nil {
		return report, xerrors.Wrap(err, "list lock keys")
	}
	report.Scanned = len(keys)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(w.concurrency)

	for _, key := range keys {
		g.Go(func() error {
			action, err := w.sweepKey(ctx, key)
			w.svc.metrics.observeSweepAction(ctx, action)

			mu.Lock()
			defer mu.Unlock()
			switch action {
			case SweepWarned:
				report.Warned++
			case SweepExpired:
				report.Expired++
			case SweepWarnFailed:
				report.WarnFailed++
			case SweepError:
				report.Failed++
				errs = append(errs, xerrors.Wrapf(err, "sweep %s", key))
				w.logger.Error("failed to sweep lock", clog.String("key", key), clog.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	w.svc.metrics.observeSweep(ctx, report.Duration)
	if report.Warned+report.Expired+report.Failed > 0 {
		w.logger.Info("sweep finished",
			clog.Int("scanned", report.Scanned),
			clog.Int("warned", report.Warned),
			clog.Int("expired", report.Expired),
			clog.Int("failed", report.Failed),
			clog.Duration("duration", report.Duration))
	}
	return report, xerrors.Combine(errs...)
}

func (w *Sweeper) sweepKey(ctx context.Context, key string) (SweepAction, error) {
	if err := ctx.Err(); err != nil {
		return SweepError, err
	}
	lock, err := w.svc.repo.ReadKey(ctx, key)
	if err != nil {
		return SweepError, err
	}
	return w.sweep(ctx, lock)
}

// Run 立即扫描一次，然后每隔 interval 扫描，直到 ctx 结束
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: sweep interval must be positive")
	}

	w.logger.Info("sweeper started", clog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("sweep pass finished with errors", clog.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
