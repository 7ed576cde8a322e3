// Package app 按依赖顺序装配 chanlock 进程的全部组件，并负责按逆序释放。
//
// 装配顺序：日志 → 指标 → 追踪 → 连接器 → 存储 → 统计/通知/事件 → 锁服务 → HTTP。
// 任一步骤失败时，已创建的资源会被回收。
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/chanlock/auth"
	"github.com/ceyewan/chanlock/breaker"
	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/config"
	"github.com/ceyewan/chanlock/connector"
	"github.com/ceyewan/chanlock/dlock"
	"github.com/ceyewan/chanlock/events"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/notify"
	slacknotify "github.com/ceyewan/chanlock/notify/slack"
	"github.com/ceyewan/chanlock/ratelimit"
	"github.com/ceyewan/chanlock/server"
	"github.com/ceyewan/chanlock/stats"
	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/trace"
	"github.com/ceyewan/chanlock/xerrors"
)

// closeTimeout 单个资源释放的最长等待时间
const closeTimeout = 5 * time.Second

// ErrConfigNil 配置为空
var ErrConfigNil = xerrors.New("app: config is nil")

// App 装配完成的进程
type App struct {
	Logger  clog.Logger
	Meter   metrics.Meter
	Service *chanlock.Service
	Sweeper *chanlock.Sweeper
	Server  *server.Server
	Auth    auth.Authenticator // 未配置 auth.secret_key 时为 nil

	cfg     *config.AppConfig
	redis   connector.RedisConnector
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Option App 选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	notifier chanlock.Notifier
}

// WithLogger 使用外部日志记录器，不再按 cfg.Log 创建
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNotifier 使用外部通知器，不再按 cfg.Slack 创建
func WithNotifier(n chanlock.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// New 装配全部组件并建立 Redis 连接
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (a *App, err error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a = &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err = a.initObservability(o); err != nil {
		return a, err
	}
	if err = a.initConnectors(ctx); err != nil {
		return a, err
	}
	if err = a.initComponents(ctx, o); err != nil {
		return a, err
	}
	return a, nil
}

// ============================================================================
// 装配
// ============================================================================

func (a *App) initObservability(o *options) error {
	a.Logger = o.logger
	if a.Logger == nil {
		logger, err := clog.New(&a.cfg.Log,
			clog.WithNamespace(config.AppName),
			clog.WithContextField(server.RequestIDKey, "request_id"),
		)
		if err != nil {
			return xerrors.Wrap(err, "app: create logger")
		}
		a.Logger = logger
	}

	meter, err := metrics.New(&a.cfg.Metrics, metrics.WithLogger(a.Logger))
	if err != nil {
		return xerrors.Wrap(err, "app: create meter")
	}
	a.Meter = meter
	a.onClose("metrics", meter.Shutdown)

	shutdown, err := trace.Setup(&a.cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "app: setup tracing")
	}
	a.onClose("trace", shutdown)
	return nil
}

func (a *App) initConnectors(ctx context.Context) error {
	redisCfg := a.cfg.Redis
	redisConn, err := connector.NewRedis(&redisCfg, connector.WithLogger(a.Logger))
	if err != nil {
		return err
	}
	a.onClose("redis", func(context.Context) error { return redisConn.Close() })
	if err := redisConn.Connect(ctx); err != nil {
		return xerrors.Wrap(err, "app: connect redis")
	}
	a.redis = redisConn
	return nil
}

func (a *App) initComponents(ctx context.Context, o *options) error {
	st, err := store.NewRedis(a.redis, store.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	recorder, err := stats.New(st, stats.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	notifier := o.notifier
	if notifier == nil {
		if notifier, err = a.newNotifier(); err != nil {
			return err
		}
	}

	pub, err := a.newPublisher(ctx)
	if err != nil {
		return err
	}

	a.Service, err = chanlock.New(&a.cfg.Lock, st, notifier,
		chanlock.WithLogger(a.Logger),
		chanlock.WithMeter(a.Meter),
		chanlock.WithStats(recorder),
		chanlock.WithEvents(pub),
	)
	if err != nil {
		return err
	}
	var sweepOpts []chanlock.SweeperOption
	if a.cfg.Sweep.Guard {
		locker, err := dlock.New(a.redis, &a.cfg.DLock, dlock.WithLogger(a.Logger), dlock.WithMeter(a.Meter))
		if err != nil {
			return err
		}
		a.onClose("dlock", func(context.Context) error { return locker.Close() })
		sweepOpts = append(sweepOpts, chanlock.WithGuard(&sweepGuard{locker: locker, key: sweepLockKey}))
	}
	a.Sweeper = chanlock.NewSweeper(a.Service, sweepOpts...)

	limiter, err := ratelimit.New(&a.cfg.RateLimit,
		ratelimit.WithLogger(a.Logger),
		ratelimit.WithMeter(a.Meter),
		ratelimit.WithRedisConnector(a.redis),
	)
	if err != nil {
		return err
	}
	a.onClose("ratelimit", func(context.Context) error { return limiter.Close() })

	srvOpts := []server.Option{
		server.WithLogger(a.Logger),
		server.WithMeter(a.Meter),
		server.WithStats(recorder, notifier),
		server.WithLimiter(limiter),
		server.WithHealthCheck(a.redis.HealthCheck),
	}
	if a.cfg.Auth.SecretKey != "" {
		a.Auth, err = auth.New(&a.cfg.Auth, auth.WithLogger(a.Logger), auth.WithMeter(a.Meter))
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithAuthenticator(a.Auth))
	} else {
		a.Logger.Info("auth.secret_key not set, admin api disabled")
	}

	a.Server, err = server.New(&a.cfg.HTTP, a.Service, srvOpts...)
	return err
}

// newNotifier 配置了 Slack Token 时使用带熔断的 Slack 通知器，否则只记录日志
func (a *App) newNotifier() (chanlock.Notifier, error) {
	if a.cfg.Slack.Token == "" {
		a.Logger.Warn("slack.token not set, notifications are logged only")
		return notify.NewLog(a.Logger), nil
	}

	sn, err := slacknotify.New(&a.cfg.Slack, slacknotify.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	brk, err := breaker.New(&a.cfg.Breaker, breaker.WithLogger(a.Logger), breaker.WithMeter(a.Meter))
	if err != nil {
		return nil, err
	}
	return notify.NewBreaker(sn, brk)
}

func (a *App) newPublisher(ctx context.Context) (events.Publisher, error) {
	opts := []events.Option{
		events.WithLogger(a.Logger),
		events.WithMeter(a.Meter),
		events.WithRedisConnector(a.redis),
	}
	if a.cfg.Events.Driver == events.DriverNATSCore {
		natsCfg := a.cfg.NATS
		natsConn, err := connector.NewNATS(&natsCfg, connector.WithLogger(a.Logger))
		if err != nil {
			return nil, err
		}
		a.onClose("nats", func(context.Context) error { return natsConn.Close() })
		if err := natsConn.Connect(ctx); err != nil {
			return nil, xerrors.Wrap(err, "app: connect nats")
		}
		opts = append(opts, events.WithNATSConnector(natsConn))
	}

	pub, err := events.New(&a.cfg.Events, opts...)
	if err != nil {
		return nil, err
	}
	a.onClose("events", func(context.Context) error { return pub.Close() })
	return pub, nil
}

// ============================================================================
// 运行与关闭
// ============================================================================

// Run 运行 HTTP 服务，sweep.enabled 时同时运行扫描循环，直到 ctx 结束或任一方出错
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(ctx)
	})
	if a.cfg.Sweep.Enabled {
		g.Go(func() error {
			return a.Sweeper.Run(ctx, a.cfg.Sweep.Interval)
		})
	}
	return g.Wait()
}

// WatchLogLevel 跟随配置文件中的 log.level 动态调整日志级别，直到 ctx 结束
func (a *App) WatchLogLevel(ctx context.Context, loader config.Loader) error {
	ch, err := loader.Watch(ctx, "log.level")
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			s, _ := ev.Value.(string)
			level, err := clog.ParseLevel(s)
			if err != nil {
				a.Logger.Warn("ignore invalid log level", clog.String("level", s), clog.Error(err))
				continue
			}
			if err := a.Logger.SetLevel(level); err != nil {
				a.Logger.Warn("failed to set log level", clog.Error(err))
				continue
			}
			a.Logger.Info("log level changed", clog.String("level", level.String()))
		}
	}()
	return nil
}

// Close 按创建的逆序释放资源，返回遇到的第一个错误
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err := c.fn(ctx)
		cancel()
		if err != nil {
			if a.Logger != nil {
				a.Logger.Warn("failed to close resource", clog.String("name", c.name), clog.Error(err))
			}
			if first == nil {
				first = xerrors.Wrapf(err, "app: close %s", c.name)
			}
		}
	}
	a.closers = nil
	return first
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
