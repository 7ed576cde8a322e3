package config

import (
	"context"
	"time"

	"github.com/ceyewan/chanlock/auth"
	"github.com/ceyewan/chanlock/breaker"
	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/connector"
	"github.com/ceyewan/chanlock/dlock"
	"github.com/ceyewan/chanlock/events"
	"github.com/ceyewan/chanlock/metrics"
	slacknotify "github.com/ceyewan/chanlock/notify/slack"
	"github.com/ceyewan/chanlock/ratelimit"
	"github.com/ceyewan/chanlock/server"
	"github.com/ceyewan/chanlock/trace"
	"github.com/ceyewan/chanlock/xerrors"
)

// AppName 配置文件名与环境变量前缀
const AppName = "chanlock"

// AppConfig chanlock 进程的完整配置
//
//	log:     { level: info, format: json }
//	redis:   { addr: 127.0.0.1:6379 }
//	lock:    { default_duration: 50m, warn_window: 10m }
//	sweep:   { interval: 1m, guard: true }
//	slack:   { token: xoxb-..., signing_secret: ..., team_id: T... }
//	http:    { addr: ":4993", rate_limit: { rate: 1, burst: 5 } }
//	events:  { driver: redis_stream }
type AppConfig struct {
	Log       clog.Config           `mapstructure:"log"`
	Redis     connector.RedisConfig `mapstructure:"redis"`
	NATS      connector.NATSConfig  `mapstructure:"nats"`
	Lock      chanlock.Config       `mapstructure:"lock"`
	Sweep     SweepConfig           `mapstructure:"sweep"`
	DLock     dlock.Config          `mapstructure:"dlock"`
	Slack     slacknotify.Config    `mapstructure:"slack"`
	Breaker   breaker.Config        `mapstructure:"breaker"`
	HTTP      server.Config         `mapstructure:"http"`
	RateLimit ratelimit.Config      `mapstructure:"ratelimit"`
	Auth      auth.Config           `mapstructure:"auth"`
	Metrics   metrics.Config        `mapstructure:"metrics"`
	Trace     trace.Config          `mapstructure:"trace"`
	Events    events.Config         `mapstructure:"events"`
}

// SweepConfig 到期扫描的调度配置
type SweepConfig struct {
	// Enabled 为 false 时 serve 不运行扫描循环，交给外部 cron 调用 `chanlock sweep`
	Enabled bool `mapstructure:"enabled"`

	// Interval 扫描间隔 (默认: 1m)
	Interval time.Duration `mapstructure:"interval"`

	// Guard 每轮扫描前取得 dlock 分布式锁，多副本部署时只有一个副本执行 (默认: true)
	Guard bool `mapstructure:"guard"`
}

// AppDefaults 返回 AppConfig 的默认值
//
// 列出的 key 同时决定哪些配置可以被 CHANLOCK_* 环境变量覆盖。
func AppDefaults() map[string]any {
	return map[string]any{
		"log.level":      "info",
		"log.format":     "json",
		"log.output":     "stdout",
		"log.add_source": false,

		"redis.addr":           "127.0.0.1:6379",
		"redis.password":       "",
		"redis.db":             0,
		"redis.enable_tracing": false,

		"nats.url": "",

		"lock.prefix":            "channel_lock_",
		"lock.waiter_prefix":     "ping_",
		"lock.default_duration":  "50m",
		"lock.max_duration":      "0s",
		"lock.warn_window":       "10m",
		"lock.sweep_concurrency": 8,

		"sweep.enabled":  true,
		"sweep.interval": "1m",
		"sweep.guard":    true,

		"dlock.prefix":      "chanlock:dlock:",
		"dlock.default_ttl": "30s",

		"slack.token":          "",
		"slack.signing_secret": "",
		"slack.team_id":        "",
		"slack.api_url":        "",
		"slack.timeout":        "10s",

		"breaker.max_requests":     1,
		"breaker.interval":         "60s",
		"breaker.timeout":          "30s",
		"breaker.failure_ratio":    0.6,
		"breaker.minimum_requests": 10,

		"http.addr":             ":4993",
		"http.service_name":     AppName,
		"http.rate_limit.rate":  1.0,
		"http.rate_limit.burst": 5,

		"ratelimit.mode":   "standalone",
		"ratelimit.prefix": "chanlock:ratelimit:",

		"auth.secret_key": "",
		"auth.issuer":     AppName,
		"auth.token_ttl":  "24h",

		"metrics.enabled":      true,
		"metrics.service_name": AppName,
		"metrics.port":         0,

		"trace.service_name": AppName,
		"trace.endpoint":     "",
		"trace.sampler":      1.0,
		"trace.insecure":     true,

		"events.driver":  "none",
		"events.stream":  "chanlock:events",
		"events.subject": "chanlock.events",
	}
}

// NewAppLoader 创建读取 chanlock.yaml 与 CHANLOCK_* 环境变量的加载器
func NewAppLoader(paths []string, opts ...Option) (Loader, error) {
	return New(&Config{
		Name:      AppName,
		Paths:     paths,
		EnvPrefix: AppName,
		Defaults:  AppDefaults(),
	}, opts...)
}

// LoadApp 加载并校验 AppConfig
func LoadApp(ctx context.Context, loader Loader) (*AppConfig, error) {
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(err, "config: unmarshal app config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 跨段校验，并把 slack 段的团队与签名配置下发给 http 段；
// 各组件自身的字段在组件构造时校验
func (c *AppConfig) Validate() error {
	if c.Redis.Addr == "" {
		return xerrors.Wrap(ErrValidationFailed, "redis.addr is required")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return xerrors.Wrap(ErrValidationFailed, "sweep.interval must be positive")
	}
	if c.Events.Driver == events.DriverNATSCore && c.NATS.URL == "" {
		return xerrors.Wrap(ErrValidationFailed, "nats.url is required by events.driver nats_core")
	}
	if c.HTTP.TeamID == "" {
		c.HTTP.TeamID = c.Slack.TeamID
	}
	if c.HTTP.SigningSecret == "" {
		c.HTTP.SigningSecret = c.Slack.SigningSecret
	}
	return nil
}
