// Package server 把频道锁暴露为 Slack 斜杠命令与交互回调的 HTTP 入口。
//
// 路由：
//
//	POST /lock       获取或延长锁，text 的第一个整数为分钟数，其余为备注
//	POST /unlock     释放锁
//	POST /dialock    到期提醒按钮回调（lock / unlock / nothing）
//	POST /lockstats  把频道当日统计发到频道
//	GET  /healthz    后端健康检查
//	GET  /metrics    Prometheus 抓取端点
//	GET  /api/v1/locks[/:name]  管理接口，需要 admin 角色的 Bearer Token
//
// 响应约定：已经由 Notifier 发到频道的消息返回 204；频道可见但发送失败的消息以
// in_channel JSON 回显；只对请求者可见的结果返回 200 纯文本；格式错误返回 400。
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/ratelimit"
	"github.com/ceyewan/chanlock/trace"
	"github.com/ceyewan/chanlock/xerrors"
)

const (
	routeHealth  = "/healthz"
	routeMetrics = "/metrics"
)

// Server 锁服务的 HTTP 入口
type Server struct {
	cfg    Config
	svc    *chanlock.Service
	opts   *options
	logger clog.Logger
	engine *gin.Engine
}

// New 创建 Server 并注册路由
func New(cfg *Config, svc *chanlock.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if svc == nil {
		return nil, ErrServiceNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, c.ServiceName)
	if err != nil {
		return nil, xerrors.Wrap(err, "server: create http metrics")
	}

	s := &Server{
		cfg:    c,
		svc:    svc,
		opts:   o,
		logger: o.logger,
		engine: gin.New(),
	}
	s.engine.Use(
		gin.Recovery(),
		requestID(),
		trace.GinMiddleware(c.ServiceName),
		metrics.GinHTTPMiddleware(httpMetrics, routeHealth, routeMetrics),
	)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine
	r.GET(routeHealth, s.handleHealth)
	r.GET(routeMetrics, gin.WrapH(s.opts.meter.Handler()))

	cmds := r.Group("/")
	if s.cfg.SigningSecret != "" {
		cmds.Use(verifySignature(s.cfg.SigningSecret, s.logger))
	}
	cmds.Use(ratelimit.GinMiddleware(s.opts.limiter, limitKey, s.cfg.RateLimit))
	cmds.POST("/lock", s.handleLock)
	cmds.POST("/unlock", s.handleUnlock)
	cmds.POST("/dialock", s.handleDialog)
	if s.opts.stats != nil {
		cmds.POST("/lockstats", s.handleStats)
	}

	if s.opts.auth != nil {
		admin := r.Group("/api/v1", s.opts.auth.GinMiddleware(), requireAdmin())
		admin.GET("/locks", s.handleListLocks)
		admin.GET("/locks/:name", s.handleGetLock)
	}
}

// Handler 返回 http.Handler，测试与自定义监听使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 Config.Addr 直到 ctx 结束，然后在 ShutdownTimeout 内优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", clog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return xerrors.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Wrap(err, "server: shutdown")
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.health != nil {
		if err := s.opts.health(c.Request.Context()); err != nil {
			s.logger.WarnContext(c.Request.Context(), "health check failed", clog.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
