// Package auth 为管理 API 提供基于 JWT 的认证能力。
//
// 斜杠命令由 Slack 签名保护，管理 API（锁列表、单锁查询）面向运维人员，
// 使用 HS256 签名的 Bearer Token：
//
//	authenticator, _ := auth.New(&auth.Config{SecretKey: "..."}, auth.WithLogger(logger))
//	token, _ := authenticator.GenerateToken(ctx, &auth.Claims{
//	    RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
//	    Roles:            []string{auth.RoleAdmin},
//	})
//	admin := r.Group("/api/v1", authenticator.GinMiddleware(), auth.RequireRoles(auth.RoleAdmin))
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/xerrors"
)

// RoleAdmin 管理 API 所需角色
const RoleAdmin = "admin"

// ClaimsKey Gin Context 中保存 Claims 的键
const ClaimsKey = "auth:claims"

// Authenticator 认证器接口
type Authenticator interface {
	// GenerateToken 签发 Token，未设置的标准声明按配置补齐
	GenerateToken(ctx context.Context, claims *Claims) (string, error)

	// ValidateToken 验证 Token，返回 Claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)

	// GinMiddleware 返回 Gin 认证中间件
	GinMiddleware() gin.HandlerFunc
}

type jwtAuth struct {
	cfg       Config
	logger    clog.Logger
	clock     func() time.Time
	parser    *jwt.Parser
	generated metrics.Counter
	validated metrics.Counter
}

// New 创建 Authenticator
func New(cfg *Config, opts ...Option) (Authenticator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	generated, err := o.meter.Counter(MetricTokensGenerated, "Total number of tokens generated")
	if err != nil {
		return nil, xerrors.Wrap(err, "auth: create generated counter")
	}
	validated, err := o.meter.Counter(MetricTokensValidated, "Total number of tokens validated")
	if err != nil {
		return nil, xerrors.Wrap(err, "auth: create validated counter")
	}

	return &jwtAuth{
		cfg:    c,
		logger: o.logger,
		clock:  o.clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{c.SigningMethod}),
			jwt.WithIssuer(c.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(o.clock),
		),
		generated: generated,
		validated: validated,
	}, nil
}

// GenerateToken 签发 Token
func (a *jwtAuth) GenerateToken(ctx context.Context, claims *Claims) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", ErrInvalidClaims
	}

	now := a.clock()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.cfg.TokenTTL))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.Issuer == "" {
		claims.Issuer = a.cfg.Issuer
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(a.cfg.SigningMethod), claims)
	signed, err := token.SignedString([]byte(a.cfg.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "auth: sign token")
	}

	a.generated.Inc(ctx)
	a.logger.Info("token generated",
		clog.String("subject", claims.Subject),
		clog.Time("expires_at", claims.ExpiresAt.Time))
	return signed, nil
}

// ValidateToken 验证 Token
func (a *jwtAuth) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.SecretKey), nil
	})
	if err != nil {
		var errType string
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			errType, err = "expired", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			errType, err = "invalid_signature", ErrInvalidSignature
		default:
			errType, err = "invalid_token", ErrInvalidToken
		}
		a.validated.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", errType))
		a.logger.Debug("token rejected", clog.String("error_type", errType))
		return nil, err
	}

	a.validated.Inc(ctx, metrics.L("status", "success"))
	return claims, nil
}

// extractToken 从 Authorization 头提取 Token
func (a *jwtAuth) extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, a.cfg.TokenHeadName) || token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
