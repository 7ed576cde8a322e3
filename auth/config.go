package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/chanlock/xerrors"
)

// Config Auth 配置
type Config struct {
	SecretKey     string   `mapstructure:"secret_key"`     // 签名密钥（至少 32 字符）
	SigningMethod string   `mapstructure:"signing_method"` // 签名方法，目前只支持 HS256
	Issuer        string   `mapstructure:"issuer"`         // 签发者，校验时要求一致

	// TokenTTL 签发的 Token 有效期，默认 24h
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// TokenHeadName Authorization 头前缀，默认 Bearer
	TokenHeadName string `mapstructure:"token_head_name"`
}

func (c *Config) setDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if c.Issuer == "" {
		c.Issuer = "chanlock"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.TokenHeadName == "" {
		c.TokenHeadName = "Bearer"
	}
}

func (c *Config) validate() error {
	if c.SecretKey == "" {
		return ErrInvalidConfig
	}
	if len(c.SecretKey) < 32 {
		return xerrors.Wrapf(ErrInvalidConfig, "secret_key must be at least 32 characters")
	}
	if c.SigningMethod != jwt.SigningMethodHS256.Alg() {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported signing_method: %s", c.SigningMethod)
	}
	if c.TokenTTL < 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "token_ttl must be positive")
	}
	return nil
}
