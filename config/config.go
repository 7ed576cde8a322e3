package config

import (
	"strings"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// ErrValidationFailed 配置验证失败
var ErrValidationFailed = xerrors.New("config: validation failed")

// Config 加载器配置
type Config struct {
	Name      string         // 配置文件名称，不含扩展名 (默认: "config")
	Paths     []string       // 配置文件搜索路径 (默认: [".", "./config"])
	FileType  string         // 配置文件类型 (默认: "yaml")
	EnvPrefix string         // 环境变量前缀 (默认: "CHANLOCK")
	Defaults  map[string]any // 默认值，key 使用点分形式；只有已知 key 才能被环境变量覆盖
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "CHANLOCK"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	if strings.ContainsAny(c.Name, `/\`) {
		return xerrors.Wrapf(ErrValidationFailed, "config name %q must not contain a path", c.Name)
	}
	return nil
}

// Option 配置加载器选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 设置日志记录器，自动追加 config 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(cfg, o.logger), nil
}

// IsNotFound 检查错误是否为配置未找到
func IsNotFound(err error) bool {
	return xerrors.Is(err, xerrors.ErrNotFound)
}
