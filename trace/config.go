package trace

import "github.com/ceyewan/chanlock/xerrors"

// Config 链路追踪配置
//
// Endpoint 为空时不导出，只在进程内生成 TraceID，日志与事件头仍可关联。
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP gRPC 地址，如 localhost:4317
	Sampler     float64 `mapstructure:"sampler"`  // 采样率 0~1，默认 1
	Batcher     string  `mapstructure:"batcher"`  // batch | simple，默认 batch
	Insecure    bool    `mapstructure:"insecure"`
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "chanlock"
	}
	if c.Sampler == 0 {
		c.Sampler = 1.0
	}
	if c.Batcher == "" {
		c.Batcher = "batch"
	}
}

func (c *Config) validate() error {
	if c.Sampler < 0 || c.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "batch" && c.Batcher != "simple" {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: batcher must be \"batch\" or \"simple\", got %q", c.Batcher)
	}
	return nil
}
