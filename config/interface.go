// Package config 提供基于 Viper 的配置加载能力。
//
// 配置优先级（高到低）：
//
//	环境变量 > .env 文件 > 环境特定配置 (config.<env>.yaml) > 基础配置 (config.yaml) > 默认值
//
// 环境变量使用前缀加下划线形式，"redis.addr" 对应 CHANLOCK_REDIS_ADDR。
// 环境特定配置由 <PREFIX>_ENV 选择，例如 CHANLOCK_ENV=prod 会合并 config.prod.yaml。
//
// 基本使用：
//
//	loader, err := config.New(&config.Config{
//		Paths:    []string{"./config"},
//		Defaults: map[string]any{"redis.addr": "127.0.0.1:6379"},
//	}, config.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := loader.Load(ctx); err != nil {
//		return err
//	}
//
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		return err
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置，并开始监听配置文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体（使用 mapstructure 标签）
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
