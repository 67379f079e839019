// Package config 提供统一的配置加载能力，基于 Viper 实现。
//
// 配置优先级：环境变量 > .env > 环境特定配置 (config.<env>.yaml) > 基础配置 > 默认值。
// 环境由 <PREFIX>_ENV 决定，嵌套键通过下划线映射，例如
// allocator.max_attempts 对应 TICKETING_ALLOCATOR_MAX_ATTEMPTS。
//
// 基本使用：
//
//	loader, _ := config.New(&config.Config{Name: "ticketing", Defaults: defaults},
//		config.WithLogger(logger))
//	if err := loader.Load(ctx); err != nil {
//		return err
//	}
//
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		return err
//	}
//
//	ch, _ := loader.Watch(ctx, "log.level")
//	for event := range ch {
//		logger.Info("config changed", clog.String("key", event.Key))
//	}
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并初始化内部状态
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置变化，通过 context 取消监听
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// ConfigFileUsed 返回实际加载的配置文件路径，未加载文件时为空
	ConfigFileUsed() string
}

// Event 配置变更事件
type Event struct {
	Key       string // 配置 key
	Value     any    // 新值
	OldValue  any    // 旧值
	Timestamp time.Time
}
