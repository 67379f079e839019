package clog

import (
	"fmt"
	"sync"
)

var (
	defaultOnce   sync.Once
	defaultLogger Logger
)

// New 创建一个新的 Logger 实例
//
// config - 日志配置，如果为 nil 会使用开发环境默认配置
// opts   - 函数式选项列表，用于命名空间、Context 字段等配置
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// Default 返回进程级默认 Logger（console 格式，info 级别，输出到 stderr）
//
// 仅作为组件未注入 Logger 时的兜底，业务代码应显式注入。
func Default() Logger {
	defaultOnce.Do(func() {
		logger, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
		if err != nil {
			defaultLogger = Discard()
			return
		}
		defaultLogger = logger
	})
	return defaultLogger
}
