package config

import "github.com/ceyewan/ticketing/clog"

// Option 配置加载器的函数式选项
type Option func(*options)

type options struct {
	logger        clog.Logger
	requireFile   bool
	disableWatch  bool
	disableDotEnv bool
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("config")
		}
	}
}

// WithRequireFile 要求配置文件必须存在，否则 Load 返回 ErrFileNotFound
func WithRequireFile() Option {
	return func(o *options) {
		o.requireFile = true
	}
}

// WithoutWatch 关闭配置文件热更新监听
func WithoutWatch() Option {
	return func(o *options) {
		o.disableWatch = true
	}
}

// WithoutDotEnv 不加载 .env 文件
func WithoutDotEnv() Option {
	return func(o *options) {
		o.disableDotEnv = true
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
