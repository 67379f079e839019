package db

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/ticketing/clog"
)

// Option 配置 DB 实例的选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	tracer     trace.TracerProvider
	silentMode bool
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("db")
		}
	}
}

// WithTracer 注入 TracerProvider，为每条 SQL 生成 span
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithSilentMode 禁用 SQL 日志输出，适用于测试
func WithSilentMode() Option {
	return func(o *options) {
		o.silentMode = true
	}
}
