package breaker

import (
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	isSuccessful func(err error) bool
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		isSuccessful: func(err error) bool {
			return err == nil
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithIsSuccessful 自定义哪些错误不计入失败
//
// 业务上的预期错误（如分区耗尽、锁冲突）不应触发熔断。
func WithIsSuccessful(fn func(err error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.isSuccessful = fn
		}
	}
}
