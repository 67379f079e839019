package connector

import (
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracing bool
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器，记录连接尝试次数
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTracing 为客户端开启 OpenTelemetry 链路追踪（目前作用于 Redis）
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.applyDefaults()
	return o
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}
