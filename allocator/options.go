package allocator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/ticketing/breaker"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
)

const defaultBackend = "store"

// Option Allocator 选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracer  trace.TracerProvider
	rand    Rand
	breaker breaker.Breaker
	backend string
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:  clog.Discard(),
		meter:   metrics.Discard(),
		backend: defaultBackend,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}
	if o.rand == nil {
		o.rand = globalRand{}
	} else {
		o.rand = &lockedRand{r: o.rand}
	}
	return o
}

// WithLogger 设置日志记录器，自动添加 "allocator" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("allocator")
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

// WithTracer 设置 TracerProvider，默认使用全局 Provider
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithRand 注入随机源，相同种子下分区选择序列可复现
//
// 传入的随机源会被加锁保护，无需自身并发安全。
func WithRand(r Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithBreaker 使用外部熔断器替代按配置创建的熔断器
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithBackend 设置存储后端名称，用作熔断键与指标标签
func WithBackend(name string) Option {
	return func(o *options) {
		if name != "" {
			o.backend = name
		}
	}
}
