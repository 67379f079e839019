// Package trace 初始化 OpenTelemetry 全局 TracerProvider。
//
// 组件通过 otel.Tracer 获取 Tracer；未调用 Init 时使用 otel 的 noop 实现。
package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/ticketing/xerrors"
)

// Option Init 的函数式选项
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithExporter 使用指定的 SpanExporter 代替 OTLP gRPC，主要用于测试
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.exporter = exp
	}
}

// Init 初始化全局 TracerProvider
//
// 启用时连接到 OTLP gRPC Endpoint (如 Tempo/Jaeger)；未启用时退化为 Discard。
// 返回的 Shutdown 函数应在进程退出时调用以刷新剩余数据。
func Init(cfg *Config, opts ...Option) (func(context.Context) error, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if cfg != nil && !cfg.Enabled && o.exporter == nil {
		return Discard(cfg.ServiceName)
	}
	if err := cfg.validate(o.exporter != nil); err != nil {
		return nil, err
	}

	ctx := context.Background()

	exporter := o.exporter
	if exporter == nil {
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(5 * time.Second),
		}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, xerrors.Wrap(err, "create otlp exporter")
		}
		exporter = exp
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Sampler))),
	}
	if cfg.Batcher == "simple" {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(exporter))
	} else {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	install(tp)
	return tp.Shutdown, nil
}

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	var resOpts []resource.Option
	if serviceName != "" {
		resOpts = append(resOpts, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	}
	res, err := resource.New(ctx, resOpts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create resource")
	}
	return res, nil
}

// install 设置全局 Provider 与 W3C TraceContext/Baggage 传播器
func install(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
