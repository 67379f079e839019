// Package issuer 串联分配与编码：领取一个整数，再把它编码为短码。
//
// 调用方负责持久化 code 与目标之间的映射。
package issuer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/ticketing/allocator"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/encoder"
	"github.com/ceyewan/ticketing/metrics"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

const (
	tracerName = "github.com/ceyewan/ticketing/issuer"

	MetricCodesIssuedTotal = "ticketing_codes_issued_total"
)

var (
	// ErrNilDependency 缺少分配器或编码器
	ErrNilDependency = xerrors.New("issuer: nil dependency")

	// ErrInvalidCount 批量数量不合法
	ErrInvalidCount = xerrors.New("issuer: invalid count")
)

// Claimer 领取整数，*allocator.Allocator 满足该接口
type Claimer interface {
	Claim(ctx context.Context) (allocator.Claim, error)
}

// Code 一次发放的结果
type Code struct {
	PartitionID int64  `json:"partition_id"`
	ID          int64  `json:"id"`
	Code        string `json:"code"`
}

// Issuer 并发安全
type Issuer struct {
	claimer Claimer
	encoder *encoder.Encoder
	logger  clog.Logger
	tracer  oteltrace.Tracer
	issued  metrics.Counter
}

// Option Issuer 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tracer oteltrace.TracerProvider
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("issuer")
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

// WithTracer 设置 TracerProvider
func WithTracer(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// New 创建 Issuer
func New(claimer Claimer, enc *encoder.Encoder, opts ...Option) (*Issuer, error) {
	if claimer == nil || enc == nil {
		return nil, ErrNilDependency
	}
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}

	issued, err := o.meter.Counter(MetricCodesIssuedTotal, "Number of issue calls by outcome")
	if err != nil {
		return nil, xerrors.Wrap(err, "register issuer metrics")
	}

	return &Issuer{
		claimer: claimer,
		encoder: enc,
		logger:  o.logger,
		tracer:  o.tracer.Tracer(tracerName),
		issued:  issued,
	}, nil
}

// Issue 领取一个整数并编码
//
// 编码失败时已领取的整数被放弃，不会被再次发放。
func (i *Issuer) Issue(ctx context.Context) (Code, error) {
	ctx, span := i.tracer.Start(ctx, trace.SpanIssuerIssue)
	defer span.End()

	code, err := i.issue(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue failed")
		i.issued.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		return Code{}, err
	}

	span.SetAttributes(
		attribute.Int64(trace.AttrPartitionID, code.PartitionID),
		attribute.Int(trace.AttrCodeLength, len(code.Code)),
	)
	i.issued.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	return code, nil
}

func (i *Issuer) issue(ctx context.Context) (Code, error) {
	claim, err := i.claimer.Claim(ctx)
	if err != nil {
		field := clog.Error(err)
		if code := xerrors.GetCode(err); code != "" {
			field = clog.ErrorWithCode(err, code)
		}
		i.logger.WarnContext(ctx, "claim failed", field)
		return Code{}, xerrors.Wrap(err, "claim id")
	}

	s, err := i.encoder.Encode(claim.Value)
	if err != nil {
		i.logger.ErrorContext(ctx, "encode failed, id discarded",
			clog.Int64("partition_id", claim.PartitionID),
			clog.Int64("id", claim.Value),
			clog.Error(err))
		return Code{}, xerrors.Wrap(err, "encode id")
	}

	i.logger.DebugContext(ctx, "code issued",
		clog.Int64("partition_id", claim.PartitionID),
		clog.Int64("id", claim.Value),
		clog.String("code", s))
	return Code{PartitionID: claim.PartitionID, ID: claim.Value, Code: s}, nil
}

// IssueN 依次发放 n 个编码，遇到错误时返回已发放的部分
func (i *Issuer) IssueN(ctx context.Context, n int) ([]Code, error) {
	if n <= 0 {
		return nil, xerrors.Wrapf(ErrInvalidCount, "%d", n)
	}
	out := make([]Code, 0, n)
	for range n {
		code, err := i.Issue(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, code)
	}
	return out, nil
}
