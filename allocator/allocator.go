// Package allocator 从随机选取的未耗尽分区中领取下一个未使用的整数。
//
// 并发的 Claim 分散在不同分区上，只在同一分区的存储行锁上排队。
// Allocator 维护一份未耗尽分区的本地缓存：分区耗尽时移除，定期或按需从存储刷新。
//
//	alloc, err := allocator.New(ctx, store, allocator.DefaultConfig(),
//		allocator.WithLogger(logger), allocator.WithMeter(meter))
//	if err != nil {
//		return err
//	}
//	defer alloc.Close()
//
//	claim, err := alloc.Claim(ctx)
package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/ticketing/breaker"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
	"github.com/ceyewan/ticketing/partition"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

const tracerName = "github.com/ceyewan/ticketing/allocator"

// Claim 一次成功领取的结果
type Claim struct {
	PartitionID int64
	Value       int64
}

// Allocator 分区 ID 分配器，并发安全
type Allocator struct {
	cfg     *Config
	store   partition.Store
	breaker breaker.Breaker
	backend string

	logger  clog.Logger
	tracer  oteltrace.Tracer
	metrics *allocatorMetrics
	rand    Rand

	candidates *candidates

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New 创建 Allocator 并加载候选分区
//
// 存储中没有任何分区时返回 partition.ErrNotProvisioned。
// cfg.RefreshInterval > 0 时启动后台刷新，需调用 Close 停止。
func New(ctx context.Context, store partition.Store, cfg *Config, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, xerrors.Wrap(partition.ErrNilClient, "store is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	m, err := newAllocatorMetrics(o.meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "register allocator metrics")
	}

	brk := o.breaker
	if brk == nil {
		brk, err = breaker.New(&c.Breaker,
			breaker.WithLogger(o.logger),
			breaker.WithMeter(o.meter),
			breaker.WithIsSuccessful(func(err error) bool {
				return err == nil || partition.Retryable(err)
			}))
		if err != nil {
			return nil, err
		}
	}

	a := &Allocator{
		cfg:        &c,
		store:      store,
		breaker:    brk,
		backend:    o.backend,
		logger:     o.logger.With(clog.String("backend", o.backend)),
		tracer:     o.tracer.Tracer(tracerName),
		metrics:    m,
		rand:       o.rand,
		candidates: newCandidates(),
		done:       make(chan struct{}),
	}

	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	if a.candidates.len() == 0 {
		var total int64
		err := a.guard(ctx, func(ctx context.Context) error {
			var err error
			total, err = store.Count(ctx)
			return err
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "count partitions")
		}
		if total == 0 {
			return nil, partition.ErrNotProvisioned
		}
		a.logger.Error("all partitions exhausted", clog.Int64("partitions", total))
	}

	if c.RefreshInterval > 0 {
		a.wg.Add(1)
		go a.refreshLoop()
	}

	a.logger.Info("allocator started",
		clog.Int("available", a.candidates.len()),
		clog.Int("max_attempts", c.MaxAttempts),
		clog.Duration("refresh_interval", c.RefreshInterval))
	return a, nil
}

// Claim 领取一个全局唯一的整数
//
// 分区耗尽或不存在时立即换分区重试，冲突时退避后换分区重试，连续冲突达到 MaxAttempts 后放弃，
// 存储不可用时直接返回。
// 可能返回 ErrSpaceExhausted、ErrServiceUnavailable、partition.ErrStorageUnavailable 或 ctx 错误，
// 前三者附带 Code* 错误码。
func (a *Allocator) Claim(ctx context.Context) (Claim, error) {
	select {
	case <-a.done:
		return Claim{}, ErrClosed
	default:
	}

	ctx, span := a.tracer.Start(ctx, trace.SpanAllocatorClaim,
		oteltrace.WithAttributes(attribute.String(trace.AttrBackend, a.backend)))
	defer span.End()

	start := time.Now()
	claim, attempts, err := a.claim(ctx)
	a.metrics.duration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int(trace.AttrAttempt, attempts))

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = classifyOutcome(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		switch outcome {
		case outcomeSpaceExhausted, outcomeRetriesExhausted, outcomeStorageUnavailable:
			err = xerrors.WithCode(err, outcome)
		}
	} else {
		span.SetAttributes(attribute.Int64(trace.AttrPartitionID, claim.PartitionID))
	}
	span.SetAttributes(attribute.String(trace.AttrOutcome, outcome))
	a.metrics.claims.Inc(ctx, metrics.L(metrics.LabelOutcome, outcome))
	return claim, err
}

// claim 只有冲突消耗 MaxAttempts；耗尽或不存在的分区直接剔除，候选集清空后强制刷新一次
func (a *Allocator) claim(ctx context.Context) (Claim, int, error) {
	bo := a.newBackOff()
	refreshed := false
	conflicts := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Claim{}, attempt, err
		}

		id, ok := a.candidates.pick(a.rand)
		if !ok {
			if refreshed {
				return Claim{}, attempt, a.spaceExhausted(ctx)
			}
			refreshed = true
			if err := a.Refresh(ctx); err != nil {
				return Claim{}, attempt, err
			}
			if id, ok = a.candidates.pick(a.rand); !ok {
				return Claim{}, attempt, a.spaceExhausted(ctx)
			}
		}

		var value int64
		err := a.guard(ctx, func(ctx context.Context) error {
			var err error
			value, err = a.store.Claim(ctx, id)
			return err
		})
		if err == nil {
			return Claim{PartitionID: id, Value: value}, attempt, nil
		}

		switch {
		case xerrors.Is(err, partition.ErrExhaustedPartition):
			a.drop(ctx, id, reasonExhausted)
		case xerrors.Is(err, partition.ErrPartitionNotFound):
			a.logger.Warn("partition not found, dropping from candidates", clog.Int64("partition_id", id))
			a.drop(ctx, id, reasonNotFound)
		case xerrors.Is(err, partition.ErrConflict):
			a.metrics.retries.Inc(ctx, metrics.L(metrics.LabelReason, reasonConflict))
			conflicts++
			if conflicts >= a.cfg.MaxAttempts {
				a.logger.Warn("claim retries exhausted",
					clog.Int("max_attempts", a.cfg.MaxAttempts), clog.Error(err))
				return Claim{}, attempt, xerrors.Wrapf(xerrors.Join(ErrServiceUnavailable, err),
					"gave up after %d conflicts", conflicts)
			}
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return Claim{}, attempt, err
			}
		default:
			return Claim{}, attempt, err
		}
	}
}

// guard 通过熔断器调用存储，熔断打开时归为 ErrStorageUnavailable
func (a *Allocator) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	err := a.breaker.Execute(ctx, a.backend, fn)
	if xerrors.Is(err, breaker.ErrOpenState) {
		return xerrors.Join(partition.ErrStorageUnavailable, err)
	}
	return err
}

func (a *Allocator) drop(ctx context.Context, id int64, reason string) {
	if a.candidates.remove(id) {
		a.metrics.available.Set(ctx, float64(a.candidates.len()))
		if reason == reasonExhausted {
			a.metrics.exhausted.Inc(ctx)
			a.logger.Info("partition exhausted", clog.Int64("partition_id", id),
				clog.Int("available", a.candidates.len()))
		}
	}
	a.metrics.retries.Inc(ctx, metrics.L(metrics.LabelReason, reason))
}

func (a *Allocator) spaceExhausted(ctx context.Context) error {
	a.logger.ErrorContext(ctx, "id space exhausted, provision a new range")
	return ErrSpaceExhausted
}

// Refresh 从存储重新加载未耗尽分区
func (a *Allocator) Refresh(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, trace.SpanAllocatorRefresh)
	defer span.End()

	var ids []int64
	err := a.guard(ctx, func(ctx context.Context) error {
		var err error
		ids, err = a.store.ListAvailable(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return xerrors.Wrap(err, "refresh candidates")
	}

	a.candidates.replace(ids)
	a.metrics.available.Set(ctx, float64(len(ids)))
	a.logger.Debug("candidates refreshed", clog.Int("available", len(ids)))
	return nil
}

// Available 返回当前候选分区数
func (a *Allocator) Available() int {
	return a.candidates.len()
}

// Close 停止后台刷新，之后的 Claim 返回 ErrClosed，可重复调用
func (a *Allocator) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.logger.Info("allocator closed")
	})
	return nil
}

func (a *Allocator) refreshLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RefreshInterval)
			if err := a.Refresh(ctx); err != nil {
				a.logger.Warn("periodic refresh failed", clog.Error(err))
			}
			cancel()
		}
	}
}

func (a *Allocator) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.RetryInitialInterval
	bo.MaxInterval = a.cfg.RetryMaxInterval
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyOutcome(err error) string {
	switch {
	case xerrors.Is(err, ErrSpaceExhausted):
		return outcomeSpaceExhausted
	case xerrors.Is(err, ErrServiceUnavailable):
		return outcomeRetriesExhausted
	case xerrors.Is(err, partition.ErrStorageUnavailable):
		return outcomeStorageUnavailable
	case xerrors.IsAny(err, context.Canceled, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
