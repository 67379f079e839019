package breaker

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
	"github.com/ceyewan/ticketing/xerrors"
)

type circuitBreaker struct {
	cfg          *Config
	logger       clog.Logger
	isSuccessful func(err error) bool

	rejects      metrics.Counter
	stateChanges metrics.Counter

	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[struct{}]
}

func newBreaker(cfg *Config, o *options) *circuitBreaker {
	cb := &circuitBreaker{
		cfg:          cfg,
		logger:       o.logger,
		isSuccessful: o.isSuccessful,
	}
	cb.rejects = mustCounter(o.meter, MetricRejectsTotal, "Number of calls rejected by an open circuit breaker")
	cb.stateChanges = mustCounter(o.meter, MetricStateChanges, "Number of circuit breaker state transitions")
	return cb
}

func mustCounter(meter metrics.Meter, name, desc string) metrics.Counter {
	c, err := meter.Counter(name, desc)
	if err != nil {
		c, _ = metrics.Discard().Counter(name, desc)
	}
	return c
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrKeyEmpty
	}

	_, err := cb.getOrCreate(key).Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.rejects.Inc(ctx, metrics.L(LabelKey, key))
		return xerrors.Wrapf(ErrOpenState, "%s", key)
	}
	return err
}

func (cb *circuitBreaker) State(key string) State {
	val, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed
	}
	return fromGoBreaker(val.(*gobreaker.CircuitBreaker[struct{}]).State())
}

func (cb *circuitBreaker) getOrCreate(key string) *gobreaker.CircuitBreaker[struct{}] {
	if val, ok := cb.breakers.Load(key); ok {
		return val.(*gobreaker.CircuitBreaker[struct{}])
	}

	settings := gobreaker.Settings{
		Name:          key,
		MaxRequests:   cb.cfg.MaxRequests,
		Interval:      cb.cfg.Interval,
		Timeout:       cb.cfg.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		OnStateChange: cb.onStateChange,
		IsSuccessful:  cb.isSuccessful,
	}

	// 并发创建时以先存入的为准
	actual, _ := cb.breakers.LoadOrStore(key, gobreaker.NewCircuitBreaker[struct{}](settings))
	return actual.(*gobreaker.CircuitBreaker[struct{}])
}

// readyToTrip 请求数达到下限且失败率超过阈值时打开
func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return failureRatio >= cb.cfg.FailureRatio
}

func (cb *circuitBreaker) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	fromState, toState := fromGoBreaker(from), fromGoBreaker(to)
	if toState == StateOpen {
		cb.logger.Warn("circuit breaker opened",
			clog.String("key", name),
			clog.String("from", fromState.String()))
	} else {
		cb.logger.Info("circuit breaker state changed",
			clog.String("key", name),
			clog.String("from", fromState.String()),
			clog.String("to", toState.String()))
	}
	cb.stateChanges.Inc(context.Background(),
		metrics.L(LabelKey, name),
		metrics.L(LabelFromState, fromState.String()),
		metrics.L(LabelToState, toState.String()))
}

func fromGoBreaker(state gobreaker.State) State {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
