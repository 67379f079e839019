// Package breaker 为存储调用提供熔断保护。
//
// 每个熔断键（通常是存储后端名称）独立维护一个 gobreaker 实例，失败率超过阈值后打开，
// 打开期间调用直接返回 ErrOpenState，不再访问存储；Timeout 后进入半开状态探测恢复。
//
//	brk, _ := breaker.New(&breaker.Config{}, breaker.WithLogger(logger),
//		breaker.WithIsSuccessful(func(err error) bool {
//			return err == nil || partition.Retryable(err)
//		}))
//
//	err := brk.Execute(ctx, "postgres", func(ctx context.Context) error {
//		v, err = store.Claim(ctx, id)
//		return err
//	})
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 执行受熔断保护的函数，熔断打开时返回 ErrOpenState
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error

	// State 获取指定键的熔断器状态，未使用过的键为 StateClosed
	State(key string) State
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// MaxRequests 半开状态下允许通过的最大请求数（默认：1）
	MaxRequests uint32 `mapstructure:"max_requests" json:"max_requests" yaml:"max_requests"`

	// Interval 闭合状态下的统计周期，0 表示不清空统计（默认：60s）
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`

	// Timeout 打开状态持续时间（默认：30s）
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// FailureRatio 触发熔断的失败率（默认：0.6）
	FailureRatio float64 `mapstructure:"failure_ratio" json:"failure_ratio" yaml:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数（默认：10）
	MinimumRequests uint32 `mapstructure:"minimum_requests" json:"minimum_requests" yaml:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

func (c *Config) validate() error {
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return xerrors.Wrapf(ErrInvalidConfig, "failure_ratio must be in [0, 1], got %v", c.FailureRatio)
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "interval and timeout must be non-negative")
	}
	return nil
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	o.logger.Debug("circuit breaker created",
		clog.Int("max_requests", int(c.MaxRequests)),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("failure_ratio", c.FailureRatio),
		clog.Int("minimum_requests", int(c.MinimumRequests)))

	return newBreaker(&c, o), nil
}
