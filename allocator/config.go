package allocator

import (
	"time"

	"github.com/ceyewan/ticketing/breaker"
	"github.com/ceyewan/ticketing/xerrors"
)

// Config Allocator 配置
type Config struct {
	// MaxAttempts 单次 Claim 最多容忍的冲突次数，耗尽或不存在的分区不计入（默认：8）
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// RetryInitialInterval 冲突后首次退避时长（默认：5ms）
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" json:"retry_initial_interval" yaml:"retry_initial_interval"`

	// RetryMaxInterval 单次退避上限（默认：200ms）
	RetryMaxInterval time.Duration `mapstructure:"retry_max_interval" json:"retry_max_interval" yaml:"retry_max_interval"`

	// RefreshInterval 候选分区定期刷新间隔，0 表示只在候选为空时刷新（DefaultConfig：1m）
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval" yaml:"refresh_interval"`

	// Breaker 存储调用熔断配置
	Breaker breaker.Config `mapstructure:"breaker" json:"breaker" yaml:"breaker"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	c := &Config{RefreshInterval: time.Minute}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = 5 * time.Millisecond
	}
	if c.RetryMaxInterval == 0 {
		c.RetryMaxInterval = 200 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return xerrors.Wrapf(ErrInvalidConfig, "max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RetryInitialInterval < 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		return xerrors.Wrapf(ErrInvalidConfig, "retry intervals must satisfy 0 <= initial (%s) <= max (%s)",
			c.RetryInitialInterval, c.RetryMaxInterval)
	}
	if c.RefreshInterval < 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "refresh_interval must be non-negative, got %s", c.RefreshInterval)
	}
	return nil
}
