package db

import (
	"time"

	"github.com/ceyewan/ticketing/xerrors"
)

// Config DB 组件配置
type Config struct {
	// SlowThreshold 超过该耗时的 SQL 以 warn 级别记录，默认 200ms
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold" json:"slow_threshold"`

	// LogSQL 是否以 debug 级别记录每条 SQL
	LogSQL bool `mapstructure:"log_sql" yaml:"log_sql" json:"log_sql"`
}

func (c *Config) setDefaults() {
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.SlowThreshold < 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "slow_threshold must not be negative: %s", c.SlowThreshold)
	}
	return nil
}
