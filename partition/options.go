package partition

import (
	"time"

	"github.com/ceyewan/ticketing/clog"
)

const (
	defaultLockTimeout = 500 * time.Millisecond
	defaultKeyPrefix   = "ticketing"
)

// Option 存储选项
type Option func(*options)

type options struct {
	logger      clog.Logger
	lockTimeout time.Duration
	keyPrefix   string
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:      clog.Discard(),
		lockTimeout: defaultLockTimeout,
		keyPrefix:   defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("partition")
		}
	}
}

// WithLockTimeout 设置行锁等待上限，仅关系型存储使用
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithKeyPrefix 设置 Redis/etcd 的键前缀
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}
