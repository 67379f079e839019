package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

type redisConnector struct {
	cfg      *RedisConfig
	opts     *options
	logger   clog.Logger
	recorder *connectRecorder

	mu      sync.RWMutex
	client  *redis.Client
	healthy atomic.Bool
}

// NewRedis 创建 Redis 连接器，实际连接在 Connect 时建立
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts...)
	return &redisConnector{
		cfg:      cfg,
		opts:     opt,
		logger:   opt.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(opt.meter, "redis", cfg.Name),
	}, nil
}

// Connect 建立连接
func (c *redisConnector) Connect(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	defer func() { c.recorder.record(ctx, err) }()

	c.logger.Info("attempting to connect to redis", clog.String("addr", c.cfg.Addr))

	client := redis.NewClient(&redis.Options{
		Addr:         c.cfg.Addr,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		PoolSize:     c.cfg.PoolSize,
		MinIdleConns: c.cfg.MinIdleConns,
		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if c.opts.tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return xerrors.Wrapf(err, "redis connector[%s]: instrument tracing", c.cfg.Name)
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		c.logger.Error("failed to connect to redis", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "redis connector[%s]: %v", c.cfg.Name, err)
	}

	c.client = client
	c.healthy.Store(true)
	c.logger.Info("successfully connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

// Close 关闭连接
func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	c.client = nil
	c.logger.Info("redis connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *redisConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "redis connector[%s]", c.cfg.Name)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

// GetClient 返回 Redis 客户端
func (c *redisConnector) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
