package connector

import (
	"context"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

const etcdHealthKey = "ticketing/health-check"

type etcdConnector struct {
	cfg      *EtcdConfig
	logger   clog.Logger
	recorder *connectRecorder

	mu      sync.RWMutex
	client  *clientv3.Client
	healthy atomic.Bool
}

// NewEtcd 创建 Etcd 连接器，实际连接在 Connect 时建立
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts...)
	return &etcdConnector{
		cfg:      cfg,
		logger:   opt.logger.With(clog.String("connector", "etcd"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(opt.meter, "etcd", cfg.Name),
	}, nil
}

// Connect 建立连接
func (c *etcdConnector) Connect(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	defer func() { c.recorder.record(ctx, err) }()

	c.logger.Info("attempting to connect to etcd", clog.Any("endpoints", c.cfg.Endpoints))

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.cfg.Endpoints,
		Username:             c.cfg.Username,
		Password:             c.cfg.Password,
		DialTimeout:          c.cfg.DialTimeout,
		DialKeepAliveTime:    c.cfg.KeepAliveTime,
		DialKeepAliveTimeout: c.cfg.KeepAliveTimeout,
		Context:              context.Background(),
	})
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", c.cfg.Name, err)
	}

	if err := ping(ctx, client, c.cfg); err != nil {
		_ = client.Close()
		c.logger.Error("failed to connect to etcd", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", c.cfg.Name, err)
	}

	c.client = client
	c.healthy.Store(true)
	c.logger.Info("successfully connected to etcd")
	return nil
}

func ping(ctx context.Context, client *clientv3.Client, cfg *EtcdConfig) error {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	_, err := client.Get(pingCtx, etcdHealthKey)
	return err
}

// Close 关闭连接
func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close etcd connection", clog.Error(err))
		return err
	}
	c.client = nil
	c.logger.Info("etcd connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "etcd connector[%s]", c.cfg.Name)
	}
	if err := ping(ctx, client, c.cfg); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("etcd health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "etcd connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *etcdConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *etcdConnector) Name() string {
	return c.cfg.Name
}

// GetClient 返回 Etcd 客户端
func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
