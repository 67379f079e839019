package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

// databaseConnector 是 MySQL、PostgreSQL、SQLite 共用的 GORM 连接器
type databaseConnector struct {
	name      string
	driver    string
	dialector func() gorm.Dialector
	pool      PoolConfig
	logger    clog.Logger
	recorder  *connectRecorder

	mu      sync.RWMutex
	db      *gorm.DB
	healthy atomic.Bool
}

func newDatabaseConnector(name, driver string, pool PoolConfig, dialector func() gorm.Dialector, opt *options) *databaseConnector {
	return &databaseConnector{
		name:      name,
		driver:    driver,
		dialector: dialector,
		pool:      pool,
		logger:    opt.logger.With(clog.String("connector", driver), clog.String("name", name)),
		recorder:  newConnectRecorder(opt.meter, driver, name),
	}
}

// Connect 建立连接
func (c *databaseConnector) Connect(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	defer func() { c.recorder.record(ctx, err) }()

	c.logger.Info("attempting to connect")

	// SQL 日志由 db 组件通过 Session 注入，这里保持静默
	db, err := gorm.Open(c.dialector(), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		c.logger.Error("failed to open database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.driver, c.name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: get db instance: %v", c.driver, c.name, err)
	}
	sqlDB.SetMaxIdleConns(c.pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.pool.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping failed: %v", c.driver, c.name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("successfully connected")
	return nil
}

// Close 关闭连接
func (c *databaseConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database", clog.Error(err))
		return err
	}

	c.db = nil
	c.logger.Info("connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *databaseConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.driver, c.name)
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.driver, c.name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *databaseConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *databaseConnector) Name() string {
	return c.name
}

func (c *databaseConnector) Driver() string {
	return c.driver
}

// GetClient 返回 GORM 客户端
func (c *databaseConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
