// Package db 在关系型数据库连接器之上提供 GORM 访问、事务与可观测性。
//
// db 借用连接器的 *gorm.DB，不负责连接生命周期：
//
//	conn, _ := connector.NewPostgreSQL(&cfg.Postgres, connector.WithLogger(logger))
//	defer conn.Close()
//	_ = conn.Connect(ctx)
//
//	database, _ := db.New(conn, &db.Config{}, db.WithLogger(logger), db.WithTracer(otel.GetTracerProvider()))
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&row).Error
//	})
package db

import (
	"context"
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/xerrors"
)

// DB 定义了数据库组件的核心能力
type DB interface {
	// DB 获取绑定 ctx 的 *gorm.DB
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务，fn 返回错误时回滚
	//
	// fn 中只能使用 tx，在事务内使用 DB(ctx) 会占用另一条连接。
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// Driver 返回底层驱动名称
	Driver() string

	// Close 释放组件资源，不关闭连接器
	Close() error
}

type database struct {
	client *gorm.DB
	driver string
	logger clog.Logger
}

// New 基于已连接的连接器创建数据库组件
func New(conn connector.DatabaseConnector, cfg *Config, opts ...Option) (DB, error) {
	if conn == nil {
		return nil, ErrConnectorRequired
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{logger: clog.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	client := conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrapf(ErrNotConnected, "connector %s", conn.Name())
	}

	if opt.tracer != nil {
		plugin := otelgorm.NewPlugin(
			otelgorm.WithTracerProvider(opt.tracer),
			otelgorm.WithDBName(conn.Name()),
			otelgorm.WithoutMetrics(),
		)
		// 同一连接器可能被多次包装，插件只需注册一次
		if err := client.Use(plugin); err != nil && !errors.Is(err, gorm.ErrRegistered) {
			return nil, xerrors.Wrap(err, "register otelgorm plugin")
		}
	}

	client = client.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, cfg, opt.silentMode),
	})

	return &database{
		client: client,
		driver: conn.Driver(),
		logger: opt.logger,
	}, nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (d *database) Driver() string {
	return d.driver
}

// Close 连接由连接器管理，这里无需额外关闭
func (d *database) Close() error {
	return nil
}
