// Package bootstrap 按配置组装日志、指标、追踪、分区存储、分配器与发放器。
package bootstrap

import (
	"context"
	"errors"
	"os"
	"slices"

	"go.opentelemetry.io/otel"

	"github.com/ceyewan/ticketing/allocator"
	"github.com/ceyewan/ticketing/alphabet"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/config"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/db"
	"github.com/ceyewan/ticketing/encoder"
	"github.com/ceyewan/ticketing/issuer"
	"github.com/ceyewan/ticketing/metrics"
	"github.com/ceyewan/ticketing/partition"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

// App 持有按需创建的组件，Close 按创建的逆序释放
type App struct {
	Config *Config
	Logger clog.Logger
	Meter  metrics.Meter

	store   partition.Store
	alloc   *allocator.Allocator
	closers []func(ctx context.Context) error
}

// New 初始化日志、指标与追踪
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace("ticketing"), clog.WithTraceContext())
	if err != nil {
		return nil, xerrors.Wrap(err, "create logger")
	}
	app := &App{Config: cfg, Logger: logger}

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return nil, xerrors.Wrap(err, "create meter")
	}
	app.Meter = meter
	app.onClose(meter.Shutdown)

	shutdown, err := trace.Init(&cfg.Trace)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, xerrors.Wrap(err, "init tracing")
	}
	app.onClose(shutdown)

	return app, nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Store 连接配置的后端并返回分区存储，关系型后端会自动建表
func (a *App) Store(ctx context.Context) (partition.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	sc := &a.Config.Store
	connOpts := []connector.Option{
		connector.WithLogger(a.Logger),
		connector.WithMeter(a.Meter),
		connector.WithTracing(),
	}
	storeOpts := []partition.Option{
		partition.WithLogger(a.Logger),
		partition.WithLockTimeout(sc.LockTimeout),
		partition.WithKeyPrefix(sc.KeyPrefix),
	}

	var (
		store partition.Store
		err   error
	)
	switch sc.Driver {
	case DriverRedis:
		store, err = a.redisStore(ctx, connOpts, storeOpts)
	case DriverEtcd:
		store, err = a.etcdStore(ctx, connOpts, storeOpts)
	default:
		store, err = a.gormStore(ctx, connOpts, storeOpts)
	}
	if err != nil {
		return nil, err
	}

	a.store = store
	a.Logger.Info("partition store ready", clog.String("driver", sc.Driver))
	return store, nil
}

func (a *App) databaseConnector(connOpts []connector.Option) (connector.DatabaseConnector, error) {
	sc := &a.Config.Store
	switch sc.Driver {
	case DriverMySQL:
		return connector.NewMySQL(&sc.MySQL, connOpts...)
	case DriverPostgres:
		return connector.NewPostgreSQL(&sc.Postgres, connOpts...)
	default:
		return connector.NewSQLite(&sc.SQLite, connOpts...)
	}
}

func (a *App) gormStore(ctx context.Context, connOpts []connector.Option, storeOpts []partition.Option) (partition.Store, error) {
	conn, err := a.databaseConnector(connOpts)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return conn.Close() })

	database, err := db.New(conn, &a.Config.Store.DB,
		db.WithLogger(a.Logger),
		db.WithTracer(otel.GetTracerProvider()))
	if err != nil {
		return nil, err
	}

	store, err := partition.NewGormStore(database, storeOpts...)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) redisStore(ctx context.Context, connOpts []connector.Option, storeOpts []partition.Option) (partition.Store, error) {
	conn, err := connector.NewRedis(&a.Config.Store.Redis, connOpts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return conn.Close() })
	return partition.NewRedisStore(conn, storeOpts...)
}

func (a *App) etcdStore(ctx context.Context, connOpts []connector.Option, storeOpts []partition.Option) (partition.Store, error) {
	conn, err := connector.NewEtcd(&a.Config.Store.Etcd, connOpts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return conn.Close() })
	return partition.NewEtcdStore(conn, storeOpts...)
}

// Provision 按配置的规划初始化分区
func (a *App) Provision(ctx context.Context) ([]partition.Partition, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return partition.Provision(ctx, store, a.Config.Partition, a.Logger.WithNamespace("provision"))
}

// Allocator 创建分配器，存储未初始化时返回 partition.ErrNotProvisioned
func (a *App) Allocator(ctx context.Context) (*allocator.Allocator, error) {
	if a.alloc != nil {
		return a.alloc, nil
	}
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	alloc, err := allocator.New(ctx, store, &a.Config.Allocator,
		allocator.WithLogger(a.Logger),
		allocator.WithMeter(a.Meter),
		allocator.WithBackend(a.Config.Store.Driver))
	if err != nil {
		return nil, err
	}
	a.alloc = alloc
	a.onClose(func(context.Context) error { return alloc.Close() })
	return alloc, nil
}

// GenerateAlphabet 生成并保存符号表，文件已存在且 force 为 false 时返回 alphabet.ErrTableExists
func (a *App) GenerateAlphabet(force bool) (*alphabet.Table, error) {
	ac := a.Config.Alphabet
	table := alphabet.Generate(nil)
	if ac.Extended {
		table = alphabet.GenerateExtended(nil)
	}

	var opts []alphabet.SaveOption
	if force {
		opts = append(opts, alphabet.WithForce())
	}
	if ac.Format != "" {
		opts = append(opts, alphabet.WithFormat(alphabet.Format(ac.Format)))
	}
	if err := alphabet.Save(ac.Path, table, opts...); err != nil {
		return nil, err
	}
	a.Logger.Info("alphabet table generated",
		clog.String("path", ac.Path), clog.Int("size", table.Len()))
	return table, nil
}

// Encoder 加载符号表并创建编码器
func (a *App) Encoder() (*encoder.Encoder, error) {
	ac := a.Config.Alphabet
	format := alphabet.FormatFromPath(ac.Path)
	if ac.Format != "" {
		format = alphabet.Format(ac.Format)
	}
	table, err := alphabet.LoadFormat(ac.Path, format)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Wrapf(err, "run `ticketing alphabet generate` first")
		}
		return nil, err
	}
	if !table.Extended() {
		a.Logger.Warn("alphabet table has 62 entries, ids containing groups 62 or 63 cannot be encoded",
			clog.String("path", ac.Path))
	}
	return encoder.New(table)
}

// Issuer 组装分配器与编码器
func (a *App) Issuer(ctx context.Context) (*issuer.Issuer, error) {
	enc, err := a.Encoder()
	if err != nil {
		return nil, err
	}
	alloc, err := a.Allocator(ctx)
	if err != nil {
		return nil, err
	}
	return issuer.New(alloc, enc, issuer.WithLogger(a.Logger), issuer.WithMeter(a.Meter))
}

// WatchLogLevel 监听 log.level 变化并实时调整日志级别，ctx 取消后停止
func (a *App) WatchLogLevel(ctx context.Context, loader config.Loader) error {
	ch, err := loader.Watch(ctx, "log.level")
	if err != nil {
		return err
	}
	go func() {
		for event := range ch {
			s, _ := event.Value.(string)
			level, err := clog.ParseLevel(s)
			if err != nil {
				a.Logger.Warn("ignore invalid log level", clog.String("level", s))
				continue
			}
			if err := a.Logger.SetLevel(level); err == nil {
				a.Logger.Info("log level changed", clog.String("level", s))
			}
		}
	}()
	return nil
}

// Close 按创建的逆序释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		errs = append(errs, fn(ctx))
	}
	a.closers = nil
	a.Logger.Flush()
	return xerrors.Combine(errs...)
}
