package bootstrap

import (
	"context"
	"time"

	"github.com/ceyewan/ticketing/allocator"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/config"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/db"
	"github.com/ceyewan/ticketing/metrics"
	"github.com/ceyewan/ticketing/partition"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

// 存储驱动
const (
	DriverMySQL    = connector.DriverMySQL
	DriverPostgres = connector.DriverPostgres
	DriverSQLite   = connector.DriverSQLite
	DriverRedis    = "redis"
	DriverEtcd     = "etcd"
)

// Config 应用配置
//
//	store:
//	  driver: postgres
//	  lock_timeout: 500ms
//	  postgresql:
//	    host: 127.0.0.1
//	    username: ticketing
//	    database: ticketing
//	alphabet:
//	  path: alphabet.json
//	  extended: true
type Config struct {
	Log       clog.Config      `mapstructure:"log"`
	Metrics   metrics.Config   `mapstructure:"metrics"`
	Trace     trace.Config     `mapstructure:"trace"`
	Store     StoreConfig      `mapstructure:"store"`
	Partition partition.Plan   `mapstructure:"partition"`
	Alphabet  AlphabetConfig   `mapstructure:"alphabet"`
	Allocator allocator.Config `mapstructure:"allocator"`
}

// StoreConfig 分区存储配置，只有 Driver 对应的后端生效
type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"`

	DB       db.Config                  `mapstructure:"db"`
	MySQL    connector.MySQLConfig      `mapstructure:"mysql"`
	Postgres connector.PostgreSQLConfig `mapstructure:"postgresql"`
	SQLite   connector.SQLiteConfig     `mapstructure:"sqlite"`
	Redis    connector.RedisConfig      `mapstructure:"redis"`
	Etcd     connector.EtcdConfig       `mapstructure:"etcd"`
}

// AlphabetConfig 符号表文件配置
type AlphabetConfig struct {
	Path string `mapstructure:"path"`

	// Format 为空时根据扩展名推断
	Format string `mapstructure:"format"`

	// Extended 生成 64 项的表，覆盖全部 6 bit 分组
	Extended bool `mapstructure:"extended"`
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite, DriverRedis, DriverEtcd:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported store driver %q", c.Store.Driver)
	}
	if c.Alphabet.Path == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "alphabet.path is required")
	}
	return nil
}

// Defaults 返回所有配置项的默认值
func Defaults() map[string]any {
	plan := partition.DefaultPlan()
	alloc := allocator.DefaultConfig()
	return map[string]any{
		"log.level":  "info",
		"log.format": "console",
		"log.output": "stderr",

		"metrics.enabled":      false,
		"metrics.service_name": "ticketing",
		"metrics.port":         9090,
		"metrics.path":         "/metrics",
		"metrics.runtime":      true,

		"trace.enabled":      false,
		"trace.service_name": "ticketing",
		"trace.endpoint":     "localhost:4317",
		"trace.sampler":      1.0,
		"trace.batcher":      "batch",
		"trace.insecure":     true,

		"store.driver":            DriverSQLite,
		"store.lock_timeout":      "500ms",
		"store.key_prefix":        "ticketing",
		"store.db.slow_threshold": "200ms",
		"store.db.log_sql":        false,
		"store.sqlite.path":       "ticketing.db",
		"store.redis.addr":        "127.0.0.1:6379",
		"store.etcd.endpoints":    []string{"127.0.0.1:2379"},

		"partition.min_id":         plan.MinID,
		"partition.max_id":         plan.MaxID,
		"partition.per_range_size": plan.PerRangeSize,
		"partition.batch_size":     plan.BatchSize,

		"alphabet.path":     "alphabet.json",
		"alphabet.format":   "",
		"alphabet.extended": true,

		"allocator.max_attempts":             alloc.MaxAttempts,
		"allocator.retry_initial_interval":   alloc.RetryInitialInterval.String(),
		"allocator.retry_max_interval":       alloc.RetryMaxInterval.String(),
		"allocator.refresh_interval":         alloc.RefreshInterval.String(),
		"allocator.breaker.max_requests":     1,
		"allocator.breaker.interval":         "60s",
		"allocator.breaker.timeout":          "30s",
		"allocator.breaker.failure_ratio":    0.6,
		"allocator.breaker.minimum_requests": 10,
	}
}

// Load 读取配置文件、.env 与 TICKETING_ 前缀的环境变量
//
// file 为空时在当前目录与 ./config 下查找 ticketing.yaml，找不到则只使用默认值。
func Load(ctx context.Context, file string, logger clog.Logger) (*Config, config.Loader, error) {
	opts := []config.Option{config.WithLogger(logger)}
	if file != "" {
		opts = append(opts, config.WithRequireFile())
	}
	loader, err := config.New(&config.Config{
		Name:     "ticketing",
		File:     file,
		Defaults: Defaults(),
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, xerrors.Wrap(err, "load config")
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, nil, xerrors.Wrap(err, "decode config")
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, loader, nil
}
