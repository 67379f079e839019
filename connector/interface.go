// Package connector 管理外部存储的连接生命周期。
//
// 连接器是延迟且幂等的：NewXXX 只校验配置，Connect 才建立连接，重复调用直接返回。
// Connector 拥有底层连接，组件（如 partition 的各存储实现）只借用客户端，不负责关闭。
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
)

// Connector 定义所有连接器的通用行为，方法均为并发安全。
type Connector interface {
	// Connect 建立连接，幂等。
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等。关闭后 GetClient 返回 nil。
	Close() error

	// HealthCheck 发送测试请求并更新健康状态缓存。
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最后一次检查的结果，无阻塞。
	IsHealthy() bool

	// Name 返回连接实例名称，用于日志与指标。
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端，Connect 之前或 Close 之后返回零值。
	GetClient() T
}

// DatabaseConnector 基于 GORM 的关系型数据库连接器（MySQL、PostgreSQL、SQLite）
type DatabaseConnector interface {
	TypedConnector[*gorm.DB]

	// Driver 返回驱动名称：mysql、postgres 或 sqlite
	Driver() string
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// EtcdConnector Etcd 连接器
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}
