package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/ticketing/connector"
)

// NewRedisContainerConfig 使用 testcontainers 启动 Redis 并返回配置
func NewRedisContainerConfig(t *testing.T) *connector.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &connector.RedisConfig{
		Name: "testcontainer-redis",
		Addr: host + ":" + port.Port(),
	}
}

// NewRedisConnector 获取 Redis 连接器（基于 testcontainers），生命周期由 t.Cleanup 管理
func NewRedisConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	conn, err := connector.NewRedis(NewRedisContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to redis")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
