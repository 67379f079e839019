package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/ticketing/connector"
)

// NewMySQLContainerConfig 使用 testcontainers 启动 MySQL 并返回配置
func NewMySQLContainerConfig(t *testing.T) *connector.MySQLConfig {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("ticketing"),
		mysql.WithUsername("ticketing"),
		mysql.WithPassword("ticketing"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	return &connector.MySQLConfig{
		Name:       "testcontainer-mysql",
		Host:       host,
		Port:       port,
		Username:   "ticketing",
		Password:   "ticketing",
		Database:   "ticketing",
		PoolConfig: connector.PoolConfig{MaxIdleConns: 2, MaxOpenConns: 10},
	}
}

// NewMySQLConnector 获取 MySQL 连接器（基于 testcontainers）
//
// MySQL 容器就绪较慢，Connect 失败时每 2 秒重试，最长 60 秒。
func NewMySQLConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewMySQL(NewMySQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for {
		if err = conn.Connect(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			require.NoError(t, err, "timeout waiting for mysql to be ready")
		case <-time.After(2 * time.Second):
		}
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
