package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ceyewan/ticketing/connector"
)

// NewPostgreSQLContainerConfig 使用 testcontainers 启动 PostgreSQL 并返回配置
func NewPostgreSQLContainerConfig(t *testing.T) *connector.PostgreSQLConfig {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("ticketing"),
		postgres.WithUsername("ticketing"),
		postgres.WithPassword("ticketing"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgresql container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	return &connector.PostgreSQLConfig{
		Name:       "testcontainer-postgresql",
		Host:       host,
		Port:       port,
		Username:   "ticketing",
		Password:   "ticketing",
		Database:   "ticketing",
		PoolConfig: connector.PoolConfig{MaxIdleConns: 2, MaxOpenConns: 10},
	}
}

// NewPostgreSQLConnector 获取 PostgreSQL 连接器（基于 testcontainers）
func NewPostgreSQLConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewPostgreSQL(NewPostgreSQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create postgresql connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to postgresql")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
