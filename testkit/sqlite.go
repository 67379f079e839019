package testkit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/connector"
)

// NewSQLiteConfig 返回独立的内存 SQLite 配置
//
// 每次调用使用不同的库名，测试之间互不可见；单连接保证事务串行。
func NewSQLiteConfig() *connector.SQLiteConfig {
	return &connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", NewID()),
	}
}

// NewSQLiteConnector 获取内存 SQLite 连接器，生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	return connectSQLite(t, NewSQLiteConfig())
}

// NewPersistentSQLiteConnector 获取文件 SQLite 连接器，文件位于 t.TempDir()
func NewPersistentSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	return connectSQLite(t, &connector.SQLiteConfig{
		Name: "test-sqlite-file",
		Path: t.TempDir() + "/ticketing.db",
	})
}

func connectSQLite(t *testing.T, cfg *connector.SQLiteConfig) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewSQLite(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
