package testkit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/db"
)

// NewDB 在已连接的连接器上创建静默的 db 组件
func NewDB(t *testing.T, conn connector.DatabaseConnector) db.DB {
	t.Helper()
	database, err := db.New(conn, &db.Config{}, db.WithLogger(NewLogger()), db.WithSilentMode())
	require.NoError(t, err, "failed to create db component")
	return database
}

// NewSQLiteDB 获取基于内存 SQLite 的 db 组件
func NewSQLiteDB(t *testing.T) db.DB {
	return NewDB(t, NewSQLiteConnector(t))
}
