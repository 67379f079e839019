//go:build integration

// 运行测试需要 Docker: go test ./partition/... -tags=integration -v
package partition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/testkit"
)

func TestGormStorePostgreSQL(t *testing.T) {
	conn := testkit.NewPostgreSQLConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		store := newGormStore(t, testkit.NewDB(t, conn))
		truncate(t, conn)
		return store
	})
}

func TestGormStoreMySQL(t *testing.T) {
	conn := testkit.NewMySQLConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		store := newGormStore(t, testkit.NewDB(t, conn))
		truncate(t, conn)
		return store
	})
}

func TestRedisStore(t *testing.T) {
	conn := testkit.NewRedisConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		store, err := NewRedisStore(conn, WithKeyPrefix("test-"+testkit.NewID()))
		require.NoError(t, err)
		return store
	})
}

func TestEtcdStore(t *testing.T) {
	conn := testkit.NewEtcdConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		store, err := NewEtcdStore(conn, WithKeyPrefix("test-"+testkit.NewID()))
		require.NoError(t, err)
		return store
	})
}

// TestMySQLLockTimeoutRestored Claim 结束后连接上的 innodb_lock_wait_timeout 恢复原值
func TestMySQLLockTimeoutRestored(t *testing.T) {
	ctx := context.Background()
	conn := testkit.NewMySQLConnector(t)
	database := testkit.NewDB(t, conn)

	// 单连接保证前后查询与 Claim 落在同一会话
	sqlDB, err := database.DB(ctx).DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := NewGormStore(database, WithLockTimeout(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 0, RangeEnd: 10, Current: 0}}))

	sessionTimeout := func() int64 {
		var v int64
		require.NoError(t, database.DB(ctx).Raw("SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&v).Error)
		return v
	}
	before := sessionTimeout()
	require.NotEqual(t, int64(2), before)

	for range 3 {
		_, err := store.Claim(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, before, sessionTimeout())
	}
}

// TestPostgreSQLLockTimeout 持有行锁时，另一个 Claim 在锁超时后返回 ErrConflict
func TestPostgreSQLLockTimeout(t *testing.T) {
	ctx := context.Background()
	conn := testkit.NewPostgreSQLConnector(t)
	database := testkit.NewDB(t, conn)
	truncate(t, conn)

	store, err := NewGormStore(database, WithLockTimeout(100*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0}}))

	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var p Partition
			if err := tx.Raw("SELECT * FROM ticketing WHERE id = 1 FOR UPDATE").Scan(&p).Error; err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	_, err = store.Claim(ctx, 1)
	assert.ErrorIs(t, err, ErrConflict)
	close(release)
	wg.Wait()

	got, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func truncate(t *testing.T, conn connector.DatabaseConnector) {
	t.Helper()
	require.NoError(t, conn.GetClient().Exec("DELETE FROM "+TableName).Error)
}
