package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/db"
	"github.com/ceyewan/ticketing/testkit"
)

func newGormStore(t *testing.T, database db.DB) *GormStore {
	t.Helper()
	store, err := NewGormStore(database, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestGormStoreSQLite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newGormStore(t, testkit.NewSQLiteDB(t))
	})
}

func TestGormStoreNilDB(t *testing.T) {
	_, err := NewGormStore(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestGormStoreProvision(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t, testkit.NewSQLiteDB(t))
	plan := Plan{MinID: 0, MaxID: 100_000, PerRangeSize: 100, BatchSize: 250}

	partitions, err := Provision(ctx, store, plan, testkit.NewLogger())
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(partitions)), n)

	_, err = Provision(ctx, store, plan, nil)
	assert.ErrorIs(t, err, ErrAlreadyProvisioned)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(partitions)), stats.Total)
	assert.Zero(t, stats.Issued)
}

func TestGormStoreSharedConnector(t *testing.T) {
	ctx := context.Background()
	conn := testkit.NewPersistentSQLiteConnector(t)
	store := newGormStore(t, testkit.NewDB(t, conn))
	require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 10, RangeEnd: 15, Current: 10}}))

	got, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	again := newGormStore(t, testkit.NewDB(t, conn))
	got, err = again.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
}
