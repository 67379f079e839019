package partition

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/xerrors"
)

// runStoreSuite 对任意 Store 实现执行相同的行为检查
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ClaimUntilExhausted", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 10, RangeEnd: 15, Current: 10}}))

		for want := int64(10); want < 15; want++ {
			got, err := store.Claim(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		_, err := store.Claim(ctx, 1)
		assert.ErrorIs(t, err, ErrExhaustedPartition)

		// 耗尽后 current 保持不变
		p, err := store.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(15), p.Current)
		_, err = store.Claim(ctx, 1)
		assert.ErrorIs(t, err, ErrExhaustedPartition)
		p, err = store.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(15), p.Current)
	})

	t.Run("ExhaustedOnArrival", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 10, RangeEnd: 11, Current: 11}}))

		_, err := store.Claim(ctx, 1)
		assert.ErrorIs(t, err, ErrExhaustedPartition)

		ids, err := store.ListAvailable(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, err := store.Claim(ctx, 42)
		assert.ErrorIs(t, err, ErrPartitionNotFound)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
		_, err = store.Get(ctx, 42)
		assert.ErrorIs(t, err, ErrPartitionNotFound)
	})

	t.Run("ListCountStats", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, store.Insert(ctx, []Partition{
			{ID: 3, RangeStart: 22, RangeEnd: 30, Current: 22},
			{ID: 1, RangeStart: 0, RangeEnd: 10, Current: 10},
			{ID: 2, RangeStart: 11, RangeEnd: 21, Current: 15},
		}))

		n, err = store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		ids, err := store.ListAvailable(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 3, Exhausted: 1, Issued: 14, Remaining: 14}, stats)

		got, err := store.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, Partition{ID: 2, RangeStart: 11, RangeEnd: 21, Current: 15}, *got)
	})

	t.Run("LastClaimLeavesAvailable", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, []Partition{{ID: 7, RangeStart: 0, RangeEnd: 1, Current: 0}}))

		got, err := store.Claim(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)

		ids, err := store.ListAvailable(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("ConcurrentClaims", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		const k = 50
		require.NoError(t, store.Insert(ctx, []Partition{{ID: 1, RangeStart: 1000, RangeEnd: 1000 + k, Current: 1000}}))

		var (
			mu     sync.Mutex
			values []int64
			wg     sync.WaitGroup
		)
		for i := 0; i < k; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					v, err := store.Claim(ctx, 1)
					if err != nil {
						// etcd 的 CAS 未命中需要重试
						if assert.ErrorIs(t, err, ErrConflict) {
							continue
						}
						return
					}
					mu.Lock()
					values = append(values, v)
					mu.Unlock()
					return
				}
			}()
		}
		wg.Wait()

		require.Len(t, values, k)
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for i, v := range values {
			assert.Equal(t, int64(1000+i), v)
		}
	})
}
