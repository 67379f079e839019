package allocator

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/ticketing/breaker"
	"github.com/ceyewan/ticketing/partition"
	"github.com/ceyewan/ticketing/testkit"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

// testConfig 关闭后台刷新并缩短退避
func testConfig() *Config {
	return &Config{
		MaxAttempts:          8,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	}
}

func newTestAllocator(t *testing.T, store partition.Store, cfg *Config, opts ...Option) *Allocator {
	t.Helper()
	opts = append([]Option{WithLogger(testkit.NewLogger())}, opts...)
	alloc, err := New(context.Background(), store, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	return alloc
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"negative attempts", Config{MaxAttempts: -1}, true},
		{"inverted intervals", Config{RetryInitialInterval: time.Second, RetryMaxInterval: time.Millisecond}, true},
		{"negative refresh", Config{RefreshInterval: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.setDefaults()
			err := cfg.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	def := DefaultConfig()
	assert.Equal(t, 8, def.MaxAttempts)
	assert.Equal(t, time.Minute, def.RefreshInterval)
}

func TestNewNotProvisioned(t *testing.T) {
	_, err := New(context.Background(), newMemStore(), testConfig())
	assert.ErrorIs(t, err, partition.ErrNotProvisioned)

	_, err = New(context.Background(), nil, testConfig())
	assert.ErrorIs(t, err, partition.ErrNilClient)
}

// TestClaimConcurrentSinglePartition K 个并发 Claim 得到的值互不相同且连续
func TestClaimConcurrentSinglePartition(t *testing.T) {
	ctx := context.Background()
	database := testkit.NewSQLiteDB(t)
	store, err := partition.NewGormStore(database)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	const k = 64
	require.NoError(t, store.Insert(ctx, []partition.Partition{
		{ID: 1, RangeStart: 5000, RangeEnd: 5000 + k + 10, Current: 5000},
	}))
	alloc := newTestAllocator(t, store, testConfig(), WithBackend("sqlite"))

	var (
		mu     sync.Mutex
		values []int64
		wg     sync.WaitGroup
	)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := alloc.Claim(ctx)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, int64(1), claim.PartitionID)
			mu.Lock()
			values = append(values, claim.Value)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, values, k)
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		assert.Equal(t, int64(5000+i), v)
	}

	p, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000+k), p.Current)
}

func TestClaimDrainsAllPartitions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		partition.Partition{ID: 1, RangeStart: 10, RangeEnd: 13, Current: 10},
		partition.Partition{ID: 2, RangeStart: 14, RangeEnd: 20, Current: 14},
		partition.Partition{ID: 3, RangeStart: 21, RangeEnd: 22, Current: 22},
	)
	alloc := newTestAllocator(t, store, testConfig())
	assert.Equal(t, 2, alloc.Available())

	seen := make(map[int64]bool)
	for {
		claim, err := alloc.Claim(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrSpaceExhausted)
			break
		}
		assert.False(t, seen[claim.Value], "value %d claimed twice", claim.Value)
		seen[claim.Value] = true
	}

	// 3 + 6 个值，range_end 本身不会被领取
	assert.Len(t, seen, 9)
	for v := range seen {
		assert.True(t, (v >= 10 && v < 13) || (v >= 14 && v < 20), "value %d out of range", v)
	}
	assert.Zero(t, alloc.Available())

	_, err := alloc.Claim(ctx)
	assert.ErrorIs(t, err, ErrSpaceExhausted)
}

func TestClaimStaleCandidatesReportSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	var parts []partition.Partition
	for i := range int64(20) {
		start := i * 100
		parts = append(parts, partition.Partition{ID: i + 1, RangeStart: start, RangeEnd: start + 50, Current: start})
	}
	store := newMemStore(parts...)
	alloc := newTestAllocator(t, store, testConfig())
	require.Equal(t, 20, alloc.Available())

	// 其他进程已耗尽全部分区，本地候选集仍认为它们可用
	store.mu.Lock()
	for _, p := range store.partitions {
		p.Current = p.RangeEnd
	}
	store.mu.Unlock()

	_, err := alloc.Claim(ctx)
	require.ErrorIs(t, err, ErrSpaceExhausted)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, CodeSpaceExhausted, xerrors.GetCode(err))
	assert.Zero(t, alloc.Available())
	assert.Equal(t, int64(20), store.claims.Load())
}

func TestClaimSkipsStaleCandidatesWithoutSpendingAttempts(t *testing.T) {
	ctx := context.Background()
	var parts []partition.Partition
	for i := range int64(12) {
		start := i * 100
		parts = append(parts, partition.Partition{ID: i + 1, RangeStart: start, RangeEnd: start + 50, Current: start})
	}
	store := newMemStore(parts...)
	cfg := testConfig()
	cfg.MaxAttempts = 2
	alloc := newTestAllocator(t, store, cfg)

	store.mu.Lock()
	for id, p := range store.partitions {
		if id != 12 {
			p.Current = p.RangeEnd
		}
	}
	store.mu.Unlock()

	claim, err := alloc.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), claim.PartitionID)
	assert.Equal(t, int64(1100), claim.Value)
}

func TestClaimRefreshesWhenCacheEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 1, Current: 0})
	alloc := newTestAllocator(t, store, testConfig())

	_, err := alloc.Claim(ctx)
	require.NoError(t, err)
	_, err = alloc.Claim(ctx)
	require.ErrorIs(t, err, ErrSpaceExhausted)

	// 新增分区后，空缓存触发的刷新能发现它
	store.add(partition.Partition{ID: 2, RangeStart: 100, RangeEnd: 200, Current: 100})
	claim, err := alloc.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), claim.PartitionID)
	assert.Equal(t, int64(100), claim.Value)
}

func TestClaimDropsUnknownPartition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0},
		partition.Partition{ID: 2, RangeStart: 101, RangeEnd: 200, Current: 101},
	)
	alloc := newTestAllocator(t, store, testConfig())

	store.mu.Lock()
	delete(store.partitions, 1)
	store.mu.Unlock()

	for i := 0; i < 5; i++ {
		claim, err := alloc.Claim(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), claim.PartitionID)
	}
	assert.Equal(t, 1, alloc.Available())
}

func TestClaimRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	var failures int
	store.claimHook = func(int64) error {
		if failures < 3 {
			failures++
			return partition.ErrConflict
		}
		return nil
	}
	alloc := newTestAllocator(t, store, testConfig())

	claim, err := alloc.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), claim.Value)
	assert.Equal(t, int64(4), store.claims.Load())
}

func TestClaimGivesUpAfterMaxAttempts(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	store.claimHook = func(int64) error { return partition.ErrConflict }
	cfg := testConfig()
	cfg.MaxAttempts = 4
	alloc := newTestAllocator(t, store, cfg)

	_, err := alloc.Claim(context.Background())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, partition.ErrConflict)
	assert.Equal(t, CodeRetriesExhausted, xerrors.GetCode(err))
	assert.Equal(t, int64(4), store.claims.Load())
}

func TestClaimBackoffHonorsContext(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	store.claimHook = func(int64) error { return partition.ErrConflict }
	cfg := testConfig()
	cfg.RetryInitialInterval = time.Second
	cfg.RetryMaxInterval = time.Second
	alloc := newTestAllocator(t, store, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := alloc.Claim(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestClaimStorageUnavailableIsNotRetried(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	store.claimHook = func(int64) error { return partition.ErrStorageUnavailable }
	alloc := newTestAllocator(t, store, testConfig())

	_, err := alloc.Claim(context.Background())
	assert.ErrorIs(t, err, partition.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, CodeStorageUnavailable, xerrors.GetCode(err))
	assert.Equal(t, int64(1), store.claims.Load())
}

func TestClaimBreakerOpens(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	alloc := newTestAllocator(t, store, &Config{
		Breaker: breaker.Config{MinimumRequests: 3, FailureRatio: 0.5, Timeout: time.Minute},
	})

	store.claimHook = func(int64) error { return partition.ErrStorageUnavailable }
	for i := 0; i < 3; i++ {
		_, err := alloc.Claim(context.Background())
		assert.ErrorIs(t, err, partition.ErrStorageUnavailable)
	}
	calls := store.claims.Load()

	// 熔断打开后不再访问存储
	store.claimHook = nil
	_, err := alloc.Claim(context.Background())
	assert.ErrorIs(t, err, partition.ErrStorageUnavailable)
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	assert.Equal(t, calls, store.claims.Load())
}

func TestClaimExpectedErrorsDoNotTripBreaker(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	store.claimHook = func(int64) error { return partition.ErrConflict }
	brk, err := breaker.New(&breaker.Config{MinimumRequests: 2, FailureRatio: 0.5},
		breaker.WithIsSuccessful(func(err error) bool {
			return err == nil || partition.Retryable(err)
		}))
	require.NoError(t, err)
	alloc := newTestAllocator(t, store, testConfig(), WithBreaker(brk), WithBackend("mem"))

	for i := 0; i < 3; i++ {
		_, err := alloc.Claim(context.Background())
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	}
	assert.Equal(t, breaker.StateClosed, brk.State("mem"))
}

// TestClaimReproducibleWithRand 相同种子的随机源产生相同的分区选择序列
func TestClaimReproducibleWithRand(t *testing.T) {
	run := func() []int64 {
		var parts []partition.Partition
		for i := int64(1); i <= 16; i++ {
			parts = append(parts, partition.Partition{ID: i, RangeStart: i * 1000, RangeEnd: i*1000 + 500, Current: i * 1000})
		}
		alloc := newTestAllocator(t, newMemStore(parts...), testConfig(),
			WithRand(rand.New(rand.NewPCG(2024, 10))))

		var ids []int64
		for i := 0; i < 50; i++ {
			claim, err := alloc.Claim(context.Background())
			require.NoError(t, err)
			ids = append(ids, claim.PartitionID)
		}
		return ids
	}

	first := run()
	assert.Equal(t, first, run())

	distinct := make(map[int64]bool)
	for _, id := range first {
		distinct[id] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestRefreshAndClose(t *testing.T) {
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 100, Current: 0})
	cfg := testConfig()
	cfg.RefreshInterval = 10 * time.Millisecond
	alloc := newTestAllocator(t, store, cfg)
	assert.Equal(t, 1, alloc.Available())

	store.add(partition.Partition{ID: 2, RangeStart: 101, RangeEnd: 200, Current: 101})
	assert.Eventually(t, func() bool { return alloc.Available() == 2 }, time.Second, 5*time.Millisecond)

	store.failList(partition.ErrStorageUnavailable)
	assert.ErrorIs(t, alloc.Refresh(context.Background()), partition.ErrStorageUnavailable)
	assert.Equal(t, 2, alloc.Available())

	require.NoError(t, alloc.Close())
	require.NoError(t, alloc.Close())
	_, err := alloc.Claim(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClaimMetrics(t *testing.T) {
	kit := testkit.NewKit(t)
	store := newMemStore(partition.Partition{ID: 1, RangeStart: 0, RangeEnd: 2, Current: 0})
	alloc := newTestAllocator(t, store, testConfig(), WithMeter(kit.Meter))

	for i := 0; i < 3; i++ {
		_, _ = alloc.Claim(kit.Ctx)
	}

	rec := httptest.NewRecorder()
	kit.Meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "ticketing_claims_total")
	assert.Contains(t, text, `outcome="success"`)
	assert.Contains(t, text, `outcome="space_exhausted"`)
	assert.Contains(t, text, "ticketing_partitions_exhausted_total")
	assert.Contains(t, text, "ticketing_claim_duration_seconds")
}

func TestClaimTracing(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer tp.Shutdown(context.Background())

	store := newMemStore(partition.Partition{ID: 7, RangeStart: 0, RangeEnd: 100, Current: 0})
	alloc := newTestAllocator(t, store, testConfig(), WithTracer(tp))

	_, err := alloc.Claim(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
		if s.Name == trace.SpanAllocatorClaim {
			attrs := make(map[string]any)
			for _, kv := range s.Attributes {
				attrs[string(kv.Key)] = kv.Value.AsInterface()
			}
			assert.Equal(t, int64(7), attrs[trace.AttrPartitionID])
			assert.Equal(t, "success", attrs[trace.AttrOutcome])
		}
	}
	assert.Contains(t, names, trace.SpanAllocatorRefresh)
	assert.Contains(t, names, trace.SpanAllocatorClaim)
}
