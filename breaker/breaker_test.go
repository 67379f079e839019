package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/clog"
)

var errBoom = errors.New("boom")

func TestNewBreaker(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{FailureRatio: 1.5})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	brk, err := New(&Config{}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.Equal(t, StateClosed, brk.State("unused"))
}

func TestExecuteKeyEmpty(t *testing.T) {
	brk, err := New(&Config{})
	require.NoError(t, err)
	err = brk.Execute(context.Background(), "", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	brk, err := New(&Config{
		MaxRequests:     1,
		Timeout:         100 * time.Millisecond,
		FailureRatio:    0.5,
		MinimumRequests: 2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := brk.Execute(ctx, "store", func(context.Context) error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, brk.State("store"))

	called := false
	err = brk.Execute(ctx, "store", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, called)

	// 其他键不受影响
	require.NoError(t, brk.Execute(ctx, "other", func(context.Context) error { return nil }))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, brk.State("store"))
	require.NoError(t, brk.Execute(ctx, "store", func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, brk.State("store"))
}

func TestIsSuccessfulExcludesExpectedErrors(t *testing.T) {
	errExpected := errors.New("expected")
	brk, err := New(&Config{FailureRatio: 0.5, MinimumRequests: 2},
		WithIsSuccessful(func(err error) bool {
			return err == nil || errors.Is(err, errExpected)
		}))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		err := brk.Execute(context.Background(), "store", func(context.Context) error { return errExpected })
		assert.ErrorIs(t, err, errExpected)
	}
	assert.Equal(t, StateClosed, brk.State("store"))
}

func TestExecuteConcurrent(t *testing.T) {
	brk, err := New(&Config{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, brk.Execute(context.Background(), "store", func(context.Context) error { return nil }))
		}()
	}
	wg.Wait()
	assert.Equal(t, StateClosed, brk.State("store"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
