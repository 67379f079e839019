package issuer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/ticketing/allocator"
	"github.com/ceyewan/ticketing/alphabet"
	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/encoder"
	"github.com/ceyewan/ticketing/partition"
	"github.com/ceyewan/ticketing/testkit"
	"github.com/ceyewan/ticketing/trace"
	"github.com/ceyewan/ticketing/xerrors"
)

// sequence 按顺序返回预设的值
type sequence struct {
	values []int64
	err    error
}

func (s *sequence) Claim(context.Context) (allocator.Claim, error) {
	if len(s.values) == 0 {
		if s.err != nil {
			return allocator.Claim{}, s.err
		}
		return allocator.Claim{}, allocator.ErrSpaceExhausted
	}
	v := s.values[0]
	s.values = s.values[1:]
	return allocator.Claim{PartitionID: 1, Value: v}, nil
}

func newEncoder(t *testing.T, symbols string) *encoder.Encoder {
	t.Helper()
	table, err := alphabet.New(symbols)
	require.NoError(t, err)
	enc, err := encoder.New(table)
	require.NoError(t, err)
	return enc
}

func TestIssue(t *testing.T) {
	iss, err := New(&sequence{values: []int64{3, 4098}}, newEncoder(t, alphabet.ExtendedPool),
		WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	code, err := iss.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Code{PartitionID: 1, ID: 3, Code: "D"}, code)

	code, err = iss.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BAC", code.Code)

	_, err = iss.Issue(context.Background())
	assert.ErrorIs(t, err, allocator.ErrSpaceExhausted)
}

func TestIssueLogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	logger := xerrors.Must(clog.New(&clog.Config{Level: "warn", Format: "json", Output: "stdout"},
		clog.WithWriter(&buf)))
	coded := xerrors.WithCode(allocator.ErrSpaceExhausted, allocator.CodeSpaceExhausted)
	iss, err := New(&sequence{err: coded}, newEncoder(t, alphabet.ExtendedPool), WithLogger(logger))
	require.NoError(t, err)

	_, err = iss.Issue(context.Background())
	require.ErrorIs(t, err, allocator.ErrSpaceExhausted)
	assert.Equal(t, allocator.CodeSpaceExhausted, xerrors.GetCode(err))

	out := buf.String()
	assert.Contains(t, out, "claim failed")
	assert.Contains(t, out, `"code":"space_exhausted"`)
}

func TestIssueUnmappable(t *testing.T) {
	iss, err := New(&sequence{values: []int64{62}}, newEncoder(t, alphabet.Pool))
	require.NoError(t, err)

	_, err = iss.Issue(context.Background())
	assert.ErrorIs(t, err, encoder.ErrUnmappableGroup)
}

func TestIssueN(t *testing.T) {
	errDown := errors.Join(partition.ErrStorageUnavailable, errors.New("down"))
	iss, err := New(&sequence{values: []int64{1, 2, 3}, err: errDown}, newEncoder(t, alphabet.ExtendedPool))
	require.NoError(t, err)

	codes, err := iss.IssueN(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, codes, 2)

	codes, err = iss.IssueN(context.Background(), 5)
	assert.ErrorIs(t, err, partition.ErrStorageUnavailable)
	assert.Len(t, codes, 1)

	_, err = iss.IssueN(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestNewNilDependency(t *testing.T) {
	_, err := New(nil, newEncoder(t, alphabet.Pool))
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = New(&sequence{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

// TestIssueEndToEnd 基于 SQLite 分区存储的完整发放流程
func TestIssueEndToEnd(t *testing.T) {
	ctx := context.Background()
	store, err := partition.NewGormStore(testkit.NewSQLiteDB(t))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	_, err = partition.Provision(ctx, store, partition.Plan{MinID: 4098, MaxID: 100_000, PerRangeSize: 10_000}, nil)
	require.NoError(t, err)

	alloc, err := allocator.New(ctx, store, &allocator.Config{})
	require.NoError(t, err)
	defer alloc.Close()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer tp.Shutdown(ctx)

	enc, err := encoder.New(alphabet.GenerateExtended(nil))
	require.NoError(t, err)
	iss, err := New(alloc, enc, WithTracer(tp), WithMeter(testkit.NewKit(t).Meter))
	require.NoError(t, err)

	codes, err := iss.IssueN(ctx, 200)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range codes {
		assert.False(t, seen[c.Code], "code %q issued twice", c.Code)
		seen[c.Code] = true
		assert.Equal(t, encoder.Len(c.ID), len(c.Code))
		assert.GreaterOrEqual(t, c.ID, int64(4098))
	}

	var issueSpans int
	for _, s := range exp.GetSpans() {
		if s.Name == trace.SpanIssuerIssue {
			issueSpans++
		}
	}
	assert.Equal(t, 200, issueSpans)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stats.Issued)
}
