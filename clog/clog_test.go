package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

func newJSONLogger(t *testing.T, buf *bytes.Buffer, opts ...Option) Logger {
	t.Helper()
	opts = append(opts, WithWriter(buf))
	logger, err := New(&Config{Level: "debug", Format: "json"}, opts...)
	require.NoError(t, err)
	return logger
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"empty uses defaults", Config{}, false},
		{"json", Config{Level: "warn", Format: "json"}, false},
		{"bad level", Config{Level: "verbose"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNamespaceAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(t, &buf, WithNamespace("ticketing"))

	logger.WithNamespace("allocator").With(String("backend", "sqlite")).Info("claimed",
		Int64("partition_id", 3),
		Error(errors.New("boom")),
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ticketing.allocator", lines[0][NamespaceKey])
	assert.Equal(t, "sqlite", lines[0]["backend"])
	assert.Equal(t, float64(3), lines[0]["partition_id"])
	assert.Equal(t, "boom", lines[0]["err_msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
}

func TestSetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(t, &buf)
	child := logger.WithNamespace("child")

	require.NoError(t, logger.SetLevel(WarnLevel))
	child.Info("dropped")
	child.Warn("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestContextExtraction(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(t, &buf,
		WithContextField(ctxKey("request_id"), "request_id"),
		WithTraceContext(),
	)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	ctx := context.WithValue(context.Background(), ctxKey("request_id"), "req-1")
	ctx = trace.ContextWithSpanContext(ctx, sc)
	logger.InfoContext(ctx, "issued")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, traceID.String(), lines[0]["trace_id"])
	assert.Equal(t, spanID.String(), lines[0]["span_id"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, ErrorLevel, lvl)

	_, err = ParseLevel("nope")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.With(String("k", "v")).WithNamespace("x").Info("nothing")
	assert.NoError(t, logger.SetLevel(DebugLevel))
}
