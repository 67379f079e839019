package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/ticketing/clog"
)

// TestNew 测试创建 Meter 实例
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "disabled", cfg: &Config{}, wantErr: false},
		{name: "enabled", cfg: NewDevDefaultConfig("test-service"), wantErr: false},
		{name: "runtime", cfg: &Config{Enabled: true, Runtime: true}, wantErr: false},
		{name: "bad port", cfg: &Config{Enabled: true, Port: 70000}, wantErr: true},
		{name: "bad path", cfg: &Config{Enabled: true, Path: "metrics"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter, err := New(tt.cfg, WithLogger(clog.Discard()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, meter.Shutdown(ctx))
		})
	}
}

func TestHandlerExposesInstruments(t *testing.T) {
	meter, err := New(NewDevDefaultConfig("test-service"))
	require.NoError(t, err)
	defer meter.Shutdown(context.Background())

	ctx := context.Background()
	counter, err := meter.Counter("test_events_total", "events")
	require.NoError(t, err)
	counter.Inc(ctx, L(LabelOutcome, OutcomeSuccess))

	gauge, err := meter.Gauge("test_inflight", "in flight")
	require.NoError(t, err)
	gauge.Inc(ctx)
	gauge.Inc(ctx)
	gauge.Dec(ctx)

	hist, err := meter.Histogram("test_duration_seconds", "duration",
		WithUnit("s"), WithBuckets([]float64{0.01, 0.1, 1}))
	require.NoError(t, err)
	hist.Record(ctx, 0.05)

	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "test_events")
	assert.Contains(t, text, `outcome="success"`)
	assert.Contains(t, text, "test_inflight")
	assert.Contains(t, text, "test_duration_seconds")
}

func TestDiscard(t *testing.T) {
	meter := Discard()
	c, err := meter.Counter("x", "x")
	require.NoError(t, err)
	c.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, meter.Shutdown(context.Background()))
}
