package connector

import (
	"context"

	"github.com/ceyewan/ticketing/metrics"
)

const metricConnectTotal = "ticketing_connector_connect_total"

// connectRecorder 记录连接尝试结果
type connectRecorder struct {
	counter metrics.Counter
	kind    string
	name    string
}

func newConnectRecorder(meter metrics.Meter, kind, name string) *connectRecorder {
	counter, err := meter.Counter(metricConnectTotal, "Number of connector connect attempts")
	if err != nil {
		counter, _ = metrics.Discard().Counter(metricConnectTotal, "")
	}
	return &connectRecorder{counter: counter, kind: kind, name: name}
}

func (r *connectRecorder) record(ctx context.Context, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	r.counter.Inc(ctx,
		metrics.L("connector", r.kind),
		metrics.L("name", r.name),
		metrics.L(metrics.LabelOutcome, outcome),
	)
}
