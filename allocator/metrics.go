package allocator

import (
	"github.com/ceyewan/ticketing/metrics"
)

const (
	MetricClaimsTotal         = "ticketing_claims_total"
	MetricClaimRetriesTotal   = "ticketing_claim_retries_total"
	MetricClaimDuration       = "ticketing_claim_duration_seconds"
	MetricPartitionsAvailable = "ticketing_partitions_available"
	MetricPartitionsExhausted = "ticketing_partitions_exhausted_total"
)

// 重试原因
const (
	reasonExhausted = "exhausted"
	reasonNotFound  = "not_found"
	reasonConflict  = "conflict"
)

// 失败结果
const (
	outcomeSpaceExhausted     = CodeSpaceExhausted
	outcomeStorageUnavailable = CodeStorageUnavailable
	outcomeRetriesExhausted   = CodeRetriesExhausted
	outcomeCanceled           = "canceled"
)

type allocatorMetrics struct {
	claims    metrics.Counter
	retries   metrics.Counter
	duration  metrics.Histogram
	available metrics.Gauge
	exhausted metrics.Counter
}

func newAllocatorMetrics(meter metrics.Meter) (*allocatorMetrics, error) {
	claims, err := meter.Counter(MetricClaimsTotal, "Number of claim calls by outcome")
	if err != nil {
		return nil, err
	}
	retries, err := meter.Counter(MetricClaimRetriesTotal, "Number of claim retries by reason")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Histogram(MetricClaimDuration, "Claim latency including retries",
		metrics.WithUnit("s"),
		metrics.WithBuckets([]float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}))
	if err != nil {
		return nil, err
	}
	available, err := meter.Gauge(MetricPartitionsAvailable, "Number of partitions in the candidate cache")
	if err != nil {
		return nil, err
	}
	exhausted, err := meter.Counter(MetricPartitionsExhausted, "Number of partitions observed exhausted")
	if err != nil {
		return nil, err
	}
	return &allocatorMetrics{
		claims:    claims,
		retries:   retries,
		duration:  duration,
		available: available,
		exhausted: exhausted,
	}, nil
}
