package trace

// Span 名称
const (
	SpanAllocatorClaim   = "allocator.claim"
	SpanAllocatorRefresh = "allocator.refresh"
	SpanIssuerIssue      = "issuer.issue"
)

// Span 属性键
const (
	AttrPartitionID = "ticketing.partition.id"
	AttrAttempt     = "ticketing.claim.attempt"
	AttrBackend     = "ticketing.storage.backend"
	AttrOutcome     = "ticketing.outcome"
	AttrCodeLength  = "ticketing.code.length"
)
