package metrics

import "time"

// PipelineMetrics records the counters and histograms the gateway and fill
// coordinator emit while serving a request. A nil PipelineMetrics is valid
// and every method on it is a no-op, so callers can pass metrics.NewPipelineMetrics()
// unconditionally whether or not metrics are enabled.
type PipelineMetrics interface {
	// ObservePlanStep records one read-plan step by kind ("cache" or "origin").
	ObservePlanStep(kind string)

	// ObserveOriginFetch records a completed origin fetch: bytes pulled and
	// how long the round trip took.
	ObserveOriginFetch(bytes int64, duration time.Duration)

	// ObserveCoverageMark records a block being marked covered in an
	// object's metadata file.
	ObserveCoverageMark()

	// ObserveBlockCreateRace records a CreateBlock call that lost the
	// create-exclusive race and fell back to passthrough.
	ObserveBlockCreateRace()

	// ObserveOriginMismatch records an object invalidated because its
	// origin response no longer matched the cached metadata.
	ObserveOriginMismatch()
}

// NewPipelineMetrics creates a Prometheus-backed PipelineMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When nil
// is returned, callers should pass nil onward; every exported helper in this
// file tolerates a nil PipelineMetrics.
func NewPipelineMetrics() PipelineMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusPipelineMetrics()
}

// newPrometheusPipelineMetrics is registered by pkg/metrics/prometheus/cache.go
// during its package init. The indirection keeps this package free of a
// direct prometheus client import, breaking the cycle between the two.
var newPrometheusPipelineMetrics func() PipelineMetrics

// RegisterPipelineMetricsConstructor registers the Prometheus pipeline
// metrics constructor. Called by pkg/metrics/prometheus/cache.go's init.
func RegisterPipelineMetricsConstructor(constructor func() PipelineMetrics) {
	newPrometheusPipelineMetrics = constructor
}

// ObservePlanStep records one read-plan step by kind.
func ObservePlanStep(m PipelineMetrics, kind string) {
	if m != nil {
		m.ObservePlanStep(kind)
	}
}

// ObserveOriginFetch records a completed origin fetch.
func ObserveOriginFetch(m PipelineMetrics, bytes int64, duration time.Duration) {
	if m != nil {
		m.ObserveOriginFetch(bytes, duration)
	}
}

// ObserveCoverageMark records a coverage bit being set.
func ObserveCoverageMark(m PipelineMetrics) {
	if m != nil {
		m.ObserveCoverageMark()
	}
}

// ObserveBlockCreateRace records a lost CreateBlock race.
func ObserveBlockCreateRace(m PipelineMetrics) {
	if m != nil {
		m.ObserveBlockCreateRace()
	}
}

// ObserveOriginMismatch records an origin-mismatch invalidation.
func ObserveOriginMismatch(m PipelineMetrics) {
	if m != nil {
		m.ObserveOriginMismatch()
	}
}
