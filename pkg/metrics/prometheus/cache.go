package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/originblock/blockcache/pkg/metrics"
)

// pipelineMetrics is the Prometheus implementation of metrics.PipelineMetrics.
type pipelineMetrics struct {
	planSteps          *prometheus.CounterVec
	originFetchBytes   prometheus.Counter
	originFetchSeconds prometheus.Histogram
	coverageMarks      prometheus.Counter
	blockCreateRaces   prometheus.Counter
	originMismatches   prometheus.Counter
}

func init() {
	metrics.RegisterPipelineMetricsConstructor(newPipelineMetrics)
}

func newPipelineMetrics() metrics.PipelineMetrics {
	reg := metrics.GetRegistry()

	return &pipelineMetrics{
		planSteps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockcache_plan_steps_total",
				Help: "Total number of read-plan steps served, by kind",
			},
			[]string{"kind"}, // "cache", "origin"
		),
		originFetchBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blockcache_origin_fetch_bytes_total",
				Help: "Total bytes pulled from origin servers",
			},
		),
		originFetchSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "blockcache_origin_fetch_duration_seconds",
				Help: "Duration of origin range-fetch round trips",
				Buckets: []float64{
					0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
				},
			},
		),
		coverageMarks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blockcache_coverage_mark_total",
				Help: "Total number of blocks marked covered in object metadata",
			},
		),
		blockCreateRaces: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blockcache_block_create_races_total",
				Help: "Total number of CreateBlock calls that lost the create-exclusive race",
			},
		),
		originMismatches: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "blockcache_origin_mismatch_total",
				Help: "Total number of objects invalidated due to an origin mismatch",
			},
		),
	}
}

func (m *pipelineMetrics) ObservePlanStep(kind string) {
	if m == nil {
		return
	}
	m.planSteps.WithLabelValues(kind).Inc()
}

func (m *pipelineMetrics) ObserveOriginFetch(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	if bytes > 0 {
		m.originFetchBytes.Add(float64(bytes))
	}
	m.originFetchSeconds.Observe(duration.Seconds())
}

func (m *pipelineMetrics) ObserveCoverageMark() {
	if m == nil {
		return
	}
	m.coverageMarks.Inc()
}

func (m *pipelineMetrics) ObserveBlockCreateRace() {
	if m == nil {
		return
	}
	m.blockCreateRaces.Inc()
}

func (m *pipelineMetrics) ObserveOriginMismatch() {
	if m == nil {
		return
	}
	m.originMismatches.Inc()
}
