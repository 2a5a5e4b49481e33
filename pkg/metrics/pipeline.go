package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage processing outcomes.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	completed     prometheus.Counter
	failed        *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of document pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_documents_completed",
		Help: "Documents that finished the pipeline successfully.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_documents_failed",
		Help: "Documents that failed the pipeline, by stage.",
	}, []string{"stage"})
	reg.MustRegister(stageDuration, completed, failed)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		completed:     completed,
		failed:        failed,
	}
}

// ObserveStage records the duration of the named stage.
func (p *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncCompleted increments the completed-document counter.
func (p *PipelineMetrics) IncCompleted() {
	if p == nil || p.completed == nil {
		return
	}
	p.completed.Inc()
}

// IncFailed increments the failure counter for the named stage.
func (p *PipelineMetrics) IncFailed(stage string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(normalizeLabel(stage)).Inc()
}
