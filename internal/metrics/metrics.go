package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the companion core
type Metrics struct {
	// Dispatcher metrics
	EnvelopesSubmitted *prometheus.CounterVec
	EnvelopesRejected  *prometheus.CounterVec
	EnvelopesProcessed *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	DispatchErrors     *prometheus.CounterVec

	// Pipeline metrics
	PipelineDuration *prometheus.HistogramVec
	ResponsesTotal   *prometheus.CounterVec
	KnowledgeLookups *prometheus.CounterVec
	HistoryLength    prometheus.Gauge

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	JobsActive  prometheus.Gauge

	// Collaborator metrics
	IntegrityLevel     prometheus.Gauge
	CollaboratorErrors *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			EnvelopesSubmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_envelopes_submitted_total",
					Help: "Envelopes accepted into the inbound queue",
				},
				[]string{"type"},
			),
			EnvelopesRejected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_envelopes_rejected_total",
					Help: "Envelopes refused at submit time",
				},
				[]string{"type", "reason"},
			),
			EnvelopesProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_envelopes_processed_total",
					Help: "Envelopes handled by the dispatcher",
				},
				[]string{"type", "result"},
			),
			QueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "inanna_queue_depth",
					Help: "Envelopes waiting in the inbound queue",
				},
			),
			DispatchErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_dispatch_errors_total",
					Help: "Handler failures caught by the dispatch loop",
				},
				[]string{"type"},
			),
			PipelineDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "inanna_pipeline_duration_seconds",
					Help:    "Time spent processing one text message",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
				[]string{"origin"},
			),
			ResponsesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_responses_total",
					Help: "Responses delivered to output sinks",
				},
				[]string{"tag"},
			),
			KnowledgeLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_knowledge_lookups_total",
					Help: "Knowledge base queries by outcome",
				},
				[]string{"result"},
			),
			HistoryLength: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "inanna_history_length",
					Help: "Conversation history entries held in memory",
				},
			),
			JobRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_scheduler_job_runs_total",
					Help: "Scheduled job executions",
				},
				[]string{"tag", "result"},
			),
			JobDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "inanna_scheduler_job_duration_seconds",
					Help:    "Duration of scheduled jobs",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
				},
				[]string{"tag"},
			),
			JobsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "inanna_scheduler_jobs",
					Help: "Jobs currently registered",
				},
			),
			IntegrityLevel: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "inanna_integrity_level",
					Help: "Simulated internal integrity percentage",
				},
			),
			CollaboratorErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inanna_collaborator_errors_total",
					Help: "Best-effort collaborator calls that failed",
				},
				[]string{"collaborator"},
			),
		}
	})

	return sharedMetrics
}

// RecordSubmit records an accepted or rejected submit
func (m *Metrics) RecordSubmit(msgType string, rejectReason string) {
	if m == nil {
		return
	}
	if rejectReason != "" {
		m.EnvelopesRejected.WithLabelValues(msgType, rejectReason).Inc()
		return
	}
	m.EnvelopesSubmitted.WithLabelValues(msgType).Inc()
}

// RecordProcessed records a handled envelope
func (m *Metrics) RecordProcessed(msgType string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
		m.DispatchErrors.WithLabelValues(msgType).Inc()
	}
	m.EnvelopesProcessed.WithLabelValues(msgType, result).Inc()
}

// SetQueueDepth records the current queue length
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordResponse records a delivered response and how long the pipeline took
func (m *Metrics) RecordResponse(origin, tag string, seconds float64) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(tag).Inc()
	if seconds > 0 {
		m.PipelineDuration.WithLabelValues(origin).Observe(seconds)
	}
}

// RecordKnowledgeLookup records a knowledge base hit or miss
func (m *Metrics) RecordKnowledgeLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.KnowledgeLookups.WithLabelValues(result).Inc()
}

// SetHistoryLength records the history size
func (m *Metrics) SetHistoryLength(n int) {
	if m == nil {
		return
	}
	m.HistoryLength.Set(float64(n))
}

// RecordJobRun records one scheduled job execution
func (m *Metrics) RecordJobRun(tag string, success bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(tag, result).Inc()
	m.JobDuration.WithLabelValues(tag).Observe(seconds)
}

// SetJobsActive records how many jobs are registered
func (m *Metrics) SetJobsActive(n int) {
	if m == nil {
		return
	}
	m.JobsActive.Set(float64(n))
}

// SetIntegrity records the simulated integrity level
func (m *Metrics) SetIntegrity(level int) {
	if m == nil {
		return
	}
	m.IntegrityLevel.Set(float64(level))
}

// RecordCollaboratorError records a failed best-effort collaborator call
func (m *Metrics) RecordCollaboratorError(name string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(name).Inc()
}
