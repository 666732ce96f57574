// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of workflow stages completed",
		},
		[]string{"phase"},
	)

	StagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_failed_total",
			Help: "Total number of workflow stages failed",
		},
		[]string{"phase", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of stage processing in seconds",
		},
		[]string{"phase"},
	)

	WorkflowsSuspended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_workflows_suspended_total",
			Help: "Workflows suspended after matching awaiting external input",
		},
	)

	WorkflowsResumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_workflows_resumed_total",
			Help: "Workflows resumed from a persisted checkpoint",
		},
	)

	InterviewsTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_interviews_triggered_total",
			Help: "Interviews triggered by the match-scoring gate",
		},
	)

	InterviewTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_interview_turns",
			Help:    "Turns taken before an interview session completed",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	KnowledgeQueryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_knowledge_query_failures_total",
			Help: "Knowledge base queries absorbed as zero-score results",
		},
	)
)
