// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_jobs_enqueued_total",
		Help: "Total number of jobs enqueued, by job type",
	}, []string{"job_type"})
	JobsDequeued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_jobs_dequeued_total",
		Help: "Total number of jobs dequeued, by job type",
	}, []string{"job_type"})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_jobs_completed_total",
		Help: "Total number of successfully completed jobs, by job type",
	}, []string{"job_type"})
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_jobs_failed_total",
		Help: "Total number of failed jobs, by job type",
	}, []string{"job_type"})
	JobsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_jobs_retried_total",
		Help: "Total number of job retries scheduled via backoff, by job type",
	}, []string{"job_type"})
	JobProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barcode_job_processing_duration_seconds",
		Help:    "Histogram of per-job processing durations, by job type",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barcode_queue_length",
		Help: "Current count of pending jobs, by job type",
	}, []string{"job_type"})
	DetectionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_detections_created_total",
		Help: "Total number of detections created, by source",
	}, []string{"source"})
	ImagesByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barcode_images_by_status",
		Help: "Current count of images in each pipeline status",
	}, []string{"status"})
	AITokensUsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barcode_ai_tokens_used_total",
		Help: "Cumulative token usage reported by the AI decoder",
	})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "barcode_ai_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barcode_ai_circuit_breaker_trips_total",
		Help: "Count of times the AI-decoder circuit breaker transitioned to Open",
	})
	WorkerActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barcode_worker_active",
		Help: "Number of active worker goroutines, by worker kind",
	}, []string{"worker"})
)

func init() {
	prometheus.MustRegister(
		JobsEnqueued, JobsDequeued, JobsCompleted, JobsFailed, JobsRetried,
		JobProcessingDuration, QueueLength, DetectionsCreated, ImagesByStatus,
		AITokensUsed, CircuitBreakerState, CircuitBreakerTrips, WorkerActive,
	)
}
