package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the OpenVidu Meet control plane.
//
// Naming convention: namespace_subsystem_name
// - namespace: openvidu_meet (application-level grouping)
// - subsystem: room, recording, lock, storage, webhook, scheduler, http,
//   rate_limit, redis, circuit_breaker (component-level grouping)
// - name: specific metric (active, total, duration_seconds, etc.)
//
// Metric Types:
// - Gauge: current state (active rooms, active locks, participants)
// - Counter: cumulative events (operations, errors, evictions)
// - Histogram: latency distributions (processing time)

var (
	// ActiveRooms tracks the current number of non-deleted rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "openvidu_meet",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active (non-deleted) rooms",
	})

	// RoomParticipants tracks the number of active participants per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "openvidu_meet",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of active participants in each room",
	}, []string{"room_id"})

	// RoomDeletionDecisions tracks deletion-policy-engine outcomes (§4.8 codes).
	RoomDeletionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "room",
		Name:      "deletion_decisions_total",
		Help:      "Total room deletion decisions by outcome code",
	}, []string{"code"})

	// RecordingsActive tracks recordings currently in a non-terminal state.
	RecordingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "openvidu_meet",
		Subsystem: "recording",
		Name:      "active",
		Help:      "Current number of recordings in a non-terminal state",
	})

	// RecordingTransitions tracks state-machine transitions (§4.9).
	RecordingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "recording",
		Name:      "transitions_total",
		Help:      "Total recording state transitions",
	}, []string{"from", "to"})

	// LocksHeld tracks the current number of held distributed locks.
	LocksHeld = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "openvidu_meet",
		Subsystem: "lock",
		Name:      "held",
		Help:      "Current number of held distributed locks",
	}, []string{"resource_type"})

	// LockOrphansReaped counts locks reclaimed by the orphan-lock GC.
	LockOrphansReaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "lock",
		Name:      "orphans_reaped_total",
		Help:      "Total orphaned locks reclaimed by the GC task",
	}, []string{"resource_type"})

	// StorageOperations tracks object-store/cache reads and writes.
	StorageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Total storage layer operations",
	}, []string{"entity", "op", "status"})

	// StorageOperationDuration tracks storage op latency.
	StorageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openvidu_meet",
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Duration of storage layer operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"entity", "op"})

	// WebhookEvents tracks ingested webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Total webhook events received, by event type and outcome",
	}, []string{"event_type", "status"})

	// WebhookDuplicatesDropped counts webhook deliveries deduped via the Lock Manager.
	WebhookDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "webhook",
		Name:      "duplicates_dropped_total",
		Help:      "Total duplicate webhook deliveries dropped by dedup",
	})

	// SchedulerTaskRuns tracks scheduled task executions.
	SchedulerTaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "scheduler",
		Name:      "task_runs_total",
		Help:      "Total scheduled task executions by task name and outcome",
	}, []string{"task", "status"})

	// SchedulerTaskDuration tracks scheduled task execution latency.
	SchedulerTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openvidu_meet",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Duration of scheduled task executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})

	// HTTPRequests tracks HTTP requests by route/method/status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openvidu_meet",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// CircuitBreakerState tracks the current state of a circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "openvidu_meet",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against a rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks Redis operations by type and status.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openvidu_meet",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks Redis operation latency.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openvidu_meet",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)
