package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of raw payload cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of raw payload cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_stores_total",
		Help: "Total number of raw payload cache store operations",
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})

	// Source metrics
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "source_fetches_total",
		Help: "Total number of upstream source fetches",
	}, []string{"source"})

	SourceFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "source_fetch_latency_seconds",
		Help:    "Latency of upstream source fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// Scheduler metrics
	CommandsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_submitted_total",
		Help: "Total number of commands submitted to the scheduler",
	}, []string{"resource"})

	CommandsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_deduplicated_total",
		Help: "Total number of submissions that joined an in-flight command",
	}, []string{"resource"})

	CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_executed_total",
		Help: "Total number of commands whose execution completed",
	}, []string{"resource"})

	CommandsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_failed_total",
		Help: "Total number of failed command executions by error kind",
	}, []string{"resource", "kind"})

	CommandsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_commands_cancelled_total",
		Help: "Total number of cancelled or early-dropped command handles",
	}, []string{"resource"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_command_duration_seconds",
		Help:    "Duration of command execution in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})

	CommandsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_commands_waiting",
		Help: "Number of queued commands not yet started",
	})

	CommandsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_commands_running",
		Help: "Number of commands currently executing",
	})

	// Layer artifact cache metrics
	ArtifactCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_cache_hits_total",
		Help: "Total number of decoded artifact cache hits",
	}, []string{"layer"})

	ArtifactCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_cache_misses_total",
		Help: "Total number of decoded artifact cache misses",
	}, []string{"layer"})

	ArtifactCacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_cache_evictions_total",
		Help: "Total number of decoded artifacts evicted or invalidated",
	}, []string{"layer"})

	// Quadtree metrics
	Tiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quadtree_tiles",
		Help: "Number of live tiles in the quadtree",
	})

	Subdivisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_subdivisions_total",
		Help: "Total number of completed tile subdivisions",
	})

	Merges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_merges_total",
		Help: "Total number of tile merges",
	})

	FrameUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_update_duration_seconds",
		Help:    "Duration of one control loop update pass in seconds",
		Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .016, .033, .05, .1},
	})
)
