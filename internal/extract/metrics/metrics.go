package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PartitionsCreated tracks distinct partition cursors created per stream
	PartitionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_partitions_created_total",
			Help: "Total number of partition cursors created",
		},
		[]string{"stream"},
	)

	// PartitionsOpen tracks partitions with slices still in flight
	PartitionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partsync_partitions_open",
			Help: "Number of partitions that have not been fully closed",
		},
		[]string{"stream"},
	)

	// PartitionsRetained tracks partition cursors held in memory
	PartitionsRetained = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partsync_partitions_retained",
			Help: "Number of partition cursors retained in memory",
		},
		[]string{"stream"},
	)

	// PartitionsEvicted tracks evictions, reason is "finished" or "unfinished"
	PartitionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_partitions_evicted_total",
			Help: "Total number of partition cursors evicted",
		},
		[]string{"stream", "reason"},
	)

	// GlobalCursorSwitches tracks switches to global cursor mode
	GlobalCursorSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_global_cursor_switches_total",
			Help: "Total number of switches to global cursor mode",
		},
		[]string{"stream"},
	)

	// StatesEmitted tracks state snapshots pushed to emitters
	StatesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_states_emitted_total",
			Help: "Total number of state snapshots emitted",
		},
		[]string{"stream", "result"},
	)

	// RecordsRead tracks records handed downstream
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_records_read_total",
			Help: "Total number of records read",
		},
		[]string{"stream"},
	)

	// RecordsSkipped tracks records filtered out by the cursor
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsync_records_skipped_total",
			Help: "Total number of records skipped by the cursor filter",
		},
		[]string{"stream"},
	)

	// SliceDuration tracks how long a single slice read takes
	SliceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partsync_slice_duration_seconds",
			Help:    "Slice read duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	// StateRepoLatency tracks state repository operations
	StateRepoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partsync_state_repo_latency_seconds",
			Help:    "State repository operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partsync_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
