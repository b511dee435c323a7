// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProfileCacheHits counts profile cache lookups served from memory.
	ProfileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprobot_profile_cache_hits_total",
		Help: "Profile cache lookups served from memory.",
	})

	// ProfileCacheMisses counts profile cache lookups that fell through to storage.
	ProfileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprobot_profile_cache_misses_total",
		Help: "Profile cache lookups that fell through to storage.",
	})

	// ImageRelocations counts relocation outcomes by kind.
	ImageRelocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprobot_image_relocations_total",
			Help: "Image relocation outcomes.",
		},
		[]string{"outcome"},
	)

	// StorageOperationDuration observes object storage latency.
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sprobot_storage_operation_duration_seconds",
			Help:    "Object storage call latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ProfileOperations counts orchestrator calls by operation and result.
	ProfileOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprobot_profile_operations_total",
			Help: "Profile operations by result.",
		},
		[]string{"operation", "result"},
	)

	// DeletionSessions counts confirmation sessions reaching a terminal state.
	DeletionSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprobot_deletion_sessions_total",
			Help: "Delete confirmation sessions by final state.",
		},
		[]string{"state"},
	)
)
