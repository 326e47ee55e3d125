package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dealsense",
		Name:      "turn_assembly_seconds",
		Help:      "Time spent assembling context for one chat turn.",
		Buckets:   prometheus.DefBuckets,
	})

	StageDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "stage_degraded_total",
		Help:      "Turns in which an optional pipeline stage fell back.",
	}, []string{"stage"})

	FusedCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dealsense",
		Name:      "fused_candidates",
		Help:      "Candidate count after reciprocal rank fusion.",
		Buckets:   []float64{1, 5, 10, 15, 20, 25, 30, 40, 50},
	})

	SummaryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "summary_cache_hits_total",
		Help:      "Conversation summary cache hits.",
	})

	SummaryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "summary_cache_misses_total",
		Help:      "Conversation summary cache misses or stale entries.",
	})

	CitationsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "citations_resolved_total",
		Help:      "Citation tokens successfully resolved in answers.",
	})

	CitationsUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "citations_unknown_total",
		Help:      "Citation tokens pointing outside the turn's scope, returned as unknown placeholders.",
	})

	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "documents_ingested_total",
		Help:      "Documents accepted by the ingestion pipeline.",
	})

	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealsense",
		Name:      "chunks_indexed_total",
		Help:      "Chunks written to the keyword and vector indexes.",
	})
)
