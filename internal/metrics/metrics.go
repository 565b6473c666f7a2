package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_documents_ingested_total",
			Help: "Total number of document ingestions",
		},
		[]string{"collection", "status"},
	)

	ChunksIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_chunks_indexed_total",
			Help: "Total number of chunks written to the vector store",
		},
		[]string{"collection"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"collection"},
	)

	// Search metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_searches_total",
			Help: "Total number of searches by strategy",
		},
		[]string{"strategy", "status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_search_cache_hits_total",
			Help: "Search cache hits",
		},
	)

	SearchCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_search_cache_misses_total",
			Help: "Search cache misses",
		},
	)

	SearchCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docchat_search_cache_size",
			Help: "Number of result sets currently cached",
		},
	)

	// Question answering metrics
	AsksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_asks_total",
			Help: "Total number of ask requests",
		},
		[]string{"context_source", "status"},
	)

	AskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_ask_duration_seconds",
			Help:    "End-to-end ask latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Upstream client metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_embedding_requests_total",
			Help: "Embedding provider calls by status",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_embedding_duration_seconds",
			Help:    "Embedding call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_llm_requests_total",
			Help: "LLM completion calls by status",
		},
		[]string{"model", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_llm_duration_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	VectorStoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_vector_store_requests_total",
			Help: "Vector store operations by status",
		},
		[]string{"operation", "collection", "status"},
	)
)

// RecordEmbeddingMetrics records one embedding provider call.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingDuration.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordLLMMetrics records one LLM completion call.
func RecordLLMMetrics(model, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		LLMDuration.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordVectorStoreMetrics records one vector store operation.
func RecordVectorStoreMetrics(operation, collection, status string) {
	VectorStoreRequests.WithLabelValues(operation, collection, status).Inc()
}
