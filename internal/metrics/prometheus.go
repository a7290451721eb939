package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adgm_assist_chat_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"transport"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adgm_assist_chat_total",
			Help: "Total chat turns processed",
		},
		[]string{"status"},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adgm_assist_retrieval_results",
			Help:    "Number of context chunks retrieved per question",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)

	RetrievalTopScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adgm_assist_retrieval_top_score",
			Help:    "Best cosine similarity per question",
			Buckets: []float64{-1, 0, 0.2, 0.4, 0.6, 0.8, 0.9, 1},
		},
	)

	EmbeddingsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adgm_assist_embeddings_generated_total",
			Help: "Total embeddings generated",
		},
	)

	ChunksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adgm_assist_chunks_dropped_total",
			Help: "Chunks dropped after exhausting embedding retries",
		},
	)

	PagesCrawled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adgm_assist_pages_crawled_total",
			Help: "Total pages fetched by crawl runs",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adgm_assist_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adgm_assist_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adgm_assist_active_sessions",
			Help: "Chat sessions currently held in memory",
		},
	)
)

func Init() {
	prometheus.MustRegister(ChatDuration)
	prometheus.MustRegister(ChatTotal)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(RetrievalTopScore)
	prometheus.MustRegister(EmbeddingsGenerated)
	prometheus.MustRegister(ChunksDropped)
	prometheus.MustRegister(PagesCrawled)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ActiveSessions)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
