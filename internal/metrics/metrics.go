package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every pdfrag collector. It is separate from the default
// registry so tests and embedding programs do not collide.
var Registry = prometheus.NewRegistry()

var (
	EmbedBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_embed_batches_total",
			Help: "Embedding batches by outcome (ok, degraded)",
		},
		[]string{"outcome"},
	)
	EmbedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_embed_items_total",
			Help: "Chunks processed by the embedder by outcome (embedded, skipped)",
		},
		[]string{"outcome"},
	)
	WriteBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_write_batches_total",
			Help: "Store insert batches by outcome (ok, degraded)",
		},
		[]string{"outcome"},
	)
	Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_records_total",
			Help: "Records handled by the store writer by outcome (written, failed)",
		},
		[]string{"outcome"},
	)
	Searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_searches_total",
			Help: "Searches by the tier that answered them (similarity, scan, none)",
		},
		[]string{"tier"},
	)
	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfrag_search_fallbacks_total",
			Help: "Fallback scans by trigger (error, unsupported, empty)",
		},
		[]string{"reason"},
	)
	MalformedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdfrag_malformed_records_total",
			Help: "Stored records skipped during fallback ranking",
		},
	)
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdfrag_search_duration_seconds",
			Help:    "Search latency by tier",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"tier"},
	)
)

func init() {
	Registry.MustRegister(EmbedBatches, EmbedItems, WriteBatches, Records, Searches, Fallbacks, MalformedRecords, SearchDuration)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
