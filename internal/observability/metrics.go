// Package observability holds the Prometheus metrics registry shared by
// every component, and the /metrics HTTP handler.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every counter, gauge, and histogram the pipeline emits.
// One Registry is constructed at startup and threaded through every
// component that needs to record something.
type Registry struct {
	MessagesTotal      *prometheus.CounterVec
	FirstLayerPass     *prometheus.CounterVec
	SecondLayerCheck   prometheus.Counter
	SecondLayerPass    prometheus.Counter
	AlertsTotal        *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	FallbackTotal      *prometheus.CounterVec
	RateLimited        prometheus.Counter
	WSConnections      prometheus.Gauge
	CacheSize          *prometheus.GaugeVec
	ProcessingDuration prometheus.Histogram
	CooldownRejections prometheus.Counter
	DedupRejections    prometheus.Counter
	RetryQueueDepth    prometheus.Gauge
}

// NewRegistry constructs and registers every metric against a fresh
// prometheus.Registry, returning both for use by the /metrics handler.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_messages_total",
			Help: "Inbound WebSocket frames processed, by frame kind.",
		}, []string{"kind"}),
		FirstLayerPass: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_first_layer_pass_total",
			Help: "Events passing the layer-1 USD-notional filter, by origin.",
		}, []string{"origin"}),
		SecondLayerCheck: factory.NewCounter(prometheus.CounterOpts{
			Name: "bscwatch_second_layer_check_total",
			Help: "Events submitted to the layer-2 statistics filter.",
		}),
		SecondLayerPass: factory.NewCounter(prometheus.CounterOpts{
			Name: "bscwatch_second_layer_pass_total",
			Help: "Events passing the layer-2 statistics filter.",
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_alerts_total",
			Help: "Alerts dispatched, by outcome.",
		}, []string{"outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_cache_hits_total",
			Help: "Cache hits, by cache kind.",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_cache_misses_total",
			Help: "Cache misses, by cache kind.",
		}, []string{"kind"}),
		FallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bscwatch_window_fallback_total",
			Help: "Layer-2 window widenings, by transition.",
		}, []string{"transition"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "bscwatch_rpc_rate_limited_total",
			Help: "HTTP 429 responses observed from upstream RPC/HTTP collaborators.",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bscwatch_ws_connections",
			Help: "Active upstream WebSocket connections (0 or 1).",
		}),
		CacheSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bscwatch_cache_size",
			Help: "Current entry count, by cache kind.",
		}, []string{"kind"}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bscwatch_processing_seconds",
			Help:    "End-to-end processing latency from decode to dispatch decision.",
			Buckets: prometheus.DefBuckets,
		}),
		CooldownRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "bscwatch_cooldown_rejections_total",
			Help: "Alerts suppressed because the token's cooldown was still active.",
		}),
		DedupRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "bscwatch_dedup_rejections_total",
			Help: "Events suppressed as duplicates of an already-seen (tx_hash, log_index).",
		}),
		RetryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bscwatch_retry_queue_depth",
			Help: "Alerts currently queued for dispatch retry.",
		}),
	}
	return r, reg
}

// Handler returns the /metrics HTTP handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
