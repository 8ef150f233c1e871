package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "redis_client"

// Registry holds all client metrics.
type Registry struct {
	CommandsSent    *prometheus.CounterVec
	RepliesReceived *prometheus.CounterVec
	PendingDepth    prometheus.Gauge
	PubSubMessages  prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheInvalidate prometheus.Counter
	Disconnects     prometheus.Counter
}

// NewRegistry creates the client metrics and registers them with reg.
// A nil reg leaves the metrics unregistered but still usable.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the server, by verb.",
		}, []string{"command"}),
		RepliesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_received_total",
			Help:      "Replies decoded from the server, by outcome (ok, error, push, cancelled).",
		}, []string{"outcome"}),
		PendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_depth",
			Help:      "Requests currently awaiting a reply.",
		}),
		PubSubMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pubsub_messages_total",
			Help:      "Pub/sub messages delivered to subscription sinks.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Client-side cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Client-side cache misses.",
		}),
		CacheInvalidate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Keys evicted by server invalidation messages.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Connections torn down.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.CommandsSent,
			r.RepliesReceived,
			r.PendingDepth,
			r.PubSubMessages,
			r.CacheHits,
			r.CacheMisses,
			r.CacheInvalidate,
			r.Disconnects,
		)
	}
	return r
}
