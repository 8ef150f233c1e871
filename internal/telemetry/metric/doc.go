// Package metric provides Prometheus metrics for the Redis client.
//
// It exposes wire-level counters for monitoring command throughput,
// pub/sub traffic, and the client-side cache:
//
//   - commands sent / replies received, by outcome
//   - pipeline queue depth
//   - pub/sub messages delivered
//   - cache hits, misses, invalidations
//
// Collectors register against an injectable prometheus.Registerer so a
// host application can scope them to its own registry. With a nil
// registerer the metrics stay unregistered but remain usable, keeping the
// client free of global registry state by default.
package metric
