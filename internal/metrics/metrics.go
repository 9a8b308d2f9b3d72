// Package metrics holds the Prometheus collectors shared by the cache,
// fetcher, reindexer and sequence engine.
//
// Collectors are created per Metrics value and registered on a caller
// supplied Registerer, so tests can use a fresh prometheus.NewRegistry()
// without tripping duplicate registration on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hybridseq"

// Metrics bundles every collector the engine reports to.
type Metrics struct {
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	FetchErrors        *prometheus.CounterVec
	FetchDiscarded     *prometheus.CounterVec
	WriteAttempts      prometheus.Counter
	WriteConflicts     prometheus.Counter
	PendingTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which keeps the collectors usable but unexported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Reconciliation cache hits by data type and source.",
		}, []string{"data_type", "source"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Reconciliation cache misses by data type and source.",
		}, []string{"data_type", "source"}),
		CacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Cache entries cleared by mutation-driven invalidation.",
		}, []string{"data_type"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Failed page fetches by source.",
		}, []string{"source"}),
		FetchDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "discarded_total",
			Help:      "Page responses dropped because a newer request superseded them.",
		}, []string{"source"}),
		WriteAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reindex",
			Name:      "attempts_total",
			Help:      "Transactional insert attempts, including retries.",
		}),
		WriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reindex",
			Name:      "conflicts_total",
			Help:      "Transactional inserts that hit a write conflict.",
		}),
		PendingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pending",
			Name:      "transitions_total",
			Help:      "Optimistic entry transitions by target status.",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits,
			m.CacheMisses,
			m.CacheInvalidations,
			m.FetchErrors,
			m.FetchDiscarded,
			m.WriteAttempts,
			m.WriteConflicts,
			m.PendingTransitions,
		)
	}

	return m
}

// Discard returns unregistered collectors for callers that do not export
// metrics.
func Discard() *Metrics {
	return New(nil)
}
