// Package metrics holds the prometheus instruments for registry traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts registry commands by verb and classified outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "commands_total",
		Help:      "Registry commands sent, by operation kind and outcome.",
	}, []string{"kind", "outcome"})

	// RetriesTotal counts automatic retries by verb.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "retries_total",
		Help:      "Automatic retries of registry commands, by operation kind.",
	}, []string{"kind"})

	// ExchangeDuration observes the wall time of one command exchange,
	// session acquisition included.
	ExchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "exchange_duration_seconds",
		Help:      "Latency of registry command exchanges.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// PoolExhaustions counts acquire attempts refused at saturation.
	PoolExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "pool_exhaustions_total",
		Help:      "Session acquisitions refused because the pool was saturated.",
	})

	// SessionsIdle and SessionsInUse mirror the pool's occupancy.
	SessionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "sessions_idle",
		Help:      "Authenticated sessions parked in the pool.",
	})
	SessionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "sessions_in_use",
		Help:      "Sessions currently carrying a command.",
	})

	// CheckCacheHits counts availability checks answered from cache.
	CheckCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "registry",
		Name:      "check_cache_hits_total",
		Help:      "Domain availability checks served from the redis cache.",
	})
)

// RecordPoolStats pushes a pool occupancy snapshot into the gauges.
func RecordPoolStats(idle, inUse int) {
	SessionsIdle.Set(float64(idle))
	SessionsInUse.Set(float64(inUse))
}
