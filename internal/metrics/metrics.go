// Package metrics registers the Prometheus collectors shared across every
// streaming-core component (C14). Names follow spec §4.14 exactly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exstreamtv"

var (
	// PoolLive is the number of ffmpeg processes currently held by the pool.
	PoolLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_live",
		Help:      "Number of process slots currently leased from the process pool.",
	})

	// PoolUtilization is PoolLive / capacity, updated on every acquire/release.
	PoolUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_utilization",
		Help:      "Fraction of process pool capacity currently in use.",
	})

	// PoolSpawnDenied counts rejected acquire attempts, labeled by reason
	// (memory, fd, capacity, rate, spawn_failed).
	PoolSpawnDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_spawn_denied_total",
		Help:      "Process pool acquire attempts denied, by reason.",
	}, []string{"reason"})

	// CircuitBreakerState is a gauge per channel: 0=closed, 1=open, 2=half_open.
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per channel (0=closed, 1=open, 2=half_open).",
	}, []string{"channel"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Number of times a channel's circuit breaker has tripped to open.",
	}, []string{"channel"})

	// RestartRequests counts governor decisions, labeled by decision
	// (Allowed, DeniedThrottle, DeniedCooldown, DeniedBreakerOpen).
	RestartRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restart_requests_total",
		Help:      "Restart requests evaluated by the restart governor, by decision.",
	}, []string{"decision"})

	// ChannelBytesOut is cumulative MPEG-TS bytes written to clients, per channel.
	ChannelBytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_bytes_out_total",
		Help:      "MPEG-TS bytes written to client connections, per channel.",
	}, []string{"channel"})

	// SessionOpen is the number of currently open client sessions, across all channels.
	SessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_open",
		Help:      "Number of currently open streaming sessions.",
	})

	// ThrottlerWaitSeconds is the time a write spent blocked on the
	// per-channel byte-rate throttle.
	ThrottlerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "throttler_wait_seconds",
		Help:      "Time spent waiting on the stream throttler before a write was admitted.",
		Buckets:   prometheus.DefBuckets,
	})

	// EPGGenerationSeconds times a full XMLTV generation pass.
	EPGGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "epg_generation_seconds",
		Help:      "Wall-clock time to generate the XMLTV document.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// EPGGapTotal counts programme slots omitted due to paddingMode=none.
	EPGGapTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "epg_gap_total",
		Help:      "Programme slots omitted from XMLTV because no item covered the gap and padding is disabled.",
	})

	// HTTPRequestDuration times every request the Boundary router serves,
	// labeled by route pattern (not raw path) to keep cardinality bounded.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latencies in seconds, by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HTTPRequestsInFlight tracks concurrently-served requests, dominated in
	// practice by long-lived per-channel .ts streams.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "HTTP requests currently being served by the boundary.",
	})
)

func stateCode(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// SetCircuitBreakerState records the current state of channel's breaker.
func SetCircuitBreakerState(channel, state string) {
	circuitBreakerState.WithLabelValues(channel).Set(stateCode(state))
}

// RecordCircuitBreakerTrip increments the trip counter for channel.
func RecordCircuitBreakerTrip(channel string) {
	circuitBreakerTrips.WithLabelValues(channel).Inc()
}

// RecordRestartDecision increments the restart-request counter for decision.
func RecordRestartDecision(decision string) {
	RestartRequests.WithLabelValues(decision).Inc()
}

// RecordSpawnDenied increments the pool denial counter for reason.
func RecordSpawnDenied(reason string) {
	PoolSpawnDenied.WithLabelValues(reason).Inc()
}

// AddChannelBytesOut adds n bytes to the per-channel output counter.
func AddChannelBytesOut(channel string, n float64) {
	ChannelBytesOut.WithLabelValues(channel).Add(n)
}
