// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package metrics exposes Prometheus instrumentation for the archiver
// engine: command-thread readiness, writer flush behavior, disconnect-tick
// outcomes, cluster peer polling, and event-bus dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandThreadsReady reports how many of the configured command
	// threads have a non-null protocol context after the 60-second
	// start-up barrier.
	CommandThreadsReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_command_threads_ready",
			Help: "Number of command threads with an initialised protocol context.",
		},
	)

	// CommandThreadsConfigured is the configured command-thread count N.
	CommandThreadsConfigured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_command_threads_configured",
			Help: "Configured command-thread pool size.",
		},
	)

	// RegistrySize reports the current archive channel registry size.
	RegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_registry_size",
			Help: "Number of PVs currently registered for archiving.",
		},
	)

	// WriterFlushDuration records wall-clock seconds consumed by each
	// writer tick.
	WriterFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_writer_flush_duration_seconds",
			Help:    "Wall-clock time consumed by one writer-loop tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WriterFlushCount counts completed writer-loop ticks.
	WriterFlushCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_writer_flush_total",
			Help: "Total writer-loop ticks completed.",
		},
	)

	// WriterSamplesWritten counts successful per-channel Flush calls made
	// by the writer loop. StorageFlusher.Flush reports no sample count, so
	// this is not a count of individual samples.
	WriterSamplesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_writer_samples_written_total",
			Help: "Total successful per-channel flushes to storage plugins.",
		},
	)

	// DisconnectTickDuration records the wall-clock time of one
	// disconnect-monitor tick.
	DisconnectTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_disconnect_tick_duration_seconds",
			Help:    "Wall-clock time consumed by one disconnect-monitor tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DisconnectStuckChannels counts channels found disconnected-and-stuck
	// per tick.
	DisconnectStuckChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_disconnect_stuck_channels",
			Help: "Channels classified disconnected-and-stuck in the most recent tick.",
		},
	)

	// PauseResumeTotal counts pause/resume cycles performed on stuck
	// channels, labeled by outcome.
	PauseResumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_pause_resume_total",
			Help: "Pause/resume cycles performed on stuck channels.",
		},
		[]string{"outcome"},
	)

	// MetachannelsStarted counts metachannel start-ups, batched per tick
	// (at most metachannelsToStartAtATime in internal/engine).
	MetachannelsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_metachannels_started_total",
			Help: "Metachannels started across all disconnect-monitor ticks.",
		},
	)

	// MetachannelGatingBlocked counts ticks where metachannel startup was
	// gated off by the local or a peer disconnected-fraction threshold.
	MetachannelGatingBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_metachannel_gating_blocked_total",
			Help: "Ticks where metachannel startup was blocked, labeled by reason.",
		},
		[]string{"reason"},
	)

	// ClusterPeerPollDuration records peer HTTP poll latency.
	ClusterPeerPollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_cluster_peer_poll_duration_seconds",
			Help:    "Latency of ConnectedPVCountForAppliance calls to peer appliances.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer"},
	)

	// ClusterPeerPollErrors counts peer poll failures, labeled by peer.
	ClusterPeerPollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_cluster_peer_poll_errors_total",
			Help: "Peer polling failures, treated as 'peer unknown' per.",
		},
		[]string{"peer"},
	)

	// ClusterBreakerState reports the circuit breaker state per peer:
	// 0=closed, 1=half-open, 2=open.
	ClusterBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_cluster_breaker_state",
			Help: "Circuit breaker state per peer (0=closed, 1=half-open, 2=open).",
		},
		[]string{"peer"},
	)

	// EventBusEventsHandled counts event-bus handler invocations, labeled
	// by event type and outcome.
	EventBusEventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_eventbus_events_total",
			Help: "Event-bus events handled, labeled by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// APIRequestsInFlight reports the number of HTTP requests currently
	// being handled by the API surface.
	APIRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_api_requests_in_flight",
			Help: "HTTP requests currently being served by the API surface.",
		},
	)

	// APIRequestDuration records HTTP request latency, labeled by method,
	// path, and status.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_api_request_duration_seconds",
			Help:    "HTTP request latency, labeled by method, path, and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIRequestsInFlight.Inc()
	} else {
		APIRequestsInFlight.Dec()
	}
}

// RecordAPIRequest records the outcome and latency of one HTTP request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
