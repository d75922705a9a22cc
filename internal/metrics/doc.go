// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package metrics exposes Prometheus instrumentation for the archiver engine
using promauto, so every collector self-registers against the default
registry on first use.

Metrics are grouped by the component that owns them:

  - engine_command_threads_*: command-thread pool readiness
  - engine_registry_size: archive channel registry occupancy
  - engine_writer_*: writer-loop flush behavior
  - engine_disconnect_*, engine_pause_resume_*, engine_metachannel*: the
    disconnect/reconnect monitor
  - engine_cluster_*: peer polling and circuit breaker state
  - engine_eventbus_*: event-bus dispatch outcomes

Scrape them by mounting internal/api's /metrics handler, which wraps
promhttp.Handler().
*/
package metrics
