// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package api serves the small HTTP surface one archiver appliance exposes
to the rest of its cluster and to operators:

  - GET /ConnectedPVCountForAppliance: total and disconnected PV counts,
    polled by peer appliances (internal/engine/cluster.Poller) to gate
    metachannel startup cluster-wide. Optionally requires an HS256 bearer
    token when ServerConfig.JWTSecret is set.
  - GET /healthz: liveness.
  - GET /metrics: Prometheus scrape endpoint.
  - GET /ws: WebSocket upgrade for engine_status, pv_connection, and
    cluster_status broadcasts (internal/websocket).

Routing uses chi, with go-chi/cors and go-chi/httprate providing the same
production-hardened CORS and rate-limiting layers used elsewhere in this
codebase's HTTP surfaces.
*/
package api
