// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package middleware provides HTTP middleware components for the application.

The only component carried forward for the archiver engine's small HTTP
surface is gzip compression; request-ID tracking and Prometheus
instrumentation live in internal/api instead, wired directly into the chi
router alongside auth and rate limiting.

Usage Example - Compression:

	import "github.com/tomtom215/cartographus/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses are compressed whatever their size
	// Accept-Encoding: gzip header is required

Compression Details:

The compression middleware:
  - Compresses every response, with no size threshold
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Skips WebSocket upgrade requests
  - Automatically sets Content-Encoding header

See Also:

  - internal/api: HTTP handlers and router wrapping this middleware
*/
package middleware
