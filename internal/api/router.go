// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cartographus/internal/middleware"
)

// RouterConfig configures the HTTP surface's routing and middleware.
type RouterConfig struct {
	ChiMiddlewareConfig

	// JWTSecret, when non-empty, requires a valid HS256 bearer token on
	// ConnectedPVCountForAppliance. Empty disables auth (development only).
	JWTSecret string
}

// Router builds the chi-routed HTTP handler for one appliance.
type Router struct {
	handler    *Handler
	middleware *ChiMiddleware
	jwtSecret  string
}

// NewRouter constructs a Router bound to handler, configured per cfg.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	return &Router{
		handler:    handler,
		middleware: NewChiMiddleware(cfg.ChiMiddlewareConfig),
		jwtSecret:  cfg.JWTSecret,
	}
}

// Handler builds the complete http.Handler: global middleware, the cluster
// polling endpoint, health, metrics, and the WebSocket upgrade.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(router.middleware.RateLimit())
	r.Use(prometheusMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.Compression(next.ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(router.jwtSecret))
		r.Get("/ConnectedPVCountForAppliance", router.handler.ConnectedPVCountForAppliance)
	})

	r.Get("/healthz", router.handler.Health)
	r.Get("/ws", router.handler.WebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
