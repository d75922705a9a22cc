// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package api

import (
	"net/http"
	"strconv"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/websocket"
)

// ChannelRegistry is the slice of engine.ChannelRegistry the API needs:
// enough to answer ConnectedPVCountForAppliance without importing the
// engine package, avoiding a cluster -> engine -> api import cycle.
type ChannelRegistry interface {
	Size() int
	ForEach(fn func(baseName string, ch channel.ArchiveChannel))
}

// Handler serves the appliance's HTTP surface: cluster peer polling,
// health, and the WebSocket upgrade.
type Handler struct {
	registry       ChannelRegistry
	hub            *websocket.Hub
	allowedOrigins []string
}

// NewHandler constructs a Handler bound to the engine's channel registry
// and the WebSocket broadcast hub. allowedOrigins gates WebSocket upgrades;
// an empty slice rejects every browser-originated connection.
func NewHandler(registry ChannelRegistry, hub *websocket.Hub, allowedOrigins []string) *Handler {
	return &Handler{registry: registry, hub: hub, allowedOrigins: allowedOrigins}
}

// pvCountResponse mirrors internal/engine/cluster's expected peer poll
// response body. Both fields are string-encoded integers, matching the
// original ConnectedPVCountForAppliance wire format.
type pvCountResponse struct {
	Total        string `json:"total"`
	Disconnected string `json:"disconnected"`
}

// ConnectedPVCountForAppliance reports this appliance's total and
// disconnected PV counts, polled by peer appliances to gate metachannel
// startup cluster-wide.
func (h *Handler) ConnectedPVCountForAppliance(w http.ResponseWriter, r *http.Request) {
	total := h.registry.Size()
	disconnected := 0
	h.registry.ForEach(func(_ string, ch channel.ArchiveChannel) {
		if !ch.IsConnected() {
			disconnected++
		}
	})

	NewResponseWriter(w, r).Success(pvCountResponse{
		Total:        strconv.Itoa(total),
		Disconnected: strconv.Itoa(disconnected),
	})
}

// Health reports liveness: the process is up and serving requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// WebSocket upgrades the connection and registers it with the hub for
// engine_status, pv_connection, and cluster_status broadcasts.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// checkWebSocketOrigin rejects connections with no Origin header (only
// non-browser clients omit it) and otherwise requires an exact match
// against the configured allow-list; an allow-list entry of "*" accepts
// any origin.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
