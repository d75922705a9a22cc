// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package main

import (
	"context"
	"time"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/engine"
	"github.com/tomtom215/cartographus/internal/engine/cluster"
	"github.com/tomtom215/cartographus/internal/websocket"
)

// statusBroadcastPeriod controls how often the engine and cluster status
// broadcasters publish to connected WebSocket clients.
const statusBroadcastPeriod = 5 * time.Second

// statusBroadcaster periodically pushes engine and cluster snapshots to the
// WebSocket hub. It implements suture.Service so the supervisor tree's API
// layer can restart it independently of the HTTP server itself.
type statusBroadcaster struct {
	engine *engine.EngineContext
	poller *cluster.Poller
	hub    *websocket.Hub
}

// Serve implements suture.Service.
func (b *statusBroadcaster) Serve(ctx context.Context) error {
	ticker := time.NewTicker(statusBroadcastPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *statusBroadcaster) tick(ctx context.Context) {
	total, disconnected := 0, 0
	b.engine.Registry().ForEach(func(_ string, ch channel.ArchiveChannel) {
		total++
		if !ch.IsConnected() {
			disconnected++
		}
	})
	var avgWriterSeconds float64
	if w := b.engine.Writer(); w != nil {
		avgWriterSeconds = w.AverageSecondsConsumedByWriter()
	}
	b.hub.BroadcastEngineStatus(websocket.EngineStatusData{
		RegistrySize:                   total,
		ConnectedCount:                 total - disconnected,
		DisconnectedCount:              disconnected,
		AverageSecondsConsumedByWriter: avgWriterSeconds,
	})

	if b.poller == nil {
		return
	}
	peers := b.poller.PollAll(ctx)
	statuses := make([]websocket.ClusterPeerStatus, len(peers))
	for i, peer := range peers {
		statuses[i] = websocket.ClusterPeerStatus{
			Peer:         peer.Peer,
			Total:        peer.Total,
			Disconnected: peer.Disconnected,
			Responded:    peer.Responded,
		}
	}
	b.hub.BroadcastClusterStatus(statuses)
}
