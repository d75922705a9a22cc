// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package main is the entry point for one archiver appliance process.
//
// # Application Architecture
//
// The process wires its components in the following order:
//
//  1. Configuration: load settings from environment variables and an
//     optional config file (Koanf v2).
//  2. Logging: initialize the process-wide zerolog logger.
//  3. Storage: open the configured storage plugin (badger or duckdb).
//  4. Event bus: start the control-plane event bus (in-process gochannel,
//     or NATS JetStream for multi-appliance deployments).
//  5. Cluster: construct the peer-polling client for the configured peers.
//  6. Engine: construct EngineContext with its collaborators and start the
//     writer loop and disconnect monitor.
//  7. WebSocket hub and HTTP API: expose the cluster coordination
//     endpoint, health, metrics, and live status broadcasts.
//  8. Supervisor tree: supervise every long-running component, organized
//     into thread/cluster/api layers so a crash in one layer does not
//     take down the others.
//
// # Signal Handling
//
// The process handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, runs EngineContext.Shutdown's ordered
// teardown, and waits for the supervisor tree to report every service
// stopped (bounded by ShutdownTimeout).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/cartographus/internal/api"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/engine"
	"github.com/tomtom215/cartographus/internal/engine/cluster"
	"github.com/tomtom215/cartographus/internal/eventbus"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/storage"
	"github.com/tomtom215/cartographus/internal/supervisor"
	"github.com/tomtom215/cartographus/internal/supervisor/services"
	"github.com/tomtom215/cartographus/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("identity", cfg.Cluster.Identity).Msg("starting archiver engine")

	plugin, err := storage.ParsePluginURL(cfg.Storage.PluginURL)
	if err != nil {
		logging.Fatal().Err(err).Str("plugin_url", cfg.Storage.PluginURL).Msg("failed to open storage plugin")
	}
	defer func() {
		if err := plugin.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing storage plugin")
		}
	}()
	logging.Info().Str("plugin_url", cfg.Storage.PluginURL).Msg("storage plugin opened")

	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	poller := cluster.NewPoller(cfg.Cluster.Peers, cfg.Cluster.PollTimeout, cfg.Cluster.PollRatePerSecond)
	shutdownFlag := &engine.ShutdownFlag{}
	typeInfo := engine.NewMemTypeInfoStore()

	eng, err := engine.New(
		cfg.Engine.CommandThreadCount,
		cfg.Engine.DisconnectCheckTimeoutMinutes,
		cfg.Engine.SampleBufferCapacityAdjustment,
		engine.Dependencies{
			Config:       shutdownFlag,
			TypeInfo:     typeInfo,
			PauseResumer: typeInfo,
			NativeLister: typeInfo,
			Cluster:      poller,
			Storage:      plugin,
		},
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct engine context")
	}

	if _, err := eng.StartWriteThread(cfg.Engine.WriteSecondsToBuffer); err != nil {
		logging.Fatal().Err(err).Msg("failed to start writer thread")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddThreadService(eng.Writer())
	tree.AddThreadService(eng.DisconnectMonitor())
	tree.AddClusterService(engine.NewControlPlane(eng, bus, cfg.Cluster.Identity))

	hub := websocket.NewHub()
	tree.AddAPIService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(&statusBroadcaster{engine: eng, poller: poller, hub: hub})

	handler := api.NewHandler(eng.Registry(), hub, cfg.Server.CORSOrigins())
	router := api.NewRouter(handler, api.RouterConfig{
		ChiMiddlewareConfig: api.ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins(),
			RateLimitRequests:  100,
			RateLimitWindow:    time.Minute,
		},
		JWTSecret: cfg.Server.JWTSecret,
	})
	if cfg.Server.JWTSecret == "" {
		logging.Warn().Msg("JWT_SECRET is empty: ConnectedPVCountForAppliance is unauthenticated (development only)")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))
	logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		shutdownFlag.Set()
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	eng.Shutdown(context.Background())

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("archiver engine stopped gracefully")
}

// newEventBus constructs the control-plane event bus per EventBusConfig.
func newEventBus(cfg config.EventBusConfig) (*eventbus.Bus, error) {
	if cfg.Backend == "nats" {
		return eventbus.NewNATSBus(eventbus.NATSConfig{
			URL:              cfg.NATSURL,
			DurableName:      "engine",
			QueueGroup:       "engine",
			SubscribersCount: 1,
			MaxReconnects:    10,
			ReconnectWait:    2 * time.Second,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     5 * time.Second,
		})
	}
	return eventbus.NewGoChannelBus(eventbus.GoChannelConfig{OutputChannelBuffer: 256}), nil
}
