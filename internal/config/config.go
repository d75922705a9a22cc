// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import "time"

// Config holds all engine configuration loaded from environment variables
// and config files.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: sensible defaults for every field below
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Example - Load configuration from environment:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
type Config struct {
	Engine   EngineConfig
	Cluster  ClusterConfig
	EventBus EventBusConfig
	Storage  StorageConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// EngineConfig holds the tunable installation properties for the
// engine specification, plus the write-period seed the writer loop consumes.
type EngineConfig struct {
	// CommandThreadCount is org.epics.archiverappliance.engine.epics.commandThreadCount.
	// Default: 10.
	CommandThreadCount int `koanf:"command_thread_count" validate:"gt=0"`

	// DisconnectCheckTimeoutMinutes is
	// org.epics.archiverappliance.engine.util.EngineContext.disconnectCheckTimeoutInMinutes.
	// The source's in-code default (20) and its property-fallback default (10)
	// disagree; this port preserves the property-fallback default of 10.
	DisconnectCheckTimeoutMinutes int `koanf:"disconnect_check_timeout_minutes" validate:"gte=0"`

	// SampleBufferCapacityAdjustment is
	// org.epics.archiverappliance.config.PVTypeInfo.sampleBufferCapacityAdjustment.
	// Default: 1.0.
	SampleBufferCapacityAdjustment float64 `koanf:"sample_buffer_capacity_adjustment" validate:"gt=0"`

	// WriteSecondsToBuffer seeds the writer loop's requested period;
	// the writer may clamp/round it and the actual period is what the
	// engine records as write_period.
	WriteSecondsToBuffer int `koanf:"write_seconds_to_buffer" validate:"gt=0"`
}

// ClusterConfig configures the peer-polling cluster coordination client.
type ClusterConfig struct {
	// Identity is this appliance's own destination string, compared against
	// incoming event-bus messages' destination field.
	Identity string `koanf:"identity" validate:"required"`

	// Peers lists the other appliances' base engine URLs. Each is polled at
	// "<url>/ConnectedPVCountForAppliance".
	Peers []string `koanf:"peers"`

	// PollTimeout bounds each individual peer HTTP call.
	PollTimeout time.Duration `koanf:"poll_timeout"`

	// PollRatePerSecond caps outbound peer-polling calls per second.
	PollRatePerSecond float64 `koanf:"poll_rate_per_second" validate:"gt=0"`
}

// EventBusConfig selects the transport for the process-wide event bus.
type EventBusConfig struct {
	// Backend is "gochannel" (default, in-process only) or "nats" (durable,
	// cluster-visible JetStream backend).
	Backend string `koanf:"backend" validate:"oneof=gochannel nats"`

	// NATSURL is the JetStream server URL, used only when Backend == "nats".
	NATSURL string `koanf:"nats_url"`
}

// StorageConfig selects the first storage plugin destination for flushed
// samples.
type StorageConfig struct {
	// PluginURL is parsed by storage.ParsePluginURL, e.g.
	// "badger:///var/lib/engine/badger" or "duckdb:///var/lib/engine/archive.duckdb".
	PluginURL string `koanf:"plugin_url" validate:"required"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`

	// JWTSecret signs and verifies bearer tokens on the cluster coordination
	// endpoint. Required in production; empty disables auth (development only).
	JWTSecret string `koanf:"jwt_secret"`

	// CORSAllowedOriginsRaw is comma-separated in config file/env form; use
	// CORSOrigins to read the parsed list.
	CORSAllowedOriginsRaw []string `koanf:"cors_allowed_origins"`
}

// CORSOrigins returns the configured CORS allow-list.
func (s ServerConfig) CORSOrigins() []string {
	return s.CORSAllowedOriginsRaw
}

// LoggingConfig configures the process-wide zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// FromInstallationProperties builds an EngineConfig from a flat property
// bag, mirroring the original engine's org.epics.archiverappliance.* dotted
// property lookups. Missing keys fall back to the documented defaults.
func FromInstallationProperties(props map[string]string) EngineConfig {
	cfg := defaultConfig().Engine
	if v, ok := props["org.epics.archiverappliance.engine.epics.commandThreadCount"]; ok {
		if n, err := parseIntProperty(v); err == nil {
			cfg.CommandThreadCount = n
		}
	}
	if v, ok := props["org.epics.archiverappliance.engine.util.EngineContext.disconnectCheckTimeoutInMinutes"]; ok {
		if n, err := parseIntProperty(v); err == nil {
			cfg.DisconnectCheckTimeoutMinutes = n
		}
	}
	if v, ok := props["org.epics.archiverappliance.config.PVTypeInfo.sampleBufferCapacityAdjustment"]; ok {
		if f, err := parseFloatProperty(v); err == nil {
			cfg.SampleBufferCapacityAdjustment = f
		}
	}
	return cfg
}
