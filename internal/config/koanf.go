// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/engine/config.yaml",
	"/etc/engine/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is the prefix env.Provider strips before remapping into koanf's
// dotted key space, e.g. ENGINE_ENGINE_COMMAND_THREAD_COUNT -> engine.command_thread_count.
const envPrefix = "ENGINE_"

// defaultConfig returns a Config with every field set to its documented
// default. Defaults are applied first, then overridden by config file and
// environment variables.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			CommandThreadCount:             10,
			DisconnectCheckTimeoutMinutes:  10,
			SampleBufferCapacityAdjustment: 1.0,
			WriteSecondsToBuffer:           30,
		},
		Cluster: ClusterConfig{
			Identity:          "appliance0",
			Peers:             nil,
			PollTimeout:       5 * time.Second,
			PollRatePerSecond: 10.0,
		},
		EventBus: EventBusConfig{
			Backend: "gochannel",
		},
		Storage: StorageConfig{
			PluginURL: "badger:///var/lib/engine/badger",
		},
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  17665,
			CORSAllowedOriginsRaw: nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds a Config by layering, in increasing priority: built-in
// defaults, an optional YAML config file, and environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := processSliceFields(k, cfg); err != nil {
		return nil, fmt.Errorf("config: processing slice fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing path from CONFIG_PATH (if set)
// or DefaultConfigPaths, or "" if none exist.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		return ""
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc converts ENGINE_CLUSTER_IDENTITY into cluster.identity,
// matching the struct tags declared on Config's nested types. Only the
// first underscore after the prefix becomes a dot, so multi-word field
// names keep theirs (ENGINE_CLUSTER_POLL_TIMEOUT -> cluster.poll_timeout).
func envTransformFunc(key string) string {
	trimmed := strings.TrimPrefix(key, envPrefix)
	return strings.Replace(strings.ToLower(trimmed), "_", ".", 1)
}

// processSliceFields handles comma-separated env values for slice fields,
// since koanf's env provider delivers them as a single string rather than
// a proper list.
func processSliceFields(k *koanf.Koanf, cfg *Config) error {
	if raw := k.String("cluster.peers"); raw != "" && len(cfg.Cluster.Peers) == 0 {
		parts := strings.Split(raw, ",")
		peers := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				peers = append(peers, p)
			}
		}
		cfg.Cluster.Peers = peers
	}
	if raw := k.String("server.cors_allowed_origins"); raw != "" && len(cfg.Server.CORSAllowedOriginsRaw) == 0 {
		parts := strings.Split(raw, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				origins = append(origins, p)
			}
		}
		cfg.Server.CORSAllowedOriginsRaw = origins
	}
	return nil
}

func parseIntProperty(v string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v))
}

func parseFloatProperty(v string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

// validate is a package-level validator instance.
var validate = validator.New()

// Validate checks that the loaded configuration satisfies the struct tags
// declared on Config and its nested types.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := validateClusterPeers(c.Cluster.Peers); err != nil {
		return err
	}
	if c.EventBus.Backend == "nats" {
		if err := validateNATSURL(c.EventBus.NATSURL); err != nil {
			return fmt.Errorf("event_bus.nats_url: %w", err)
		}
	}
	return nil
}
