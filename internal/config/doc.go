// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package config loads and validates engine configuration.

Configuration is layered via Koanf v2, highest priority last:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (config.yaml, or CONFIG_PATH)
 3. Environment variables prefixed ENGINE_ (e.g. ENGINE_ENGINE_COMMAND_THREAD_COUNT)

The resulting Config is validated with go-playground/validator struct tags
plus a handful of URL-shape checks (cluster peer URLs, NATS event-bus URL).

FromInstallationProperties offers a compatibility path for callers that
still hand over a flat string-keyed property bag using the original
engine's dotted property names (org.epics.archiverappliance.*), falling
back to documented defaults for any key not present.
*/
package config
