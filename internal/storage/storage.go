// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package storage defines the URL-addressed, pluggable storage-plugin
// contract the writer loop flushes archived samples through, plus a factory
// that resolves a plugin URL to a concrete implementation. Two concrete
// plugins ship in this module: internal/storage/badgerstore (an embedded KV
// store) and internal/storage/duckstore (a SQL-queryable columnar store).
package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tomtom215/cartographus/internal/channel"
	"github.com/tomtom215/cartographus/internal/storage/badgerstore"
	"github.com/tomtom215/cartographus/internal/storage/duckstore"
)

// Plugin is the contract a concrete storage backend satisfies. It also
// satisfies engine.StorageFlusher, so any Plugin can be wired directly as
// an EngineContext's Storage dependency.
type Plugin interface {
	Flush(ctx context.Context, ch channel.ArchiveChannel) error
	Close() error
}

// ErrUnsupportedScheme is returned by ParsePluginURL for a scheme with no
// registered plugin.
type ErrUnsupportedScheme struct {
	Scheme string
}

func (e *ErrUnsupportedScheme) Error() string {
	return fmt.Sprintf("storage: unsupported plugin URL scheme %q", e.Scheme)
}

// ParsePluginURL resolves a plugin URL to a concrete Plugin. The scheme
// selects the backend ("badger" or "duckdb"); the rest of the URL is the
// backend's path/DSN. Keeps storage destinations fully data-driven rather
// than compiled in.
func ParsePluginURL(pluginURL string) (Plugin, error) {
	parsed, err := url.Parse(pluginURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse plugin URL %q: %w", pluginURL, err)
	}

	switch parsed.Scheme {
	case "badger":
		return badgerstore.Open(badgerstore.Config{Path: parsed.Path})
	case "duckdb":
		return duckstore.Open(duckstore.Config{Path: parsed.Path})
	default:
		return nil, &ErrUnsupportedScheme{Scheme: parsed.Scheme}
	}
}
